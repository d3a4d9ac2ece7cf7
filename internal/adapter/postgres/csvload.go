package postgres

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Column types assigned to CSV columns. Every value in a column must parse
// as the type for it to be chosen; empty cells load as NULL.
const (
	typeBigint    = "BIGINT"
	typeDouble    = "DOUBLE PRECISION"
	typeBoolean   = "BOOLEAN"
	typeTimestamp = "TIMESTAMPTZ"
	typeText      = "TEXT"
)

var errEmptyCSV = errors.New("CSV file has no header row")

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// csvTable is a CSV file decoded into typed rows ready for COPY.
type csvTable struct {
	columns []string
	types   []string
	rows    [][]any
}

func readCSV(r io.Reader) (*csvTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errEmptyCSV
	}
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading records: %w", err)
	}

	t := &csvTable{columns: columnNames(header)}
	t.types = make([]string, len(t.columns))
	for i := range t.columns {
		t.types[i] = inferType(records, i)
	}

	t.rows = make([][]any, len(records))
	for r, rec := range records {
		row := make([]any, len(t.columns))
		for c, typ := range t.types {
			v, err := convertValue(rec[c], typ)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", r+2, t.columns[c], err)
			}
			row[c] = v
		}
		t.rows[r] = row
	}
	return t, nil
}

// columnNames fills blank headers and de-duplicates repeated ones. Names are
// compared case-insensitively and a renamed column never collides with a
// header that already carries that name.
func columnNames(header []string) []string {
	names := make([]string, len(header))
	taken := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		base := name
		for n := 2; taken[strings.ToLower(name)]; n++ {
			name = fmt.Sprintf("%s_%d", base, n)
		}
		taken[strings.ToLower(name)] = true
		names[i] = name
	}
	return names
}

func inferType(records [][]string, col int) string {
	candidates := []string{typeBigint, typeDouble, typeBoolean, typeTimestamp}
	sawValue := false
	for _, rec := range records {
		v := strings.TrimSpace(rec[col])
		if v == "" {
			continue
		}
		sawValue = true
		kept := candidates[:0]
		for _, typ := range candidates {
			if _, err := convertValue(v, typ); err == nil {
				kept = append(kept, typ)
			}
		}
		candidates = kept
		if len(candidates) == 0 {
			return typeText
		}
	}
	if !sawValue {
		return typeText
	}
	return candidates[0]
}

func convertValue(raw, typ string) (any, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil, nil
	}
	switch typ {
	case typeBigint:
		return strconv.ParseInt(v, 10, 64)
	case typeDouble:
		return strconv.ParseFloat(v, 64)
	case typeBoolean:
		switch strings.ToLower(v) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("not a boolean: %q", v)
	case typeTimestamp:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, v); err == nil {
				return ts, nil
			}
		}
		return nil, fmt.Errorf("not a timestamp: %q", v)
	default:
		return raw, nil
	}
}
