package domain

import (
	"github.com/jackc/pgx/v5/pgtype"
)

// ChartKind is the type of chart suggested for a result.
type ChartKind string

const (
	ChartScatter ChartKind = "scatter"
	ChartBar     ChartKind = "bar"
)

// ChartSpec names the chart and the columns plotted on each axis.
type ChartSpec struct {
	Kind ChartKind `json:"kind"`
	X    string    `json:"x"`
	Y    string    `json:"y"`
}

// SuggestChart picks a chart for a result:
//   - two or more numeric columns: scatter of the first two
//   - one numeric and at least one other column: bar of the first other vs the numeric
//   - otherwise nil
func SuggestChart(rs *ResultSet) *ChartSpec {
	if rs.Len() == 0 || len(rs.Columns) < 2 {
		return nil
	}

	var numeric, other []string
	for i, col := range rs.Columns {
		if numericColumn(rs, i) {
			numeric = append(numeric, col)
		} else {
			other = append(other, col)
		}
	}

	switch {
	case len(numeric) >= 2:
		return &ChartSpec{Kind: ChartScatter, X: numeric[0], Y: numeric[1]}
	case len(numeric) == 1 && len(other) >= 1:
		return &ChartSpec{Kind: ChartBar, X: other[0], Y: numeric[0]}
	default:
		return nil
	}
}

// numericColumn reports whether every non-nil value in column i is numeric.
// An all-nil column is not numeric.
func numericColumn(rs *ResultSet, i int) bool {
	seen := false
	for _, row := range rs.Rows {
		if i >= len(row) || row[i] == nil {
			continue
		}
		if !isNumeric(row[i]) {
			return false
		}
		seen = true
	}
	return seen
}

func isNumeric(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		pgtype.Numeric:
		return true
	}
	return false
}
