package postgres

import (
	"fmt"

	"github.com/guillermoBallester/quackquery/internal/core/domain"
	"github.com/jackc/pgx/v5"
)

// rowsToResultSet drains rows into a ResultSet in engine column order. With
// maxRows > 0 it stops after that many rows and sets Truncated when more were
// available.
func rowsToResultSet(rows pgx.Rows, maxRows int64) (*domain.ResultSet, error) {
	fields := rows.FieldDescriptions()
	result := &domain.ResultSet{
		Columns: make([]string, len(fields)),
		Rows:    [][]any{},
	}
	for i, fd := range fields {
		result.Columns[i] = fd.Name
	}

	for rows.Next() {
		if maxRows > 0 && int64(len(result.Rows)) == maxRows {
			result.Truncated = true
			break
		}
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading row values: %w", err)
		}
		result.Rows = append(result.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return result, nil
}
