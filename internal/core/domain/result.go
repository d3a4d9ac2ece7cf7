package domain

// ResultSet is a tabular query result with columns and rows in engine order.
type ResultSet struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	// Truncated is set when the executor stopped reading at its row ceiling.
	Truncated bool `json:"truncated,omitempty"`
}

func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Records returns the rows as column-keyed maps, for JSON consumers that do
// not care about column order.
func (r *ResultSet) Records() []map[string]any {
	if r == nil {
		return nil
	}
	out := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		rec := make(map[string]any, len(r.Columns))
		for i, col := range r.Columns {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}
