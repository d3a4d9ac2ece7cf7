package policy

import (
	"strings"

	"github.com/guillermoBallester/quackquery/internal/core/domain"
)

// MergeColumns fills empty column descriptions from the data dictionary.
// Descriptions already set are left alone.
func MergeColumns(cols []domain.Column, ctx ContextConfig) {
	if len(ctx.Columns) == 0 {
		return
	}
	lookup := make(map[string]string, len(ctx.Columns))
	for name, desc := range ctx.Columns {
		lookup[strings.ToLower(name)] = desc
	}
	for i, col := range cols {
		if col.Description != "" {
			continue
		}
		if desc, ok := lookup[strings.ToLower(col.Name)]; ok {
			cols[i].Description = desc
		}
	}
}
