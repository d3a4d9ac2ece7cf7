package domain

import (
	"fmt"
	"strings"
)

// passthroughPrefix marks a question that already is SQL.
const passthroughPrefix = "sql:"

// previewLimit bounds the fallback preview query.
const previewLimit = 50

// TableSchema describes the dataset a question is asked against.
type TableSchema struct {
	TableName string   `json:"table_name"`
	Columns   []Column `json:"columns"`
}

// Column is a single column name and its engine type.
type Column struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// GenerateSQL turns a question into SQL. Questions starting with "sql:" are
// passed through verbatim; anything else falls back to a preview of the
// table. The result is untrusted and must still go through a Gate.
func GenerateSQL(question string, schema TableSchema) (string, error) {
	q := strings.TrimSpace(question)
	if len(q) >= len(passthroughPrefix) && strings.EqualFold(q[:len(passthroughPrefix)], passthroughPrefix) {
		return strings.TrimSpace(q[len(passthroughPrefix):]), nil
	}

	table, err := SanitizeIdentifier(schema.TableName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", table, previewLimit), nil
}
