package postgres

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/guillermoBallester/quackquery/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Ingestor loads CSV files into tables and reads their column layout back.
type Ingestor struct {
	pool *pgxpool.Pool
}

func NewIngestor(pool *pgxpool.Pool) *Ingestor {
	return &Ingestor{pool: pool}
}

// RegisterCSV (re)creates table from the CSV at path and returns the number
// of rows loaded. The table name must pass SanitizeIdentifier; column names
// come from the header and are always quoted.
func (i *Ingestor) RegisterCSV(ctx context.Context, table, path string) (int64, error) {
	ident, err := domain.SanitizeIdentifier(table)
	if err != nil {
		return 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening CSV: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := readCSV(f)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", path, err)
	}

	tx, err := i.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+ident); err != nil {
		return 0, fmt.Errorf("dropping %s: %w", ident, err)
	}
	if _, err := tx.Exec(ctx, createTableSQL(ident, data)); err != nil {
		return 0, fmt.Errorf("creating %s: %w", ident, err)
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{strings.ToLower(ident)}, data.columns, pgx.CopyFromRows(data.rows))
	if err != nil {
		return 0, fmt.Errorf("copying rows into %s: %w", ident, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return n, nil
}

// DescribeTable lists the table's columns in ordinal order.
func (i *Ingestor) DescribeTable(ctx context.Context, table string) ([]domain.Column, error) {
	ident, err := domain.SanitizeIdentifier(table)
	if err != nil {
		return nil, err
	}

	rows, err := i.pool.Query(ctx, queryDescribeColumns, ident)
	if err != nil {
		return nil, fmt.Errorf("querying columns: %w", err)
	}
	cols, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Column, error) {
		var c domain.Column
		err := row.Scan(&c.Name, &c.Type)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning columns: %w", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s: %w", ident, domain.ErrNotFound)
	}
	return cols, nil
}

func createTableSQL(ident string, data *csvTable) string {
	defs := make([]string, len(data.columns))
	for i, name := range data.columns {
		defs[i] = pgx.Identifier{name}.Sanitize() + " " + data.types[i]
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", ident, strings.Join(defs, ", "))
}
