package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/guillermoBallester/quackquery/internal/core/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ExecutorConfig bounds every statement the executor runs.
type ExecutorConfig struct {
	ReadOnly     bool
	QueryTimeout time.Duration
	// MaxRows stops reading once this many rows arrived and marks the result
	// truncated. Zero reads everything. Only reachable when the gate lets a
	// non-literal LIMIT through.
	MaxRows int64
}

// Executor runs gate-validated SQL as-is; it never rewrites the statement.
type Executor struct {
	pool *pgxpool.Pool
	cfg  ExecutorConfig
}

func NewExecutor(pool *pgxpool.Pool, cfg ExecutorConfig) *Executor {
	return &Executor{pool: pool, cfg: cfg}
}

func (e *Executor) Execute(ctx context.Context, sql string) (*domain.ResultSet, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.QueryTimeout)
	defer cancel()

	tx, err := e.pool.BeginTx(ctx, pgx.TxOptions{
		AccessMode: e.accessMode(),
	})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Server-side timeout, scoped to this transaction.
	timeoutMS := e.cfg.QueryTimeout.Milliseconds()
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%d'", timeoutMS)); err != nil {
		return nil, fmt.Errorf("setting statement timeout: %w", err)
	}

	rows, err := tx.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	defer rows.Close()

	result, err := rowsToResultSet(rows, e.cfg.MaxRows)
	if err != nil {
		return nil, err
	}
	// Closing before commit discards any rows left unread past MaxRows.
	rows.Close()

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return result, nil
}

func (e *Executor) accessMode() pgx.TxAccessMode {
	if e.cfg.ReadOnly {
		return pgx.ReadOnly
	}
	return pgx.ReadWrite
}
