package postgres

import (
	"context"
	"fmt"

	"github.com/guillermoBallester/quackquery/internal/core/domain"
	"github.com/guillermoBallester/quackquery/internal/core/port"
)

// planColumn names the single column of an explain-only result.
const planColumn = "plan"

// ExplainOnlyExecutor answers with PostgreSQL's plan for the vetted statement
// instead of its rows. Gate output is always a bare read query, so the
// statement is prefixed unconditionally.
type ExplainOnlyExecutor struct {
	inner port.QueryExecutor
}

func NewExplainOnlyExecutor(inner port.QueryExecutor) *ExplainOnlyExecutor {
	return &ExplainOnlyExecutor{inner: inner}
}

func (e *ExplainOnlyExecutor) Execute(ctx context.Context, sql string) (*domain.ResultSet, error) {
	res, err := e.inner.Execute(ctx, "EXPLAIN "+sql)
	if err != nil {
		return nil, fmt.Errorf("explaining query: %w", err)
	}
	res.Columns = []string{planColumn}
	return res, nil
}
