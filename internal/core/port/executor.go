package port

import (
	"context"

	"github.com/guillermoBallester/quackquery/internal/core/domain"
)

// QueryExecutor runs gate-validated SQL and returns an ordered result.
type QueryExecutor interface {
	Execute(ctx context.Context, sql string) (*domain.ResultSet, error)
}
