package policy

import (
	"context"

	"github.com/guillermoBallester/quackquery/internal/core/domain"
	"github.com/guillermoBallester/quackquery/internal/core/port"
)

// PolicyIngestor decorates a DatasetIngestor with data dictionary enrichment
// of described columns.
type PolicyIngestor struct {
	inner  port.DatasetIngestor
	policy *Policy
}

func NewPolicyIngestor(inner port.DatasetIngestor, pol *Policy) *PolicyIngestor {
	return &PolicyIngestor{inner: inner, policy: pol}
}

func (p *PolicyIngestor) RegisterCSV(ctx context.Context, table, path string) (int64, error) {
	return p.inner.RegisterCSV(ctx, table, path)
}

func (p *PolicyIngestor) DescribeTable(ctx context.Context, table string) ([]domain.Column, error) {
	cols, err := p.inner.DescribeTable(ctx, table)
	if err != nil {
		return nil, err
	}
	MergeColumns(cols, p.policy.Context)
	return cols, nil
}
