package port

import (
	"context"
	"time"
)

// AuditStage tells which step of a request an entry records.
type AuditStage string

const (
	StageValidate AuditStage = "validate"
	StageExecute  AuditStage = "execute"
)

// AuditEntry represents a single validation or execution attempt.
type AuditEntry struct {
	ID           string
	DatasetID    string
	Question     string
	SQL          string // the SQL actually attempted
	Stage        AuditStage
	OK           bool
	Err          error
	RowsReturned int
	DurationMS   int64
	CreatedAt    time.Time
}

// QueryAuditor records query audit events.
type QueryAuditor interface {
	Record(ctx context.Context, entry AuditEntry)
	Close() error
}
