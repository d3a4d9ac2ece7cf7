package audit

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/guillermoBallester/quackquery/internal/core/port"
)

// fileEntry is the NDJSON-serializable form of an audit record.
type fileEntry struct {
	Timestamp    string  `json:"ts"`
	ID           string  `json:"id"`
	DatasetID    string  `json:"dataset_id,omitempty"`
	Stage        string  `json:"stage"`
	Question     string  `json:"question,omitempty"`
	SQL          string  `json:"sql"`
	OK           bool    `json:"ok"`
	RowsReturned int     `json:"rows_returned"`
	DurationMS   int64   `json:"duration_ms"`
	Error        *string `json:"error"`
}

// FileAuditor writes audit entries as NDJSON (one JSON object per line) to a file.
type FileAuditor struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewFileAuditor opens (or creates) the file at path for append-only writing.
func NewFileAuditor(path string) (*FileAuditor, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &FileAuditor{
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

func (a *FileAuditor) Record(_ context.Context, entry port.AuditEntry) {
	ts := entry.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	fe := fileEntry{
		Timestamp:    ts.UTC().Format(time.RFC3339Nano),
		ID:           entry.ID,
		DatasetID:    entry.DatasetID,
		Stage:        string(entry.Stage),
		Question:     entry.Question,
		SQL:          entry.SQL,
		OK:           entry.OK,
		RowsReturned: entry.RowsReturned,
		DurationMS:   entry.DurationMS,
	}
	if entry.Err != nil {
		s := entry.Err.Error()
		fe.Error = &s
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	_ = a.enc.Encode(fe) // audit I/O errors are dropped
}

func (a *FileAuditor) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// NoopAuditor discards all audit entries.
type NoopAuditor struct{}

func (NoopAuditor) Record(context.Context, port.AuditEntry) {}
func (NoopAuditor) Close() error                            { return nil }

// MultiAuditor fans every entry out to each of its auditors in order.
type MultiAuditor []port.QueryAuditor

func (m MultiAuditor) Record(ctx context.Context, entry port.AuditEntry) {
	for _, a := range m {
		a.Record(ctx, entry)
	}
}

func (m MultiAuditor) Close() error {
	var errs []error
	for _, a := range m {
		if err := a.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
