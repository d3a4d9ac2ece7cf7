package port

import (
	"context"
	"time"

	"github.com/guillermoBallester/quackquery/internal/core/domain"
)

// Dataset is an uploaded file registered as a table.
type Dataset struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TableName string    `json:"table_name"`
	FilePath  string    `json:"file_path"`
	CreatedAt time.Time `json:"created_at"`
}

// QueryLog is a persisted audit entry.
type QueryLog struct {
	ID        string    `json:"id"`
	DatasetID string    `json:"dataset_id"`
	Question  string    `json:"question"`
	SQL       string    `json:"sql"`
	OK        bool      `json:"ok"`
	Error     *string   `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MetadataStore persists datasets and the query history.
type MetadataStore interface {
	AddDataset(ctx context.Context, ds Dataset) error
	ListDatasets(ctx context.Context) ([]Dataset, error)
	// GetDataset returns domain.ErrNotFound when id is unknown.
	GetDataset(ctx context.Context, id string) (*Dataset, error)
	ListQueryLogs(ctx context.Context, limit int) ([]QueryLog, error)
}

// DatasetIngestor loads files into the execution engine and reads table
// shapes back. Table names must already have passed domain.SanitizeIdentifier.
type DatasetIngestor interface {
	RegisterCSV(ctx context.Context, table, path string) (int64, error)
	DescribeTable(ctx context.Context, table string) ([]domain.Column, error)
}

// UploadStore keeps the raw bytes of uploaded files and returns where they went.
type UploadStore interface {
	Save(filename string, content []byte) (string, error)
}
