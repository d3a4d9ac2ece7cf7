package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/guillermoBallester/quackquery/internal/core/domain"
	"github.com/guillermoBallester/quackquery/internal/core/port"
)

var (
	ErrMissingFilename = errors.New("upload is missing a filename")
	ErrNotCSV          = errors.New("only .csv files can be uploaded")
)

// tablePrefix starts every generated dataset table name.
const tablePrefix = "t"

// DatasetService registers uploaded CSV files as queryable tables.
type DatasetService struct {
	store    port.MetadataStore
	ingestor port.DatasetIngestor
	uploads  port.UploadStore
	logger   *slog.Logger
}

func NewDatasetService(store port.MetadataStore, ingestor port.DatasetIngestor, uploads port.UploadStore, logger *slog.Logger) *DatasetService {
	return &DatasetService{store: store, ingestor: ingestor, uploads: uploads, logger: logger}
}

// Upload stores the file, loads it into a freshly named table and records
// the dataset.
func (s *DatasetService) Upload(ctx context.Context, filename string, content []byte) (*port.Dataset, error) {
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, ErrMissingFilename
	}
	if !strings.HasSuffix(strings.ToLower(name), ".csv") {
		return nil, fmt.Errorf("%w: %q", ErrNotCSV, name)
	}

	path, err := s.uploads.Save(name, content)
	if err != nil {
		return nil, fmt.Errorf("saving upload: %w", err)
	}

	table, err := domain.NewTableName(tablePrefix)
	if err != nil {
		return nil, fmt.Errorf("naming table: %w", err)
	}

	rows, err := s.ingestor.RegisterCSV(ctx, table, path)
	if err != nil {
		return nil, fmt.Errorf("loading %q into %s: %w", name, table, err)
	}

	ds := port.Dataset{
		ID:        newID(),
		Name:      name,
		TableName: table,
		FilePath:  path,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.AddDataset(ctx, ds); err != nil {
		return nil, fmt.Errorf("recording dataset: %w", err)
	}

	s.logger.InfoContext(ctx, "dataset registered",
		slog.String("quackquery.dataset.id", ds.ID),
		slog.String("quackquery.dataset.table", table),
		slog.Int64("quackquery.dataset.rows", rows),
	)
	return &ds, nil
}

func (s *DatasetService) List(ctx context.Context) ([]port.Dataset, error) {
	return s.store.ListDatasets(ctx)
}

func (s *DatasetService) Get(ctx context.Context, id string) (*port.Dataset, error) {
	return s.store.GetDataset(ctx, id)
}

// Describe returns the dataset's table name and columns.
func (s *DatasetService) Describe(ctx context.Context, id string) (*domain.TableSchema, error) {
	ds, err := s.store.GetDataset(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading dataset %q: %w", id, err)
	}
	cols, err := s.ingestor.DescribeTable(ctx, ds.TableName)
	if err != nil {
		return nil, fmt.Errorf("describing dataset %q: %w", id, err)
	}
	return &domain.TableSchema{TableName: ds.TableName, Columns: cols}, nil
}

// History returns the most recent query log entries, newest first.
func (s *DatasetService) History(ctx context.Context, limit int) ([]port.QueryLog, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListQueryLogs(ctx, limit)
}
