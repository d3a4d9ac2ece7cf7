package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/guillermoBallester/quackquery/internal/core/domain"
	"github.com/guillermoBallester/quackquery/internal/core/port"
	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so that created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// MetaStore keeps datasets and the query history in SQLite. It implements
// both port.MetadataStore and port.QueryAuditor.
type MetaStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates (if needed) and migrates the database file at path.
func Open(ctx context.Context, path string, logger *slog.Logger) (*MetaStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating metadata dir: %w", err)
	}

	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening metadata db: %w", err)
	}

	s := New(db, logger)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already opened database.
func New(db *sql.DB, logger *slog.Logger) *MetaStore {
	return &MetaStore{db: db, logger: logger}
}

func (s *MetaStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrating metadata db: %w", err)
	}
	return nil
}

func (s *MetaStore) AddDataset(ctx context.Context, ds port.Dataset) error {
	_, err := s.db.ExecContext(ctx, queryInsertDataset,
		ds.ID, ds.Name, ds.TableName, ds.FilePath, formatTime(ds.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting dataset: %w", err)
	}
	return nil
}

func (s *MetaStore) ListDatasets(ctx context.Context) ([]port.Dataset, error) {
	rows, err := s.db.QueryContext(ctx, queryListDatasets)
	if err != nil {
		return nil, fmt.Errorf("listing datasets: %w", err)
	}
	defer rows.Close()

	var out []port.Dataset
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ds)
	}
	return out, rows.Err()
}

func (s *MetaStore) GetDataset(ctx context.Context, id string) (*port.Dataset, error) {
	ds, err := scanDataset(s.db.QueryRowContext(ctx, queryGetDataset, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("dataset %q: %w", id, domain.ErrNotFound)
	}
	return ds, err
}

func (s *MetaStore) ListQueryLogs(ctx context.Context, limit int) ([]port.QueryLog, error) {
	rows, err := s.db.QueryContext(ctx, queryListQueries, limit)
	if err != nil {
		return nil, fmt.Errorf("listing queries: %w", err)
	}
	defer rows.Close()

	var out []port.QueryLog
	for rows.Next() {
		var (
			q         port.QueryLog
			datasetID sql.NullString
			errMsg    sql.NullString
			created   string
		)
		if err := rows.Scan(&q.ID, &datasetID, &q.Question, &q.SQL, &q.OK, &errMsg, &created); err != nil {
			return nil, fmt.Errorf("scanning query row: %w", err)
		}
		q.DatasetID = datasetID.String
		if errMsg.Valid {
			q.Error = &errMsg.String
		}
		if q.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// Record persists an audit entry. Failures are logged, never returned.
func (s *MetaStore) Record(ctx context.Context, e port.AuditEntry) {
	var errMsg *string
	if e.Err != nil {
		m := e.Err.Error()
		errMsg = &m
	}
	var datasetID *string
	if e.DatasetID != "" {
		datasetID = &e.DatasetID
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}

	_, err := s.db.ExecContext(ctx, queryInsertQuery,
		e.ID, datasetID, string(e.Stage), e.Question, e.SQL, e.OK, errMsg,
		e.RowsReturned, e.DurationMS, formatTime(created),
	)
	if err != nil {
		s.logger.ErrorContext(ctx, "recording query log failed",
			slog.String("quackquery.query.id", e.ID),
			slog.String("error.message", err.Error()),
		)
	}
}

func (s *MetaStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDataset(row scanner) (*port.Dataset, error) {
	var (
		ds      port.Dataset
		created string
	)
	if err := row.Scan(&ds.ID, &ds.Name, &ds.TableName, &ds.FilePath, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning dataset row: %w", err)
	}
	t, err := parseTime(created)
	if err != nil {
		return nil, err
	}
	ds.CreatedAt = t
	return &ds, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
