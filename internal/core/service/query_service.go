package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guillermoBallester/quackquery/internal/core/domain"
	"github.com/guillermoBallester/quackquery/internal/core/port"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Answer is the outcome of a question that made it through the gate.
type Answer struct {
	QueryID   string            `json:"query_id"`
	DatasetID string            `json:"dataset_id"`
	SQL       string            `json:"sql"`
	Result    *domain.ResultSet `json:"result"`
	Chart     *domain.ChartSpec `json:"chart,omitempty"`
}

// QueryService orchestrates SQL generation, the guardrail gate (domain) and
// execution (infrastructure). Nothing reaches the executor without passing
// the gate first.
type QueryService struct {
	gate     port.QueryGate
	executor port.QueryExecutor
	store    port.MetadataStore
	ingestor port.DatasetIngestor
	auditor  port.QueryAuditor
	logger   *slog.Logger
	tracer   trace.Tracer
	inst     port.Instrumentation
}

func NewQueryService(gate port.QueryGate, executor port.QueryExecutor, store port.MetadataStore, ingestor port.DatasetIngestor, auditor port.QueryAuditor, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *QueryService {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("noop")
	}
	if inst == nil {
		inst = port.NoopInstrumentation{}
	}
	return &QueryService{
		gate:     gate,
		executor: executor,
		store:    store,
		ingestor: ingestor,
		auditor:  auditor,
		logger:   logger,
		tracer:   tracer,
		inst:     inst,
	}
}

// Ask turns a question about a dataset into SQL, vets it and runs it.
func (s *QueryService) Ask(ctx context.Context, datasetID, question string) (*Answer, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.Ask",
		trace.WithAttributes(attribute.String("quackquery.dataset.id", datasetID)),
	)
	defer span.End()

	ds, err := s.store.GetDataset(ctx, datasetID)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("loading dataset %q: %w", datasetID, err))
	}

	cols, err := s.ingestor.DescribeTable(ctx, ds.TableName)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("describing dataset %q: %w", datasetID, err))
	}

	raw, err := domain.GenerateSQL(question, domain.TableSchema{TableName: ds.TableName, Columns: cols})
	if err != nil {
		s.reject(ctx, span, ds.ID, question, raw, err)
		return nil, fmt.Errorf("generating SQL: %w", err)
	}

	safe, err := s.validate(ctx, span, ds.ID, question, raw)
	if err != nil {
		return nil, err
	}

	queryID := newID()
	start := time.Now()
	result, err := s.executor.Execute(ctx, safe)
	durationMS := time.Since(start).Milliseconds()

	s.inst.RecordQueryDuration(ctx, float64(durationMS))
	s.auditor.Record(ctx, port.AuditEntry{
		ID:           queryID,
		DatasetID:    ds.ID,
		Question:     question,
		SQL:          safe,
		Stage:        port.StageExecute,
		OK:           err == nil,
		Err:          err,
		RowsReturned: result.Len(),
		DurationMS:   durationMS,
		CreatedAt:    start.UTC(),
	})

	if err != nil {
		s.logger.WarnContext(ctx, "query execution failed",
			slog.String("db.operation.name", "query"),
			slog.String("db.statement", safe),
			slog.String("error.type", "execution_error"),
			slog.String("error.message", err.Error()),
		)
		s.inst.IncrementQueryErrors(ctx)
		return nil, s.fail(span, fmt.Errorf("executing query: %w", err))
	}

	s.inst.IncrementQueryCount(ctx)
	span.SetAttributes(attribute.Int("db.response.rows", result.Len()))

	return &Answer{
		QueryID:   queryID,
		DatasetID: ds.ID,
		SQL:       safe,
		Result:    result,
		Chart:     domain.SuggestChart(result),
	}, nil
}

// Check runs the gate alone and returns the SQL that would be executed.
func (s *QueryService) Check(ctx context.Context, sql string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "QueryService.Check")
	defer span.End()

	return s.validate(ctx, span, "", sql, sql)
}

// validate passes sql through the gate and records the attempt either way.
func (s *QueryService) validate(ctx context.Context, span trace.Span, datasetID, question, sql string) (string, error) {
	span.SetAttributes(attribute.String("db.query.text", sql))

	safe, err := s.gate.ValidateAndRewrite(sql)
	if err != nil {
		s.reject(ctx, span, datasetID, question, sql, err)
		return "", fmt.Errorf("validation: %w", err)
	}

	s.auditor.Record(ctx, port.AuditEntry{
		ID:        newID(),
		DatasetID: datasetID,
		Question:  question,
		SQL:       safe,
		Stage:     port.StageValidate,
		OK:        true,
		CreatedAt: time.Now().UTC(),
	})
	return safe, nil
}

func (s *QueryService) reject(ctx context.Context, span trace.Span, datasetID, question, sql string, err error) {
	kind, _ := domain.RejectionKind(err)

	s.logger.WarnContext(ctx, "query validation rejected",
		slog.String("db.operation.name", "query"),
		slog.String("db.statement", sql),
		slog.String("error.type", "validation_error"),
		slog.String("quackquery.rejection", string(kind)),
	)
	s.auditor.Record(ctx, port.AuditEntry{
		ID:        newID(),
		DatasetID: datasetID,
		Question:  question,
		SQL:       sql,
		Stage:     port.StageValidate,
		OK:        false,
		Err:       err,
		CreatedAt: time.Now().UTC(),
	})
	s.inst.IncrementRejections(ctx, string(kind))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

func (s *QueryService) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
