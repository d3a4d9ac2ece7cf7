package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/guillermoBallester/quackquery/internal/audit"
	"github.com/guillermoBallester/quackquery/internal/core/domain"
	"github.com/guillermoBallester/quackquery/internal/core/port"
	"github.com/guillermoBallester/quackquery/internal/core/service"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock QueryExecutor ---

type mockExecutor struct {
	result  *domain.ResultSet
	err     error
	lastSQL string // captures the SQL passed to Execute
}

func (m *mockExecutor) Execute(_ context.Context, sql string) (*domain.ResultSet, error) {
	m.lastSQL = sql
	return m.result, m.err
}

// --- mock MetadataStore ---

type mockStore struct {
	datasets map[string]port.Dataset
	logs     []port.QueryLog
	err      error
}

func (m *mockStore) AddDataset(_ context.Context, ds port.Dataset) error {
	if m.err != nil {
		return m.err
	}
	if m.datasets == nil {
		m.datasets = map[string]port.Dataset{}
	}
	m.datasets[ds.ID] = ds
	return nil
}

func (m *mockStore) ListDatasets(_ context.Context) ([]port.Dataset, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make([]port.Dataset, 0, len(m.datasets))
	for _, ds := range m.datasets {
		out = append(out, ds)
	}
	return out, nil
}

func (m *mockStore) GetDataset(_ context.Context, id string) (*port.Dataset, error) {
	ds, ok := m.datasets[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &ds, nil
}

func (m *mockStore) ListQueryLogs(_ context.Context, limit int) ([]port.QueryLog, error) {
	if limit < len(m.logs) {
		return m.logs[:limit], nil
	}
	return m.logs, m.err
}

// --- mock DatasetIngestor ---

type mockIngestor struct {
	columns []domain.Column
	err     error
}

func (m *mockIngestor) RegisterCSV(context.Context, string, string) (int64, error) {
	return 2, m.err
}

func (m *mockIngestor) DescribeTable(context.Context, string) ([]domain.Column, error) {
	return m.columns, m.err
}

// --- mock UploadStore ---

type mockUploads struct{}

func (mockUploads) Save(filename string, _ []byte) (string, error) {
	return "/uploads/abc_" + filename, nil
}

// --- helpers ---

var sessionCounter atomic.Int64

func callTool(t *testing.T, s *server.MCPServer, toolName string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	session := server.NewInProcessSession(fmt.Sprintf("test-%d", sessionCounter.Add(1)), nil)
	require.NoError(t, s.RegisterSession(ctx, session))
	sessionCtx := s.WithContext(ctx, session)

	// Initialize session.
	initBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "init", "method": "initialize",
		"params": map[string]any{
			"protocolVersion": "2025-03-26",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "test", "version": "1.0"},
		},
	})
	s.HandleMessage(sessionCtx, initBytes)

	// Call tool.
	reqBytes, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0", "id": "call-1", "method": "tools/call",
		"params": map[string]any{
			"name":      toolName,
			"arguments": args,
		},
	})
	resp := s.HandleMessage(sessionCtx, reqBytes)
	respBytes, _ := json.Marshal(resp)

	var rpc struct {
		Result *mcp.CallToolResult       `json:"result"`
		Error  *struct{ Message string } `json:"error,omitempty"`
	}
	require.NoError(t, json.Unmarshal(respBytes, &rpc))
	require.Nil(t, rpc.Error, "unexpected RPC error: %v", rpc.Error)
	require.NotNil(t, rpc.Result)
	return rpc.Result
}

func toolText(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return ""
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return ""
	}
	return tc.Text
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const testDatasetID = "ds1"

func setupServer(t *testing.T, store *mockStore, ingestor *mockIngestor, executor *mockExecutor) *server.MCPServer {
	t.Helper()
	logger := testLogger()

	gate, err := domain.NewGate(domain.DefaultGuardrailPolicy())
	require.NoError(t, err)

	querySvc := service.NewQueryService(gate, executor, store, ingestor, audit.NoopAuditor{}, logger, nil, nil)
	datasetSvc := service.NewDatasetService(store, ingestor, mockUploads{}, logger)

	return NewServer("0.1.0", datasetSvc, querySvc, logger, nil, nil)
}

func defaultStore() *mockStore {
	return &mockStore{datasets: map[string]port.Dataset{
		testDatasetID: {ID: testDatasetID, Name: "sales.csv", TableName: "t_0123456789"},
	}}
}

// --- tests ---

func TestListDatasets(t *testing.T) {
	s := setupServer(t, defaultStore(), &mockIngestor{}, &mockExecutor{})

	result := callTool(t, s, "list_datasets", nil)
	require.False(t, result.IsError, toolText(result))

	var list []port.Dataset
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "t_0123456789", list[0].TableName)
}

func TestListDatasets_Error(t *testing.T) {
	s := setupServer(t, &mockStore{err: fmt.Errorf("database is locked")}, &mockIngestor{}, &mockExecutor{})

	result := callTool(t, s, "list_datasets", nil)
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "internal error")
	assert.NotContains(t, toolText(result), "locked")
}

func TestUploadCSV(t *testing.T) {
	store := &mockStore{}
	s := setupServer(t, store, &mockIngestor{}, &mockExecutor{})

	result := callTool(t, s, "upload_csv", map[string]any{"filename": "sales.csv", "content": "a,b\n1,2\n"})
	require.False(t, result.IsError, toolText(result))

	var ds port.Dataset
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &ds))
	assert.Equal(t, "sales.csv", ds.Name)
	assert.Regexp(t, `^t_[0-9a-f]{10}$`, ds.TableName)
	assert.Contains(t, store.datasets, ds.ID)
}

func TestUploadCSV_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"missing filename", map[string]any{"content": "a\n1\n"}, "filename is required"},
		{"missing content", map[string]any{"filename": "a.csv"}, "content is required"},
		{"not csv", map[string]any{"filename": "a.json", "content": "{}"}, "only .csv files"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupServer(t, &mockStore{}, &mockIngestor{}, &mockExecutor{})
			result := callTool(t, s, "upload_csv", tt.args)
			assert.True(t, result.IsError)
			assert.Contains(t, toolText(result), tt.want)
		})
	}
}

func TestDescribeDataset(t *testing.T) {
	ingestor := &mockIngestor{columns: []domain.Column{{Name: "region", Type: "text"}, {Name: "total", Type: "bigint"}}}
	s := setupServer(t, defaultStore(), ingestor, &mockExecutor{})

	result := callTool(t, s, "describe_dataset", map[string]any{"dataset_id": testDatasetID})
	require.False(t, result.IsError, toolText(result))

	var schema domain.TableSchema
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &schema))
	assert.Equal(t, "t_0123456789", schema.TableName)
	assert.Len(t, schema.Columns, 2)
}

func TestDescribeDataset_NotFound(t *testing.T) {
	s := setupServer(t, defaultStore(), &mockIngestor{}, &mockExecutor{})

	result := callTool(t, s, "describe_dataset", map[string]any{"dataset_id": "nope"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "not found")
}

func TestAsk_HappyPath(t *testing.T) {
	executor := &mockExecutor{
		result: &domain.ResultSet{Columns: []string{"region", "total"}, Rows: [][]any{{"north", 10}}},
	}
	s := setupServer(t, defaultStore(), &mockIngestor{}, executor)

	result := callTool(t, s, "ask", map[string]any{
		"dataset_id": testDatasetID,
		"question":   "sql: SELECT region, total FROM t_0123456789 LIMIT 5000",
	})
	require.False(t, result.IsError, toolText(result))
	assert.Equal(t, "SELECT region, total FROM t_0123456789 LIMIT 1000", executor.lastSQL)

	var ans struct {
		SQL    string            `json:"sql"`
		Result domain.ResultSet  `json:"result"`
		Chart  *domain.ChartSpec `json:"chart"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &ans))
	assert.Equal(t, executor.lastSQL, ans.SQL)
	assert.Equal(t, []string{"region", "total"}, ans.Result.Columns)
	require.NotNil(t, ans.Chart)
	assert.Equal(t, domain.ChartBar, ans.Chart.Kind)
}

func TestAsk_AsRecords(t *testing.T) {
	executor := &mockExecutor{
		result: &domain.ResultSet{Columns: []string{"region", "total"}, Rows: [][]any{{"north", 10}}},
	}
	s := setupServer(t, defaultStore(), &mockIngestor{}, executor)

	result := callTool(t, s, "ask", map[string]any{
		"dataset_id": testDatasetID,
		"question":   "sql: SELECT region, total FROM t_0123456789",
		"as_records": true,
	})
	require.False(t, result.IsError, toolText(result))

	var ans struct {
		Rows []map[string]any `json:"rows"`
	}
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &ans))
	require.Len(t, ans.Rows, 1)
	assert.Equal(t, "north", ans.Rows[0]["region"])
}

func TestAsk_MissingArguments(t *testing.T) {
	s := setupServer(t, defaultStore(), &mockIngestor{}, &mockExecutor{})

	result := callTool(t, s, "ask", map[string]any{"question": "sql: SELECT 1"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "dataset_id is required")

	result = callTool(t, s, "ask", map[string]any{"dataset_id": testDatasetID})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "question is required")
}

func TestAsk_RejectionPassthrough(t *testing.T) {
	executor := &mockExecutor{}
	s := setupServer(t, defaultStore(), &mockIngestor{}, executor)

	result := callTool(t, s, "ask", map[string]any{
		"dataset_id": testDatasetID,
		"question":   "sql: DROP TABLE t_0123456789",
	})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "only SELECT queries are allowed")
	assert.Empty(t, executor.lastSQL)
}

func TestAsk_ExecutorError(t *testing.T) {
	executor := &mockExecutor{err: fmt.Errorf("connection reset by peer")}
	s := setupServer(t, defaultStore(), &mockIngestor{}, executor)

	result := callTool(t, s, "ask", map[string]any{"dataset_id": testDatasetID, "question": "sql: SELECT 1"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "internal error")
}

func TestCheckSQL(t *testing.T) {
	executor := &mockExecutor{}
	s := setupServer(t, defaultStore(), &mockIngestor{}, executor)

	result := callTool(t, s, "check_sql", map[string]any{"sql": "select a from t"})
	require.False(t, result.IsError, toolText(result))

	var out map[string]string
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &out))
	assert.Equal(t, "SELECT a FROM t LIMIT 200", out["sql"])
	assert.Empty(t, executor.lastSQL, "check_sql must not execute")

	result = callTool(t, s, "check_sql", map[string]any{"sql": "SELECT 1; SELECT 2"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "only one SQL statement is allowed")

	result = callTool(t, s, "check_sql", map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "sql is required")
}

func TestSanitizeIdentifierTool(t *testing.T) {
	s := setupServer(t, defaultStore(), &mockIngestor{}, &mockExecutor{})

	result := callTool(t, s, "sanitize_identifier", map[string]any{"name": "t_abc"})
	require.False(t, result.IsError, toolText(result))
	assert.JSONEq(t, `{"identifier":"t_abc"}`, toolText(result))

	result = callTool(t, s, "sanitize_identifier", map[string]any{"name": "t; DROP TABLE x"})
	assert.True(t, result.IsError)
	assert.Contains(t, toolText(result), "unsafe identifier")
}

func TestQueryHistory(t *testing.T) {
	store := defaultStore()
	store.logs = []port.QueryLog{{ID: "q2"}, {ID: "q1"}}
	s := setupServer(t, store, &mockIngestor{}, &mockExecutor{})

	result := callTool(t, s, "query_history", map[string]any{"limit": 1})
	require.False(t, result.IsError, toolText(result))

	var logs []port.QueryLog
	require.NoError(t, json.Unmarshal([]byte(toolText(result)), &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "q2", logs[0].ID)

	result = callTool(t, s, "query_history", map[string]any{"limit": -1})
	assert.True(t, result.IsError)
}

func TestQueryHistory_InvalidLimit(t *testing.T) {
	tests := []struct {
		name  string
		limit any
	}{
		{"negative", -1},
		{"fraction", 2.5},
		{"above cap", maxHistoryLimit + 1},
		{"beyond int range", 1e300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := defaultStore()
			store.logs = []port.QueryLog{{ID: "q1"}}
			s := setupServer(t, store, &mockIngestor{}, &mockExecutor{})

			result := callTool(t, s, "query_history", map[string]any{"limit": tt.limit})
			require.True(t, result.IsError)
			assert.Contains(t, toolText(result), "whole number between 0 and 1000")
		})
	}

	store := defaultStore()
	store.logs = []port.QueryLog{{ID: "q1"}}
	s := setupServer(t, store, &mockIngestor{}, &mockExecutor{})
	result := callTool(t, s, "query_history", map[string]any{"limit": maxHistoryLimit})
	assert.False(t, result.IsError, toolText(result))
}

func TestAskDescription_NamesAcceptedShapes(t *testing.T) {
	for _, want := range []string{"WITH ... SELECT", "UNION/INTERSECT/EXCEPT", "VALUES", "FOR UPDATE/SHARE"} {
		assert.Contains(t, descAsk, want)
	}
	assert.NotContains(t, descAsk, "exactly one SELECT")
}

// --- sanitizeError tests ---

func TestSanitizeError_Passthrough(t *testing.T) {
	gate, err := domain.NewGate(domain.DefaultGuardrailPolicy())
	require.NoError(t, err)
	_, notSelect := gate.ValidateAndRewrite("DELETE FROM t")
	_, multi := gate.ValidateAndRewrite("SELECT 1; SELECT 2")
	_, parse := gate.ValidateAndRewrite("SELEC 1")
	_, ident := domain.SanitizeIdentifier("1abc")

	tests := []struct {
		name     string
		err      error
		contains string
	}{
		{"not a select", fmt.Errorf("validation: %w", notSelect), "only SELECT"},
		{"multi statement", multi, "only one SQL statement"},
		{"parse error", parse, "failed to parse SQL"},
		{"unsafe identifier", ident, "unsafe identifier"},
		{"not found", fmt.Errorf("loading dataset: %w", domain.ErrNotFound), "not found"},
		{"not csv", fmt.Errorf("%w: %q", service.ErrNotCSV, "a.txt"), "only .csv files"},
		{"undefined column", &pgconn.PgError{Code: "42703", Message: `column "nope" does not exist`}, `column "nope" does not exist`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := sanitizeError(testLogger(), tt.err, "query")
			assert.Contains(t, msg, tt.contains)
		})
	}
}

func TestSanitizeError_Timeout(t *testing.T) {
	msg := sanitizeError(testLogger(), context.DeadlineExceeded, "query")
	assert.Contains(t, msg, "query timed out")

	pgErr := &pgconn.PgError{Code: "57014", Message: "canceling statement due to statement timeout"}
	msg = sanitizeError(testLogger(), fmt.Errorf("executing query: %w", pgErr), "query")
	assert.Contains(t, msg, "query timed out")
}

func TestSanitizeError_Generic(t *testing.T) {
	msg := sanitizeError(testLogger(), fmt.Errorf("unexpected pg error: relation OID 12345"), "describe dataset")
	assert.Contains(t, msg, "internal error")
	assert.Contains(t, msg, "check server logs")
	assert.NotContains(t, msg, "OID")
}
