package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/guillermoBallester/quackquery/internal/core/domain"
	"github.com/guillermoBallester/quackquery/internal/core/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server metadata
const serverName = "quackquery"

// Tool descriptions
const (
	descListDatasets = "List every uploaded dataset with its id, original file name, table name and upload time. " +
		"Call this first to find the dataset_id the other tools need."

	descUploadCSV = "Upload a CSV file and register it as a queryable table. " +
		"The first row must be a header. Column types (integer, float, boolean, timestamp, text) are inferred " +
		"from the values. Returns the new dataset including its generated table name."

	descDescribeDataset = "Describe a dataset's table: the generated table name and its columns with types " +
		"and any business descriptions. Use this before asking questions so you know the column names."

	descAsk = "Ask a question about a dataset. Prefix the question with \"sql:\" to run your own SELECT; " +
		"any other question returns a preview of the table. Every statement goes through the query guardrails: " +
		"exactly one read-only query (SELECT, WITH ... SELECT, UNION/INTERSECT/EXCEPT of SELECTs, or VALUES), " +
		"no row locking (FOR UPDATE/SHARE), and a LIMIT is injected or capped at the server maximum. " +
		"Returns the SQL actually executed, the rows, and a chart suggestion when one fits."

	descCheckSQL = "Run a SQL statement through the query guardrails without executing it. " +
		"Returns the canonical SQL that would be executed, or the reason it was rejected."

	descSanitizeIdentifier = "Check that a name is a safe SQL identifier (letters, digits and underscores, " +
		"not starting with a digit). Returns the name unchanged or an error."

	descQueryHistory = "List recent questions and statements, newest first, including rejected ones and their errors."
)

func RegisterTools(s *server.MCPServer, datasets *service.DatasetService, query *service.QueryService, logger *slog.Logger) {
	s.AddTool(
		mcp.NewTool("list_datasets",
			mcp.WithDescription(descListDatasets),
		),
		listDatasetsHandler(datasets, logger),
	)

	s.AddTool(
		mcp.NewTool("upload_csv",
			mcp.WithDescription(descUploadCSV),
			mcp.WithString("filename",
				mcp.Required(),
				mcp.Description("Original file name; must end in .csv"),
			),
			mcp.WithString("content",
				mcp.Required(),
				mcp.Description("Full CSV text including the header row"),
			),
		),
		uploadCSVHandler(datasets, logger),
	)

	s.AddTool(
		mcp.NewTool("describe_dataset",
			mcp.WithDescription(descDescribeDataset),
			mcp.WithString("dataset_id",
				mcp.Required(),
				mcp.Description("Dataset id from list_datasets"),
			),
		),
		describeDatasetHandler(datasets, logger),
	)

	s.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription(descAsk),
			mcp.WithString("dataset_id",
				mcp.Required(),
				mcp.Description("Dataset id from list_datasets"),
			),
			mcp.WithString("question",
				mcp.Required(),
				mcp.Description("Question, or \"sql: SELECT ...\" to run SQL directly"),
			),
			mcp.WithBoolean("as_records",
				mcp.Description("Return rows as JSON objects keyed by column instead of arrays. Defaults to false."),
			),
		),
		askHandler(query, logger),
	)

	s.AddTool(
		mcp.NewTool("check_sql",
			mcp.WithDescription(descCheckSQL),
			mcp.WithString("sql",
				mcp.Required(),
				mcp.Description("SQL statement to vet"),
			),
		),
		checkSQLHandler(query, logger),
	)

	s.AddTool(
		mcp.NewTool("sanitize_identifier",
			mcp.WithDescription(descSanitizeIdentifier),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Candidate identifier"),
			),
		),
		sanitizeIdentifierHandler(),
	)

	s.AddTool(
		mcp.NewTool("query_history",
			mcp.WithDescription(descQueryHistory),
			mcp.WithNumber("limit",
				mcp.Description("Maximum entries to return, at most 1000. Defaults to 50."),
			),
		),
		queryHistoryHandler(datasets, logger),
	)
}

func listDatasetsHandler(datasets *service.DatasetService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		list, err := datasets.List(ctx)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "list datasets")), nil
		}
		return jsonResult(list)
	}
}

func uploadCSVHandler(datasets *service.DatasetService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		filename, ok := request.GetArguments()["filename"].(string)
		if !ok || filename == "" {
			return mcp.NewToolResultError("filename is required"), nil
		}
		content, ok := request.GetArguments()["content"].(string)
		if !ok || content == "" {
			return mcp.NewToolResultError("content is required"), nil
		}

		ds, err := datasets.Upload(ctx, filename, []byte(content))
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "upload")), nil
		}
		return jsonResult(ds)
	}
}

func describeDatasetHandler(datasets *service.DatasetService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok := request.GetArguments()["dataset_id"].(string)
		if !ok || id == "" {
			return mcp.NewToolResultError("dataset_id is required"), nil
		}

		schema, err := datasets.Describe(ctx, id)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "describe dataset")), nil
		}
		return jsonResult(schema)
	}
}

// recordsAnswer is an Answer with rows rendered as column-keyed objects.
type recordsAnswer struct {
	QueryID   string            `json:"query_id"`
	DatasetID string            `json:"dataset_id"`
	SQL       string            `json:"sql"`
	Columns   []string          `json:"columns"`
	Rows      []map[string]any  `json:"rows"`
	Chart     *domain.ChartSpec `json:"chart,omitempty"`
}

func askHandler(query *service.QueryService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, ok := request.GetArguments()["dataset_id"].(string)
		if !ok || id == "" {
			return mcp.NewToolResultError("dataset_id is required"), nil
		}
		question, ok := request.GetArguments()["question"].(string)
		if !ok || question == "" {
			return mcp.NewToolResultError("question is required"), nil
		}
		asRecords, _ := request.GetArguments()["as_records"].(bool)

		ans, err := query.Ask(ctx, id, question)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "query")), nil
		}

		if asRecords {
			return jsonResult(recordsAnswer{
				QueryID:   ans.QueryID,
				DatasetID: ans.DatasetID,
				SQL:       ans.SQL,
				Columns:   ans.Result.Columns,
				Rows:      ans.Result.Records(),
				Chart:     ans.Chart,
			})
		}
		return jsonResult(ans)
	}
}

func checkSQLHandler(query *service.QueryService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sql, ok := request.GetArguments()["sql"].(string)
		if !ok || sql == "" {
			return mcp.NewToolResultError("sql is required"), nil
		}

		safe, err := query.Check(ctx, sql)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "check")), nil
		}
		return jsonResult(map[string]string{"sql": safe})
	}
}

func sanitizeIdentifierHandler() server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		name, ok := request.GetArguments()["name"].(string)
		if !ok {
			return mcp.NewToolResultError("name is required"), nil
		}

		ident, err := domain.SanitizeIdentifier(name)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return jsonResult(map[string]string{"identifier": ident})
	}
}

// maxHistoryLimit caps how many log entries one query_history call returns.
const maxHistoryLimit = 1000

func queryHistoryHandler(datasets *service.DatasetService, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := 0
		if v, ok := request.GetArguments()["limit"].(float64); ok {
			if v < 0 || v != math.Trunc(v) || v > maxHistoryLimit {
				return mcp.NewToolResultError(fmt.Sprintf("limit must be a whole number between 0 and %d", maxHistoryLimit)), nil
			}
			limit = int(v)
		}

		logs, err := datasets.History(ctx, limit)
		if err != nil {
			return mcp.NewToolResultError(sanitizeError(logger, err, "query history")), nil
		}
		return jsonResult(logs)
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
