package mcp

import (
	"log/slog"

	"github.com/guillermoBallester/quackquery/internal/core/port"
	"github.com/guillermoBallester/quackquery/internal/core/service"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/trace"
)

const instructions = `quackquery answers questions about uploaded CSV datasets.
Upload a file with upload_csv, inspect it with describe_dataset, then call ask.
Questions starting with "sql:" are run as SQL. Only a single SELECT (or WITH ... SELECT)
is accepted, and every query is bounded by a row limit. Use check_sql to see the
exact statement that would run without executing it.`

// NewServer builds the MCP server with every tool registered and the
// logging hooks installed.
func NewServer(version string, datasets *service.DatasetService, query *service.QueryService, logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(instructions),
		server.WithRecovery(),
		server.WithHooks(ToolCallHooks(logger, tracer, inst)),
	)

	RegisterTools(s, datasets, query, logger)

	return s
}
