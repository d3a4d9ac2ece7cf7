package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/guillermoBallester/quackquery/internal/core/port"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type callState struct {
	start time.Time
	span  trace.Span
}

// callTracker pairs the before/after hooks of one tool call by request id.
type callTracker struct {
	logger *slog.Logger
	tracer trace.Tracer
	inst   port.Instrumentation
	calls  sync.Map // request id -> *callState
}

// ToolCallHooks logs every tool call and, when a tracer or instrumentation is
// given, records a span and the call duration per tool.
func ToolCallHooks(logger *slog.Logger, tracer trace.Tracer, inst port.Instrumentation) *server.Hooks {
	t := &callTracker{logger: logger, tracer: tracer, inst: inst}

	hooks := &server.Hooks{}
	hooks.AddBeforeCallTool(t.before)
	hooks.AddAfterCallTool(t.after)
	hooks.AddOnError(t.onError)
	return hooks
}

func (t *callTracker) before(ctx context.Context, id any, req *mcp.CallToolRequest) {
	state := &callState{start: time.Now()}

	if t.tracer != nil {
		attrs := []attribute.KeyValue{attribute.String("mcp.tool", req.Params.Name)}
		if dsID := datasetID(req); dsID != "" {
			attrs = append(attrs, attribute.String("quackquery.dataset.id", dsID))
		}
		_, state.span = t.tracer.Start(ctx, "mcp.tool.call", trace.WithAttributes(attrs...))
	}

	t.calls.Store(id, state)
}

func (t *callTracker) after(ctx context.Context, id any, req *mcp.CallToolRequest, result any) {
	duration, span := t.finish(id)

	isErr := false
	if r, ok := result.(*mcp.CallToolResult); ok && r.IsError {
		isErr = true
	}

	level := slog.LevelInfo
	if isErr {
		// Rejected SQL is an expected outcome, not a server fault.
		level = slog.LevelWarn
	}
	t.logger.LogAttrs(ctx, level, "tool call", callAttrs(req, duration, isErr)...)

	if t.inst != nil {
		t.inst.RecordToolDuration(ctx, req.Params.Name, float64(duration.Milliseconds()))
	}

	if span != nil {
		if isErr {
			span.SetStatus(codes.Error, "tool returned error")
			span.RecordError(fmt.Errorf("tool %s returned error", req.Params.Name))
		}
		span.End()
	}
}

func (t *callTracker) onError(ctx context.Context, id any, _ mcp.MCPMethod, message any, err error) {
	duration, span := t.finish(id)

	if req, ok := message.(*mcp.CallToolRequest); ok && req.Params.Name != "" {
		attrs := append(callAttrs(req, duration, true), slog.String("error.message", err.Error()))
		t.logger.LogAttrs(ctx, slog.LevelError, "tool call", attrs...)
	}

	if span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
	}
}

// finish forgets the call and returns how long it ran and its span, if any.
func (t *callTracker) finish(id any) (time.Duration, trace.Span) {
	v, ok := t.calls.LoadAndDelete(id)
	if !ok {
		return 0, nil
	}
	state := v.(*callState)
	return time.Since(state.start), state.span
}

func callAttrs(req *mcp.CallToolRequest, duration time.Duration, isErr bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("rpc.method", "tools/call"),
		slog.String("mcp.tool", req.Params.Name),
		slog.Duration("duration", duration),
		slog.Bool("error", isErr),
	}
	if dsID := datasetID(req); dsID != "" {
		attrs = append(attrs, slog.String("quackquery.dataset.id", dsID))
	}
	return attrs
}

// datasetID returns the dataset_id argument of a tool call, if any.
func datasetID(req *mcp.CallToolRequest) string {
	id, _ := req.GetArguments()["dataset_id"].(string)
	return id
}
