package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/guillermoBallester/quackquery"

// Instruments implements port.Instrumentation on OTel metric instruments.
type Instruments struct {
	QueryCount    metric.Int64Counter
	QueryDuration metric.Float64Histogram
	QueryErrors   metric.Int64Counter
	Rejections    metric.Int64Counter
	ToolDuration  metric.Float64Histogram
}

// NewInstruments creates the instruments on the global MeterProvider.
func NewInstruments() *Instruments {
	meter := otel.Meter(meterName)
	return newInstrumentsFromMeter(meter)
}

// NoopInstruments returns instruments that record nothing.
func NoopInstruments() *Instruments {
	meter := noop.NewMeterProvider().Meter(meterName)
	return newInstrumentsFromMeter(meter)
}

func newInstrumentsFromMeter(meter metric.Meter) *Instruments {
	// Creation errors still yield usable noop instruments.
	queryCount, _ := meter.Int64Counter("quackquery.query.count",
		metric.WithDescription("Total number of gated SQL queries executed"),
	)
	queryDuration, _ := meter.Float64Histogram("quackquery.query.duration",
		metric.WithDescription("SQL query execution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	queryErrors, _ := meter.Int64Counter("quackquery.query.errors",
		metric.WithDescription("Total number of failed SQL queries"),
	)
	rejections, _ := meter.Int64Counter("quackquery.guardrail.rejections",
		metric.WithDescription("Statements refused by the query guardrails, by kind"),
	)
	toolDuration, _ := meter.Float64Histogram("quackquery.tool.duration",
		metric.WithDescription("MCP tool call duration in milliseconds"),
		metric.WithUnit("ms"),
	)

	return &Instruments{
		QueryCount:    queryCount,
		QueryDuration: queryDuration,
		QueryErrors:   queryErrors,
		Rejections:    rejections,
		ToolDuration:  toolDuration,
	}
}

func (i *Instruments) RecordQueryDuration(ctx context.Context, ms float64) {
	i.QueryDuration.Record(ctx, ms)
}

func (i *Instruments) IncrementQueryCount(ctx context.Context) {
	i.QueryCount.Add(ctx, 1)
}

func (i *Instruments) IncrementQueryErrors(ctx context.Context) {
	i.QueryErrors.Add(ctx, 1)
}

func (i *Instruments) IncrementRejections(ctx context.Context, kind string) {
	i.Rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("quackquery.rejection.kind", kind)))
}

func (i *Instruments) RecordToolDuration(ctx context.Context, tool string, ms float64) {
	i.ToolDuration.Record(ctx, ms, metric.WithAttributes(attribute.String("mcp.tool", tool)))
}
