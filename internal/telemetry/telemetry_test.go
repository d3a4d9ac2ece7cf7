package telemetry

import (
	"context"
	"testing"

	"github.com/guillermoBallester/quackquery/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNoopTracer(t *testing.T) {
	tracer := NoopTracer()
	assert.NotNil(t, tracer)

	_, span := tracer.Start(context.Background(), "test")
	assert.NotNil(t, span)
	span.End()
}

func TestNoopInstruments(t *testing.T) {
	inst := NoopInstruments()
	assert.NotNil(t, inst)
	assert.NotNil(t, inst.QueryCount)
	assert.NotNil(t, inst.QueryDuration)
	assert.NotNil(t, inst.QueryErrors)
	assert.NotNil(t, inst.Rejections)
	assert.NotNil(t, inst.ToolDuration)

	// Should not panic.
	inst.QueryCount.Add(context.Background(), 1)
	inst.QueryDuration.Record(context.Background(), 100.0)
}

func TestProvider_Shutdown_Nil(t *testing.T) {
	var p *Provider
	err := p.Shutdown(context.Background())
	assert.NoError(t, err)
}

func TestNewResource_GuardrailAttributes(t *testing.T) {
	res, err := newResource(context.Background(), Settings{
		ServiceName: "quackquery",
		Version:     "v1.2.3",
		Guardrails:  domain.GuardrailPolicy{MaxLimit: 500, DefaultLimit: 900, NonLiteralLimit: domain.NonLiteralLimitAllow},
	})
	require.NoError(t, err)

	set := res.Set()
	name, ok := set.Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "quackquery", name.AsString())

	maxLimit, ok := set.Value("quackquery.guardrail.max_limit")
	require.True(t, ok)
	assert.Equal(t, int64(500), maxLimit.AsInt64())

	def, ok := set.Value("quackquery.guardrail.default_limit")
	require.True(t, ok)
	assert.Equal(t, int64(500), def.AsInt64(), "default is capped by max")

	mode, ok := set.Value(attribute.Key("quackquery.guardrail.non_literal_limit"))
	require.True(t, ok)
	assert.Equal(t, "allow", mode.AsString())
}

func TestSpanRecording(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	defer func() { _ = tp.Shutdown(context.Background()) }()
	tracer := tp.Tracer("test")

	ctx := context.Background()
	_, span := tracer.Start(ctx, "QueryService.Check")
	span.SetAttributes(attribute.String("db.query.text", "SELECT 1 LIMIT 200"))
	span.End()

	require.NoError(t, tp.ForceFlush(ctx))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "QueryService.Check", spans[0].Name)
}

func TestMetricRecording(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := mp.Meter("test")

	counter, err := meter.Int64Counter("test.counter")
	require.NoError(t, err)

	counter.Add(context.Background(), 5)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	require.Len(t, rm.ScopeMetrics, 1)
	require.Len(t, rm.ScopeMetrics[0].Metrics, 1)
	assert.Equal(t, "test.counter", rm.ScopeMetrics[0].Metrics[0].Name)
}

func TestInstruments_Rejections(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	inst := newInstrumentsFromMeter(mp.Meter(meterName))

	ctx := context.Background()
	inst.IncrementRejections(ctx, "not_a_select")
	inst.IncrementRejections(ctx, "not_a_select")
	inst.IncrementRejections(ctx, "multi_statement")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	var sum metricdata.Sum[int64]
	for _, m := range rm.ScopeMetrics[0].Metrics {
		if m.Name == "quackquery.guardrail.rejections" {
			sum = m.Data.(metricdata.Sum[int64])
		}
	}
	require.Len(t, sum.DataPoints, 2)

	byKind := map[string]int64{}
	for _, dp := range sum.DataPoints {
		kind, ok := dp.Attributes.Value("quackquery.rejection.kind")
		require.True(t, ok)
		byKind[kind.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"not_a_select": 2, "multi_statement": 1}, byKind)
}
