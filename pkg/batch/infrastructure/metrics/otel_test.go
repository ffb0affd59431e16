package metrics_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	port "github.com/tigerroll/customer-import/pkg/batch/core/application/port"
	model "github.com/tigerroll/customer-import/pkg/batch/core/domain/model"
	"github.com/tigerroll/customer-import/pkg/batch/infrastructure/metrics"
	batchtest "github.com/tigerroll/customer-import/pkg/batch/test"
)

func TestOtelTracer_Spans(t *testing.T) {
	spanRecorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanRecorder))
	tracer := metrics.NewOtelTracer(provider.Tracer("test"))

	_, je := batchtest.NewTestJobExecution("importCustomers", model.NewJobParameters())
	se := batchtest.NewTestStepExecution(je, "stepProduct")

	ctx, endJob := tracer.StartJobSpan(context.Background(), je)
	stepCtx, endStep := tracer.StartStepSpan(ctx, se)
	chunkCtx, endChunk := tracer.StartChunkSpan(stepCtx, "stepProduct", 1)
	tracer.RecordError(chunkCtx, "writer", errors.New("boom"))
	endChunk()
	se.MarkAsFailed(errors.New("boom"))
	endStep()
	je.MarkAsFailed(errors.New("boom"))
	endJob()

	spans := spanRecorder.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "chunk stepProduct", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "step stepProduct", spans[1].Name())
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Equal(t, "job importCustomers", spans[2].Name())
	assert.Equal(t, codes.Error, spans[2].Status().Code)
}

func TestOtelTracer_RecordEvent(t *testing.T) {
	spanRecorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanRecorder))
	tracer := metrics.NewOtelTracer(provider.Tracer("test"))

	ctx, end := tracer.StartChunkSpan(context.Background(), "stepProduct", 3)
	tracer.RecordEvent(ctx, "chunk.committed", map[string]interface{}{"items": 10, "table": "customers"})
	end()

	spans := spanRecorder.Ended()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events(), 1)
	assert.Equal(t, "chunk.committed", spans[0].Events()[0].Name)
	assert.Len(t, spans[0].Events()[0].Attributes, 2)
}

func TestOtelMetricRecorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	recorder, err := metrics.NewOtelMetricRecorder(provider.Meter("test"))
	require.NoError(t, err)

	_, je := batchtest.NewTestJobExecution("importCustomers", model.NewJobParameters())
	se := batchtest.NewTestStepExecution(je, "stepProduct")
	ctx := port.GetContextWithStepExecution(context.Background(), se)

	recorder.RecordItemRead(ctx, "stepProduct")
	recorder.RecordItemRead(ctx, "stepProduct")
	recorder.RecordItemRead(ctx, "stepProduct")
	recorder.RecordItemWrite(ctx, "stepProduct", 3)
	recorder.RecordChunkCommit(ctx, "stepProduct", 3)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := map[string]int64{}
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(3), sums["batch.item.read"])
	assert.Equal(t, int64(3), sums["batch.item.written"])
	assert.Equal(t, int64(1), sums["batch.chunk.commits"])
}
