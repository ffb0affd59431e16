// Package telemetry builds the metric recorder and tracer selected by configuration
// and owns the exporters behind them.
package telemetry

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tigerroll/customer-import/pkg/batch/core/config"
	coreMetrics "github.com/tigerroll/customer-import/pkg/batch/core/metrics"
	"github.com/tigerroll/customer-import/pkg/batch/infrastructure/metrics"
	listenerMetrics "github.com/tigerroll/customer-import/pkg/batch/listener/metrics"
	"github.com/tigerroll/customer-import/pkg/batch/support/util/logger"
)

const instrumentationName = "github.com/tigerroll/customer-import/pkg/batch"

// Telemetry holds the configured recorder and tracer. Both are no-ops when disabled.
type Telemetry struct {
	Recorder coreMetrics.MetricRecorder
	Tracer   coreMetrics.Tracer

	shutdowns []func(context.Context) error
}

// Setup creates exporters according to cfg.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (*Telemetry, error) {
	t := &Telemetry{
		Recorder: coreMetrics.NewNoOpMetricRecorder(),
		Tracer:   coreMetrics.NewNoOpTracer(),
	}
	res := resource.NewSchemaless(attribute.String("service.name", cfg.ServiceName))

	if cfg.Tracing.Enabled {
		exporter, err := newTraceExporter(ctx, cfg.Tracing.OTLP)
		if err != nil {
			return nil, err
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Tracing.SampleRatio))),
		)
		t.Tracer = metrics.NewOtelTracer(tp.Tracer(instrumentationName))
		t.shutdowns = append(t.shutdowns, tp.Shutdown)
		logger.Infof("Tracing enabled (OTLP %s, endpoint '%s').", cfg.Tracing.OTLP.Protocol, cfg.Tracing.OTLP.Endpoint)
	}

	if cfg.Metrics.Enabled {
		switch cfg.Metrics.Exporter {
		case "prometheus", "":
			recorder := metrics.NewPrometheusRecorder(cfg.Metrics.Prometheus, cfg.ServiceName)
			t.Recorder = recorder
			t.shutdowns = append(t.shutdowns, recorder.Flush)
		case "otlp":
			exporter, err := newMetricExporter(ctx, cfg.Metrics.OTLP)
			if err != nil {
				return nil, multierror.Append(err, t.Shutdown(ctx))
			}
			mp := sdkmetric.NewMeterProvider(
				sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
				sdkmetric.WithResource(res),
			)
			recorder, err := metrics.NewOtelMetricRecorder(mp.Meter(instrumentationName))
			if err != nil {
				return nil, multierror.Append(err, mp.Shutdown(ctx), t.Shutdown(ctx))
			}
			t.Recorder = recorder
			t.shutdowns = append(t.shutdowns, mp.Shutdown)
		default:
			return nil, multierror.Append(fmt.Errorf("unknown metrics exporter '%s'", cfg.Metrics.Exporter), t.Shutdown(ctx))
		}
		if cfg.Metrics.AsyncBufferSize > 0 {
			async := listenerMetrics.NewAsyncMetricRecorder(cfg.Metrics.AsyncBufferSize, t.Recorder)
			t.Recorder = async
			t.shutdowns = append(t.shutdowns, async.Close)
		}
		logger.Infof("Metrics enabled (exporter '%s').", cfg.Metrics.Exporter)
	}
	return t, nil
}

// Shutdown flushes and stops every exporter, in reverse creation order.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var result *multierror.Error
	for i := len(t.shutdowns) - 1; i >= 0; i-- {
		if err := t.shutdowns[i](ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}
	t.shutdowns = nil
	return result.ErrorOrNil()
}

func newTraceExporter(ctx context.Context, cfg config.OTLPConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Protocol {
	case "grpc", "":
		var opts []otlptracegrpc.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	case "http":
		var opts []otlptracehttp.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown OTLP protocol '%s'", cfg.Protocol)
	}
}

func newMetricExporter(ctx context.Context, cfg config.OTLPConfig) (sdkmetric.Exporter, error) {
	switch cfg.Protocol {
	case "grpc", "":
		var opts []otlpmetricgrpc.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case "http":
		var opts []otlpmetrichttp.Option
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown OTLP protocol '%s'", cfg.Protocol)
	}
}
