// Package telemetry wires the taxo pipelines into OpenTelemetry.
//
// Everything here is opt-in: with TAXO_OTEL_ENABLED unset, Init
// installs no-op providers and the instruments in pipeline.go cost a
// few nanoseconds per call. Exporters are selected by environment:
//
//	TAXO_OTEL_ENABLED=true               turn telemetry on
//	TAXO_OTEL_STDOUT=true                pretty-print spans and metrics locally
//	OTEL_EXPORTER_OTLP_ENDPOINT=...      ship to an OTLP/gRPC collector
//	OTEL_EXPORTER_OTLP_METRICS_ENDPOINT  separate collector for metrics only
//
// Both exporters may be active at once. An enabled run with neither
// configured falls back to stdout so spans are never silently dropped.
package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	envEnabled = "TAXO_OTEL_ENABLED"
	envStdout  = "TAXO_OTEL_STDOUT"

	// Default instrumentation scope for Tracer and Meter.
	moduleScope = "github.com/AltimetrikAI/propelus-ai-sub001"
)

// closers run in Shutdown, in Init order.
var closers []func(context.Context) error

// Enabled reports whether TAXO_OTEL_ENABLED has switched telemetry on.
func Enabled() bool {
	return os.Getenv(envEnabled) == "true"
}

func stdoutWanted() bool {
	return os.Getenv(envStdout) == "true"
}

// Init installs the global tracer and meter providers. Disabled runs
// get no-op providers and return without touching the SDK.
func Init(ctx context.Context, serviceName, version string) error {
	if !Enabled() {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		otel.SetMeterProvider(metricnoop.NewMeterProvider())
		return nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: resource: %w", err)
	}

	tp, err := traceProvider(ctx, res)
	if err != nil {
		return fmt.Errorf("telemetry: traces: %w", err)
	}
	otel.SetTracerProvider(tp)
	closers = append(closers, tp.Shutdown)

	mp, err := metricProvider(ctx, res)
	if err != nil {
		return fmt.Errorf("telemetry: metrics: %w", err)
	}
	otel.SetMeterProvider(mp)
	closers = append(closers, mp.Shutdown)

	return nil
}

func traceProvider(ctx context.Context, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	var spanExporters []sdktrace.SpanExporter

	if stdoutWanted() {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		spanExporters = append(spanExporters, exp)
	}

	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		exp, err := otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("otlp span exporter: %w", err)
		}
		spanExporters = append(spanExporters, exp)
	}

	// Enabled but nothing configured: write to stdout rather than nowhere.
	if len(spanExporters) == 0 {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		spanExporters = append(spanExporters, exp)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}
	for _, exp := range spanExporters {
		opts = append(opts, sdktrace.WithBatcher(exp))
	}
	return sdktrace.NewTracerProvider(opts...), nil
}

func metricProvider(ctx context.Context, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if stdoutWanted() {
		exp, err := stdoutmetric.New()
		if err != nil {
			return nil, err
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(15*time.Second)),
		))
	}

	if endpoint := metricEndpoint(); endpoint != "" {
		exp, err := buildOTLPMetricExporter(ctx, endpoint)
		if err != nil {
			return nil, fmt.Errorf("otlp metric exporter: %w", err)
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(30*time.Second)),
		))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}

// metricEndpoint prefers the metrics-specific OTLP endpoint, then the
// shared one.
func metricEndpoint() string {
	if ep := os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"); ep != "" {
		return ep
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
}

// Tracer hands back a tracer under name; empty name means the module
// scope.
func Tracer(name string) trace.Tracer {
	if name == "" {
		name = moduleScope
	}
	return otel.Tracer(name)
}

// Meter is the metric counterpart of Tracer.
func Meter(name string) metric.Meter {
	if name == "" {
		name = moduleScope
	}
	return otel.Meter(name)
}

// Shutdown flushes and stops every provider Init installed. Callers
// defer it with a short deadline so a stuck collector cannot hang
// process exit.
func Shutdown(ctx context.Context) {
	for _, fn := range closers {
		_ = fn(ctx)
	}
	closers = nil
}
