package otel

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// ExporterConfig configures the OTLP trace exporter.
type ExporterConfig struct {
	// Endpoint is the OTLP/HTTP collector endpoint, e.g. "localhost:4318".
	// Empty means the exporter's own default (or OTEL_EXPORTER_OTLP_ENDPOINT).
	Endpoint string

	// Insecure disables TLS for the exporter connection.
	Insecure bool
}

// TracerShutdown tears down an exporter pipeline. Call it when the process
// is done emitting spans; it flushes anything still batched.
type TracerShutdown func(context.Context) error

// NewOTLPTracer builds a tracer backed by an OTLP/HTTP span exporter and
// returns it with a shutdown function for the underlying provider.
func NewOTLPTracer(ctx context.Context, cfg ExporterConfig) (trace.Tracer, TracerShutdown, error) {
	opts := []otlptracehttp.Option{}
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("otel: create OTLP exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
	)

	return provider.Tracer("wodflow"), provider.Shutdown, nil
}
