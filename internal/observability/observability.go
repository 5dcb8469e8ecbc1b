// Package observability exports traces to an OTLP collector.
//
// Genkit owns the TracerProvider and already records spans for every
// model and embedder call. Setup registers an OTLP HTTP exporter with
// that provider and installs it as the otel global, so the spans this
// service records around turns and ingestion land in the same trace
// tree as the model spans.
//
// Environment variables:
//   - OTEL_SERVICE_NAME: set from Config.ServiceName for the provider
//   - OTEL_RESOURCE_ATTRIBUTES: deployment.environment from Config
package observability

import (
	"context"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/msalmanai62/rag-bot/internal/log"
)

// Config for OTLP trace export.
type Config struct {
	// Endpoint is the OTLP HTTP collector address (host:port).
	// Empty disables export; spans become no-ops.
	Endpoint string
	// ServiceName is the service name shown by the tracing backend.
	ServiceName string
	// Environment is the deployment environment (dev, staging, prod).
	Environment string
}

// Setup wires trace export. Must run before genkit.Init so the
// provider is ready when the first span starts.
//
// Returns a shutdown function that flushes pending spans.
func Setup(ctx context.Context, cfg Config, logger log.Logger) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if cfg.Endpoint == "" {
		return noop, nil
	}

	// SAFETY: os.Setenv is not concurrent-safe, but Setup runs exactly
	// once during startup before goroutines are spawned.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("failed to create OTLP exporter, tracing disabled", "error", err)
		return noop, nil
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)
	otel.SetTracerProvider(tracing.TracerProvider())

	logger.Debug("trace export enabled",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	return tracing.TracerProvider().Shutdown, nil
}
