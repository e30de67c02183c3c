// Package telemetry installs the OTLP trace exporter used by the HTTP
// instrumentation.
package telemetry

import (
	"context"
	"fmt"

	"fast-queue/internal/config"
	"fast-queue/internal/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type ShutdownFunc func(context.Context) error

func noop(context.Context) error { return nil }

// Setup registers a global tracer provider when an OTLP endpoint is
// configured. Without one it leaves otel's no-op provider in place.
func Setup(ctx context.Context, cfg config.TelemetryConfig, log *logger.Logger) ShutdownFunc {
	if log == nil {
		log = logger.Discard()
	}
	if cfg.OTLPEndpoint == "" {
		log.Debug("APP", "Tracing disabled: no OTLP endpoint configured")
		return noop
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		log.Error("APP", fmt.Sprintf("OTLP exporter error: %v", err))
		return noop
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		log.Warn("APP", fmt.Sprintf("OTLP resource error: %v", err))
	}

	provider := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	log.Info("APP", fmt.Sprintf("Tracing exported to %s as %s", cfg.OTLPEndpoint, cfg.ServiceName))

	return provider.Shutdown
}
