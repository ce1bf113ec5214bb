// Package tracing installs the OpenTelemetry tracer provider
package tracing

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

// Config selects whether spans are exported
type Config struct {
	Enabled     bool
	ServiceName string
	// OutputFile receives the stdout exporter's JSON; empty means stdout
	OutputFile string
}

// ShutdownFunc flushes and stops the provider
type ShutdownFunc func(ctx context.Context) error

// Setup installs a global SDK provider with the stdout exporter when enabled.
// Disabled tracing leaves the global no-op provider in place.
func Setup(cfg Config, logger *zap.Logger) (ShutdownFunc, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	var w io.Writer = os.Stdout
	var file *os.File
	if cfg.OutputFile != "" {
		f, err := os.OpenFile(cfg.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
		file = f
		w = f
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		if file != nil {
			_ = file.Close()
		}
		return nil, err
	}

	tp := NewProvider(cfg.ServiceName, exporter)
	otel.SetTracerProvider(tp)
	logger.Info("Tracing enabled", zap.String("service", cfg.ServiceName), zap.String("output", cfg.OutputFile))

	return func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if file != nil {
			if cerr := file.Close(); err == nil {
				err = cerr
			}
		}
		return err
	}, nil
}

// NewProvider builds a provider that exports every span synchronously
func NewProvider(serviceName string, exporter sdktrace.SpanExporter) *sdktrace.TracerProvider {
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
}
