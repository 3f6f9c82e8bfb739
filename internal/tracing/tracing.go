// Package tracing installs an OpenTelemetry tracer provider that writes
// spans as JSON through the stdout exporter.
//
// The balancer always creates spans through the global provider; until Init
// is called they are no-ops.
package tracing

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// ShutdownFunc flushes pending spans and releases the exporter's writer.
type ShutdownFunc func(context.Context) error

// Init configures the global tracer provider to write spans to outputFile.
// The file is created (or truncated) and closed by the returned ShutdownFunc.
func Init(serviceName, serviceVersion, outputFile string) (ShutdownFunc, error) {
	f, err := os.Create(outputFile)
	if err != nil {
		return nil, fmt.Errorf("create trace file: %w", err)
	}

	shutdown, err := InitWithWriter(serviceName, serviceVersion, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return func(ctx context.Context) error {
		err := shutdown(ctx)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		return err
	}, nil
}

// InitWithWriter configures the global tracer provider to write spans to w.
func InitWithWriter(serviceName, serviceVersion string, w io.Writer) (ShutdownFunc, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("create stdout exporter: %w", err)
	}

	tp, err := NewProvider(serviceName, serviceVersion, exporter)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// NewProvider builds a tracer provider that hands every span to exporter
// synchronously as it ends.
func NewProvider(serviceName, serviceVersion string, exporter sdktrace.SpanExporter) (*sdktrace.TracerProvider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	), nil
}
