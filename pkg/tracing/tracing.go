// Package tracing installs the process OpenTelemetry tracer provider.
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
	"go.opentelemetry.io/otel/trace"
)

const defaultServiceName = "sustainability-pipeline"

// ShutdownFunc flushes and stops the provider.
type ShutdownFunc func(context.Context) error

// Option configures Init.
type Option func(*settings)

type settings struct {
	serviceName string
	version     string
	writer      io.Writer
	sync        bool
}

// WithServiceName sets the service.name resource attribute.
func WithServiceName(name string) Option {
	return func(s *settings) {
		if name != "" {
			s.serviceName = name
		}
	}
}

// WithVersion sets the service.version resource attribute.
func WithVersion(v string) Option {
	return func(s *settings) { s.version = v }
}

// WithWriter sends exported spans to w instead of stdout.
func WithWriter(w io.Writer) Option {
	return func(s *settings) {
		if w != nil {
			s.writer = w
		}
	}
}

// WithSyncExport exports each span as it ends. Tests use it to read spans
// without waiting for a batch.
func WithSyncExport() Option {
	return func(s *settings) { s.sync = true }
}

// Init installs a tracer provider exporting to stdout and returns its
// shutdown. When disabled the global no-op provider is left in place.
func Init(enabled bool, opts ...Option) (ShutdownFunc, error) {
	if !enabled {
		return func(context.Context) error { return nil }, nil
	}
	s := settings{serviceName: defaultServiceName, writer: os.Stdout}
	for _, opt := range opts {
		opt(&s)
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(s.writer))
	if err != nil {
		return nil, err
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", s.serviceName),
		attribute.String("service.version", s.version),
	)
	var export sdktrace.TracerProviderOption
	if s.sync {
		export = sdktrace.WithSyncer(exporter)
	} else {
		export = sdktrace.WithBatcher(exporter)
	}
	tp := sdktrace.NewTracerProvider(export, sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns a named tracer from the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
