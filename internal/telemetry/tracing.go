// Package telemetry installs the global OpenTelemetry tracer provider used
// by the phase supervisor spans.
package telemetry

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

type TracingConfig struct {
	Enabled  bool   `toml:"enabled" yaml:"enabled"`
	Exporter string `toml:"exporter" yaml:"exporter" validate:"omitempty,oneof=stdout none"`
	// Output is where the stdout exporter writes; empty means stdout.
	Output string `toml:"output" yaml:"output"`
}

// Setup installs a tracer provider according to cfg and returns its
// shutdown func. When tracing is disabled the global no-op provider is left
// in place.
func Setup(cfg TracingConfig, serviceName string) (func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop, nil
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	}
	var file io.Closer
	switch cfg.Exporter {
	case "", "stdout":
		var w io.Writer = os.Stdout
		if cfg.Output != "" {
			f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return nil, fmt.Errorf("failed to open trace output: %w", err)
			}
			w, file = f, f
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exp))
	case "none":
		// spans are produced but not exported
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", cfg.Exporter)
	}

	provider := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(provider)

	return func(ctx context.Context) error {
		err := provider.Shutdown(ctx)
		if file != nil {
			_ = file.Close()
		}
		if err != nil {
			return fmt.Errorf("trace provider shutdown: %w", err)
		}
		return nil
	}, nil
}
