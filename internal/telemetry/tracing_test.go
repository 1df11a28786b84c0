package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(TracingConfig{}, "candlebot")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupRejectsUnknownExporter(t *testing.T) {
	_, err := Setup(TracingConfig{Enabled: true, Exporter: "zipkin"}, "candlebot")
	assert.Error(t, err)
}

func TestSetupExportsSpansToFile(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	path := filepath.Join(t.TempDir(), "spans.json")
	shutdown, err := Setup(TracingConfig{Enabled: true, Exporter: "stdout", Output: path}, "candlebot")
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "phase.ACTIVATING")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "phase.ACTIVATING")
}
