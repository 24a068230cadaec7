package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestInitTracerProviderExportsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp, err := InitTracerProvider(context.Background(), Config{
		ServiceName: "release-tracker",
		Version:     "test",
		Exporter:    exporter,
	})
	require.NoError(t, err)

	_, span := Tracer().Start(context.Background(), "refresh")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Equal(t, "refresh", spans[0].Name)
	require.NoError(t, tp.Shutdown(context.Background()))
}
