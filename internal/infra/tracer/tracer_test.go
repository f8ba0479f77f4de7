package tracer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"conductor/internal/infra/config"
)

func TestSetupNoopVariants(t *testing.T) {
	for _, cfg := range []config.TracerConfig{
		{Enabled: false, Exporter: "stdout"},
		{Enabled: true, Exporter: "noop"},
		{Enabled: true, Exporter: ""},
	} {
		shutdown, err := Setup(context.Background(), cfg)
		require.NoError(t, err)
		_, ok := otel.GetTracerProvider().(noop.TracerProvider)
		assert.True(t, ok, "config %+v should install a noop provider", cfg)
		require.NoError(t, shutdown(context.Background()))
	}
}

func TestSetupStdout(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "stdout"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupUnsupportedExporter(t *testing.T) {
	_, err := Setup(context.Background(), config.TracerConfig{Enabled: true, Exporter: "zipkin"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter")
}

func TestInstallRecordsSpans(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	shutdown := Install(exp)
	t.Cleanup(func() {
		_ = shutdown(context.Background())
		otel.SetTracerProvider(noop.NewTracerProvider())
	})

	_, ok := StartSpan(context.Background(), "tool.execute")
	SetOK(ok)
	ok.End()

	_, failed := StartSpan(context.Background(), "multiagent.delegate")
	failed.SetAttributes(StringAttr("agent.id", "researcher"), IntAttr("delegation.depth", 2))
	RecordError(failed, errors.New("circular delegation detected"))
	failed.End()

	spans := exp.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "tool.execute", spans[0].Name)
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
	assert.Equal(t, "multiagent.delegate", spans[1].Name)
	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, "circular delegation detected", spans[1].Status.Description)
	assert.Len(t, spans[1].Events, 1)
	assert.Len(t, spans[1].Attributes, 2)
}
