package telemetry

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })
	return recorder
}

func TestWithSpan_RecordsStatus(t *testing.T) {
	recorder := withRecorder(t)

	err := WithSpan(context.Background(), "detect.collect", func(context.Context) error { return nil })
	require.NoError(t, err)

	err = WithSpan(context.Background(), "repair.apply", func(context.Context) error { return errors.New("bad patch") })
	require.Error(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "detect.collect", spans[0].Name())
	assert.Equal(t, codes.Ok, spans[0].Status().Code)
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "bad patch", spans[1].Status().Description)
}

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestGetSampler(t *testing.T) {
	assert.Equal(t, sdktrace.NeverSample().Description(), getSampler(Config{SamplerType: "never"}).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), getSampler(Config{SamplerType: ""}).Description())
	assert.Contains(t, getSampler(Config{SamplerType: "ratio", SamplerRatio: 0.5}).Description(), "ParentBased")
}

func TestSpanHelpers(t *testing.T) {
	recorder := withRecorder(t)

	err := WithSpan(context.Background(), "detect.collect", func(ctx context.Context) error {
		AddEvent(ctx, "detect.stage", attribute.String("stage", "navigate_ms"), attribute.Int64("duration_ms", 12))
		SetAttributes(ctx, attribute.Int("controls", 3))
		return nil
	})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	events := spans[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "detect.stage", events[0].Name)
	assert.Contains(t, events[0].Attributes, attribute.String("stage", "navigate_ms"))
	assert.Contains(t, spans[0].Attributes(), attribute.Int("controls", 3))

	// Without a span in the context both helpers are no-ops.
	AddEvent(context.Background(), "ignored")
	SetAttributes(context.Background(), attribute.Bool("ignored", true))
	assert.Len(t, recorder.Ended(), 1)
}
