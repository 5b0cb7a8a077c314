package otelsink

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/officedev/addin-telemetry/pkg/sink"
)

func newTestSink(t *testing.T, attrs ...attribute.KeyValue) (*Sink, *tracetest.SpanRecorder) {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	s, err := New(t.Context(), Config{
		ServiceName:    "generator-office",
		ServiceVersion: "1.0.0",
		Attributes:     attrs,
		SpanProcessor:  recorder,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, recorder
}

func attrMap(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestSink_TrackEvent(t *testing.T) {
	t.Parallel()

	s, recorder := newTestSink(t)

	err := s.TrackEvent(t.Context(), sink.Event{
		Name:         "generator-office",
		Properties:   map[string]string{"Project": "excel"},
		Measurements: map[string]float64{sink.DurationElapsedMeasurement: 12},
	})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "generator-office", spans[0].Name())

	attrs := attrMap(spans[0])
	assert.Equal(t, "excel", attrs["Project"].AsString())
	assert.InDelta(t, 12.0, attrs[sink.DurationElapsedMeasurement].AsFloat64(), 0)

	res := spans[0].Resource()
	name, ok := res.Set().Value("service.name")
	require.True(t, ok)
	assert.Equal(t, "generator-office", name.AsString())
	_, ok = res.Set().Value("service.instance.id")
	assert.True(t, ok)
	_, ok = res.Set().Value("host.name")
	assert.False(t, ok)
}

func TestSink_TrackException(t *testing.T) {
	t.Parallel()

	s, recorder := newTestSink(t)

	err := s.TrackException(t.Context(), sink.Exception{
		Name:    "TelemetryOptIn",
		Message: "could not write file",
		Frames:  []sink.Frame{{Function: "main.run", File: "main.go", Line: 3}},
	})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "TelemetryOptIn", spans[0].Name())
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "could not write file", spans[0].Status().Description)

	events := spans[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "exception", events[0].Name)

	var stack string
	for _, kv := range events[0].Attributes {
		if kv.Key == "exception.stacktrace" {
			stack = kv.Value.AsString()
		}
	}
	assert.Equal(t, "main.run\n\tmain.go:3", stack)
}

func TestSink_TrackEventRequiresName(t *testing.T) {
	t.Parallel()

	s, recorder := newTestSink(t)
	assert.Error(t, s.TrackEvent(t.Context(), sink.Event{}))
	assert.Empty(t, recorder.Ended())
}

func TestSink_SamplingOff(t *testing.T) {
	t.Parallel()

	s, recorder := newTestSink(t)

	s.SetSamplingPercentage(sink.SamplingOff)
	require.NoError(t, s.TrackEvent(t.Context(), sink.Event{Name: "dropped"}))
	require.NoError(t, s.TrackException(t.Context(), sink.Exception{Message: "dropped"}))
	assert.Empty(t, recorder.Ended())

	s.SetSamplingPercentage(sink.SamplingOn)
	require.NoError(t, s.TrackEvent(t.Context(), sink.Event{Name: "kept"}))
	assert.Len(t, recorder.Ended(), 1)
}

func TestSink_PurgeIdentifyingContext(t *testing.T) {
	t.Parallel()

	s, recorder := newTestSink(t,
		attribute.String("host.name", "DESKTOP-1234"),
		attribute.String("enduser.id", "alice"),
		attribute.String("tool", "yo office"),
	)

	s.PurgeIdentifyingContext()
	require.NoError(t, s.TrackEvent(t.Context(), sink.Event{Name: "e"}))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	attrs := attrMap(spans[0])
	assert.NotContains(t, attrs, attribute.Key("host.name"))
	assert.NotContains(t, attrs, attribute.Key("enduser.id"))
	assert.Equal(t, "yo office", attrs["tool"].AsString())
}
