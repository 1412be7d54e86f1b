package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(sdktrace.NewTracerProvider()) })
	return recorder
}

func TestExecute_SpansPerStage(t *testing.T) {
	recorder := recordSpans(t)
	p, _ := newPipeline(t)
	tracker := NewRunTracker(nil)
	run := tracker.Create(RunStages(true))

	_, err := p.Execute(context.Background(), tracker, run)
	require.NoError(t, err)

	ended := recorder.Ended()
	require.Len(t, ended, 5)

	root := ended[len(ended)-1]
	assert.Equal(t, "run", root.Name())
	assert.Equal(t, codes.Ok, root.Status().Code)

	var names []string
	for _, s := range ended[:4] {
		names = append(names, s.Name())
		assert.Equal(t, root.SpanContext().SpanID(), s.Parent().SpanID(), s.Name())
		assert.Equal(t, codes.Ok, s.Status().Code, s.Name())
	}
	assert.Equal(t, []string{"stage.seed", "stage.sync", "stage.preprocess", "stage.train"}, names)
}

func TestExecute_FailedStageSpan(t *testing.T) {
	recorder := recordSpans(t)
	p, _ := newPipeline(t)
	tracker := NewRunTracker(nil)

	_, err := p.Execute(context.Background(), tracker, tracker.Create(RunStages(false)))
	require.Error(t, err)

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, "stage.sync", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.NotEmpty(t, ended[0].Events(), "error must be recorded as an event")
	assert.Equal(t, "run", ended[1].Name())
	assert.Equal(t, codes.Error, ended[1].Status().Code)
}
