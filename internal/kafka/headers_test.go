package kafka

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestHeaderCarrier_SetReplacesExisting(t *testing.T) {
	c := HeaderCarrier{{Key: "legacy", Value: []byte("old")}, {Key: "other", Value: []byte("x")}}
	c.Set("legacy", "EXIT|EXIT-01|1|10|A-01")

	assert.Len(t, c, 2)
	assert.Equal(t, "EXIT|EXIT-01|1|10|A-01", c.Get("legacy"))
	assert.Equal(t, "x", c.Get("other"))
	assert.ElementsMatch(t, []string{"legacy", "other"}, c.Keys())
}

func TestHeaderCarrier_GetMissing(t *testing.T) {
	var c HeaderCarrier
	assert.Equal(t, "", c.Get("traceparent"))
	assert.Empty(t, c.Keys())
}

func TestHeaderCarrier_TraceContextRoundTrip(t *testing.T) {
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	prop := propagation.TraceContext{}
	carrier := make(HeaderCarrier, 0)
	prop.Inject(ctx, &carrier)

	v, ok := Lookup([]Header(carrier), "traceparent")
	require.True(t, ok)
	assert.Contains(t, v, "4bf92f3577b34da6a3ce929d0e0e4736")

	got := trace.SpanContextFromContext(prop.Extract(context.Background(), &carrier))
	assert.Equal(t, traceID, got.TraceID())
	assert.Equal(t, spanID, got.SpanID())
}
