package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/tsarna/stompws/pkg/stomp/o11y"
)

func TestProvider(t *testing.T) {
	ctx := context.Background()
	var _ o11y.MetricsProvider = (*Provider)(nil)
	var _ o11y.TracingProvider = (*Provider)(nil)

	p := NewProviderWith(metricnoop.NewMeterProvider(), tracenoop.NewTracerProvider(), "stompws-test", "0.0.1")

	t.Run("instruments accept values", func(t *testing.T) {
		p.Counter("frames_sent_total").Add(ctx, 1, o11y.Label{Key: "command", Value: "SEND"})
		p.Histogram("frame_size_bytes").Record(ctx, 42)
		p.Gauge("connected").Set(ctx, 1)
	})

	t.Run("gauge tracks last value per label set", func(t *testing.T) {
		g := p.Gauge("subscriptions").(*otelGauge)
		a := o11y.Label{Key: "endpoint", Value: "a"}
		b := o11y.Label{Key: "endpoint", Value: "b"}

		g.Set(ctx, 3, a)
		g.Set(ctx, 5, b)
		g.Set(ctx, 1, a)

		assert.Equal(t, float64(1), g.last[labelKey([]o11y.Label{a})])
		assert.Equal(t, float64(5), g.last[labelKey([]o11y.Label{b})])
	})

	t.Run("label key ignores order", func(t *testing.T) {
		x := []o11y.Label{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}
		y := []o11y.Label{{Key: "b", Value: "2"}, {Key: "a", Value: "1"}}
		assert.Equal(t, labelKey(x), labelKey(y))
	})

	t.Run("spans", func(t *testing.T) {
		spanCtx, span := p.StartSpan(ctx, "stomp.connect")
		assert.NotNil(t, spanCtx)
		span.SetAttributes(o11y.Label{Key: "url", Value: "ws://localhost"})
		span.SetStatus(o11y.SpanStatusOK, "")
		span.SetStatus(o11y.SpanStatusError, "boom")
		span.SetStatus(o11y.SpanStatusUnset, "")
		span.End()
	})

	t.Run("global provider", func(t *testing.T) {
		global := NewProvider("stompws-test", "0.0.1")
		global.Counter("x").Add(ctx, 1)
	})
}
