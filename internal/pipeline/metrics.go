package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"replydesk/internal/logging"
)

const meterName = "replydesk/pipeline"

var attrDecision = attribute.Key("decision")

// Metrics holds the pipeline instruments. With no MeterProvider installed
// the global meter is a no-op.
type Metrics struct {
	messages    metric.Int64Counter
	runDuration metric.Float64Histogram
	cycles      metric.Int64Counter
}

// NewMetrics creates the instruments on meter, or on the global meter when
// meter is nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	var (
		mt  Metrics
		err error
	)
	mt.messages, err = meter.Int64Counter("replydesk_messages_total",
		metric.WithDescription("Messages processed, by final decision"))
	if err != nil {
		return nil, err
	}
	mt.runDuration, err = meter.Float64Histogram("replydesk_message_duration_seconds",
		metric.WithDescription("Time from fetch to final decision"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	mt.cycles, err = meter.Int64Counter("replydesk_poll_cycles_total",
		metric.WithDescription("Completed poll cycles"))
	if err != nil {
		return nil, err
	}
	return &mt, nil
}

// RecordMessage counts one finished message and its duration.
func (mt *Metrics) RecordMessage(ctx context.Context, d logging.Decision, elapsed time.Duration) {
	if mt == nil {
		return
	}
	attrs := metric.WithAttributes(attrDecision.String(string(d)))
	mt.messages.Add(ctx, 1, attrs)
	mt.runDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordCycle counts one poll cycle.
func (mt *Metrics) RecordCycle(ctx context.Context, failed bool) {
	if mt == nil {
		return
	}
	mt.cycles.Add(ctx, 1, metric.WithAttributes(attribute.Bool("failed", failed)))
}
