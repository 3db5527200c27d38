package webhook

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics instruments webhook processing. A nil receiver or nil meter
// disables all instrumentation, so callers never need to guard.
type Metrics struct {
	receivedTotal   metric.Int64Counter
	verifiedTotal   metric.Int64Counter
	dispatchedTotal metric.Int64Counter
	failedTotal     metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		return nil, nil
	}
	m := &Metrics{}
	var err error
	if m.receivedTotal, err = meter.Int64Counter(
		"codemode_webhook_received_total",
		metric.WithDescription("Total webhook deliveries received"),
	); err != nil {
		return nil, err
	}
	if m.verifiedTotal, err = meter.Int64Counter(
		"codemode_webhook_verified_total",
		metric.WithDescription("Total webhook deliveries successfully verified"),
	); err != nil {
		return nil, err
	}
	if m.dispatchedTotal, err = meter.Int64Counter(
		"codemode_webhook_dispatched_total",
		metric.WithDescription("Total webhook events dispatched to execution"),
	); err != nil {
		return nil, err
	}
	if m.failedTotal, err = meter.Int64Counter(
		"codemode_webhook_failed_total",
		metric.WithDescription("Total webhook deliveries rejected by reason"),
	); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) Received(ctx context.Context) {
	if m == nil || m.receivedTotal == nil {
		return
	}
	m.receivedTotal.Add(ctx, 1)
}

func (m *Metrics) Verified(ctx context.Context) {
	if m == nil || m.verifiedTotal == nil {
		return
	}
	m.verifiedTotal.Add(ctx, 1)
}

func (m *Metrics) Dispatched(ctx context.Context) {
	if m == nil || m.dispatchedTotal == nil {
		return
	}
	m.dispatchedTotal.Add(ctx, 1)
}

func (m *Metrics) Failed(ctx context.Context, reason string) {
	if m == nil || m.failedTotal == nil {
		return
	}
	m.failedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
