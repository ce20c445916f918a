package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics are the settlement engine's domain counters. A nil *Metrics is a no-op.
type Metrics struct {
	transitions metric.Int64Counter
	escrow      metric.Int64Counter
	duplicates  metric.Int64Counter
	integrity   metric.Int64Counter
	orders      metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	transitions, err := meter.Int64Counter("order_transitions_total",
		metric.WithDescription("Order status transitions committed"))
	if err != nil {
		return nil, err
	}
	escrow, err := meter.Int64Counter("escrow_operations_total",
		metric.WithDescription("Escrow hold, release and refund attempts by result"))
	if err != nil {
		return nil, err
	}
	duplicates, err := meter.Int64Counter("callback_duplicates_total",
		metric.WithDescription("Replayed webhooks and delivery callbacks ignored"))
	if err != nil {
		return nil, err
	}
	integrity, err := meter.Int64Counter("integrity_hazards_total",
		metric.WithDescription("Attempts that would violate the order or escrow invariants"))
	if err != nil {
		return nil, err
	}
	orders, err := meter.Int64Counter("orders_created_total",
		metric.WithDescription("Orders placed"))
	if err != nil {
		return nil, err
	}
	return &Metrics{transitions: transitions, escrow: escrow, duplicates: duplicates, integrity: integrity, orders: orders}, nil
}

func (m *Metrics) Transition(ctx context.Context, from, to string, override bool) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.Bool("override", override),
	))
}

func (m *Metrics) Escrow(ctx context.Context, op, result string) {
	if m == nil {
		return
	}
	m.escrow.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op), attribute.String("result", result)))
}

func (m *Metrics) Duplicate(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.duplicates.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func (m *Metrics) Integrity(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.integrity.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) OrderCreated(ctx context.Context, zone string) {
	if m == nil {
		return
	}
	m.orders.Add(ctx, 1, metric.WithAttributes(attribute.String("zone", zone)))
}
