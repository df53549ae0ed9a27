package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics bundles the engine's counters. Built from the global meter
// provider: if Init was never called the counters are no-ops, so tests and
// degraded deployments need no special wiring.
type Metrics struct {
	VisitorTurns     metric.Int64Counter
	Escalations      metric.Int64Counter
	NotificationsOK  metric.Int64Counter
	NotificationsSup metric.Int64Counter
	NotificationsErr metric.Int64Counter
	CommandEvents    metric.Int64Counter
}

// NewMetrics creates the counter set from the global meter provider.
func NewMetrics() *Metrics {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	if m.VisitorTurns, err = meter.Int64Counter("takeover.visitor_turns"); err != nil {
		slog.Warn("failed to create visitor_turns counter", "error", err)
	}
	if m.Escalations, err = meter.Int64Counter("takeover.escalations"); err != nil {
		slog.Warn("failed to create escalations counter", "error", err)
	}
	if m.NotificationsOK, err = meter.Int64Counter("takeover.notifications_sent"); err != nil {
		slog.Warn("failed to create notifications_sent counter", "error", err)
	}
	if m.NotificationsSup, err = meter.Int64Counter("takeover.notifications_suppressed"); err != nil {
		slog.Warn("failed to create notifications_suppressed counter", "error", err)
	}
	if m.NotificationsErr, err = meter.Int64Counter("takeover.notifications_failed"); err != nil {
		slog.Warn("failed to create notifications_failed counter", "error", err)
	}
	if m.CommandEvents, err = meter.Int64Counter("takeover.command_events"); err != nil {
		slog.Warn("failed to create command_events counter", "error", err)
	}
	return m
}

// Add increments a counter if it exists, tagging the session.
func (m *Metrics) Add(ctx context.Context, c metric.Int64Counter, kv ...attribute.KeyValue) {
	if m == nil || c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(kv...))
}
