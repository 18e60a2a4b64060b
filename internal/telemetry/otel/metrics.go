package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Outcome labels.
const (
	ResultOK     = "ok"
	ResultDenied = "denied"
	ResultError  = "error"
)

// AuthMetrics holds the counters recorded by the auth flows. Every counter carries
// a "flow" attribute (login, login_system, refresh, upgrade, logout, exchange_code, exchange_redeem)
// and a "result" attribute.
type AuthMetrics struct {
	requests    metric.Int64Counter
	reuse       metric.Int64Counter
	revocations metric.Int64Counter
}

// NewAuthMetrics creates the auth counters on meter. A nil meter yields no-op counters.
func NewAuthMetrics(meter metric.Meter) (*AuthMetrics, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	requests, err := meter.Int64Counter("auth.requests",
		metric.WithDescription("Auth flow invocations by flow and result"))
	if err != nil {
		return nil, err
	}
	reuse, err := meter.Int64Counter("auth.refresh.reuse",
		metric.WithDescription("Rotated refresh tokens presented again"))
	if err != nil {
		return nil, err
	}
	revocations, err := meter.Int64Counter("auth.sessions.revoked",
		metric.WithDescription("Session ledger records revoked"))
	if err != nil {
		return nil, err
	}
	return &AuthMetrics{requests: requests, reuse: reuse, revocations: revocations}, nil
}

// Record counts one invocation of flow with result.
func (m *AuthMetrics) Record(ctx context.Context, flow, result string) {
	if m == nil {
		return
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("result", result),
	))
}

// RecordReuse counts one refresh token replay.
func (m *AuthMetrics) RecordReuse(ctx context.Context) {
	if m == nil {
		return
	}
	m.reuse.Add(ctx, 1)
}

// RecordRevocations adds n revoked sessions.
func (m *AuthMetrics) RecordRevocations(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.revocations.Add(ctx, n)
}
