package infrastructure

import (
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
)

// Metrics groups the instruments recorded by the sync worker, the license
// manager and the WebSocket hub.
type Metrics struct {
	SyncDeliveries     metric.Int64Counter
	SyncCycleDuration  metric.Float64Histogram
	SyncPendingRecords metric.Int64Gauge
	SyncDeadLetters    metric.Int64Gauge
	LicenseValidations metric.Int64Counter
	LicenseActivations metric.Int64Counter
	WebSocketClients   metric.Int64UpDownCounter
	WebSocketMessages  metric.Int64Counter
}

// NewMetrics creates every instrument on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	if m.SyncDeliveries, err = meter.Int64Counter(
		"pos_sync_deliveries_total",
		metric.WithDescription("Outbox delivery attempts by outcome"),
	); err != nil {
		return nil, err
	}

	if m.SyncCycleDuration, err = meter.Float64Histogram(
		"pos_sync_cycle_duration_seconds",
		metric.WithDescription("Duration of one outbox drain cycle"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	if m.SyncPendingRecords, err = meter.Int64Gauge(
		"pos_sync_pending_records",
		metric.WithDescription("Outbox records still eligible for delivery"),
	); err != nil {
		return nil, err
	}

	if m.SyncDeadLetters, err = meter.Int64Gauge(
		"pos_sync_dead_letter_records",
		metric.WithDescription("Outbox records excluded after exhausting retries"),
	); err != nil {
		return nil, err
	}

	if m.LicenseValidations, err = meter.Int64Counter(
		"pos_license_validations_total",
		metric.WithDescription("License validations by resulting status"),
	); err != nil {
		return nil, err
	}

	if m.LicenseActivations, err = meter.Int64Counter(
		"pos_license_activations_total",
		metric.WithDescription("License activation attempts by result"),
	); err != nil {
		return nil, err
	}

	if m.WebSocketClients, err = meter.Int64UpDownCounter(
		"pos_websocket_clients",
		metric.WithDescription("Connected WebSocket status clients"),
	); err != nil {
		return nil, err
	}

	if m.WebSocketMessages, err = meter.Int64Counter(
		"pos_websocket_messages_total",
		metric.WithDescription("WebSocket frames queued to clients by outcome"),
	); err != nil {
		return nil, err
	}

	return &m, nil
}

// NoopMetrics returns instruments that record nothing, for tests and CLI
// commands.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(metricnoop.NewMeterProvider().Meter(MeterName))
	return m
}
