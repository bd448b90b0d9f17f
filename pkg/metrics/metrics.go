// Package metrics публикует метрики сервера зоны в Prometheus.
package metrics

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/udisondev/zonauth/pkg/catalog"
	"github.com/udisondev/zonauth/pkg/protocol"
)

// Значения метки result.
const (
	ResultOK        = "ok"
	ResultRejected  = "rejected"
	ResultTrust     = "trust"
	ResultPrivilege = "privilege"
	ResultEncoding  = "encoding"
	ResultInvalid   = "invalid"
	ResultError     = "error"
)

// Metrics метрики аутентификации. Методы nil-safe: nil означает, что
// метрики отключены.
type Metrics struct {
	handshakes    *prometheus.CounterVec
	duration      prometheus.Histogram
	operations    *prometheus.CounterVec
	remoteChecks  *prometheus.CounterVec
	activeConns   prometheus.Gauge
	connsRejected *prometheus.CounterVec
}

// New регистрирует метрики в reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		handshakes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zonauth_handshakes_total",
				Help: "Total number of completed handshakes by result",
			},
			[]string{"result"},
		),
		duration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "zonauth_handshake_duration_seconds",
				Help:    "Handshake duration from hello to final reply",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
		),
		operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zonauth_operations_total",
				Help: "Total number of dispatched agent operations by operation and result",
			},
			[]string{"operation", "result"},
		),
		remoteChecks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zonauth_remote_checks_total",
				Help: "Total number of auth checks delegated to remote zones",
			},
			[]string{"zone", "result"},
		),
		activeConns: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "zonauth_active_connections",
				Help: "Number of client connections being served",
			},
		),
		connsRejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "zonauth_connections_rejected_total",
				Help: "Total number of connections closed before handshake completion by reason",
			},
			[]string{"reason"}, // "limit", "rate", "hello"
		),
	}
}

// Result классифицирует ошибку в значение метки result.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, protocol.ErrTrustNotEstablished),
		errors.Is(err, protocol.ErrTrustSecretMissing),
		errors.Is(err, protocol.ErrTrustMismatch):
		return ResultTrust
	case errors.Is(err, protocol.ErrInsufficientPrivilege):
		return ResultPrivilege
	case errors.Is(err, protocol.ErrEncoding):
		return ResultEncoding
	case errors.Is(err, protocol.ErrAuthRejected):
		return ResultRejected
	case errors.Is(err, protocol.ErrMissingField),
		errors.Is(err, protocol.ErrInvalidInput),
		errors.Is(err, protocol.ErrUnsupportedOperation):
		return ResultInvalid
	default:
		return ResultError
	}
}

// RecordHandshake фиксирует завершение handshake.
func (m *Metrics) RecordHandshake(err error, d time.Duration) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(Result(err)).Inc()
	m.duration.Observe(d.Seconds())
}

// RecordOperation фиксирует выполнение одной операции агента.
func (m *Metrics) RecordOperation(op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, Result(err)).Inc()
}

// ConnOpened увеличивает число активных соединений.
func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.activeConns.Inc()
}

// ConnClosed уменьшает число активных соединений.
func (m *Metrics) ConnClosed() {
	if m == nil {
		return
	}
	m.activeConns.Dec()
}

// ConnRejected фиксирует отклонённое соединение.
func (m *Metrics) ConnRejected(reason string) {
	if m == nil {
		return
	}
	m.connsRejected.WithLabelValues(reason).Inc()
}

// WrapDialer добавляет учёт делегированных проверок.
func (m *Metrics) WrapDialer(dial catalog.Dialer) catalog.Dialer {
	if m == nil || dial == nil {
		return dial
	}
	return func(ctx context.Context, zone catalog.Zone) (catalog.AuthChecker, io.Closer, error) {
		checker, closer, err := dial(ctx, zone)
		if err != nil {
			m.remoteChecks.WithLabelValues(zone.Name, ResultError).Inc()
			return nil, nil, err
		}
		return catalog.AuthCheckerFunc(func(ctx context.Context, in catalog.AuthCheckInput) (*catalog.AuthCheckOutput, error) {
			out, err := checker.CheckAuth(ctx, in)
			m.remoteChecks.WithLabelValues(zone.Name, Result(err)).Inc()
			return out, err
		}), closer, nil
	}
}
