// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// sideEffectFailures counts best-effort work that failed and was swallowed:
// mail delivery, profile creation, points. It is package-level so senders
// and dispatchers can record without holding a Metrics.
var sideEffectFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "nomadiqe_side_effect_failures_total",
		Help: "Total number of swallowed side-effect failures by effect",
	},
	[]string{"effect"},
)

// RecordSideEffectFailure increments the swallowed-failure counter.
func RecordSideEffectFailure(effect string) {
	sideEffectFailures.WithLabelValues(effect).Inc()
}

// Metrics holds the service's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	FlowsTotal     *prometheus.CounterVec
	FlowDuration   *prometheus.HistogramVec
	TokensTotal    *prometheus.CounterVec
	SessionsTotal  *prometheus.CounterVec
	RetryExhausted *prometheus.CounterVec
	HTTPRequests   *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FlowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nomadiqe_flows_total",
				Help: "Total number of account flows by flow and outcome",
			},
			[]string{"flow", "outcome"},
		),
		FlowDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nomadiqe_flow_duration_seconds",
				Help:    "Account flow latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"flow"},
		),
		TokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nomadiqe_tokens_total",
				Help: "Verification token events by purpose and result",
			},
			[]string{"purpose", "result"},
		),
		SessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nomadiqe_sessions_total",
				Help: "Session events (minted, refreshed, drift, rejected)",
			},
			[]string{"event"},
		),
		RetryExhausted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nomadiqe_retry_exhausted_total",
				Help: "Bounded retries that ran out of attempts, by operation",
			},
			[]string{"operation"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nomadiqe_http_requests_total",
				Help: "HTTP API requests by route and status code",
			},
			[]string{"route", "status"},
		),
	}

	reg.MustRegister(m.FlowsTotal, m.FlowDuration, m.TokensTotal, m.SessionsTotal, m.RetryExhausted, m.HTTPRequests)
	reg.MustRegister(sideEffectFailures)
	return m
}

// Outcome is "ok" for a nil error, otherwise the error's kind.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return errutil.KindOf(err).String()
}

// RecordFlow counts one finished flow.
func (m *Metrics) RecordFlow(flow string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.FlowsTotal.WithLabelValues(flow, Outcome(err)).Inc()
	m.FlowDuration.WithLabelValues(flow).Observe(elapsed.Seconds())
}

// RecordToken counts a token event.
func (m *Metrics) RecordToken(purpose, result string) {
	if m == nil {
		return
	}
	m.TokensTotal.WithLabelValues(purpose, result).Inc()
}

// RecordSession counts a session event.
func (m *Metrics) RecordSession(event string) {
	if m == nil {
		return
	}
	m.SessionsTotal.WithLabelValues(event).Inc()
}

// RecordRetryExhausted counts a bounded retry that timed out.
func (m *Metrics) RecordRetryExhausted(operation string) {
	if m == nil {
		return
	}
	m.RetryExhausted.WithLabelValues(operation).Inc()
}

// RecordHTTP counts one API response.
func (m *Metrics) RecordHTTP(route string, status int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
