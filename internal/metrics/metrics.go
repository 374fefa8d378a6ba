package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Purchase outcomes recorded on the purchases counter.
const (
	OutcomePending      = "pending"
	OutcomeGranted      = "granted"
	OutcomeInsufficient = "insufficient_points"
	OutcomeRejectedPlan = "plan_unavailable"
	OutcomeError        = "error"
)

// Metrics holds all Prometheus metric collectors for the Tally server.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Ledger and workflow metrics.
	PurchasesTotal         *prometheus.CounterVec
	ApprovalDecisionsTotal *prometheus.CounterVec
	PointAdjustmentsTotal  prometheus.Counter
	FreeTimeGrantsTotal    prometheus.Counter
	AccountsCreatedTotal   prometheus.Counter

	// Rate limiting.
	RateLimitRejectionsTotal prometheus.Counter

	// Auth metrics.
	AuthFailuresTotal  *prometheus.CounterVec
	AuthSuccessesTotal *prometheus.CounterVec

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all Prometheus metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tally_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		PurchasesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_purchases_total",
			Help: "Total number of membership purchase attempts by outcome.",
		}, []string{"outcome"}),

		ApprovalDecisionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_approval_decisions_total",
			Help: "Total number of administrator decisions on pending requests.",
		}, []string{"decision"}),

		PointAdjustmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tally_point_adjustments_total",
			Help: "Total number of administrative point balance overrides.",
		}),

		FreeTimeGrantsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tally_freetime_grants_total",
			Help: "Total number of administrative free-time grants.",
		}),

		AccountsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tally_accounts_created_total",
			Help: "Total number of accounts created on first sight of a user.",
		}),

		RateLimitRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tally_ratelimit_rejections_total",
			Help: "Total number of rate limit rejections.",
		}),

		AuthFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_auth_failures_total",
			Help: "Total number of authentication failures.",
		}, []string{"auth_type"}),

		AuthSuccessesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tally_auth_successes_total",
			Help: "Total number of successful authentications.",
		}, []string{"auth_type"}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tally_server_start_time_seconds",
			Help: "Unix timestamp when the server started.",
		}),
	}

	// Register all metrics.
	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PurchasesTotal,
		m.ApprovalDecisionsTotal,
		m.PointAdjustmentsTotal,
		m.FreeTimeGrantsTotal,
		m.AccountsCreatedTotal,
		m.RateLimitRejectionsTotal,
		m.AuthFailuresTotal,
		m.AuthSuccessesTotal,
		m.ServerStartTime,
	)

	// Set server start time.
	m.ServerStartTime.Set(float64(time.Now().Unix()))

	// Register Go runtime and process collectors.
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterDBPoolCollector registers a custom DB pool stats collector.
func (m *Metrics) RegisterDBPoolCollector(statFunc DBPoolStatFunc) {
	m.registry.MustRegister(NewDBPoolCollector(statFunc))
}

// ObserveHTTPRequest records one completed HTTP request.
func (m *Metrics) ObserveHTTPRequest(method, pathPattern string, statusCode int, seconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, fmt.Sprintf("%d", statusCode)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(seconds)
}

// IncPurchase increments the purchases counter for the given outcome.
func (m *Metrics) IncPurchase(outcome string) {
	m.PurchasesTotal.WithLabelValues(outcome).Inc()
}

// IncDecision increments the decision counter.
func (m *Metrics) IncDecision(decision string) {
	m.ApprovalDecisionsTotal.WithLabelValues(decision).Inc()
}

// IncAuthFailure increments the auth failure counter for the given auth type.
func (m *Metrics) IncAuthFailure(authType string) {
	m.AuthFailuresTotal.WithLabelValues(authType).Inc()
}

// IncAuthSuccess increments the auth success counter for the given auth type.
func (m *Metrics) IncAuthSuccess(authType string) {
	m.AuthSuccessesTotal.WithLabelValues(authType).Inc()
}

// IncRateLimitRejection increments the rate limit rejection counter.
func (m *Metrics) IncRateLimitRejection() {
	m.RateLimitRejectionsTotal.Inc()
}
