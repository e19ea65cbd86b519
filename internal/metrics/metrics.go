package metrics

import (
	"sync"

	"github.com/expense-tracker/authgate/internal/core"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is an alias for core.Recorder.
type Recorder = core.Recorder

// Ensure Metrics implements Recorder interface at compile time
var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Sign-in
	LoginsTotal                 *prometheus.CounterVec
	IdentityProviderCallsTotal  *prometheus.CounterVec
	IdentityProviderCallSeconds *prometheus.HistogramVec

	// Session tokens
	TokensIssuedTotal       *prometheus.CounterVec
	TokenValidationTotal    *prometheus.CounterVec
	TokenValidationDuration prometheus.Histogram

	// PKCE flow
	AuthorizationStepsTotal  *prometheus.CounterVec
	AuthorizationPurgedTotal *prometheus.CounterVec

	// User directory
	AdminChangesTotal *prometheus.CounterVec

	// HTTP Request Metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init returns Prometheus-backed Metrics when enabled and NoopMetrics otherwise.
// Prometheus collectors are registered only once per process.
func Init(enabled bool) Recorder {
	if !enabled {
		return NewNoopMetrics()
	}

	once.Do(func() {
		defaultMetrics = initMetrics()
	})
	return defaultMetrics
}

func initMetrics() *Metrics {
	return &Metrics{
		LoginsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_logins_total",
				Help: "Total number of sign-in attempts",
			},
			[]string{"method", "result"}, // method: assertion, pkce
		),
		IdentityProviderCallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_identity_provider_calls_total",
				Help: "Total number of calls to the identity provider",
			},
			[]string{"operation", "result"}, // operation: verify, exchange
		),
		IdentityProviderCallSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "auth_identity_provider_call_duration_seconds",
				Help:    "Identity provider call latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		TokensIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_tokens_issued_total",
				Help: "Total number of session tokens issued",
			},
			[]string{"token_type", "grant_type"},
		),
		TokenValidationTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_token_validation_total",
				Help: "Total number of session token validations",
			},
			[]string{"result"}, // valid, expired, malformed, bad_signature, wrong_type
		),
		TokenValidationDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "auth_token_validation_duration_seconds",
				Help:    "Session token validation latency",
				Buckets: []float64{.00005, .0001, .00025, .0005, .001, .005},
			},
		),
		AuthorizationStepsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_authorization_steps_total",
				Help: "PKCE authorization flow steps by outcome",
			},
			[]string{"step", "result"},
		),
		AuthorizationPurgedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_authorization_records_purged_total",
				Help: "Expired authorization requests and codes removed",
			},
			[]string{"kind"}, // request, code
		),
		AdminChangesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auth_admin_changes_total",
				Help: "Admin flag changes",
			},
			[]string{"action"}, // elevate, demote, bootstrap
		),
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Current number of HTTP requests being served",
			},
		),
	}
}
