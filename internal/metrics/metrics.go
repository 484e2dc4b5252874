package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is implemented by Metrics and NoopMetrics.
type Recorder interface {
	RecordTokenIssued(tokenType, grantType string)
	RecordTokenError(grantType, code string)
	RecordTokenRevoked(reason string)
	RecordAuthorizationDecision(decision string)
	RecordLogin(success bool)
	RecordHTTPRequest(method, path string, status int, duration time.Duration)
}

const (
	resultSuccess = "success"
	resultFailure = "failure"

	DecisionGranted      = "granted"
	DecisionDenied       = "denied"
	DecisionAutoApproved = "auto_approved"
	DecisionError        = "error"
)

var _ Recorder = (*Metrics)(nil)

// Metrics holds all Prometheus metrics for the provider
type Metrics struct {
	TokensIssuedTotal           *prometheus.CounterVec
	TokenErrorsTotal            *prometheus.CounterVec
	TokensRevokedTotal          *prometheus.CounterVec
	AuthorizationDecisionsTotal *prometheus.CounterVec
	LoginsTotal                 *prometheus.CounterVec
	HTTPRequestsTotal           *prometheus.CounterVec
	HTTPRequestDuration         *prometheus.HistogramVec
}

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Init returns Prometheus backed metrics when enabled and NoopMetrics otherwise.
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
		TokensIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_issued_total",
				Help: "Total number of tokens issued",
			},
			[]string{"token_type", "grant_type"}, // token_type: access, refresh
		),
		TokenErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_token_errors_total",
				Help: "Total number of failed token requests",
			},
			[]string{"grant_type", "error"},
		),
		TokensRevokedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_tokens_revoked_total",
				Help: "Total number of tokens revoked",
			},
			[]string{"reason"}, // logout, rotation
		),
		AuthorizationDecisionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_authorization_decisions_total",
				Help: "Total number of authorization decisions by resource owners",
			},
			[]string{"decision"},
		),
		LoginsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "oauth_logins_total",
				Help: "Total number of resource owner login attempts",
			},
			[]string{"result"},
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
	}
}

func (m *Metrics) RecordTokenIssued(tokenType, grantType string) {
	m.TokensIssuedTotal.WithLabelValues(tokenType, grantType).Inc()
}

func (m *Metrics) RecordTokenError(grantType, code string) {
	if grantType == "" {
		grantType = "none"
	}
	m.TokenErrorsTotal.WithLabelValues(grantType, code).Inc()
}

func (m *Metrics) RecordTokenRevoked(reason string) {
	m.TokensRevokedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordAuthorizationDecision(decision string) {
	m.AuthorizationDecisionsTotal.WithLabelValues(decision).Inc()
}

func (m *Metrics) RecordLogin(success bool) {
	result := resultSuccess
	if !success {
		result = resultFailure
	}
	m.LoginsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
