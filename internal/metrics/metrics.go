// Package metrics provides Prometheus metrics for the token authority.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authcore_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Token metrics
	tokensIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_tokens_issued_total",
			Help: "Total number of tokens issued",
		},
		[]string{"type", "flow"}, // type: "access", "id", "refresh"; flow: "exchange", "refresh"
	)

	tokenValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_token_validations_total",
			Help: "Total number of inbound token validations",
		},
		[]string{"outcome"}, // "ok" or "rejected"
	)

	tokenRevocationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "authcore_token_revocations_total",
			Help: "Total number of refresh token revocation requests",
		},
	)

	// JWKS distribution metrics
	jwksRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_jwks_refresh_total",
			Help: "Total number of JWKS cache refresh attempts",
		},
		[]string{"outcome"}, // "ok" or "error"
	)

	// Identity provider metrics
	providerVerificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_provider_verifications_total",
			Help: "Total number of third-party identity token verifications",
		},
		[]string{"provider", "outcome"},
	)

	// Auth gate metrics
	gateRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authcore_gate_rejections_total",
			Help: "Total number of requests rejected by an auth gate",
		},
		[]string{"transport"}, // "http", "graphql", "stomp"
	)

	activeWebSocketsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "authcore_active_websockets",
			Help: "Number of authenticated WebSocket connections",
		},
	)
)

// RecordTokenIssued records a token being issued.
func RecordTokenIssued(tokenType, flow string) {
	tokensIssuedTotal.WithLabelValues(tokenType, flow).Inc()
}

// RecordTokenValidation records an inbound token validation outcome.
func RecordTokenValidation(ok bool) {
	outcome := "rejected"
	if ok {
		outcome = "ok"
	}
	tokenValidationsTotal.WithLabelValues(outcome).Inc()
}

// RecordTokenRevocation records a refresh token revocation request.
func RecordTokenRevocation() {
	tokenRevocationsTotal.Inc()
}

// RecordJWKSRefresh records a JWKS cache refresh attempt.
func RecordJWKSRefresh(outcome string) {
	jwksRefreshTotal.WithLabelValues(outcome).Inc()
}

// RecordProviderVerification records a third-party verification outcome.
func RecordProviderVerification(provider string, ok bool) {
	outcome := "rejected"
	if ok {
		outcome = "ok"
	}
	providerVerificationsTotal.WithLabelValues(provider, outcome).Inc()
}

// RecordGateRejection records a rejection by a transport auth gate.
func RecordGateRejection(transport string) {
	gateRejectionsTotal.WithLabelValues(transport).Inc()
}

// WebSocketConnected tracks an authenticated WebSocket connection opening.
func WebSocketConnected() {
	activeWebSocketsGauge.Inc()
}

// WebSocketDisconnected tracks an authenticated WebSocket connection closing.
func WebSocketDisconnected() {
	activeWebSocketsGauge.Dec()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics for every routed request. The path
// label uses the resolved chi route pattern to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rec.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
