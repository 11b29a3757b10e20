// Package metrics provides Prometheus instrumentation for the settlement
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BetsTotal counts accepted bets.
	BetsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oddspool_bets_total",
		Help: "Total number of bets accepted",
	})

	// BetVolume tracks cumulative staked amount per market, in token base units.
	BetVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oddspool_bet_volume_total",
		Help: "Cumulative stake in token base units",
	}, []string{"market_id"})

	// ClaimsTotal counts settled payout claims.
	ClaimsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oddspool_claims_total",
		Help: "Total number of payout claims settled",
	})

	// PayoutVolume tracks cumulative paid-out amount, in token base units.
	PayoutVolume = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oddspool_payout_volume_total",
		Help: "Cumulative payouts in token base units",
	})

	// FeesCollected tracks cumulative platform fees routed to the treasury.
	FeesCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oddspool_fees_collected_total",
		Help: "Cumulative platform fees in token base units",
	})

	// ActiveMarkets tracks the number of markets in active state.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oddspool_active_markets",
		Help: "Number of currently active markets",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "oddspool_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "oddspool_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "oddspool_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// StakeLimitRejections counts bets rejected by the stake limiter.
	StakeLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "oddspool_stake_limit_rejections_total",
		Help: "Bets rejected by the stake limiter",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
