// Package metrics provides Prometheus instrumentation for the trader.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts committed trades by direction and mode.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poketrader_trades_total",
		Help: "Total number of trades committed to the ledger",
	}, []string{"direction", "mode"})

	// DecisionsTotal counts decisions by action and reason.
	DecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poketrader_decisions_total",
		Help: "Trade decisions made by the decision engine",
	}, []string{"action", "reason"})

	// CycleDuration tracks how long a trade cycle takes.
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "poketrader_cycle_duration_seconds",
		Help:    "Trade cycle duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	})

	// ProviderErrors counts failed market and wallet fetches.
	ProviderErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poketrader_provider_errors_total",
		Help: "Failed market data or balance fetches",
	}, []string{"call"})

	// ExecutionFailures counts trades that failed to settle or commit.
	ExecutionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poketrader_execution_failures_total",
		Help: "Trades that failed to settle or commit",
	}, []string{"direction"})

	// Opportunities counts discounted listings found by the scanner.
	Opportunities = promauto.NewCounter(prometheus.CounterOpts{
		Name: "poketrader_opportunities_total",
		Help: "Discounted listings found by the price monitor",
	})

	// WebSocketClients tracks connected stats stream clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "poketrader_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "poketrader_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "poketrader_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics. The chi route pattern is used as the
// path label when available so ids do not blow up cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
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

// Hijack lets the websocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}
