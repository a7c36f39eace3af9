package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"card-trader-go/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter wires the read-only endpoints, the stats stream and /metrics.
func NewRouter(h *Handler, hub *Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors)

	r.Get("/health", h.HealthHandler)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.StatsHandler)
		r.Get("/trades", h.TradesHandler)
		r.Get("/holdings", h.HoldingsHandler)
		r.Get("/status", h.StatusHandler)
		r.Get("/ws", hub.HandlerWithSnapshot(h.StatsSnapshot))
	})
	return r
}

// StatsSnapshot is the payload pushed on the stats stream.
func (h *Handler) StatsSnapshot(ctx context.Context) (any, error) {
	return h.ledger.GetStats(ctx)
}

// cors lets the dashboards call the API from another origin.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Server runs the HTTP API and the stats stream.
type Server struct {
	server   *http.Server
	hub      *Hub
	handler  *Handler
	interval time.Duration
	logger   *zap.Logger
	cancel   context.CancelFunc
}

const defaultStreamInterval = 5 * time.Second

// NewServer creates a server listening on port.
func NewServer(port int, streamInterval time.Duration, h *Handler, logger *zap.Logger) *Server {
	if streamInterval <= 0 {
		streamInterval = defaultStreamInterval
	}
	hub := NewHub(logger)
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           NewRouter(h, hub),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		hub:      hub,
		handler:  h,
		interval: streamInterval,
		logger:   logger.Named("api-server"),
	}
}

// Start runs the HTTP server and the stream loop in new goroutines.
func (s *Server) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(ctx, s.interval, s.handler.StatsSnapshot)

	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	if s.cancel != nil {
		s.cancel()
	}
	return s.server.Shutdown(ctx)
}
