// Package api serves read-only JSON projections of the ledger.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"card-trader-go/internal/ledger"
	"card-trader-go/internal/trader"
	"go.uber.org/zap"
)

// maxTradeLimit bounds /api/trades?limit=.
const maxTradeLimit = 1000

// StatusProvider reports the state of a running trade engine.
type StatusProvider interface {
	Status() trader.Status
}

// Handler holds dependencies for the API endpoints.
type Handler struct {
	log     *zap.Logger
	ledger  *ledger.Ledger
	status  StatusProvider
	started time.Time
}

// NewHandler creates a new Handler. status may be nil when no engine runs in
// this process.
func NewHandler(log *zap.Logger, l *ledger.Ledger, status StatusProvider) *Handler {
	return &Handler{log: log.Named("api"), ledger: l, status: status, started: time.Now()}
}

// StatsHandler returns the ledger statistics.
func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.GetStats(r.Context())
	if err != nil {
		h.fail(w, "Failed to get stats", err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

// TradesHandler returns the most recent trades, newest first.
func (h *Handler) TradesHandler(w http.ResponseWriter, r *http.Request) {
	limit := ledger.DefaultTradeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.writeJSON(w, http.StatusBadRequest, errorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = min(n, maxTradeLimit)
	}

	trades, err := h.ledger.ListTrades(r.Context(), limit)
	if err != nil {
		h.fail(w, "Failed to get trades", err)
		return
	}
	h.writeJSON(w, http.StatusOK, trades)
}

// HoldingsHandler returns all open positions.
func (h *Handler) HoldingsHandler(w http.ResponseWriter, r *http.Request) {
	holdings, err := h.ledger.ListHoldings(r.Context())
	if err != nil {
		h.fail(w, "Failed to get holdings", err)
		return
	}
	h.writeJSON(w, http.StatusOK, holdings)
}

type serviceStatus struct {
	Engine    *trader.Status `json:"engine,omitempty"`
	StartTime string         `json:"start_time"`
	Uptime    string         `json:"uptime"`
}

// StatusHandler reports process uptime and, when attached, the engine state.
func (h *Handler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	resp := serviceStatus{
		StartTime: h.started.Format(time.RFC3339),
		Uptime:    time.Since(h.started).Round(time.Second).String(),
	}
	if h.status != nil {
		s := h.status.Status()
		resp.Engine = &s
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HealthHandler reports liveness.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handler) fail(w http.ResponseWriter, msg string, err error) {
	h.log.Error(msg, zap.Error(err))
	h.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to write response", zap.Error(err))
	}
}
