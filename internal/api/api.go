// Package api serves the dashboard's HTTP surface: recent trades and a
// liveness probe. The WebSocket event stream lives in internal/session
// and is mounted on the same mux by the caller.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/latencyx/core/internal/models"
)

// TradeStore is the read-only slice of persist.Store this package needs.
type TradeStore interface {
	RecentTrades(ctx context.Context, limit int) ([]models.Trade, error)
}

// Server provides the dashboard's REST API endpoints.
type Server struct {
	store   TradeStore
	startAt time.Time
}

// NewServer creates a new API server backed by store.
func NewServer(store TradeStore) *Server {
	return &Server{store: store, startAt: time.Now()}
}

// Register attaches API routes to the given mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/trades", s.handleTrades)
	mux.HandleFunc("GET /api/health", s.handleHealth)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIntParam(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
