package api

import (
	"context"
	"net/http"
	"time"
)

const maxTradesLimit = 100

// handleTrades returns the most recent trades from the store, newest
// first, capped at maxTradesLimit regardless of the requested limit.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", maxTradesLimit)
	if limit <= 0 || limit > maxTradesLimit {
		limit = maxTradesLimit
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	trades, err := s.store.RecentTrades(ctx, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, trades)
}

// handleHealth returns the fixed body "OK", matching spec §6.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
