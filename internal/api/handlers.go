package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/delta-monitor/internal/storage"
	"github.com/delta-monitor/internal/types"
)

// portfolioResponse wraps a snapshot with its degraded flag so clients do
// not have to inspect venueErrors.
type portfolioResponse struct {
	Snapshot *types.PortfolioSnapshot `json:"snapshot"`
	Degraded bool                     `json:"degraded"`
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetPortfolio builds a fresh snapshot for the address. The optional
// core query parameter overrides the core-side address; it defaults to the
// EVM address. The snapshot is persisted in the background when a store is
// configured.
func (s *Server) handleGetPortfolio(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	coreAddress := r.URL.Query().Get("core")

	snapshot, err := s.portfolio.BuildPortfolioSnapshot(r.Context(), address, coreAddress)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	if s.snapshots != nil {
		go s.persistSnapshot(snapshot)
	}

	respondJSON(w, http.StatusOK, portfolioResponse{
		Snapshot: snapshot,
		Degraded: snapshot.Degraded(),
	})
}

// persistSnapshot writes the snapshot outside the request path. The request
// has already been answered, so failures are only logged.
func (s *Server) persistSnapshot(snapshot *types.PortfolioSnapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := s.snapshots.Save(ctx, snapshot); err != nil {
		s.log.Error().Err(err).Str("evmAddress", snapshot.EVMAddress).Msg("failed to persist snapshot")
	}
}

// handleGetLatestSnapshot returns the most recent stored snapshot.
func (s *Server) handleGetLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "snapshot persistence is not configured", nil)
		return
	}

	address := mux.Vars(r)["address"]
	snapshot, err := s.snapshots.Latest(r.Context(), address)
	if err != nil {
		if errors.Is(err, storage.ErrSnapshotNotFound) {
			respondError(w, http.StatusNotFound, ErrCodeNotFound, "no snapshot stored for address", map[string]interface{}{
				"address": address,
			})
			return
		}
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, portfolioResponse{
		Snapshot: snapshot,
		Degraded: snapshot.Degraded(),
	})
}

// handleGetSnapshotHistory lists stored snapshot headlines, newest first.
func (s *Server) handleGetSnapshotHistory(w http.ResponseWriter, r *http.Request) {
	if s.snapshots == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "snapshot persistence is not configured", nil)
		return
	}

	address := mux.Vars(r)["address"]
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}

	records, err := s.snapshots.History(r.Context(), address, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if records == nil {
		records = []storage.SnapshotRecord{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"address":   address,
		"snapshots": records,
	})
}
