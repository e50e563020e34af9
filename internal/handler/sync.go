// This file implements the sync control endpoints.
//
// Routes:
//   - POST /api/v1/sync          -> HandleSyncNow
//   - GET  /api/v1/sync/status   -> HandleSyncStatus
//   - POST /api/v1/connectivity  -> HandleConnectivity
package handler

import (
	"log/slog"
	"net/http"

	"github.com/conformly/fieldsync/internal/domain"
	"github.com/conformly/fieldsync/internal/queue"
	"github.com/conformly/fieldsync/internal/syncer"
)

// SyncHandler exposes manual sweep triggers and queue health.
type SyncHandler struct {
	engine *syncer.Engine
	store  queue.Store
	logger *slog.Logger
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(engine *syncer.Engine, store queue.Store, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		engine: engine,
		store:  store,
		logger: logger,
	}
}

// RegisterRoutes registers sync routes on the provided mux.
func (h *SyncHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/sync", h.HandleSyncNow)
	mux.HandleFunc("GET /api/v1/sync/status", h.HandleSyncStatus)
	mux.HandleFunc("POST /api/v1/connectivity", h.HandleConnectivity)
}

// SyncNowResponse is the response body for POST /api/v1/sync.
type SyncNowResponse struct {
	// Skipped is true when a sweep was already in flight; the queue is not
	// swept twice concurrently.
	Skipped   bool `json:"skipped"`
	Attempted int  `json:"attempted"`
	Synced    int  `json:"synced"`
	Failed    int  `json:"failed"`
}

// HandleSyncNow runs a full queue sweep and reports the outcome. If a sweep
// is already running the call returns immediately with skipped=true.
func (h *SyncHandler) HandleSyncNow(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.SyncAll(r.Context())
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	status := http.StatusOK
	if result.Skipped {
		status = http.StatusAccepted
	}
	writeJSON(w, status, SyncNowResponse{
		Skipped:   result.Skipped,
		Attempted: result.Attempted,
		Synced:    result.Synced,
		Failed:    result.Failed,
	})
}

// SyncStatusResponse is the response body for GET /api/v1/sync/status.
type SyncStatusResponse struct {
	Online  bool `json:"online"`
	Pending int  `json:"pending"`
	Failed  int  `json:"failed"`
	Synced  int  `json:"synced"`
}

// HandleSyncStatus reports connectivity and per-status queue counts.
func (h *SyncHandler) HandleSyncStatus(w http.ResponseWriter, r *http.Request) {
	resp := SyncStatusResponse{Online: h.engine.Online()}

	records, err := h.store.List(r.Context(), queue.ListFilter{})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	for _, rec := range records {
		switch rec.SyncStatus {
		case domain.SyncStatusPending:
			resp.Pending++
		case domain.SyncStatusFailed:
			resp.Failed++
		case domain.SyncStatusSynced:
			resp.Synced++
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// ConnectivityRequest is the request body for POST /api/v1/connectivity.
type ConnectivityRequest struct {
	Online bool `json:"online"`
}

// HandleConnectivity updates the agent's connectivity signal. A transition
// from offline to online triggers a background sweep.
func (h *SyncHandler) HandleConnectivity(w http.ResponseWriter, r *http.Request) {
	var req ConnectivityRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.engine.SetOnline(req.Online)
	h.logger.Info("connectivity updated", "online", req.Online)

	writeJSON(w, http.StatusOK, map[string]bool{"online": req.Online})
}
