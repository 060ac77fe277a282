package handlers

import (
	"net/http"

	"github.com/kimhsiao/storesync/backend/internal/models"
	syncpkg "github.com/kimhsiao/storesync/backend/internal/sync"
	"github.com/kimhsiao/storesync/backend/internal/sync/queue"
)

// SyncHandler handles sync status, manual sync and queue repair.
type SyncHandler struct {
	engine syncpkg.SyncEngineInterface
	queue  *queue.Manager
}

// NewSyncHandler creates a new SyncHandler.
func NewSyncHandler(engine syncpkg.SyncEngineInterface, q *queue.Manager) *SyncHandler {
	return &SyncHandler{engine: engine, queue: q}
}

// GetStatus handles GET /sync/status
func (h *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":      h.engine.Status(),
		"queue_stats": h.queue.Stats(),
	})
}

// TriggerSync handles POST /sync/now
// Runs a sync and waits for it. A run already in flight yields 409.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	result := h.engine.Sync(r.Context())
	if result.Skipped == syncpkg.SkipInFlight {
		respondJSON(w, http.StatusConflict, map[string]interface{}{"error": "Sync already in progress", "result": result})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"result": result, "status": h.engine.Status()})
}

// ListQueue handles GET /sync/queue?status=pending|failed
func (h *SyncHandler) ListQueue(w http.ResponseWriter, r *http.Request) {
	entries := h.queue.List()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := make([]*models.SyncQueueEntry, 0, len(entries))
		for _, e := range entries {
			if e.Status == status {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"entries": entries, "total": len(entries)})
}

// RetryFailed handles POST /sync/queue/retry
func (h *SyncHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.RetryFailed()
	if err != nil {
		respondError(w, err)
		return
	}
	h.engine.Broadcast()
	respondJSON(w, http.StatusOK, map[string]interface{}{"reset": n})
}

// ClearFailed handles DELETE /sync/queue/failed
func (h *SyncHandler) ClearFailed(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.ClearFailed()
	if err != nil {
		respondError(w, err)
		return
	}
	h.engine.Broadcast()
	respondJSON(w, http.StatusOK, map[string]interface{}{"cleared": n})
}
