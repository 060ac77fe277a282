// Package queue provides retry bookkeeping over the durable sync queue.
//
// Entries are replayed in creation order on the engine's fixed cadence; there
// is no backoff. An entry that fails MaxRetries times is frozen as failed and
// kept until an operator retries or clears it.
package queue

import (
	"github.com/go-playground/validator/v10"

	apperrors "github.com/kimhsiao/storesync/backend/internal/errors"
	"github.com/kimhsiao/storesync/backend/internal/logging"
	"github.com/kimhsiao/storesync/backend/internal/models"
	"github.com/kimhsiao/storesync/backend/internal/store"
)

// MaxRetries is the failure count at which an entry is escalated to failed.
const MaxRetries = 5

// Manager wraps a Store's queue operations with validation and retry accounting.
type Manager struct {
	store    store.Store
	validate *validator.Validate
}

// NewManager creates a Manager over st.
func NewManager(st store.Store) *Manager {
	return &Manager{store: st, validate: validator.New()}
}

// Enqueue validates op and records it as pending. When the store is not
// initialized it returns ("", nil); being offline is never an error here.
func (m *Manager) Enqueue(op models.SyncOperation) (string, error) {
	if err := m.validate.Struct(op); err != nil {
		return "", apperrors.Wrap(apperrors.ErrValidation, "invalid sync operation", err)
	}

	id, err := m.store.AddToSyncQueue(op)
	if err != nil {
		logging.Error("[SyncQueue] Failed to enqueue operation", err, map[string]interface{}{
			"operation_type": op.OperationType,
			"endpoint":       op.Endpoint,
		})
		return "", err
	}
	if id != "" {
		logging.Info("[SyncQueue] Enqueued operation", map[string]interface{}{
			"id":             id,
			"operation_type": op.OperationType,
			"method":         op.Method,
			"endpoint":       op.Endpoint,
		})
	}
	return id, nil
}

// Pending returns pending entries oldest first.
func (m *Manager) Pending() []*models.SyncQueueEntry {
	return m.store.GetPendingSyncOperations()
}

// List returns every entry oldest first.
func (m *Manager) List() []*models.SyncQueueEntry {
	return m.store.ListSyncQueue()
}

// Complete removes a successfully replayed entry.
func (m *Manager) Complete(id string) error {
	if err := m.store.RemoveSyncQueueItem(id); err != nil {
		logging.Error("[SyncQueue] Failed to remove completed entry", err, map[string]interface{}{"id": id})
		return err
	}
	logging.Debug("[SyncQueue] Completed entry", map[string]interface{}{"id": id})
	return nil
}

// Failed records a failed replay of entry. It increments retry_count and, once
// the count reaches MaxRetries, escalates the entry to failed. The returned
// bool reports escalation.
func (m *Manager) Failed(entry *models.SyncQueueEntry, cause error) (bool, error) {
	retries := entry.RetryCount + 1
	msg := cause.Error()
	update := models.QueueUpdate{RetryCount: &retries, ErrorMessage: &msg}

	escalated := retries >= MaxRetries
	if escalated {
		status := models.QueueStatusFailed
		update.Status = &status
	}

	if err := m.store.UpdateSyncQueueItem(entry.ID, update); err != nil {
		logging.Error("[SyncQueue] Failed to record retry", err, map[string]interface{}{"id": entry.ID})
		return false, err
	}

	entry.RetryCount = retries
	entry.ErrorMessage = &msg
	ctx := map[string]interface{}{
		"id":             entry.ID,
		"operation_type": entry.OperationType,
		"retry_count":    retries,
		"max_retries":    MaxRetries,
		"error":          msg,
	}
	if escalated {
		entry.Status = models.QueueStatusFailed
		logging.Warn("[SyncQueue] Entry failed permanently", ctx)
	} else {
		logging.Warn("[SyncQueue] Entry failed, will retry next run", ctx)
	}
	return escalated, nil
}

// RetryFailed returns failed entries to pending with retry_count reset.
func (m *Manager) RetryFailed() (int, error) {
	n, err := m.store.RetryFailed()
	if err == nil && n > 0 {
		logging.Info("[SyncQueue] Failed entries reset to pending", map[string]interface{}{"count": n})
	}
	return n, err
}

// ClearFailed deletes failed entries.
func (m *Manager) ClearFailed() (int, error) {
	n, err := m.store.ClearFailed()
	if err == nil && n > 0 {
		logging.Info("[SyncQueue] Failed entries cleared", map[string]interface{}{"count": n})
	}
	return n, err
}

// Stats counts entries by status.
func (m *Manager) Stats() models.QueueStats {
	return m.store.QueueStats()
}
