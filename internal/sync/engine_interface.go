package sync

import (
	"context"
	"time"

	"github.com/kimhsiao/storesync/backend/internal/models"
)

// SyncEngineInterface defines the interface for sync engine operations.
// The connectivity monitor and the outer surfaces depend on this, not on *Engine.
type SyncEngineInterface interface {
	// Sync runs one pull→push cycle. Concurrent calls while a run is in
	// flight return immediately with Skipped set.
	Sync(ctx context.Context) *SyncResult

	// IsSyncing reports whether a run is in flight.
	IsSyncing() bool

	// QueueOperation records a mutation for later replay.
	QueueOperation(op models.SyncOperation) (string, error)

	// Status returns the current SyncStatus.
	Status() SyncStatus

	// Subscribe registers a status listener.
	Subscribe(fn func(SyncStatus)) (unsubscribe func())

	// Broadcast publishes the current status to subscribers.
	Broadcast()
}

// SessionFlags is the part of the session the engine reads and writes.
type SessionFlags interface {
	Token() string
	StoreID() string
	LastSyncTime() time.Time
	SetLastSyncTime(t time.Time) error
}

var _ SyncEngineInterface = (*Engine)(nil)
