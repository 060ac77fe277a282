// Package store is the client's durable local store: cached products and
// orders, the sync queue, and session settings.
//
// A Store never crashes its caller when persistence is unavailable. Before a
// successful Initialize (or when the backend cannot be opened) reads return
// empty collections and writes are no-ops that log a warning.
package store

import (
	"database/sql"
	"os"

	"github.com/kimhsiao/storesync/backend/internal/logging"
	"github.com/kimhsiao/storesync/backend/internal/models"
)

// Store is the Local Store contract. Call sites depend on this interface only.
type Store interface {
	// Initialize opens the backend and creates its tables. It is idempotent,
	// never panics, and reports whether the store is usable.
	Initialize() bool
	IsInitialized() bool

	SaveProduct(p *models.CachedProduct) error
	SaveProducts(products []*models.CachedProduct) error
	GetProducts(storeID string) []*models.CachedProduct
	// GetProductRows returns every cached row of product id, active or not.
	GetProductRows(id string) []*models.CachedProduct
	// ReplaceStoreProducts overwrites the confirmed cache of a store with pulled rows.
	ReplaceStoreProducts(storeID string, products []*models.CachedProduct, syncedAt int64) (int, error)
	ConfirmProduct(localID, serverID string, syncedAt int64) error

	SaveOrder(o *models.CachedOrder) error
	GetOrders(storeID string) []*models.CachedOrder
	UpsertPulledOrders(orders []*models.CachedOrder) (int, error)
	ConfirmOrder(localID, serverID, serverOrderID string) error

	AddToSyncQueue(op models.SyncOperation) (string, error)
	GetPendingSyncOperations() []*models.SyncQueueEntry
	ListSyncQueue() []*models.SyncQueueEntry
	UpdateSyncQueueItem(id string, u models.QueueUpdate) error
	RemoveSyncQueueItem(id string) error
	QueueStats() models.QueueStats
	RetryFailed() (int, error)
	ClearFailed() (int, error)

	GetSetting(key string) string
	SetSetting(key, value string) error
	DeleteSetting(key string) error

	Close() error
}

// New returns a SQLite-backed Store when the platform can provide one, and a
// Nop store otherwise. The returned store still needs Initialize.
func New(dataDir string) Store {
	if err := checkCapability(dataDir); err != nil {
		logging.Warn("Persistent storage unavailable, running without offline cache", map[string]interface{}{
			"data_dir": dataDir,
			"reason":   err.Error(),
		})
		return Nop{}
	}
	return NewSQLite(dataDir)
}

type capabilityError string

func (e capabilityError) Error() string { return string(e) }

func checkCapability(dataDir string) error {
	if dataDir == "" {
		return capabilityError("no data directory configured")
	}
	registered := false
	for _, d := range sql.Drivers() {
		if d == "sqlite" {
			registered = true
			break
		}
	}
	if !registered {
		return capabilityError("sqlite driver not registered")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return err
	}
	return nil
}

func warnNotInitialized(op string) {
	logging.Warn("Local store not initialized, write ignored", map[string]interface{}{"op": op})
}
