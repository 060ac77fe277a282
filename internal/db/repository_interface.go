package db

import (
	"github.com/kimhsiao/storesync/backend/internal/models"
)

// ProductRepository defines operations for the cached product table.
type ProductRepository interface {
	UpsertProduct(p *models.CachedProduct) error
	ListActiveProducts(storeID string) ([]*models.CachedProduct, error)
	GetProductRows(id string) ([]*models.CachedProduct, error)
	ReplaceStoreProducts(storeID string, products []*models.CachedProduct, syncedAt int64) (int, error)
	ConfirmProduct(localID, newID string, syncedAt int64) error
}

// OrderRepository defines operations for cached orders and their items.
type OrderRepository interface {
	SaveOrder(o *models.CachedOrder) error
	UpsertPulledOrders(orders []*models.CachedOrder) (int, error)
	ListOrders(storeID string) ([]*models.CachedOrder, error)
	GetOrder(id string) (*models.CachedOrder, error)
	ConfirmOrder(localID, serverID, serverOrderID string) error
}

// QueueRepository defines operations for the durable sync queue.
type QueueRepository interface {
	InsertQueueEntry(e *models.SyncQueueEntry) error
	ListQueue(status string) ([]*models.SyncQueueEntry, error)
	GetQueueEntry(id string) (*models.SyncQueueEntry, error)
	UpdateQueueEntry(id string, u models.QueueUpdate) (bool, error)
	DeleteQueueEntry(id string) (bool, error)
	QueueStats() (models.QueueStats, error)
	ResetFailedQueue() (int64, error)
	DeleteFailedQueue() (int64, error)
}

// SettingsRepository defines operations for key/value settings.
type SettingsRepository interface {
	GetSetting(key string) (string, bool, error)
	SetSetting(key, value string) error
	DeleteSetting(key string) error
}

// Ensure *Repository implements the interfaces at compile time.
var (
	_ ProductRepository  = (*Repository)(nil)
	_ OrderRepository    = (*Repository)(nil)
	_ QueueRepository    = (*Repository)(nil)
	_ SettingsRepository = (*Repository)(nil)
)
