package store

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/kimhsiao/storesync/backend/internal/db"
	apperrors "github.com/kimhsiao/storesync/backend/internal/errors"
	"github.com/kimhsiao/storesync/backend/internal/logging"
	"github.com/kimhsiao/storesync/backend/internal/models"
	"github.com/kimhsiao/storesync/backend/internal/uuid"
)

// SQLite is the persistent Store backed by internal/db.
type SQLite struct {
	dataDir string

	mu   sync.RWMutex
	conn *db.DB
	repo *db.Repository
}

var _ Store = (*SQLite)(nil)

// NewSQLite returns an uninitialized SQLite store rooted at dataDir.
func NewSQLite(dataDir string) *SQLite {
	return &SQLite{dataDir: dataDir}
}

// Initialize opens the database if it is not open yet.
func (s *SQLite) Initialize() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo != nil {
		return true
	}

	conn, err := db.Open(s.dataDir)
	if err != nil {
		logging.Warn("Local store initialization failed", map[string]interface{}{
			"data_dir": s.dataDir,
			"error":    err.Error(),
		})
		return false
	}

	s.conn = conn
	s.repo = db.NewRepository(conn.DB)
	logging.Info("Local store initialized", map[string]interface{}{"data_dir": s.dataDir})
	return true
}

// IsInitialized reports whether Initialize has succeeded.
func (s *SQLite) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo != nil
}

// repository returns the open repository, or nil before initialization.
func (s *SQLite) repository() *db.Repository {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repo
}

func storageError(op string, err error) error {
	return apperrors.Wrap(apperrors.ErrDatabase, op+" failed", err)
}

func readFailed(op string, err error) {
	logging.Warn("Local store read failed", map[string]interface{}{"op": op, "error": err.Error()})
}

// =====================================================
// Products
// =====================================================

func (s *SQLite) SaveProduct(p *models.CachedProduct) error {
	repo := s.repository()
	if repo == nil {
		warnNotInitialized("SaveProduct")
		return nil
	}
	if err := repo.UpsertProduct(p); err != nil {
		return storageError("SaveProduct", err)
	}
	return nil
}

// SaveProducts upserts products one after another. It stops at the first failure.
func (s *SQLite) SaveProducts(products []*models.CachedProduct) error {
	repo := s.repository()
	if repo == nil {
		warnNotInitialized("SaveProducts")
		return nil
	}
	for _, p := range products {
		if err := repo.UpsertProduct(p); err != nil {
			return storageError("SaveProducts", err)
		}
	}
	return nil
}

func (s *SQLite) GetProducts(storeID string) []*models.CachedProduct {
	repo := s.repository()
	if repo == nil {
		return []*models.CachedProduct{}
	}
	products, err := repo.ListActiveProducts(storeID)
	if err != nil {
		readFailed("GetProducts", err)
		return []*models.CachedProduct{}
	}
	if products == nil {
		return []*models.CachedProduct{}
	}
	return products
}

// GetProductRows returns all rows of product id, including inactive ones.
func (s *SQLite) GetProductRows(id string) []*models.CachedProduct {
	repo := s.repository()
	if repo == nil {
		return []*models.CachedProduct{}
	}
	rows, err := repo.GetProductRows(id)
	if err != nil {
		readFailed("GetProductRows", err)
		return []*models.CachedProduct{}
	}
	if rows == nil {
		return []*models.CachedProduct{}
	}
	return rows
}

func (s *SQLite) ReplaceStoreProducts(storeID string, products []*models.CachedProduct, syncedAt int64) (int, error) {
	repo := s.repository()
	if repo == nil {
		warnNotInitialized("ReplaceStoreProducts")
		return 0, nil
	}
	n, err := repo.ReplaceStoreProducts(storeID, products, syncedAt)
	if err != nil {
		return 0, storageError("ReplaceStoreProducts", err)
	}
	return n, nil
}

func (s *SQLite) ConfirmProduct(localID, serverID string, syncedAt int64) error {
	repo := s.repository()
	if repo == nil {
		warnNotInitialized("ConfirmProduct")
		return nil
	}
	if err := repo.ConfirmProduct(localID, serverID, syncedAt); err != nil {
		return storageError("ConfirmProduct", err)
	}
	return nil
}

// =====================================================
// Orders
// =====================================================

// SaveOrder upserts the header and items atomically. A returned error means
// the order was not saved.
func (s *SQLite) SaveOrder(o *models.CachedOrder) error {
	repo := s.repository()
	if repo == nil {
		warnNotInitialized("SaveOrder")
		return nil
	}
	if err := repo.SaveOrder(o); err != nil {
		return storageError("SaveOrder", err)
	}
	return nil
}

func (s *SQLite) GetOrders(storeID string) []*models.CachedOrder {
	repo := s.repository()
	if repo == nil {
		return []*models.CachedOrder{}
	}
	orders, err := repo.ListOrders(storeID)
	if err != nil {
		readFailed("GetOrders", err)
		return []*models.CachedOrder{}
	}
	if orders == nil {
		return []*models.CachedOrder{}
	}
	return orders
}

func (s *SQLite) UpsertPulledOrders(orders []*models.CachedOrder) (int, error) {
	repo := s.repository()
	if repo == nil {
		warnNotInitialized("UpsertPulledOrders")
		return 0, nil
	}
	n, err := repo.UpsertPulledOrders(orders)
	if err != nil {
		return 0, storageError("UpsertPulledOrders", err)
	}
	return n, nil
}

func (s *SQLite) ConfirmOrder(localID, serverID, serverOrderID string) error {
	repo := s.repository()
	if repo == nil {
		warnNotInitialized("ConfirmOrder")
		return nil
	}
	if err := repo.ConfirmOrder(localID, serverID, serverOrderID); err != nil {
		return storageError("ConfirmOrder", err)
	}
	return nil
}

// =====================================================
// Sync queue
// =====================================================

// AddToSyncQueue records op as a pending entry and returns its id.
// Before initialization it returns ("", nil).
func (s *SQLite) AddToSyncQueue(op models.SyncOperation) (string, error) {
	repo := s.repository()
	if repo == nil {
		warnNotInitialized("AddToSyncQueue")
		return "", nil
	}

	var headers json.RawMessage
	if len(op.Headers) > 0 {
		b, err := json.Marshal(op.Headers)
		if err != nil {
			return "", apperrors.Wrap(apperrors.ErrInvalid, "invalid queue headers", err)
		}
		headers = b
	}

	now := time.Now().UnixMilli()
	entry := &models.SyncQueueEntry{
		ID:            uuid.NewQueueID(),
		OperationType: op.OperationType,
		Endpoint:      op.Endpoint,
		Method:        op.Method,
		Payload:       op.Payload,
		Headers:       headers,
		EntityID:      op.EntityID,
		RetryCount:    0,
		Status:        models.QueueStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repo.InsertQueueEntry(entry); err != nil {
		return "", storageError("AddToSyncQueue", err)
	}
	return entry.ID, nil
}

// GetPendingSyncOperations returns pending entries oldest first.
func (s *SQLite) GetPendingSyncOperations() []*models.SyncQueueEntry {
	return s.listQueue("GetPendingSyncOperations", models.QueueStatusPending)
}

// ListSyncQueue returns every entry, pending and failed, oldest first.
func (s *SQLite) ListSyncQueue() []*models.SyncQueueEntry {
	return s.listQueue("ListSyncQueue", "")
}

func (s *SQLite) listQueue(op, status string) []*models.SyncQueueEntry {
	repo := s.repository()
	if repo == nil {
		return []*models.SyncQueueEntry{}
	}
	entries, err := repo.ListQueue(status)
	if err != nil {
		readFailed(op, err)
		return []*models.SyncQueueEntry{}
	}
	return entries
}

// UpdateSyncQueueItem applies a partial update to one entry.
func (s *SQLite) UpdateSyncQueueItem(id string, u models.QueueUpdate) error {
	repo := s.repository()
	if repo == nil {
		warnNotInitialized("UpdateSyncQueueItem")
		return nil
	}
	ok, err := repo.UpdateQueueEntry(id, u)
	if err != nil {
		return storageError("UpdateSyncQueueItem", err)
	}
	if !ok {
		return apperrors.New(apperrors.ErrQueueEntryNotFound, "sync queue entry not found: "+id)
	}
	return nil
}

// RemoveSyncQueueItem deletes one entry. Removing a missing entry is not an error.
func (s *SQLite) RemoveSyncQueueItem(id string) error {
	repo := s.repository()
	if repo == nil {
		warnNotInitialized("RemoveSyncQueueItem")
		return nil
	}
	if _, err := repo.DeleteQueueEntry(id); err != nil {
		return storageError("RemoveSyncQueueItem", err)
	}
	return nil
}

func (s *SQLite) QueueStats() models.QueueStats {
	repo := s.repository()
	if repo == nil {
		return models.QueueStats{}
	}
	stats, err := repo.QueueStats()
	if err != nil {
		readFailed("QueueStats", err)
		return models.QueueStats{}
	}
	return stats
}

// RetryFailed resets failed entries to pending with a fresh retry budget.
func (s *SQLite) RetryFailed() (int, error) {
	repo := s.repository()
	if repo == nil {
		warnNotInitialized("RetryFailed")
		return 0, nil
	}
	n, err := repo.ResetFailedQueue()
	if err != nil {
		return 0, storageError("RetryFailed", err)
	}
	return int(n), nil
}

// ClearFailed deletes failed entries.
func (s *SQLite) ClearFailed() (int, error) {
	repo := s.repository()
	if repo == nil {
		warnNotInitialized("ClearFailed")
		return 0, nil
	}
	n, err := repo.DeleteFailedQueue()
	if err != nil {
		return 0, storageError("ClearFailed", err)
	}
	return int(n), nil
}

// =====================================================
// Settings
// =====================================================

// GetSetting returns the value for key, or "" when unset or unavailable.
func (s *SQLite) GetSetting(key string) string {
	repo := s.repository()
	if repo == nil {
		return ""
	}
	v, _, err := repo.GetSetting(key)
	if err != nil {
		readFailed("GetSetting", err)
		return ""
	}
	return v
}

func (s *SQLite) SetSetting(key, value string) error {
	repo := s.repository()
	if repo == nil {
		warnNotInitialized("SetSetting")
		return nil
	}
	if err := repo.SetSetting(key, value); err != nil {
		return storageError("SetSetting", err)
	}
	return nil
}

func (s *SQLite) DeleteSetting(key string) error {
	repo := s.repository()
	if repo == nil {
		warnNotInitialized("DeleteSetting")
		return nil
	}
	if err := repo.DeleteSetting(key); err != nil {
		return storageError("DeleteSetting", err)
	}
	return nil
}

// Close releases the database. The store reverts to not initialized.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo == nil {
		return nil
	}
	s.repo.Close()
	err := s.conn.Close()
	s.repo = nil
	s.conn = nil
	return err
}
