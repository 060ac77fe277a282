package store

import "github.com/kimhsiao/storesync/backend/internal/models"

// Nop is the fallback Store used when no persistent backend is available.
// Reads are empty and writes are logged no-ops.
type Nop struct{}

var _ Store = Nop{}

func (Nop) Initialize() bool    { return false }
func (Nop) IsInitialized() bool { return false }

func (Nop) SaveProduct(*models.CachedProduct) error {
	warnNotInitialized("SaveProduct")
	return nil
}

func (Nop) SaveProducts([]*models.CachedProduct) error {
	warnNotInitialized("SaveProducts")
	return nil
}

func (Nop) GetProducts(string) []*models.CachedProduct { return []*models.CachedProduct{} }
func (Nop) GetProductRows(string) []*models.CachedProduct { return []*models.CachedProduct{} }

func (Nop) ReplaceStoreProducts(string, []*models.CachedProduct, int64) (int, error) {
	warnNotInitialized("ReplaceStoreProducts")
	return 0, nil
}

func (Nop) ConfirmProduct(string, string, int64) error {
	warnNotInitialized("ConfirmProduct")
	return nil
}

func (Nop) SaveOrder(*models.CachedOrder) error {
	warnNotInitialized("SaveOrder")
	return nil
}

func (Nop) GetOrders(string) []*models.CachedOrder { return []*models.CachedOrder{} }

func (Nop) UpsertPulledOrders([]*models.CachedOrder) (int, error) {
	warnNotInitialized("UpsertPulledOrders")
	return 0, nil
}

func (Nop) ConfirmOrder(string, string, string) error {
	warnNotInitialized("ConfirmOrder")
	return nil
}

func (Nop) AddToSyncQueue(models.SyncOperation) (string, error) {
	warnNotInitialized("AddToSyncQueue")
	return "", nil
}

func (Nop) GetPendingSyncOperations() []*models.SyncQueueEntry { return []*models.SyncQueueEntry{} }
func (Nop) ListSyncQueue() []*models.SyncQueueEntry            { return []*models.SyncQueueEntry{} }

func (Nop) UpdateSyncQueueItem(string, models.QueueUpdate) error {
	warnNotInitialized("UpdateSyncQueueItem")
	return nil
}

func (Nop) RemoveSyncQueueItem(string) error {
	warnNotInitialized("RemoveSyncQueueItem")
	return nil
}

func (Nop) QueueStats() models.QueueStats { return models.QueueStats{} }

func (Nop) RetryFailed() (int, error) {
	warnNotInitialized("RetryFailed")
	return 0, nil
}

func (Nop) ClearFailed() (int, error) {
	warnNotInitialized("ClearFailed")
	return 0, nil
}

func (Nop) GetSetting(string) string { return "" }

func (Nop) SetSetting(string, string) error {
	warnNotInitialized("SetSetting")
	return nil
}

func (Nop) DeleteSetting(string) error {
	warnNotInitialized("DeleteSetting")
	return nil
}

func (Nop) Close() error { return nil }
