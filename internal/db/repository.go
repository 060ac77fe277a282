package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kimhsiao/storesync/backend/internal/models"
)

// Repository provides CRUD operations over the local cache tables.
type Repository struct {
	db *sql.DB

	// Prepared statements for hot queries, keyed by query string.
	stmtCache sync.Map // map[string]*sql.Stmt
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// PrepareStmt gets or creates a prepared statement from cache.
func (r *Repository) PrepareStmt(query string) (*sql.Stmt, error) {
	if stmt, ok := r.stmtCache.Load(query); ok {
		return stmt.(*sql.Stmt), nil
	}

	stmt, err := r.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	actual, loaded := r.stmtCache.LoadOrStore(query, stmt)
	if loaded {
		stmt.Close()
		return actual.(*sql.Stmt), nil
	}
	return stmt, nil
}

// Close closes all cached prepared statements.
func (r *Repository) Close() error {
	var firstErr error
	r.stmtCache.Range(func(key, value interface{}) bool {
		if err := value.(*sql.Stmt).Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.stmtCache.Delete(key)
		return true
	})
	return firstErr
}

type execer interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// =====================================================
// Product Operations
// =====================================================

const productColumns = `id, store_id, product_id, name, variant, upc, category, price, cost, quantity,
	reorder_level, variants_enabled, variants, is_active, created_at, updated_at, synced_at`

func upsertProduct(ex execer, p *models.CachedProduct) error {
	_, err := ex.Exec(`INSERT OR REPLACE INTO products (variant_key, `+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.VariantKey(), p.ID, p.StoreID, p.ProductID, p.Name, p.Variant, p.UPC, p.Category,
		p.Price, p.Cost, p.Quantity, p.ReorderLevel, p.VariantsEnabled, p.Variants,
		p.IsActive, p.CreatedAt, p.UpdatedAt, p.SyncedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
	}
	return nil
}

func scanProduct(s rowScanner) (*models.CachedProduct, error) {
	p := &models.CachedProduct{}
	err := s.Scan(&p.ID, &p.StoreID, &p.ProductID, &p.Name, &p.Variant, &p.UPC, &p.Category,
		&p.Price, &p.Cost, &p.Quantity, &p.ReorderLevel, &p.VariantsEnabled, &p.Variants,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt, &p.SyncedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *Repository) queryProducts(query string, args ...interface{}) ([]*models.CachedProduct, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*models.CachedProduct
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// UpsertProduct replaces the full row keyed by (id, variant).
func (r *Repository) UpsertProduct(p *models.CachedProduct) error {
	return upsertProduct(r.db, p)
}

// ListActiveProducts returns active products of a store, newest-created first.
func (r *Repository) ListActiveProducts(storeID string) ([]*models.CachedProduct, error) {
	return r.queryProducts(`SELECT `+productColumns+` FROM products
		WHERE store_id = ? AND is_active = 1
		ORDER BY created_at DESC, rowid DESC`, storeID)
}

// GetProductRows returns every variant row sharing id.
func (r *Repository) GetProductRows(id string) ([]*models.CachedProduct, error) {
	return r.queryProducts(`SELECT `+productColumns+` FROM products
		WHERE id = ? ORDER BY variant_key`, id)
}

// ReplaceStoreProducts overwrites the confirmed product cache of a store with
// pulled rows, stamping each with syncedAt. Rows still awaiting server
// confirmation (synced_at NULL) are kept and not overwritten.
func (r *Repository) ReplaceStoreProducts(storeID string, products []*models.CachedProduct, syncedAt int64) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM products WHERE store_id = ? AND synced_at IS NOT NULL`, storeID); err != nil {
		return 0, fmt.Errorf("failed to clear product cache: %w", err)
	}

	written := 0
	for _, p := range products {
		var unconfirmed int
		err := tx.QueryRow(`SELECT COUNT(*) FROM products WHERE id = ? AND variant_key = ? AND synced_at IS NULL`,
			p.ID, p.VariantKey()).Scan(&unconfirmed)
		if err != nil {
			return 0, fmt.Errorf("failed to check local product: %w", err)
		}
		if unconfirmed > 0 {
			continue
		}
		if p.StoreID == "" {
			p.StoreID = storeID
		}
		ts := syncedAt
		p.SyncedAt = &ts
		if err := upsertProduct(tx, p); err != nil {
			return 0, err
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit product cache: %w", err)
	}
	return written, nil
}

// ConfirmProduct marks every row of a product as server-confirmed. When newID
// differs from localID the rows are re-keyed to the server id first, replacing
// any copy already cached under newID, and queued mutations of localID are
// pointed at newID.
func (r *Repository) ConfirmProduct(localID, newID string, syncedAt int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if newID != "" && newID != localID {
		if _, err := tx.Exec(`DELETE FROM products WHERE id = ?`, newID); err != nil {
			return fmt.Errorf("failed to clear server copy: %w", err)
		}
		if _, err := tx.Exec(`UPDATE products SET id = ? WHERE id = ?`, newID, localID); err != nil {
			return fmt.Errorf("failed to re-key product: %w", err)
		}
		if _, err := tx.Exec(`UPDATE sync_queue SET endpoint = ? WHERE entity_id = ? AND endpoint = ?`,
			models.ProductEndpoint(newID), localID, models.ProductEndpoint(localID)); err != nil {
			return fmt.Errorf("failed to re-key queued product endpoints: %w", err)
		}
		if _, err := tx.Exec(`UPDATE sync_queue SET entity_id = ? WHERE entity_id = ?`, newID, localID); err != nil {
			return fmt.Errorf("failed to re-key queued product mutations: %w", err)
		}
	} else {
		newID = localID
	}

	if _, err := tx.Exec(`UPDATE products SET synced_at = ? WHERE id = ?`, syncedAt, newID); err != nil {
		return fmt.Errorf("failed to stamp product: %w", err)
	}
	return tx.Commit()
}

// =====================================================
// Order Operations
// =====================================================

func saveOrder(tx *sql.Tx, o *models.CachedOrder) error {
	_, err := tx.Exec(`INSERT INTO inventory_orders
		(id, order_id, store_id, submitted_by, status, notes, synced, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			order_id = excluded.order_id,
			store_id = excluded.store_id,
			submitted_by = excluded.submitted_by,
			status = excluded.status,
			notes = excluded.notes,
			synced = excluded.synced,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		o.ID, o.OrderID, o.StoreID, o.SubmittedBy, o.Status, o.Notes, o.Synced, o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert order %s: %w", o.ID, err)
	}

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		_, err := tx.Exec(`INSERT INTO inventory_order_items
			(id, order_id, position, product_id, variant, quantity, quantity_delivered, status, synced)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				order_id = excluded.order_id,
				position = excluded.position,
				product_id = excluded.product_id,
				variant = excluded.variant,
				quantity = excluded.quantity,
				quantity_delivered = excluded.quantity_delivered,
				status = excluded.status,
				synced = excluded.synced`,
			item.ID, o.ID, i, item.ProductID, item.Variant, item.Quantity, item.QuantityDelivered, item.Status, item.Synced)
		if err != nil {
			return fmt.Errorf("failed to upsert order item %s: %w", item.ID, err)
		}
	}
	return nil
}

// SaveOrder upserts an order header and its items in one transaction.
func (r *Repository) SaveOrder(o *models.CachedOrder) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveOrder(tx, o); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertPulledOrders saves server orders, skipping local orders not yet confirmed.
func (r *Repository) UpsertPulledOrders(orders []*models.CachedOrder) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	written := 0
	for _, o := range orders {
		var unconfirmed int
		err := tx.QueryRow(`SELECT COUNT(*) FROM inventory_orders WHERE (id = ? OR order_id = ?) AND synced = 0`,
			o.ID, o.OrderID).Scan(&unconfirmed)
		if err != nil {
			return 0, fmt.Errorf("failed to check local order: %w", err)
		}
		if unconfirmed > 0 {
			continue
		}
		o.Synced = true
		for i := range o.Items {
			o.Items[i].Synced = true
		}
		if err := saveOrder(tx, o); err != nil {
			return 0, err
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit orders: %w", err)
	}
	return written, nil
}

// ListOrders returns the orders of a store, newest first, with their items.
func (r *Repository) ListOrders(storeID string) ([]*models.CachedOrder, error) {
	rows, err := r.db.Query(`SELECT id, order_id, store_id, submitted_by, status, notes, synced, created_at, updated_at
		FROM inventory_orders WHERE store_id = ? ORDER BY created_at DESC, rowid DESC`, storeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}

	var orders []*models.CachedOrder
	for rows.Next() {
		o := &models.CachedOrder{}
		if err := rows.Scan(&o.ID, &o.OrderID, &o.StoreID, &o.SubmittedBy, &o.Status, &o.Notes,
			&o.Synced, &o.CreatedAt, &o.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Items are loaded after the header cursor is closed: the pool has one connection.
	for _, o := range orders {
		items, err := r.ListOrderItems(o.ID)
		if err != nil {
			return nil, err
		}
		o.Items = items
	}
	return orders, nil
}

// GetOrder returns one order with its items, or nil if absent.
func (r *Repository) GetOrder(id string) (*models.CachedOrder, error) {
	o := &models.CachedOrder{}
	err := r.db.QueryRow(`SELECT id, order_id, store_id, submitted_by, status, notes, synced, created_at, updated_at
		FROM inventory_orders WHERE id = ?`, id).Scan(&o.ID, &o.OrderID, &o.StoreID, &o.SubmittedBy,
		&o.Status, &o.Notes, &o.Synced, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	if o.Items, err = r.ListOrderItems(o.ID); err != nil {
		return nil, err
	}
	return o, nil
}

// ListOrderItems returns the items of an order in their original order.
func (r *Repository) ListOrderItems(orderID string) ([]models.CachedOrderItem, error) {
	rows, err := r.db.Query(`SELECT id, order_id, product_id, variant, quantity, quantity_delivered, status, synced
		FROM inventory_order_items WHERE order_id = ? ORDER BY position, rowid`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	items := []models.CachedOrderItem{}
	for rows.Next() {
		var it models.CachedOrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Variant, &it.Quantity,
			&it.QuantityDelivered, &it.Status, &it.Synced); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ConfirmOrder reconciles a locally created order with the server's id and
// order code. Items follow the header through ON UPDATE CASCADE. Without a
// server id the local copy is dropped; the next pull caches the server's.
func (r *Repository) ConfirmOrder(localID, serverID, serverOrderID string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if serverID == "" {
		if _, err := tx.Exec(`DELETE FROM inventory_orders WHERE id = ?`, localID); err != nil {
			return fmt.Errorf("failed to drop unconfirmed order: %w", err)
		}
		return tx.Commit()
	}
	if serverID != localID {
		if _, err := tx.Exec(`DELETE FROM inventory_orders WHERE id = ?`, serverID); err != nil {
			return fmt.Errorf("failed to clear server copy: %w", err)
		}
	}
	if serverOrderID != "" {
		if _, err := tx.Exec(`DELETE FROM inventory_orders WHERE order_id = ? AND id != ?`, serverOrderID, localID); err != nil {
			return fmt.Errorf("failed to clear server copy: %w", err)
		}
		_, err = tx.Exec(`UPDATE inventory_orders SET id = ?, order_id = ?, synced = 1 WHERE id = ?`,
			serverID, serverOrderID, localID)
	} else {
		_, err = tx.Exec(`UPDATE inventory_orders SET id = ?, synced = 1 WHERE id = ?`, serverID, localID)
	}
	if err != nil {
		return fmt.Errorf("failed to re-key order: %w", err)
	}
	if _, err := tx.Exec(`UPDATE inventory_order_items SET synced = 1 WHERE order_id = ?`, serverID); err != nil {
		return fmt.Errorf("failed to mark order items: %w", err)
	}
	return tx.Commit()
}

// =====================================================
// Sync Queue Operations
// =====================================================

const queueColumns = `id, operation_type, endpoint, method, payload, headers, entity_id,
	retry_count, status, error_message, created_at, updated_at`

// InsertQueueEntry inserts a queue entry as given.
func (r *Repository) InsertQueueEntry(e *models.SyncQueueEntry) error {
	_, err := r.db.Exec(`INSERT INTO sync_queue (`+queueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.OperationType, e.Endpoint, e.Method, nullableJSON(e.Payload), nullableJSON(e.Headers),
		e.EntityID, e.RetryCount, e.Status, e.ErrorMessage, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert queue entry: %w", err)
	}
	return nil
}

func nullableJSON(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func scanQueueEntry(s rowScanner) (*models.SyncQueueEntry, error) {
	e := &models.SyncQueueEntry{}
	var payload, headers sql.NullString
	err := s.Scan(&e.ID, &e.OperationType, &e.Endpoint, &e.Method, &payload, &headers, &e.EntityID,
		&e.RetryCount, &e.Status, &e.ErrorMessage, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if payload.Valid {
		e.Payload = json.RawMessage(payload.String)
	}
	if headers.Valid {
		e.Headers = json.RawMessage(headers.String)
	}
	return e, nil
}

// ListQueue returns queue entries in FIFO order. An empty status lists all.
func (r *Repository) ListQueue(status string) ([]*models.SyncQueueEntry, error) {
	query := `SELECT ` + queueColumns + ` FROM sync_queue ORDER BY created_at, rowid`
	var args []interface{}
	if status != "" {
		query = `SELECT ` + queueColumns + ` FROM sync_queue WHERE status = ? ORDER BY created_at, rowid`
		args = append(args, status)
	}

	stmt, err := r.PrepareStmt(query)
	if err != nil {
		return nil, err
	}
	rows, err := stmt.Query(args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync queue: %w", err)
	}
	defer rows.Close()

	entries := []*models.SyncQueueEntry{}
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetQueueEntry returns one entry, or nil if absent.
func (r *Repository) GetQueueEntry(id string) (*models.SyncQueueEntry, error) {
	e, err := scanQueueEntry(r.db.QueryRow(`SELECT `+queueColumns+` FROM sync_queue WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry: %w", err)
	}
	return e, nil
}

// UpdateQueueEntry applies the non-nil fields of u. It reports whether a row matched.
func (r *Repository) UpdateQueueEntry(id string, u models.QueueUpdate) (bool, error) {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UnixMilli()}
	if u.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *u.Status)
	}
	if u.RetryCount != nil {
		sets = append(sets, "retry_count = ?")
		args = append(args, *u.RetryCount)
	}
	if u.ErrorMessage != nil {
		sets = append(sets, "error_message = ?")
		args = append(args, *u.ErrorMessage)
	}
	args = append(args, id)

	res, err := r.db.Exec(`UPDATE sync_queue SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update queue entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteQueueEntry removes one entry. It reports whether a row matched.
func (r *Repository) DeleteQueueEntry(id string) (bool, error) {
	res, err := r.db.Exec(`DELETE FROM sync_queue WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete queue entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// QueueStats counts entries by status.
func (r *Repository) QueueStats() (models.QueueStats, error) {
	var stats models.QueueStats
	rows, err := r.db.Query(`SELECT status, COUNT(*) FROM sync_queue GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("failed to count sync queue: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return stats, err
		}
		switch status {
		case models.QueueStatusPending:
			stats.Pending = n
		case models.QueueStatusFailed:
			stats.Failed = n
		}
	}
	return stats, rows.Err()
}

// ResetFailedQueue moves failed entries back to pending with a fresh retry budget.
func (r *Repository) ResetFailedQueue() (int64, error) {
	res, err := r.db.Exec(`UPDATE sync_queue SET status = ?, retry_count = 0, error_message = NULL, updated_at = ?
		WHERE status = ?`, models.QueueStatusPending, time.Now().UnixMilli(), models.QueueStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to reset failed entries: %w", err)
	}
	return res.RowsAffected()
}

// DeleteFailedQueue removes all failed entries.
func (r *Repository) DeleteFailedQueue() (int64, error) {
	res, err := r.db.Exec(`DELETE FROM sync_queue WHERE status = ?`, models.QueueStatusFailed)
	if err != nil {
		return 0, fmt.Errorf("failed to clear failed entries: %w", err)
	}
	return res.RowsAffected()
}

// =====================================================
// Settings Operations
// =====================================================

// GetSetting returns a setting value and whether it exists.
func (r *Repository) GetSetting(key string) (string, bool, error) {
	stmt, err := r.PrepareStmt(`SELECT value FROM settings WHERE key = ?`)
	if err != nil {
		return "", false, err
	}
	var value string
	err = stmt.QueryRow(key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	return value, true, nil
}

// SetSetting upserts a setting.
func (r *Repository) SetSetting(key, value string) error {
	_, err := r.db.Exec(`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// DeleteSetting removes a setting.
func (r *Repository) DeleteSetting(key string) error {
	if _, err := r.db.Exec(`DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete setting %s: %w", key, err)
	}
	return nil
}
