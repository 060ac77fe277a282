// Package sync reconciles the local cache with the central API.
//
// One run pulls server state into the Local Store and then replays queued
// mutations. Runs are single-flight: a call arriving while a run is in flight
// returns immediately without touching the store.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/kimhsiao/storesync/backend/internal/client"
	"github.com/kimhsiao/storesync/backend/internal/logging"
	"github.com/kimhsiao/storesync/backend/internal/models"
	"github.com/kimhsiao/storesync/backend/internal/store"
	"github.com/kimhsiao/storesync/backend/internal/sync/queue"
	"github.com/kimhsiao/storesync/backend/internal/telemetry"
)

// SkipReason explains why a run did no work.
type SkipReason string

const (
	SkipInFlight         SkipReason = "in_flight"
	SkipOffline          SkipReason = "offline"
	SkipNoSession        SkipReason = "no_session"
	SkipStoreUnavailable SkipReason = "store_unavailable"
)

// SyncResult summarizes one run.
type SyncResult struct {
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	Duration       time.Duration `json:"duration"`
	Skipped        SkipReason    `json:"skipped,omitempty"`
	PulledProducts int           `json:"pulled_products"`
	PulledOrders   int           `json:"pulled_orders"`
	Pushed         int           `json:"pushed"`
	Failed         int           `json:"failed"`
	Escalated      int           `json:"escalated"`
	PullErrors     []string      `json:"pull_errors,omitempty"`
}

// Ran reports whether the run performed pull and push.
func (r *SyncResult) Ran() bool {
	return r.Skipped == ""
}

// Transport sends one request and returns the 2xx body. *client.Client implements it.
type Transport interface {
	Do(ctx context.Context, req client.Request) ([]byte, error)
}

// Engine is the sync engine.
type Engine struct {
	store    store.Store
	queue    *queue.Manager
	api      Transport
	session  SessionFlags
	conn     *Connectivity
	notifier *Notifier
	reporter telemetry.Reporter

	syncing atomic.Bool
	now     func() time.Time
}

// Config wires an Engine.
type Config struct {
	Store        store.Store
	Queue        *queue.Manager
	API          Transport
	Session      SessionFlags
	Connectivity *Connectivity
	Reporter     telemetry.Reporter
}

// NewEngine creates an Engine.
func NewEngine(cfg Config) *Engine {
	q := cfg.Queue
	if q == nil {
		q = queue.NewManager(cfg.Store)
	}
	conn := cfg.Connectivity
	if conn == nil {
		conn = NewConnectivity(true)
	}
	return &Engine{
		store:    cfg.Store,
		queue:    q,
		api:      cfg.API,
		session:  cfg.Session,
		conn:     conn,
		notifier: NewNotifier(),
		reporter: telemetry.OrNop(cfg.Reporter),
		now:      time.Now,
	}
}

// Connectivity returns the reachability flag the engine reads.
func (e *Engine) Connectivity() *Connectivity {
	return e.conn
}

// Queue returns the queue manager.
func (e *Engine) Queue() *queue.Manager {
	return e.queue
}

// IsSyncing reports whether a run is in flight.
func (e *Engine) IsSyncing() bool {
	return e.syncing.Load()
}

// Sync runs one pull→push cycle. It never returns an error: failures are
// logged, reported, and reflected in the result.
func (e *Engine) Sync(ctx context.Context) *SyncResult {
	result := &SyncResult{StartTime: e.now()}

	if !e.syncing.CompareAndSwap(false, true) {
		result.Skipped = SkipInFlight
		result.EndTime = result.StartTime
		logging.Debug("Sync already in progress, skipping", nil)
		return result
	}
	defer func() {
		e.syncing.Store(false)
		result.EndTime = e.now()
		result.Duration = result.EndTime.Sub(result.StartTime)
		e.Broadcast()
	}()

	if !e.conn.IsOnline() {
		result.Skipped = SkipOffline
		return result
	}
	if e.session.Token() == "" {
		result.Skipped = SkipNoSession
		return result
	}
	if !e.store.IsInitialized() && !e.store.Initialize() {
		result.Skipped = SkipStoreUnavailable
		logging.Warn("Local store unavailable, sync aborted", nil)
		return result
	}

	e.Broadcast()
	logging.Info("Sync started", nil)

	e.pull(ctx, result)
	e.push(ctx, result)

	if err := e.session.SetLastSyncTime(e.now()); err != nil {
		logging.Warn("Failed to persist last sync time", map[string]interface{}{"error": err.Error()})
	}

	logging.Info("Sync completed", map[string]interface{}{
		"pulled_products": result.PulledProducts,
		"pulled_orders":   result.PulledOrders,
		"pushed":          result.Pushed,
		"failed":          result.Failed,
		"escalated":       result.Escalated,
		"duration_ms":     e.now().Sub(result.StartTime).Milliseconds(),
	})
	return result
}

// =====================================================
// Pull phase
// =====================================================

type productsResponse struct {
	Products []*models.CachedProduct `json:"products"`
}

type ordersResponse struct {
	Orders []*models.CachedOrder `json:"orders"`
}

func (e *Engine) pull(ctx context.Context, result *SyncResult) {
	storeID := e.session.StoreID()
	if storeID == "" {
		logging.Debug("No store selected, pull skipped", nil)
		return
	}
	path := url.PathEscape(storeID)

	var products productsResponse
	if err := e.get(ctx, "/products/store/"+path, &products); err != nil {
		e.pullFailed("products", err, result)
	} else {
		n, err := e.store.ReplaceStoreProducts(storeID, products.Products, e.now().Unix())
		if err != nil {
			e.pullFailed("products", err, result)
		}
		result.PulledProducts = n
	}

	var orders ordersResponse
	if err := e.get(ctx, "/inventory-orders/store/"+path, &orders); err != nil {
		e.pullFailed("orders", err, result)
		return
	}
	for _, o := range orders.Orders {
		if o.StoreID == "" {
			o.StoreID = storeID
		}
		for i := range o.Items {
			if o.Items[i].ID == "" {
				o.Items[i].ID = fmt.Sprintf("%s-%d", o.ID, i)
			}
		}
	}
	n, err := e.store.UpsertPulledOrders(orders.Orders)
	if err != nil {
		e.pullFailed("orders", err, result)
	}
	result.PulledOrders = n
}

func (e *Engine) get(ctx context.Context, path string, out interface{}) error {
	body, err := e.api.Do(ctx, client.Request{Method: http.MethodGet, Path: path})
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// pullFailed swallows a pull error. A rejected token means the user is not
// logged in and is not escalated.
func (e *Engine) pullFailed(what string, err error, result *SyncResult) {
	result.PullErrors = append(result.PullErrors, what+": "+err.Error())
	ctx := map[string]interface{}{"phase": "pull", "resource": what, "error": err.Error()}
	if client.IsAuth(err) {
		logging.Info("Pull rejected by server, skipping", ctx)
		return
	}
	logging.Warn("Pull failed", ctx)
	e.reporter.TrackError(err, ctx)
}

// =====================================================
// Push phase
// =====================================================

// push replays pending entries strictly one at a time in FIFO order. Entries
// queued against a placeholder id that an earlier entry of the same run
// reconciled are replayed against the server id.
func (e *Engine) push(ctx context.Context, result *SyncResult) {
	rekeyed := map[string]string{}
	for _, entry := range e.queue.Pending() {
		if ctx.Err() != nil {
			logging.Warn("Sync cancelled, remaining entries left pending", nil)
			return
		}
		if serverID, ok := rekeyed[entry.EntityID]; ok {
			entry.Rekey(entry.EntityID, serverID)
		}

		body, err := e.api.Do(ctx, replayRequest(entry))
		if err != nil {
			result.Failed++
			escalated, qerr := e.queue.Failed(entry, err)
			if qerr != nil {
				e.reporter.TrackError(qerr, map[string]interface{}{"phase": "push", "id": entry.ID})
			}
			if escalated {
				result.Escalated++
				e.reporter.TrackError(err, map[string]interface{}{
					"phase":          "push",
					"id":             entry.ID,
					"operation_type": entry.OperationType,
				})
			}
			continue
		}

		serverID, err := e.reconcile(entry, body)
		if err != nil {
			// The server applied the mutation; replaying it would duplicate it.
			logging.Error("Failed to apply server ids to local cache", err, map[string]interface{}{
				"id":             entry.ID,
				"operation_type": entry.OperationType,
				"entity_id":      entry.EntityID,
			})
			e.reporter.TrackError(err, map[string]interface{}{"phase": "reconcile", "id": entry.ID})
		}
		if serverID != "" && serverID != entry.EntityID {
			rekeyed[entry.EntityID] = serverID
		}
		if err := e.queue.Complete(entry.ID); err != nil {
			e.reporter.TrackError(err, map[string]interface{}{"phase": "push", "id": entry.ID})
		}
		result.Pushed++
	}
}

func replayRequest(entry *models.SyncQueueEntry) client.Request {
	req := client.Request{
		Method:  entry.Method,
		Path:    entry.Endpoint,
		Headers: entry.HeaderMap(),
	}
	if entry.Method != http.MethodGet && entry.Method != http.MethodHead {
		req.Body = entry.Payload
	}
	return req
}

type serverOrder struct {
	Order struct {
		ID      string `json:"id"`
		OrderID string `json:"order_id"`
	} `json:"order"`
}

type serverProduct struct {
	Product struct {
		ID string `json:"id"`
	} `json:"product"`
}

// reconcile applies server-assigned identifiers from a successful replay and
// returns the server id of a reconciled product, if any.
func (e *Engine) reconcile(entry *models.SyncQueueEntry, body []byte) (string, error) {
	if entry.EntityID == "" {
		return "", nil
	}
	switch entry.OperationType {
	case models.OpCreateOrder:
		var resp serverOrder
		if len(body) > 0 {
			if err := json.Unmarshal(body, &resp); err != nil {
				return "", fmt.Errorf("decode order response: %w", err)
			}
		}
		return "", e.store.ConfirmOrder(entry.EntityID, resp.Order.ID, resp.Order.OrderID)

	case models.OpCreateProduct, models.OpUpdateProduct:
		var resp serverProduct
		if len(body) > 0 {
			if err := json.Unmarshal(body, &resp); err != nil {
				return "", fmt.Errorf("decode product response: %w", err)
			}
		}
		if err := e.store.ConfirmProduct(entry.EntityID, resp.Product.ID, e.now().Unix()); err != nil {
			return "", err
		}
		return resp.Product.ID, nil
	}
	return "", nil
}

// =====================================================
// Queue and status
// =====================================================

// QueueOperation records op for replay. It is the write path for callers that
// are offline or whose direct call failed, and fails only on storage errors.
func (e *Engine) QueueOperation(op models.SyncOperation) (string, error) {
	id, err := e.queue.Enqueue(op)
	if err == nil {
		e.Broadcast()
	}
	return id, err
}

// Status returns the current SyncStatus.
func (e *Engine) Status() SyncStatus {
	s := SyncStatus{
		IsOnline:          e.conn.IsOnline(),
		IsSyncing:         e.syncing.Load(),
		PendingOperations: len(e.store.GetPendingSyncOperations()),
	}
	if t := e.session.LastSyncTime(); !t.IsZero() {
		s.LastSyncTime = &t
	}
	return s
}

// Subscribe registers fn for status broadcasts.
func (e *Engine) Subscribe(fn func(SyncStatus)) (unsubscribe func()) {
	return e.notifier.Subscribe(fn)
}

// Broadcast publishes the current status.
func (e *Engine) Broadcast() {
	e.notifier.Publish(e.Status())
}
