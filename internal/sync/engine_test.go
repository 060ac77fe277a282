package sync

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	gosync "sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/storesync/backend/internal/client"
	"github.com/kimhsiao/storesync/backend/internal/models"
	"github.com/kimhsiao/storesync/backend/internal/store"
	"github.com/kimhsiao/storesync/backend/internal/sync/queue"
	"github.com/kimhsiao/storesync/backend/internal/telemetry"
)

// =====================================================
// Test fixtures
// =====================================================

type fakeSession struct {
	mu       gosync.Mutex
	token    string
	storeID  string
	lastSync time.Time
}

func (s *fakeSession) Token() string   { s.mu.Lock(); defer s.mu.Unlock(); return s.token }
func (s *fakeSession) StoreID() string { s.mu.Lock(); defer s.mu.Unlock(); return s.storeID }
func (s *fakeSession) LastSyncTime() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync
}
func (s *fakeSession) SetLastSyncTime(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSync = t
	return nil
}

// fakeAPI is a minimal central API. Handlers for mutation endpoints are
// looked up by "METHOD path"; unknown mutations answer 200 {}.
type fakeAPI struct {
	mu        gosync.Mutex
	products  []map[string]interface{}
	orders    []map[string]interface{}
	pullCode  int
	mutations map[string]func(w http.ResponseWriter, r *http.Request)
	calls     []string
	bodies    map[string]string
	hook      func(r *http.Request)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		mutations: map[string]func(http.ResponseWriter, *http.Request){},
		bodies:    map[string]string{},
	}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(r)
	}

	key := r.Method + " " + r.URL.Path
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.calls = append(f.calls, key)
	f.bodies[key] = string(body)
	handler := f.mutations[key]
	pullCode := f.pullCode
	products, orders := f.products, f.orders
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodGet {
		if pullCode != 0 {
			w.WriteHeader(pullCode)
			return
		}
		switch r.URL.Path {
		case "/products/store/store-1":
			json.NewEncoder(w).Encode(map[string]interface{}{"products": products})
			return
		case "/inventory-orders/store/store-1":
			json.NewEncoder(w).Encode(map[string]interface{}{"orders": orders})
			return
		}
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if handler != nil {
		handler(w, r)
		return
	}
	io.WriteString(w, `{}`)
}

func (f *fakeAPI) mutationCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if c[:3] != "GET" {
			out = append(out, c)
		}
	}
	return out
}

type harness struct {
	engine  *Engine
	store   *store.SQLite
	session *fakeSession
	api     *fakeAPI
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	api := newFakeAPI()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	st := store.NewSQLite(t.TempDir())
	require.True(t, st.Initialize())
	t.Cleanup(func() { st.Close() })

	sess := &fakeSession{token: "tok", storeID: "store-1"}
	e := NewEngine(Config{
		Store:        st,
		API:          client.New(srv.URL, sess.Token, client.Options{}),
		Session:      sess,
		Connectivity: NewConnectivity(true),
		Reporter:     telemetry.Nop{},
	})
	return &harness{engine: e, store: st, session: sess, api: api}
}

func (h *harness) enqueue(t *testing.T, opType, method, endpoint, entity string) string {
	t.Helper()
	id, err := h.engine.QueueOperation(models.SyncOperation{
		OperationType: opType,
		Endpoint:      endpoint,
		Method:        method,
		Payload:       json.RawMessage(`{"entity":"` + entity + `"}`),
		EntityID:      entity,
	})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

// =====================================================
// Preconditions
// =====================================================

func TestSync_skipsWhenOffline(t *testing.T) {
	h := newHarness(t)
	h.engine.Connectivity().Set(false)

	res := h.engine.Sync(context.Background())
	assert.Equal(t, SkipOffline, res.Skipped)
	assert.Empty(t, h.api.calls)
}

func TestSync_skipsWithoutToken(t *testing.T) {
	h := newHarness(t)
	h.session.token = ""

	res := h.engine.Sync(context.Background())
	assert.Equal(t, SkipNoSession, res.Skipped)
	assert.Empty(t, h.api.calls)
}

func TestSync_storeUnavailableNotifiesIdle(t *testing.T) {
	sess := &fakeSession{token: "tok", storeID: "store-1"}
	e := NewEngine(Config{
		Store:   store.Nop{},
		API:     client.New("http://127.0.0.1:1", sess.Token, client.Options{}),
		Session: sess,
	})

	var got []SyncStatus
	e.Subscribe(func(s SyncStatus) { got = append(got, s) })

	res := e.Sync(context.Background())
	assert.Equal(t, SkipStoreUnavailable, res.Skipped)
	require.Len(t, got, 1)
	assert.False(t, got[0].IsSyncing)
	assert.Equal(t, 0, got[0].PendingOperations)
}

// =====================================================
// Single-flight
// =====================================================

func TestSync_singleFlight(t *testing.T) {
	h := newHarness(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var productPulls atomic.Int32
	h.api.hook = func(r *http.Request) {
		if r.URL.Path == "/products/store/store-1" {
			if productPulls.Add(1) == 1 {
				close(entered)
			}
			<-release
		}
	}

	done := make(chan *SyncResult)
	go func() { done <- h.engine.Sync(context.Background()) }()
	<-entered

	assert.True(t, h.engine.IsSyncing())
	var wg gosync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := h.engine.Sync(context.Background())
			assert.Equal(t, SkipInFlight, res.Skipped)
		}()
	}
	wg.Wait()

	close(release)
	first := <-done
	assert.True(t, first.Ran())
	assert.Equal(t, int32(1), productPulls.Load())
	assert.False(t, h.engine.IsSyncing())
}

// =====================================================
// Pull
// =====================================================

func TestSync_pullPopulatesEmptyCache(t *testing.T) {
	h := newHarness(t)
	assert.Empty(t, h.store.GetProducts("store-1"))

	h.api.products = []map[string]interface{}{
		{"id": "p1", "store_id": "store-1", "product_id": "SKU-1", "name": "Tea", "is_active": true, "created_at": "2024-01-01T00:00:00Z"},
		{"id": "p2", "store_id": "store-1", "product_id": "SKU-2", "name": "Milk", "is_active": true, "created_at": "2024-02-01T00:00:00Z"},
	}
	h.api.orders = []map[string]interface{}{
		{"id": "o1", "order_id": "ORD-1", "store_id": "store-1", "status": "submitted",
			"items": []map[string]interface{}{{"id": "i1", "product_id": "SKU-1", "quantity": 2}}},
	}

	res := h.engine.Sync(context.Background())
	require.True(t, res.Ran())
	assert.Equal(t, 2, res.PulledProducts)
	assert.Equal(t, 1, res.PulledOrders)

	products := h.store.GetProducts("store-1")
	require.Len(t, products, 2)
	for _, p := range products {
		assert.NotNil(t, p.SyncedAt, "pulled product %s must be stamped", p.ID)
	}
	orders := h.store.GetOrders("store-1")
	require.Len(t, orders, 1)
	assert.True(t, orders[0].Synced)
	assert.Len(t, orders[0].Items, 1)
	assert.False(t, h.session.LastSyncTime().IsZero())
}

func TestSync_pullFullReplace(t *testing.T) {
	h := newHarness(t)
	h.api.products = []map[string]interface{}{{"id": "p1", "is_active": true}, {"id": "p2", "is_active": true}}
	h.engine.Sync(context.Background())

	h.api.products = []map[string]interface{}{{"id": "p2", "is_active": true}}
	h.engine.Sync(context.Background())

	products := h.store.GetProducts("store-1")
	require.Len(t, products, 1)
	assert.Equal(t, "p2", products[0].ID)
}

func TestSync_pullFailureDoesNotAbortPush(t *testing.T) {
	h := newHarness(t)
	h.api.pullCode = http.StatusUnauthorized
	h.enqueue(t, models.OpUpdateProduct, http.MethodPut, "/products/p1", "p1")

	res := h.engine.Sync(context.Background())
	assert.Len(t, res.PullErrors, 2)
	assert.Equal(t, 1, res.Pushed)
	assert.Empty(t, h.store.GetPendingSyncOperations())
}

func TestSync_pullErrorsReported(t *testing.T) {
	h := newHarness(t)
	reporter := telemetry.NewLog(nil)
	h.engine.reporter = reporter
	h.api.pullCode = http.StatusInternalServerError

	h.engine.Sync(context.Background())
	assert.Equal(t, int64(2), reporter.ErrorCount())

	h.api.pullCode = http.StatusUnauthorized
	h.engine.Sync(context.Background())
	assert.Equal(t, int64(2), reporter.ErrorCount(), "auth failures are not escalated")
}

// =====================================================
// Push
// =====================================================

func TestSync_pushFIFO(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, models.OpUpdateProduct, http.MethodPut, "/products/A", "A")
	h.enqueue(t, models.OpUpdateProduct, http.MethodPut, "/products/B", "B")
	h.enqueue(t, models.OpUpdateProduct, http.MethodPut, "/products/C", "C")

	res := h.engine.Sync(context.Background())
	assert.Equal(t, 3, res.Pushed)
	assert.Equal(t, []string{"PUT /products/A", "PUT /products/B", "PUT /products/C"}, h.api.mutationCalls())
	assert.Equal(t, `{"entity":"A"}`, h.api.bodies["PUT /products/A"])
}

func TestSync_failureDoesNotBlockLaterEntries(t *testing.T) {
	h := newHarness(t)
	h.api.mutations["PUT /products/A"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	a := h.enqueue(t, models.OpUpdateProduct, http.MethodPut, "/products/A", "A")
	h.enqueue(t, models.OpUpdateProduct, http.MethodPut, "/products/B", "B")

	res := h.engine.Sync(context.Background())
	assert.Equal(t, 1, res.Pushed)
	assert.Equal(t, 1, res.Failed)

	pending := h.store.GetPendingSyncOperations()
	require.Len(t, pending, 1)
	assert.Equal(t, a, pending[0].ID)
	assert.Equal(t, 1, pending[0].RetryCount)
}

func TestSync_retryCeiling(t *testing.T) {
	h := newHarness(t)
	h.api.mutations["PUT /products/A"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	h.enqueue(t, models.OpUpdateProduct, http.MethodPut, "/products/A", "A")

	var escalated int
	for i := 0; i < queue.MaxRetries; i++ {
		escalated += h.engine.Sync(context.Background()).Escalated
	}
	assert.Equal(t, 1, escalated)
	assert.Empty(t, h.store.GetPendingSyncOperations())

	all := h.store.ListSyncQueue()
	require.Len(t, all, 1)
	assert.Equal(t, models.QueueStatusFailed, all[0].Status)
	assert.Equal(t, queue.MaxRetries, all[0].RetryCount)

	// Frozen entries are not replayed again.
	before := len(h.api.mutationCalls())
	h.engine.Sync(context.Background())
	assert.Len(t, h.api.mutationCalls(), before)
}

func TestSync_successOnFifthAttempt(t *testing.T) {
	h := newHarness(t)
	var attempts atomic.Int32
	h.api.mutations["PUT /products/A"] = func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 5 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		io.WriteString(w, `{}`)
	}
	h.enqueue(t, models.OpUpdateProduct, http.MethodPut, "/products/A", "A")

	for i := 0; i < 5; i++ {
		h.engine.Sync(context.Background())
	}
	assert.Equal(t, int32(5), attempts.Load())
	assert.Empty(t, h.store.ListSyncQueue())
}

func TestSync_createOrderReconciles(t *testing.T) {
	h := newHarness(t)
	local := &models.CachedOrder{
		ID: "local_1_aaaaaaaaaaaa", OrderID: "local_1_aaaaaaaaaaaa", StoreID: "store-1", Status: models.OrderStatusPending,
		Items: []models.CachedOrderItem{{ID: "li1", ProductID: "SKU-1", Quantity: 1, Status: "pending"}},
	}
	require.NoError(t, h.store.SaveOrder(local))
	h.api.mutations["POST /inventory-orders/store/store-1"] = func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"order":{"id":"srv-order-1","order_id":"ORD-0001"}}`)
	}
	h.enqueue(t, models.OpCreateOrder, http.MethodPost, "/inventory-orders/store/store-1", local.ID)

	res := h.engine.Sync(context.Background())
	assert.Equal(t, 1, res.Pushed)

	orders := h.store.GetOrders("store-1")
	require.Len(t, orders, 1)
	assert.Equal(t, "srv-order-1", orders[0].ID)
	assert.Equal(t, "ORD-0001", orders[0].OrderID)
	assert.True(t, orders[0].Synced)
	require.Len(t, orders[0].Items, 1)
	assert.Equal(t, "srv-order-1", orders[0].Items[0].OrderID)
}

func TestSync_createProductReconciles(t *testing.T) {
	h := newHarness(t)
	red := "Red"
	localID := "local_1_bbbbbbbbbbbb"
	require.NoError(t, h.store.SaveProducts([]*models.CachedProduct{
		{ID: localID, StoreID: "store-1", IsActive: true},
		{ID: localID, StoreID: "store-1", IsActive: true, Variant: &red},
	}))
	h.api.mutations["POST /products/store/store-1"] = func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"product":{"id":"srv-prod-1"}}`)
	}
	h.enqueue(t, models.OpCreateProduct, http.MethodPost, "/products/store/store-1", localID)

	h.engine.Sync(context.Background())

	products := h.store.GetProducts("store-1")
	require.Len(t, products, 2)
	for _, p := range products {
		assert.Equal(t, "srv-prod-1", p.ID)
		assert.NotNil(t, p.SyncedAt)
	}
}

func TestSync_updateAfterCreateFollowsServerID(t *testing.T) {
	h := newHarness(t)
	localID := "local_1_cccccccccccc"
	require.NoError(t, h.store.SaveProduct(&models.CachedProduct{ID: localID, StoreID: "store-1", Name: "New", IsActive: true}))
	h.api.mutations["POST /products/store/store-1"] = func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"product":{"id":"srv-prod-2","name":"Old"}}`)
	}
	h.api.mutations["PUT /products/srv-prod-2"] = func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"product":{"id":"srv-prod-2","name":"New"}}`)
	}
	h.enqueue(t, models.OpCreateProduct, http.MethodPost, "/products/store/store-1", localID)
	h.enqueue(t, models.OpUpdateProduct, http.MethodPut, models.ProductEndpoint(localID), localID)

	res := h.engine.Sync(context.Background())
	assert.Equal(t, 2, res.Pushed)
	assert.Equal(t, 0, res.Failed)
	assert.Equal(t, []string{"POST /products/store/store-1", "PUT /products/srv-prod-2"}, h.api.mutationCalls())
	assert.Empty(t, h.store.ListSyncQueue())

	products := h.store.GetProducts("store-1")
	require.Len(t, products, 1)
	assert.Equal(t, "srv-prod-2", products[0].ID)
	assert.Equal(t, "New", products[0].Name)
	assert.NotNil(t, products[0].SyncedAt)
}

func TestSync_updateRetriedAfterCreateUsesServerID(t *testing.T) {
	h := newHarness(t)
	localID := "local_1_dddddddddddd"
	require.NoError(t, h.store.SaveProduct(&models.CachedProduct{ID: localID, StoreID: "store-1", IsActive: true}))
	h.api.mutations["POST /products/store/store-1"] = func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"product":{"id":"srv-prod-3"}}`)
	}
	var puts int32
	h.api.mutations["PUT /products/srv-prod-3"] = func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&puts, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, `{"product":{"id":"srv-prod-3"}}`)
	}
	h.enqueue(t, models.OpCreateProduct, http.MethodPost, "/products/store/store-1", localID)
	updateID := h.enqueue(t, models.OpUpdateProduct, http.MethodPut, models.ProductEndpoint(localID), localID)

	res := h.engine.Sync(context.Background())
	assert.Equal(t, 1, res.Pushed)
	assert.Equal(t, 1, res.Failed)

	pending := h.store.GetPendingSyncOperations()
	require.Len(t, pending, 1)
	assert.Equal(t, updateID, pending[0].ID)
	assert.Equal(t, "srv-prod-3", pending[0].EntityID)
	assert.Equal(t, "/products/srv-prod-3", pending[0].Endpoint)

	res = h.engine.Sync(context.Background())
	assert.Equal(t, 1, res.Pushed)
	assert.Empty(t, h.store.ListSyncQueue())
	assert.Equal(t, int32(2), atomic.LoadInt32(&puts))
}

func TestSync_cancelledContextLeavesEntriesPending(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, models.OpUpdateProduct, http.MethodPut, "/products/A", "A")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := h.engine.Sync(ctx)

	assert.Equal(t, 0, res.Pushed)
	pending := h.store.GetPendingSyncOperations()
	require.Len(t, pending, 1)
	assert.Equal(t, 0, pending[0].RetryCount)
}

// =====================================================
// Status
// =====================================================

func TestStatus(t *testing.T) {
	h := newHarness(t)
	h.enqueue(t, models.OpUpdateProduct, http.MethodPut, "/products/A", "A")
	h.engine.Connectivity().Set(false)

	s := h.engine.Status()
	assert.False(t, s.IsOnline)
	assert.False(t, s.IsSyncing)
	assert.Nil(t, s.LastSyncTime)
	assert.Equal(t, 1, s.PendingOperations)
}

func TestSync_broadcastsStartAndFinish(t *testing.T) {
	h := newHarness(t)

	var got []SyncStatus
	unsubscribe := h.engine.Subscribe(func(s SyncStatus) { got = append(got, s) })

	h.engine.Sync(context.Background())
	require.Len(t, got, 2)
	assert.True(t, got[0].IsSyncing)
	assert.False(t, got[1].IsSyncing)
	assert.NotNil(t, got[1].LastSyncTime)

	unsubscribe()
	h.engine.Sync(context.Background())
	assert.Len(t, got, 2)
}
