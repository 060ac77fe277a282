// Package integration drives the client context end to end against an
// in-process central API: device login, offline writes, and replay on
// reconnect.
package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/kimhsiao/storesync/backend/internal/api"
	"github.com/kimhsiao/storesync/backend/internal/app"
	"github.com/kimhsiao/storesync/backend/internal/config"
	"github.com/kimhsiao/storesync/backend/internal/deviceauth"
	"github.com/kimhsiao/storesync/backend/internal/models"
)

const (
	storeID  = "S1"
	deviceID = "D1"
	pin      = "2468"
)

// =====================================================
// Central API fake
// =====================================================

type authRepo struct {
	device *deviceauth.Device
	user   *deviceauth.User
}

func (r *authRepo) GetDevice(_ context.Context, id string) (*deviceauth.Device, error) {
	if id != r.device.ID {
		return nil, nil
	}
	d := *r.device
	return &d, nil
}

func (r *authRepo) GetUser(_ context.Context, id string) (*deviceauth.User, error) {
	if id != r.user.ID {
		return nil, nil
	}
	u := *r.user
	return &u, nil
}

func (r *authRepo) ListDeviceCandidates(context.Context, string) ([]deviceauth.Candidate, error) {
	return []deviceauth.Candidate{{User: *r.user}}, nil
}

func (r *authRepo) ListStoreAdmins(context.Context, string) ([]*deviceauth.User, error) {
	return nil, nil
}

func (r *authRepo) ListSuperAdmins(context.Context) ([]*deviceauth.User, error) {
	return nil, nil
}

func (r *authRepo) TouchDevice(context.Context, string, time.Time) error { return nil }

// centralAPI is an in-memory catalog and order book behind the device-auth
// endpoints. Mutations are recorded in arrival order.
type centralAPI struct {
	mu        sync.Mutex
	products  map[string]*models.CachedProduct
	orders    []*models.CachedOrder
	mutations []string
	nextID    int
}

func newCentralAPI(t *testing.T) (*centralAPI, *httptest.Server) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.MinCost)
	require.NoError(t, err)
	h, sid, uid := string(hash), storeID, "U1"
	repo := &authRepo{
		device: &deviceauth.Device{ID: deviceID, Name: "Front counter", StoreID: storeID, AssignedUserID: &uid, IsActive: true},
		user:   &deviceauth.User{ID: uid, Email: "e1@example.com", Role: deviceauth.RoleEmployee, StoreID: &sid, IsActive: true, PINHash: &h},
	}
	tokens := deviceauth.NewTokenIssuer("integration-secret-0123", time.Hour)

	c := &centralAPI{products: map[string]*models.CachedProduct{
		"p1": {ID: "p1", StoreID: storeID, ProductID: "TEA", Name: "Tea", Price: 2, Quantity: 10, IsActive: true},
		"p2": {ID: "p2", StoreID: storeID, ProductID: "COF", Name: "Coffee", Price: 3, Quantity: 4, IsActive: true},
	}}

	r := chi.NewRouter()
	deviceauth.NewHandler(deviceauth.NewService(repo, tokens), tokens).RegisterRoutes(r)
	r.Group(func(r chi.Router) {
		r.Use(deviceauth.RequireDeviceToken(tokens))
		r.Get("/products/store/{storeId}", c.listProducts)
		r.Post("/products/store/{storeId}", c.createProduct)
		r.Put("/products/{id}", c.updateProduct)
		r.Get("/inventory-orders/store/{storeId}", c.listOrders)
		r.Post("/inventory-orders/store/{storeId}", c.createOrder)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return c, srv
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (c *centralAPI) record(r *http.Request) {
	c.mutations = append(c.mutations, r.Method+" "+r.URL.Path)
}

func (c *centralAPI) listProducts(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.CachedProduct, 0, len(c.products))
	for _, p := range c.products {
		out = append(out, p)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"products": out})
}

func (c *centralAPI) createProduct(w http.ResponseWriter, r *http.Request) {
	var in api.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(r)
	c.nextID++
	p := &models.CachedProduct{
		ID:        fmt.Sprintf("srv-p-%d", c.nextID),
		StoreID:   chi.URLParam(r, "storeId"),
		ProductID: in.ProductID,
		Name:      in.Name,
		Price:     in.Price,
		Quantity:  in.Quantity,
		IsActive:  true,
	}
	c.products[p.ID] = p
	writeJSON(w, http.StatusCreated, map[string]interface{}{"product": p})
}

func (c *centralAPI) updateProduct(w http.ResponseWriter, r *http.Request) {
	var u api.ProductUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[chi.URLParam(r, "id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Product not found"})
		return
	}
	c.record(r)
	u.Apply(p)
	writeJSON(w, http.StatusOK, map[string]interface{}{"product": p})
}

func (c *centralAPI) listOrders(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	defer c.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]interface{}{"orders": c.orders})
}

func (c *centralAPI) createOrder(w http.ResponseWriter, r *http.Request) {
	var in api.OrderInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.record(r)
	c.nextID++
	o := &models.CachedOrder{
		ID:          fmt.Sprintf("srv-o-%d", c.nextID),
		OrderID:     fmt.Sprintf("ORD-%04d", c.nextID),
		StoreID:     chi.URLParam(r, "storeId"),
		SubmittedBy: deviceID,
		Status:      models.OrderStatusPending,
		Notes:       in.Notes,
	}
	for i, item := range in.Items {
		o.Items = append(o.Items, models.CachedOrderItem{
			ID:        fmt.Sprintf("%s-%d", o.ID, i),
			OrderID:   o.ID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Status:    models.OrderStatusPending,
		})
	}
	c.orders = append(c.orders, o)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"order": o})
}

func (c *centralAPI) mutationLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.mutations...)
}

// =====================================================
// Client context
// =====================================================

func newClient(t *testing.T, apiURL string) *app.App {
	t.Helper()
	a, err := app.New(&config.ClientConfig{
		APIURL:          apiURL,
		DataDir:         t.TempDir(),
		SyncInterval:    time.Hour,
		VerifyTimeout:   2 * time.Second,
		MutationTimeout: 2 * time.Second,
		ProbeInterval:   time.Hour,
		MachineID:       "integration-machine",
	}, app.Options{ExternalReachability: true, InitiallyOnline: true})
	require.NoError(t, err)
	a.Start(context.Background())
	t.Cleanup(func() { a.Close() })
	return a
}

func productByID(products []*models.CachedProduct, id string) *models.CachedProduct {
	for _, p := range products {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// =====================================================
// Tests
// =====================================================

func TestOfflineWritesReplayInOrderOnReconnect(t *testing.T) {
	central, srv := newCentralAPI(t)
	a := newClient(t, srv.URL)
	ctx := context.Background()

	verify, err := a.API.VerifyDevice(ctx, deviceID)
	require.NoError(t, err)
	assert.True(t, verify.Registered)

	_, err = a.API.Login(ctx, api.LoginRequest{DeviceID: deviceID, PIN: pin})
	require.NoError(t, err)
	assert.Equal(t, storeID, a.Session.StoreID())

	result := a.ForceSync(ctx)
	require.True(t, result.Ran())
	assert.Equal(t, 2, result.PulledProducts)
	assert.Len(t, a.Store.GetProducts(storeID), 2)

	// Offline: every write lands in the cache and the queue.
	a.SetOnline(false)

	qty := 9
	updated, err := a.API.UpdateProduct(ctx, "p1", api.ProductUpdate{Quantity: &qty})
	require.NoError(t, err)
	assert.Equal(t, 9, updated.Quantity)
	assert.Nil(t, updated.SyncedAt)

	created, err := a.API.CreateProduct(ctx, api.ProductInput{ProductID: "JUI", Name: "Juice", Price: 4, Quantity: 6})
	require.NoError(t, err)
	assert.False(t, created.IsSynced())

	order, err := a.API.SubmitOrder(ctx, api.OrderInput{Items: []api.OrderItemInput{{ProductID: "p2", Quantity: 12}}})
	require.NoError(t, err)
	assert.False(t, order.Synced)

	assert.Equal(t, 3, a.Engine.Status().PendingOperations)
	assert.Empty(t, central.mutationLog())

	cached, err := a.API.GetProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, cached, 3)

	// Back online: the monitor replays the queue before SetOnline returns.
	a.SetOnline(true)

	assert.Equal(t, []string{
		"PUT /products/p1",
		"POST /products/store/" + storeID,
		"POST /inventory-orders/store/" + storeID,
	}, central.mutationLog())
	assert.Zero(t, a.Engine.Status().PendingOperations)

	// Local placeholders were replaced with server ids.
	products := a.Store.GetProducts(storeID)
	require.Len(t, products, 3)
	assert.Nil(t, productByID(products, created.ID))
	p1 := productByID(products, "p1")
	require.NotNil(t, p1)
	assert.Equal(t, 9, p1.Quantity)
	assert.True(t, p1.IsSynced())

	orders := a.Store.GetOrders(storeID)
	require.Len(t, orders, 1)
	assert.Equal(t, "srv-o-2", orders[0].ID)
	assert.True(t, orders[0].Synced)

	// A second run pulls the server's view without replaying anything.
	result = a.ForceSync(ctx)
	require.True(t, result.Ran())
	assert.Zero(t, result.Pushed)
	assert.Len(t, central.mutationLog(), 3)
	assert.Len(t, a.Store.GetProducts(storeID), 3)
	assert.Len(t, a.Store.GetOrders(storeID), 1)
}

func TestRejectedPINLeavesNoSession(t *testing.T) {
	_, srv := newCentralAPI(t)
	a := newClient(t, srv.URL)

	_, err := a.API.Login(context.Background(), api.LoginRequest{DeviceID: deviceID, PIN: "1111"})
	require.Error(t, err)
	assert.False(t, a.Session.HasToken())

	result := a.ForceSync(context.Background())
	assert.False(t, result.Ran())
}

func TestLogoutStopsSync(t *testing.T) {
	_, srv := newCentralAPI(t)
	a := newClient(t, srv.URL)
	ctx := context.Background()

	_, err := a.API.Login(ctx, api.LoginRequest{DeviceID: deviceID, PIN: pin})
	require.NoError(t, err)
	require.NoError(t, a.API.Logout())

	assert.False(t, a.ForceSync(ctx).Ran())
	assert.Equal(t, deviceID, a.Session.DeviceID())
}
