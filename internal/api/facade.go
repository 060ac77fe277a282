// Package api provides the typed client-side API facade.
//
// Reads go to the network when online and fall back to the Local Store.
// Mutations go to the network when online; when offline, or when the call
// fails in a way a later retry could fix, the change is saved locally and
// queued for the sync engine. Authentication failures are returned to the
// caller and never queued.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/kimhsiao/storesync/backend/internal/client"
	apperrors "github.com/kimhsiao/storesync/backend/internal/errors"
	"github.com/kimhsiao/storesync/backend/internal/logging"
	"github.com/kimhsiao/storesync/backend/internal/models"
	"github.com/kimhsiao/storesync/backend/internal/store"
	syncpkg "github.com/kimhsiao/storesync/backend/internal/sync"
	"github.com/kimhsiao/storesync/backend/internal/uuid"
)

// Transport sends one request. *client.Client implements it.
type Transport interface {
	Do(ctx context.Context, req client.Request) ([]byte, error)
}

// Session is the part of the session the facade reads and writes.
type Session interface {
	Token() string
	StoreID() string
	DeviceID() string
	SetToken(token string) error
	SetStoreID(storeID string) error
	SetDeviceID(deviceID string) error
	Clear() error
}

// Queuer records deferred mutations. The sync engine implements it.
type Queuer interface {
	QueueOperation(op models.SyncOperation) (string, error)
}

// Facade is the client-side API facade.
type Facade struct {
	api      Transport
	store    store.Store
	session  Session
	queue    Queuer
	conn     *syncpkg.Connectivity
	validate *validator.Validate
	now      func() time.Time
}

// Config wires a Facade.
type Config struct {
	API          Transport
	Store        store.Store
	Session      Session
	Queue        Queuer
	Connectivity *syncpkg.Connectivity
}

// New creates a Facade.
func New(cfg Config) *Facade {
	conn := cfg.Connectivity
	if conn == nil {
		conn = syncpkg.NewConnectivity(true)
	}
	return &Facade{
		api:      cfg.API,
		store:    cfg.Store,
		session:  cfg.Session,
		queue:    cfg.Queue,
		conn:     conn,
		validate: validator.New(),
		now:      time.Now,
	}
}

// =====================================================
// Device auth
// =====================================================

// VerifyDevice asks the server whether deviceID is registered. An unknown
// device is reported as Registered=false, not as an error.
func (f *Facade) VerifyDevice(ctx context.Context, deviceID string) (*VerifyResponse, error) {
	if deviceID == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "device id is required")
	}

	var resp VerifyResponse
	err := f.call(ctx, http.MethodGet, "/api/device-auth/verify/"+url.PathEscape(deviceID), nil, &resp, true)
	if client.StatusCode(err) == http.StatusNotFound {
		return &VerifyResponse{Registered: false}, nil
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login resolves a PIN on the server and stores the issued session.
func (f *Facade) Login(ctx context.Context, req LoginRequest) (*LoginResponse, error) {
	if err := f.validate.Struct(req); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "invalid login request", err)
	}

	var resp LoginResponse
	if err := f.call(ctx, http.MethodPost, "/api/device-auth/login", req, &resp, true); err != nil {
		switch client.StatusCode(err) {
		case http.StatusUnauthorized:
			return nil, apperrors.Wrap(apperrors.ErrInvalidPIN, "Invalid PIN", err)
		case http.StatusNotFound:
			return nil, apperrors.Wrap(apperrors.ErrDeviceNotFound, "Device not registered", err)
		case http.StatusForbidden:
			return nil, apperrors.Wrap(apperrors.ErrForbidden, loginRejection(err), err)
		}
		return nil, err
	}
	if resp.Token == "" {
		return nil, apperrors.New(apperrors.ErrInternal, "login response carried no token")
	}

	storeID := resp.Device.StoreID
	if storeID == "" {
		storeID = resp.User.StoreID
	}
	if err := f.session.SetToken(resp.Token); err != nil {
		return nil, err
	}
	if err := f.session.SetDeviceID(req.DeviceID); err != nil {
		return nil, err
	}
	if err := f.session.SetStoreID(storeID); err != nil {
		return nil, err
	}

	logging.Info("Device login succeeded", map[string]interface{}{
		"device_id": req.DeviceID,
		"user_id":   resp.User.ID,
		"store_id":  storeID,
	})
	return &resp, nil
}

func loginRejection(err error) string {
	var httpErr *client.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Message()
	}
	return "Device unavailable"
}

// Logout forgets the session token and store. The device id is kept.
func (f *Facade) Logout() error {
	return f.session.Clear()
}

// =====================================================
// Products
// =====================================================

// GetProducts returns the active products of the session's store. Online, it
// reads the server and refreshes the cache; otherwise, or on any failure
// other than an auth rejection, it reads the cache.
func (f *Facade) GetProducts(ctx context.Context) ([]*models.CachedProduct, error) {
	storeID, err := f.storeID()
	if err != nil {
		return nil, err
	}
	if !f.canReachServer() {
		return f.store.GetProducts(storeID), nil
	}

	var resp productsEnvelope
	err = f.call(ctx, http.MethodGet, "/products/store/"+url.PathEscape(storeID), nil, &resp, false)
	if err != nil {
		if client.IsAuth(err) {
			return nil, err
		}
		logging.Warn("Product fetch failed, serving cache", map[string]interface{}{"error": err.Error()})
		return f.store.GetProducts(storeID), nil
	}
	if _, err := f.store.ReplaceStoreProducts(storeID, resp.Products, f.now().Unix()); err != nil {
		logging.Warn("Failed to refresh product cache", map[string]interface{}{"error": err.Error()})
	}
	return f.store.GetProducts(storeID), nil
}

// CreateProduct creates a product. Offline, the product is saved under a
// local placeholder id with synced_at unset and a create_product entry is
// queued.
func (f *Facade) CreateProduct(ctx context.Context, in ProductInput) (*models.CachedProduct, error) {
	if err := f.validate.Struct(in); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "invalid product", err)
	}
	storeID, err := f.storeID()
	if err != nil {
		return nil, err
	}
	endpoint := "/products/store/" + url.PathEscape(storeID)

	if f.canReachServer() {
		var resp productEnvelope
		err := f.call(ctx, http.MethodPost, endpoint, in, &resp, false)
		if err == nil {
			if resp.Product == nil {
				return nil, errNoEntity("product")
			}
			p := resp.Product
			if p.StoreID == "" {
				p.StoreID = storeID
			}
			ts := f.now().Unix()
			p.SyncedAt = &ts
			if err := f.store.SaveProduct(p); err != nil {
				logging.Warn("Failed to cache created product", map[string]interface{}{"error": err.Error()})
			}
			return p, nil
		}
		if routeErr := route(err); routeErr != nil {
			return nil, routeErr
		}
	}

	now := f.now().UTC().Format(time.RFC3339)
	p := &models.CachedProduct{
		ID:              uuid.NewLocalID(),
		StoreID:         storeID,
		ProductID:       in.ProductID,
		Name:            in.Name,
		Variant:         in.Variant,
		UPC:             in.UPC,
		Category:        in.Category,
		Price:           in.Price,
		Cost:            in.Cost,
		Quantity:        in.Quantity,
		ReorderLevel:    in.ReorderLevel,
		VariantsEnabled: in.VariantsEnabled,
		Variants:        in.Variants,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := f.store.SaveProduct(p); err != nil {
		return nil, err
	}
	if err := f.enqueue(models.OpCreateProduct, http.MethodPost, endpoint, in, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateProduct applies a partial update. Offline, the cached rows for id are
// updated immediately with synced_at unset and an update_product entry is
// queued; no network call is attempted.
func (f *Facade) UpdateProduct(ctx context.Context, id string, u ProductUpdate) (*models.CachedProduct, error) {
	if id == "" {
		return nil, apperrors.New(apperrors.ErrValidation, "product id is required")
	}
	if err := f.validate.Struct(u); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "invalid product update", err)
	}
	storeID, err := f.storeID()
	if err != nil {
		return nil, err
	}
	endpoint := models.ProductEndpoint(id)

	if f.canReachServer() {
		var resp productEnvelope
		err := f.call(ctx, http.MethodPut, endpoint, u, &resp, false)
		if err == nil {
			local := f.updateLocal(storeID, id, u, true)
			if resp.Product != nil {
				return resp.Product, nil
			}
			return local, nil
		}
		if routeErr := route(err); routeErr != nil {
			return nil, routeErr
		}
	}

	local := f.updateLocal(storeID, id, u, false)
	if err := f.enqueue(models.OpUpdateProduct, http.MethodPut, endpoint, u, id); err != nil {
		return nil, err
	}
	return local, nil
}

// updateLocal applies u to every cached row of product id and returns the
// base row (or the first variant row).
func (f *Facade) updateLocal(storeID, id string, u ProductUpdate, confirmed bool) *models.CachedProduct {
	var first *models.CachedProduct
	stamp := f.now()
	for _, p := range f.store.GetProductRows(id) {
		if p.StoreID != storeID {
			continue
		}
		u.Apply(p)
		p.UpdatedAt = stamp.UTC().Format(time.RFC3339)
		if confirmed {
			ts := stamp.Unix()
			p.SyncedAt = &ts
		} else {
			p.SyncedAt = nil
		}
		if err := f.store.SaveProduct(p); err != nil {
			logging.Warn("Failed to update cached product", map[string]interface{}{"id": id, "error": err.Error()})
		}
		if first == nil || p.Variant == nil {
			first = p
		}
	}
	return first
}

// =====================================================
// Orders
// =====================================================

// SubmitOrder submits an inventory order. Offline, the order is saved with a
// local id and order code, synced=false, and a create_order entry is queued.
func (f *Facade) SubmitOrder(ctx context.Context, in OrderInput) (*models.CachedOrder, error) {
	if err := f.validate.Struct(in); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrValidation, "invalid order", err)
	}
	storeID, err := f.storeID()
	if err != nil {
		return nil, err
	}
	endpoint := "/inventory-orders/store/" + url.PathEscape(storeID)

	if f.canReachServer() {
		var resp orderEnvelope
		err := f.call(ctx, http.MethodPost, endpoint, in, &resp, false)
		if err == nil {
			if resp.Order == nil {
				return nil, errNoEntity("order")
			}
			o := resp.Order
			if o.StoreID == "" {
				o.StoreID = storeID
			}
			o.Synced = true
			for i := range o.Items {
				if o.Items[i].ID == "" {
					o.Items[i].ID = fmt.Sprintf("%s-%d", o.ID, i)
				}
				o.Items[i].Synced = true
			}
			if err := f.store.SaveOrder(o); err != nil {
				logging.Warn("Failed to cache submitted order", map[string]interface{}{"error": err.Error()})
			}
			return o, nil
		}
		if routeErr := route(err); routeErr != nil {
			return nil, routeErr
		}
	}

	now := f.now().UTC().Format(time.RFC3339)
	localID := uuid.NewLocalID()
	o := &models.CachedOrder{
		ID:          localID,
		OrderID:     localID,
		StoreID:     storeID,
		SubmittedBy: f.session.DeviceID(),
		Status:      models.OrderStatusPending,
		Notes:       in.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, item := range in.Items {
		o.Items = append(o.Items, models.CachedOrderItem{
			ID:        uuid.NewLocalID(),
			OrderID:   localID,
			ProductID: item.ProductID,
			Variant:   item.Variant,
			Quantity:  item.Quantity,
			Status:    models.OrderStatusPending,
		})
	}
	if err := f.store.SaveOrder(o); err != nil {
		return nil, err
	}
	if err := f.enqueue(models.OpCreateOrder, http.MethodPost, endpoint, in, localID); err != nil {
		return nil, err
	}
	return o, nil
}

// GetOrders returns the orders of the session's store, preferring the server
// and falling back to the cache.
func (f *Facade) GetOrders(ctx context.Context) ([]*models.CachedOrder, error) {
	storeID, err := f.storeID()
	if err != nil {
		return nil, err
	}
	if !f.canReachServer() {
		return f.store.GetOrders(storeID), nil
	}

	var resp ordersEnvelope
	err = f.call(ctx, http.MethodGet, "/inventory-orders/store/"+url.PathEscape(storeID), nil, &resp, false)
	if err != nil {
		if client.IsAuth(err) {
			return nil, err
		}
		logging.Warn("Order fetch failed, serving cache", map[string]interface{}{"error": err.Error()})
		return f.store.GetOrders(storeID), nil
	}
	for _, o := range resp.Orders {
		if o.StoreID == "" {
			o.StoreID = storeID
		}
		for i := range o.Items {
			if o.Items[i].ID == "" {
				o.Items[i].ID = fmt.Sprintf("%s-%d", o.ID, i)
			}
		}
	}
	if _, err := f.store.UpsertPulledOrders(resp.Orders); err != nil {
		logging.Warn("Failed to refresh order cache", map[string]interface{}{"error": err.Error()})
	}
	return f.store.GetOrders(storeID), nil
}

// =====================================================
// Helpers
// =====================================================

func (f *Facade) canReachServer() bool {
	return f.conn.IsOnline()
}

func (f *Facade) storeID() (string, error) {
	id := f.session.StoreID()
	if id == "" {
		return "", apperrors.New(apperrors.ErrUnauthorized, "no store selected; log in first")
	}
	return id, nil
}

func (f *Facade) call(ctx context.Context, method, path string, in, out interface{}, short bool) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode request", err)
		}
		body = b
	}
	data, err := f.api.Do(ctx, client.Request{Method: method, Path: path, Body: body, Short: short})
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, fmt.Sprintf("failed to decode %s %s response", method, path), err)
	}
	return nil
}

func (f *Facade) enqueue(opType, method, endpoint string, payload interface{}, entityID string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalid, "failed to encode queued payload", err)
	}
	_, err = f.queue.QueueOperation(models.SyncOperation{
		OperationType: opType,
		Endpoint:      endpoint,
		Method:        method,
		Payload:       raw,
		EntityID:      entityID,
	})
	if err != nil {
		return err
	}
	logging.Info("Mutation queued for sync", map[string]interface{}{
		"operation_type": opType,
		"entity_id":      entityID,
	})
	return nil
}

// errNoEntity reports a 2xx response without the created entity. The server
// applied the mutation, so nothing is queued; the next pull picks it up.
func errNoEntity(what string) error {
	return apperrors.New(apperrors.ErrInternal, "server response carried no "+what)
}

// route decides what a failed mutation means for the caller. A nil result
// means the mutation should be saved locally and queued.
func route(err error) error {
	switch {
	case client.IsRetryable(err):
		return nil
	case client.IsAuth(err):
		return err
	}
	if code := client.StatusCode(err); code >= 400 && code < 500 {
		msg := http.StatusText(code)
		var httpErr *client.HTTPError
		if errors.As(err, &httpErr) {
			msg = httpErr.Message()
		}
		return apperrors.Wrap(apperrors.ErrValidation, msg, err)
	}
	return err
}
