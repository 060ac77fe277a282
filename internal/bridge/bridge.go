// Package bridge exposes the client context to a foreign host (the mobile
// shell) through string-in, string-out calls. Requests and responses are
// JSON; the host owns connectivity and reports it with SetOnline.
package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kimhsiao/storesync/backend/internal/api"
	"github.com/kimhsiao/storesync/backend/internal/app"
	"github.com/kimhsiao/storesync/backend/internal/config"
	apperrors "github.com/kimhsiao/storesync/backend/internal/errors"
	"github.com/kimhsiao/storesync/backend/internal/logging"
	"github.com/kimhsiao/storesync/backend/internal/models"
)

var (
	mu      sync.Mutex
	current *app.App
)

var errNotInitialized = apperrors.New(apperrors.ErrInternal, "core not initialized; call Init first")

// Init creates and starts the client context from JSON-encoded
// config.HostOptions. Calling Init again while initialized is a no-op.
func Init(optionsJSON string, online bool) error {
	mu.Lock()
	defer mu.Unlock()
	if current != nil {
		return nil
	}

	cfg, err := config.ClientFromHost([]byte(optionsJSON))
	if err != nil {
		return err
	}
	logging.InitFile(cfg.LogFile, logging.ParseLevel(cfg.LogLevel))

	a, err := app.New(cfg, app.Options{ExternalReachability: true, InitiallyOnline: online})
	if err != nil {
		return err
	}
	a.Start(context.Background())
	current = a
	return nil
}

// Cleanup stops background work and closes the local store. Init may be
// called again afterwards.
func Cleanup() error {
	mu.Lock()
	a := current
	current = nil
	mu.Unlock()
	if a == nil {
		return nil
	}
	return a.Close()
}

func get() (*app.App, error) {
	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		return nil, errNotInitialized
	}
	return current, nil
}

func encode(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternal, "failed to encode response", err)
	}
	return string(b), nil
}

func decode(s string, v interface{}) error {
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return apperrors.Wrap(apperrors.ErrValidation, "malformed request", err)
	}
	return nil
}

// SetOnline reports a connectivity change from the host. Coming back online
// with a session starts a sync before SetOnline returns.
func SetOnline(online bool) error {
	a, err := get()
	if err != nil {
		return err
	}
	a.SetOnline(online)
	return nil
}

// ForceSync runs a sync and returns the SyncResult.
func ForceSync() (string, error) {
	a, err := get()
	if err != nil {
		return "", err
	}
	return encode(a.ForceSync(context.Background()))
}

// GetSyncStatus returns the current status and queue counts.
func GetSyncStatus() (string, error) {
	a, err := get()
	if err != nil {
		return "", err
	}
	return encode(map[string]interface{}{
		"status":      a.Engine.Status(),
		"queue_stats": a.Engine.Queue().Stats(),
	})
}

// QueueOperation records a JSON-encoded models.SyncOperation for replay.
func QueueOperation(opJSON string) (string, error) {
	a, err := get()
	if err != nil {
		return "", err
	}
	var op models.SyncOperation
	if err := decode(opJSON, &op); err != nil {
		return "", err
	}
	id, err := a.Engine.QueueOperation(op)
	if err != nil {
		return "", err
	}
	return encode(map[string]string{"id": id})
}

// VerifyDevice reports whether deviceID is registered.
func VerifyDevice(deviceID string) (string, error) {
	a, err := get()
	if err != nil {
		return "", err
	}
	resp, err := a.API.VerifyDevice(context.Background(), deviceID)
	if err != nil {
		return "", err
	}
	return encode(resp)
}

// Login signs in with a PIN and starts a sync in the background. The token
// stays inside the core.
func Login(deviceID, pin string) (string, error) {
	a, err := get()
	if err != nil {
		return "", err
	}
	resp, err := a.API.Login(context.Background(), api.LoginRequest{DeviceID: deviceID, PIN: pin})
	if err != nil {
		return "", err
	}
	go a.ForceSync(context.Background())
	return encode(map[string]interface{}{"success": true, "user": resp.User, "device": resp.Device})
}

// Logout clears the session.
func Logout() error {
	a, err := get()
	if err != nil {
		return err
	}
	return a.API.Logout()
}

// GetProducts returns the session store's products.
func GetProducts() (string, error) {
	a, err := get()
	if err != nil {
		return "", err
	}
	products, err := a.API.GetProducts(context.Background())
	if err != nil {
		return "", err
	}
	return encode(products)
}

// CreateProduct creates a product from a JSON-encoded api.ProductInput.
func CreateProduct(inputJSON string) (string, error) {
	a, err := get()
	if err != nil {
		return "", err
	}
	var in api.ProductInput
	if err := decode(inputJSON, &in); err != nil {
		return "", err
	}
	p, err := a.API.CreateProduct(context.Background(), in)
	if err != nil {
		return "", err
	}
	return encode(p)
}

// UpdateProduct applies a JSON-encoded api.ProductUpdate to product id.
func UpdateProduct(id, updateJSON string) (string, error) {
	a, err := get()
	if err != nil {
		return "", err
	}
	var u api.ProductUpdate
	if err := decode(updateJSON, &u); err != nil {
		return "", err
	}
	p, err := a.API.UpdateProduct(context.Background(), id, u)
	if err != nil {
		return "", err
	}
	return encode(p)
}

// GetOrders returns the session store's inventory orders.
func GetOrders() (string, error) {
	a, err := get()
	if err != nil {
		return "", err
	}
	orders, err := a.API.GetOrders(context.Background())
	if err != nil {
		return "", err
	}
	return encode(orders)
}

// SubmitOrder submits a JSON-encoded api.OrderInput.
func SubmitOrder(inputJSON string) (string, error) {
	a, err := get()
	if err != nil {
		return "", err
	}
	var in api.OrderInput
	if err := decode(inputJSON, &in); err != nil {
		return "", err
	}
	o, err := a.API.SubmitOrder(context.Background(), in)
	if err != nil {
		return "", err
	}
	return encode(o)
}
