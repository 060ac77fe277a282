// Package main runs the desktop agent: the client context plus a localhost
// REST/WebSocket surface for the desktop UI.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kimhsiao/storesync/backend/cmd/desktop/handlers"
	"github.com/kimhsiao/storesync/backend/internal/app"
	"github.com/kimhsiao/storesync/backend/internal/config"
	"github.com/kimhsiao/storesync/backend/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		logging.Init(os.Stderr, logging.LevelInfo)
		logging.Error("Invalid configuration", err, nil)
		os.Exit(1)
	}
	logging.InitFile(cfg.LogFile, logging.ParseLevel(cfg.LogLevel))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logging.Error("Failed to create data directory", err, map[string]interface{}{"data_dir": cfg.DataDir})
		os.Exit(1)
	}

	a, err := app.New(cfg, app.Options{})
	if err != nil {
		logging.Error("Failed to create client context", err, nil)
		os.Exit(1)
	}

	hub := NewWSHub()
	unsubscribe := a.Engine.Subscribe(hub.BroadcastSyncStatus)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           newRouter(a, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logging.Info("Desktop agent listening", map[string]interface{}{"addr": cfg.ListenAddr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logging.Error("HTTP server failed", err, nil)
			exitCode = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("HTTP server shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
	unsubscribe()
	hub.Stop()
	if err := a.Close(); err != nil {
		logging.Error("Failed to close client context", err, nil)
		exitCode = 1
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// newRouter builds the localhost API over the client context.
func newRouter(a *app.App, hub *WSHub) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	products := handlers.NewProductHandler(a.API)
	orders := handlers.NewOrderHandler(a.API)
	auth := handlers.NewAuthHandler(a.API, func() {
		go a.ForceSync(context.Background())
	})
	syncH := handlers.NewSyncHandler(a.Engine, a.Engine.Queue())

	r.Get("/api/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "ok",
			"service": "storesync-desktop",
			"store":   a.Store.IsInitialized(),
			"online":  a.Connectivity.IsOnline(),
		})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/auth/verify/{deviceId}", auth.VerifyDevice)
		r.Post("/auth/login", auth.Login)
		r.Post("/auth/logout", auth.Logout)

		r.Get("/products", products.ListProducts)
		r.Post("/products", products.CreateProduct)
		r.Put("/products/{id}", products.UpdateProduct)

		r.Get("/orders", orders.ListOrders)
		r.Post("/orders", orders.SubmitOrder)

		r.Get("/sync/status", syncH.GetStatus)
		r.Post("/sync/now", syncH.TriggerSync)
		r.Get("/sync/queue", syncH.ListQueue)
		r.Post("/sync/queue/retry", syncH.RetryFailed)
		r.Delete("/sync/queue/failed", syncH.ClearFailed)
	})

	r.Get("/ws", HandleWebSocket(hub))
	return r
}
