// Package main runs the device-auth API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/kimhsiao/storesync/backend/internal/config"
	"github.com/kimhsiao/storesync/backend/internal/deviceauth"
	"github.com/kimhsiao/storesync/backend/internal/logging"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.LoadServer()
	if err != nil {
		logging.Init(os.Stderr, logging.LevelInfo)
		logging.Error("Invalid configuration", err, nil)
		os.Exit(1)
	}
	logging.InitFile(cfg.LogFile, logging.ParseLevel(cfg.LogLevel))

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		logging.Error("Failed to connect to database", err, nil)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	tokens := deviceauth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(deviceauth.NewPostgresRepository(db), tokens),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logging.Info("Device-auth server listening", map[string]interface{}{"port": cfg.Port})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("HTTP server failed", err, nil)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("HTTP server shutdown incomplete", map[string]interface{}{"error": err.Error()})
	}
	logging.Info("Device-auth server stopped", nil)
}

func newRouter(repo deviceauth.Repository, tokens *deviceauth.TokenIssuer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	deviceauth.NewHandler(deviceauth.NewService(repo, tokens), tokens).RegisterRoutes(r)
	return r
}
