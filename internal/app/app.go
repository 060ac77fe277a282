// Package app holds the long-lived client context: one Local Store, session,
// HTTP client, sync engine, connectivity monitor and API facade, constructed
// once at start-up and torn down once with Close.
package app

import (
	"context"
	"sync"

	"github.com/kimhsiao/storesync/backend/internal/api"
	"github.com/kimhsiao/storesync/backend/internal/client"
	"github.com/kimhsiao/storesync/backend/internal/config"
	"github.com/kimhsiao/storesync/backend/internal/logging"
	"github.com/kimhsiao/storesync/backend/internal/session"
	"github.com/kimhsiao/storesync/backend/internal/store"
	syncpkg "github.com/kimhsiao/storesync/backend/internal/sync"
	"github.com/kimhsiao/storesync/backend/internal/sync/scheduler"
	"github.com/kimhsiao/storesync/backend/internal/telemetry"
)

// Options adjusts how the context is wired.
type Options struct {
	// ExternalReachability disables the HTTP probe; the host reports
	// reachability through SetOnline instead.
	ExternalReachability bool
	// InitiallyOnline seeds the reachability flag.
	InitiallyOnline bool
	Reporter        telemetry.Reporter
}

// App is the client application context.
type App struct {
	Config       *config.ClientConfig
	Store        store.Store
	Session      *session.Session
	Client       *client.Client
	Connectivity *syncpkg.Connectivity
	Engine       *syncpkg.Engine
	Monitor      *scheduler.Monitor
	Probe        *scheduler.Probe
	API          *api.Facade

	mu        sync.Mutex
	cancel    context.CancelFunc
	probeDone chan struct{}
	started   bool
	closeOnce sync.Once
}

// New wires the context. A store that cannot be opened degrades to the no-op
// store; New itself fails only on invalid configuration.
func New(cfg *config.ClientConfig, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	st := store.New(cfg.DataDir)
	if !st.Initialize() {
		logging.Warn("Local store unavailable, running without offline cache", map[string]interface{}{
			"data_dir": cfg.DataDir,
		})
	}

	sess := session.New(st, cfg.MachineID)
	sess.Load()

	httpClient := client.New(cfg.APIURL, sess.Token, client.Options{
		VerifyTimeout:   cfg.VerifyTimeout,
		MutationTimeout: cfg.MutationTimeout,
	})
	conn := syncpkg.NewConnectivity(opts.InitiallyOnline)
	engine := syncpkg.NewEngine(syncpkg.Config{
		Store:        st,
		API:          httpClient,
		Session:      sess,
		Connectivity: conn,
		Reporter:     opts.Reporter,
	})

	a := &App{
		Config:       cfg,
		Store:        st,
		Session:      sess,
		Client:       httpClient,
		Connectivity: conn,
		Engine:       engine,
		API: api.New(api.Config{
			API:          httpClient,
			Store:        st,
			Session:      sess,
			Queue:        engine,
			Connectivity: conn,
		}),
	}

	monitorCfg := scheduler.Config{
		Engine:       engine,
		Connectivity: conn,
		HasSession:   sess.HasToken,
		SyncInterval: cfg.SyncInterval,
	}
	if !opts.ExternalReachability {
		a.Probe = scheduler.NewProbe(httpClient, cfg.ProbeInterval)
		monitorCfg.Reachability = a.Probe
	}
	a.Monitor = scheduler.NewMonitor(monitorCfg)
	return a, nil
}

// Start begins background work: the reachability probe (if any) and the
// connectivity monitor. It is a no-op after the first call.
func (a *App) Start(ctx context.Context) {
	a.mu.Lock()
	if a.started {
		a.mu.Unlock()
		return
	}
	a.started = true
	ctx, a.cancel = context.WithCancel(ctx)
	var probeDone chan struct{}
	if a.Probe != nil {
		probeDone = make(chan struct{})
		a.probeDone = probeDone
	}
	a.mu.Unlock()

	a.Monitor.Start(ctx)
	if probeDone != nil {
		go func() {
			defer close(probeDone)
			a.Probe.Run(ctx)
		}()
	}
	logging.Info("Client context started", map[string]interface{}{
		"api_url":  a.Config.APIURL,
		"store_ok": a.Store.IsInitialized(),
	})
}

// SetOnline reports a reachability change from the host platform.
func (a *App) SetOnline(online bool) {
	a.Monitor.SetOnline(online)
}

// RefreshConnectivity probes the API once and records the result.
func (a *App) RefreshConnectivity(ctx context.Context) bool {
	if a.Probe == nil {
		return a.Connectivity.IsOnline()
	}
	online := a.Probe.Check(ctx)
	a.Connectivity.Set(online)
	return online
}

// ForceSync runs a sync now and waits for it.
func (a *App) ForceSync(ctx context.Context) *syncpkg.SyncResult {
	return a.Monitor.SyncNow(ctx)
}

// Close stops background work and closes the store. It is safe to call more
// than once.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.mu.Lock()
		cancel, probeDone := a.cancel, a.probeDone
		a.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if probeDone != nil {
			<-probeDone
		}
		a.Monitor.Stop()
		err = a.Store.Close()
		logging.Info("Client context closed", nil)
	})
	return err
}
