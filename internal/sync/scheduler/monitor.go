// Package scheduler decides when the sync engine runs.
//
// The Monitor follows network reachability and session presence. It triggers
// a run when the device comes back online with a session, on a fixed interval
// while online, and once at start-up when already online and authenticated.
// Every trigger goes through the engine's single-flight Sync.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/kimhsiao/storesync/backend/internal/logging"
	syncpkg "github.com/kimhsiao/storesync/backend/internal/sync"
)

// DefaultSyncInterval is the fixed cadence of periodic runs.
const DefaultSyncInterval = 30 * time.Second

// Reachability is a source of network reachability change events.
type Reachability interface {
	Subscribe(fn func(online bool)) (unsubscribe func())
}

// Config wires a Monitor.
type Config struct {
	Engine       syncpkg.SyncEngineInterface
	Connectivity *syncpkg.Connectivity
	// HasSession reports whether an auth token is present.
	HasSession   func() bool
	Reachability Reachability // optional
	SyncInterval time.Duration
}

// Monitor is the connectivity and session monitor.
type Monitor struct {
	engine       syncpkg.SyncEngineInterface
	conn         *syncpkg.Connectivity
	hasSession   func() bool
	reachability Reachability
	syncInterval time.Duration

	// changeMu serializes reachability change handling.
	changeMu sync.Mutex

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	isRunning   bool
	stopped     bool
	unsubscribe func()

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMonitor creates a Monitor. It does nothing until Start.
func NewMonitor(cfg Config) *Monitor {
	interval := cfg.SyncInterval
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	conn := cfg.Connectivity
	if conn == nil {
		conn = syncpkg.NewConnectivity(true)
	}
	hasSession := cfg.HasSession
	if hasSession == nil {
		hasSession = func() bool { return false }
	}
	return &Monitor{
		engine:       cfg.Engine,
		conn:         conn,
		hasSession:   hasSession,
		reachability: cfg.Reachability,
		syncInterval: interval,
		ctx:          context.Background(),
		stopCh:       make(chan struct{}),
	}
}

// Start subscribes to reachability, starts the periodic timer and runs an
// initial sync when already online and authenticated. A Monitor cannot be
// restarted after Stop.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.isRunning || m.stopped {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	if m.reachability != nil {
		unsubscribe := m.reachability.Subscribe(m.SetOnline)
		m.mu.Lock()
		m.unsubscribe = unsubscribe
		m.mu.Unlock()
	}

	m.wg.Add(1)
	go m.periodicSyncLoop()

	logging.Info("Connectivity monitor started", map[string]interface{}{
		"interval_seconds": m.syncInterval.Seconds(),
		"online":           m.conn.IsOnline(),
	})
}

// Stop clears the timer and removes the reachability listener. Calling it
// more than once is safe.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.stopped = true
		wasRunning := m.isRunning
		m.isRunning = false
		unsubscribe := m.unsubscribe
		m.unsubscribe = nil
		if m.cancel != nil {
			m.cancel()
		}
		m.mu.Unlock()

		close(m.stopCh)
		if unsubscribe != nil {
			unsubscribe()
		}
		m.wg.Wait()

		if wasRunning {
			logging.Info("Connectivity monitor stopped", nil)
		}
	})
}

// IsRunning reports whether the monitor has been started and not stopped.
func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.isRunning
}

// SetOnline handles one reachability change event. On a transition to online
// with a session and no run in flight it runs a sync; it always re-broadcasts
// the status afterwards.
func (m *Monitor) SetOnline(online bool) {
	m.changeMu.Lock()
	defer m.changeMu.Unlock()

	wasOnline := m.conn.Set(online)
	if wasOnline != online {
		logging.Info("Online status changed", map[string]interface{}{
			"was_online": wasOnline,
			"is_online":  online,
		})
	}

	if online && !wasOnline && m.hasSession() && !m.engine.IsSyncing() {
		m.engine.Sync(m.context())
	}
	m.engine.Broadcast()
}

// SyncNow runs a sync immediately and waits for it. It returns the skipped
// result when a run is already in flight.
func (m *Monitor) SyncNow(ctx context.Context) *syncpkg.SyncResult {
	return m.engine.Sync(ctx)
}

func (m *Monitor) context() context.Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx
}

func (m *Monitor) periodicSyncLoop() {
	defer m.wg.Done()

	ctx := m.context()
	m.tick(ctx)

	ticker := time.NewTicker(m.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

// tick runs a sync if online, authenticated and idle.
func (m *Monitor) tick(ctx context.Context) {
	if !m.conn.IsOnline() {
		return
	}
	if !m.hasSession() {
		logging.Debug("No session, periodic sync suppressed", nil)
		return
	}
	if m.engine.IsSyncing() {
		logging.Debug("Sync already in progress, skipping", nil)
		return
	}
	m.engine.Sync(ctx)
}
