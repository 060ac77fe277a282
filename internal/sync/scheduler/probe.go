package scheduler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/kimhsiao/storesync/backend/internal/client"
	"github.com/kimhsiao/storesync/backend/internal/logging"
)

// HealthPath is the endpoint probed for reachability.
const HealthPath = "/api/health"

// DefaultProbeInterval is how often the probe checks reachability.
const DefaultProbeInterval = 10 * time.Second

// Pinger sends one request. *client.Client implements it.
type Pinger interface {
	Do(ctx context.Context, req client.Request) ([]byte, error)
}

// Probe derives reachability from periodic requests to the API health
// endpoint. Any HTTP response counts as reachable; only transport failures
// and timeouts count as offline. Subscribers see changes only.
type Probe struct {
	api      Pinger
	interval time.Duration

	mu     sync.Mutex
	known  bool
	online bool
	subs   map[int]func(bool)
	nextID int
}

// NewProbe creates a Probe.
func NewProbe(api Pinger, interval time.Duration) *Probe {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Probe{
		api:      api,
		interval: interval,
		subs:     make(map[int]func(bool)),
	}
}

// Subscribe implements Reachability.
func (p *Probe) Subscribe(fn func(online bool)) (unsubscribe func()) {
	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.subs[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, id)
			p.mu.Unlock()
		})
	}
}

// Check probes once and emits a change event when reachability differs from
// the last observation. The first observation always emits.
func (p *Probe) Check(ctx context.Context) bool {
	_, err := p.api.Do(ctx, client.Request{Method: http.MethodGet, Path: HealthPath, Short: true})
	online := err == nil || !client.IsConnectivity(err)

	p.mu.Lock()
	if ctx.Err() != nil {
		// A cancelled probe says nothing about the network.
		last := p.online
		p.mu.Unlock()
		return last
	}
	changed := !p.known || p.online != online
	p.known = true
	p.online = online
	var subs []func(bool)
	if changed {
		subs = make([]func(bool), 0, len(p.subs))
		for _, fn := range p.subs {
			subs = append(subs, fn)
		}
	}
	p.mu.Unlock()

	if changed {
		logging.Debug("Reachability observed", map[string]interface{}{"online": online})
		for _, fn := range subs {
			fn(online)
		}
	}
	return online
}

// Run checks immediately and then on every interval until ctx is done.
func (p *Probe) Run(ctx context.Context) {
	p.Check(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Check(ctx)
		}
	}
}
