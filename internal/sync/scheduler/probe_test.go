package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kimhsiao/storesync/backend/internal/client"
)

func TestProbe_anyResponseIsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, HealthPath, r.URL.Path)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewProbe(client.New(srv.URL, nil, client.Options{}), 0)
	assert.True(t, p.Check(context.Background()))
}

func TestProbe_emitsOnChangeOnly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	url := srv.URL

	p := NewProbe(client.New(url, nil, client.Options{}), 0)
	var events []bool
	unsubscribe := p.Subscribe(func(online bool) { events = append(events, online) })

	p.Check(context.Background())
	p.Check(context.Background())
	assert.Equal(t, []bool{true}, events)

	srv.Close()
	assert.False(t, p.Check(context.Background()))
	p.Check(context.Background())
	assert.Equal(t, []bool{true, false}, events)

	unsubscribe()
	unsubscribe()
	p.known = false
	p.Check(context.Background())
	assert.Len(t, events, 2)
}

func TestProbe_cancelledCheckKeepsState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	p := NewProbe(client.New(srv.URL, nil, client.Options{}), 0)
	assert.True(t, p.Check(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, p.Check(ctx))
}
