package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/storesync/backend/internal/config"
	apperrors "github.com/kimhsiao/storesync/backend/internal/errors"
	"github.com/kimhsiao/storesync/backend/internal/store"
)

func testConfig(apiURL, dataDir string) *config.ClientConfig {
	return &config.ClientConfig{
		APIURL:          apiURL,
		DataDir:         dataDir,
		SyncInterval:    time.Hour,
		VerifyTimeout:   time.Second,
		MutationTimeout: time.Second,
		ProbeInterval:   20 * time.Millisecond,
		MachineID:       "test-machine",
	}
}

func TestNew_rejectsInvalidConfig(t *testing.T) {
	_, err := New(testConfig("not a url", t.TempDir()), Options{})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalid))
}

func TestNew_degradesToNopStore(t *testing.T) {
	a, err := New(testConfig("http://127.0.0.1:1", ""), Options{ExternalReachability: true})
	require.NoError(t, err)
	defer a.Close()

	_, isNop := a.Store.(store.Nop)
	assert.True(t, isNop)
	assert.Empty(t, a.Store.GetProducts("store-1"))
}

func TestApp_probeDrivesInitialSync(t *testing.T) {
	var pulls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/health":
			io.WriteString(w, `{"status":"ok"}`)
		case "/products/store/store-1":
			pulls.Add(1)
			io.WriteString(w, `{"products":[{"id":"p1","is_active":true}]}`)
		case "/inventory-orders/store/store-1":
			io.WriteString(w, `{"orders":[]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a, err := New(testConfig(srv.URL, t.TempDir()), Options{})
	require.NoError(t, err)
	require.NoError(t, a.Session.SetToken("tok"))
	require.NoError(t, a.Session.SetStoreID("store-1"))

	a.Start(context.Background())
	assert.Eventually(t, func() bool { return pulls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return len(a.Store.GetProducts("store-1")) == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, a.Close())
	assert.NoError(t, a.Close())
	assert.False(t, a.Monitor.IsRunning())
}

func TestApp_externalReachability(t *testing.T) {
	a, err := New(testConfig("http://127.0.0.1:1", t.TempDir()), Options{ExternalReachability: true})
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Probe)
	assert.False(t, a.Connectivity.IsOnline())

	a.Start(context.Background())
	a.SetOnline(true)
	assert.True(t, a.Engine.Status().IsOnline)
	assert.True(t, a.RefreshConnectivity(context.Background()))
}
