package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/kimhsiao/storesync/backend/internal/errors"
)

func TestLoadClient_defaults(t *testing.T) {
	t.Setenv("STORESYNC_API_URL", "https://api.example.com")

	cfg, err := LoadClient()
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.DataDir)
	assert.Equal(t, 30*time.Second, cfg.SyncInterval)
	assert.Equal(t, 10*time.Second, cfg.VerifyTimeout)
	assert.Equal(t, 30*time.Second, cfg.MutationTimeout)
	assert.Equal(t, "127.0.0.1:8090", cfg.ListenAddr)
}

func TestLoadClient_envFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.env")
	content := "STORESYNC_API_URL=http://localhost:8080\nSTORESYNC_SYNC_INTERVAL=45s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("STORESYNC_API_URL")
		os.Unsetenv("STORESYNC_SYNC_INTERVAL")
	})

	cfg, err := LoadClient(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", cfg.APIURL)
	assert.Equal(t, 45*time.Second, cfg.SyncInterval)
}

func TestLoadClient_invalid(t *testing.T) {
	t.Setenv("STORESYNC_API_URL", "not a url")

	_, err := LoadClient()
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalid))
}

func TestClientConfig_Validate_durations(t *testing.T) {
	cfg := &ClientConfig{
		APIURL:          "https://api.example.com",
		SyncInterval:    0,
		VerifyTimeout:   time.Second,
		MutationTimeout: time.Second,
		ProbeInterval:   time.Second,
	}
	assert.Error(t, cfg.Validate())

	cfg.SyncInterval = time.Second
	assert.NoError(t, cfg.Validate())
}

func TestLoadServer(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/storesync?sslmode=disable")
	t.Setenv("JWT_SECRET", "0123456789abcdef0123")

	cfg, err := LoadServer()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 12*time.Hour, cfg.TokenTTL)

	t.Setenv("JWT_SECRET", "short")
	_, err = LoadServer()
	assert.Error(t, err)
}

func TestClientFromHost(t *testing.T) {
	cfg, err := ClientFromHost([]byte(`{"api_url":"https://api.example.com","data_dir":"/data/app","sync_interval_seconds":60}`))
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.APIURL)
	assert.Equal(t, "/data/app", cfg.DataDir)
	assert.Equal(t, time.Minute, cfg.SyncInterval)
	assert.Equal(t, 10*time.Second, cfg.VerifyTimeout)
	assert.Equal(t, 30*time.Second, cfg.MutationTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestClientFromHost_invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{`},
		{"missing api url", `{"data_dir":"/data"}`},
		{"relative api url", `{"api_url":"api","data_dir":"/data"}`},
		{"missing data dir", `{"api_url":"https://api.example.com"}`},
		{"negative interval", `{"api_url":"https://api.example.com","data_dir":"/d","sync_interval_seconds":-1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ClientFromHost([]byte(tt.body))
			assert.True(t, apperrors.Is(err, apperrors.ErrInvalid))
		})
	}
}
