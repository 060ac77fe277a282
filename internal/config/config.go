// Package config loads client and server configuration from the environment.
package config

import (
	"encoding/json"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	apperrors "github.com/kimhsiao/storesync/backend/internal/errors"
)

// ClientConfig configures the on-device core (local store, sync engine, monitor).
type ClientConfig struct {
	APIURL          string        `env:"STORESYNC_API_URL,required"`
	DataDir         string        `env:"STORESYNC_DATA_DIR" envDefault:"./data"`
	SyncInterval    time.Duration `env:"STORESYNC_SYNC_INTERVAL" envDefault:"30s"`
	VerifyTimeout   time.Duration `env:"STORESYNC_VERIFY_TIMEOUT" envDefault:"10s"`
	MutationTimeout time.Duration `env:"STORESYNC_MUTATION_TIMEOUT" envDefault:"30s"`
	ProbeInterval   time.Duration `env:"STORESYNC_PROBE_INTERVAL" envDefault:"10s"`
	MachineID       string        `env:"STORESYNC_MACHINE_ID"`
	ListenAddr      string        `env:"STORESYNC_LISTEN_ADDR" envDefault:"127.0.0.1:8090"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFile         string        `env:"LOG_FILE"`
}

// ServerConfig configures the device-auth API server.
type ServerConfig struct {
	Port        string        `env:"APP_PORT" envDefault:"8080"`
	DatabaseURL string        `env:"DATABASE_URL,required"`
	JWTSecret   string        `env:"JWT_SECRET,required"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"12h"`
	LogLevel    string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFile     string        `env:"LOG_FILE"`
}

var validate = validator.New()

// loadDotEnv loads the given files, or .env in the working directory when none
// are given. A missing default .env is not an error.
func loadDotEnv(files ...string) error {
	if len(files) > 0 {
		return godotenv.Load(files...)
	}
	if _, err := os.Stat(".env"); err == nil {
		return godotenv.Load()
	}
	return nil
}

// LoadClient reads ClientConfig from optional env files and the environment.
func LoadClient(files ...string) (*ClientConfig, error) {
	if err := loadDotEnv(files...); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to load env file", err)
	}
	cfg := &ClientConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to parse client config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c *ClientConfig) Validate() error {
	u, err := url.Parse(c.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return apperrors.New(apperrors.ErrInvalid, "STORESYNC_API_URL must be an absolute URL")
	}
	for name, d := range map[string]time.Duration{
		"STORESYNC_SYNC_INTERVAL":    c.SyncInterval,
		"STORESYNC_VERIFY_TIMEOUT":   c.VerifyTimeout,
		"STORESYNC_MUTATION_TIMEOUT": c.MutationTimeout,
		"STORESYNC_PROBE_INTERVAL":   c.ProbeInterval,
	} {
		if d <= 0 {
			return apperrors.New(apperrors.ErrInvalid, name+" must be positive")
		}
	}
	return nil
}

// LoadServer reads ServerConfig from optional env files and the environment.
func LoadServer(files ...string) (*ServerConfig, error) {
	if err := loadDotEnv(files...); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to load env file", err)
	}
	cfg := &ServerConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "failed to parse server config", err)
	}
	if cfg.TokenTTL <= 0 {
		return nil, apperrors.New(apperrors.ErrInvalid, "TOKEN_TTL must be positive")
	}
	if len(cfg.JWTSecret) < 16 {
		return nil, apperrors.New(apperrors.ErrInvalid, "JWT_SECRET must be at least 16 characters")
	}
	return cfg, nil
}

// HostOptions configures the client when it is embedded in a host app that
// has no process environment to read, such as the mobile shell.
type HostOptions struct {
	APIURL              string `json:"api_url" validate:"required,url"`
	DataDir             string `json:"data_dir" validate:"required"`
	MachineID           string `json:"machine_id"`
	SyncIntervalSeconds int    `json:"sync_interval_seconds" validate:"gte=0"`
	LogLevel            string `json:"log_level"`
	LogFile             string `json:"log_file"`
}

// ClientFromHost builds a ClientConfig from JSON-encoded HostOptions. Unset
// values take the same defaults as LoadClient.
func ClientFromHost(data []byte) (*ClientConfig, error) {
	var opts HostOptions
	if err := json.Unmarshal(data, &opts); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "malformed host options", err)
	}
	if err := validate.Struct(opts); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalid, "invalid host options", err)
	}
	cfg := &ClientConfig{
		APIURL:          opts.APIURL,
		DataDir:         opts.DataDir,
		SyncInterval:    30 * time.Second,
		VerifyTimeout:   10 * time.Second,
		MutationTimeout: 30 * time.Second,
		ProbeInterval:   10 * time.Second,
		MachineID:       opts.MachineID,
		LogLevel:        "info",
		LogFile:         opts.LogFile,
	}
	if opts.SyncIntervalSeconds > 0 {
		cfg.SyncInterval = time.Duration(opts.SyncIntervalSeconds) * time.Second
	}
	if opts.LogLevel != "" {
		cfg.LogLevel = opts.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
