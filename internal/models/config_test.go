package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	// Test server defaults
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "0.0.0.0", config.Server.Host)
	assert.Equal(t, 30*time.Second, config.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, config.Server.WriteTimeout)
	assert.Equal(t, 60*time.Second, config.Server.IdleTimeout)
	assert.False(t, config.Server.TLSEnabled)

	// Test storage defaults
	assert.Equal(t, StorageTypeMemory, config.Storage.Type)
	assert.Equal(t, 25, config.Storage.Database.MaxOpenConns)
	assert.Equal(t, 5, config.Storage.Database.MaxIdleConns)

	// Test security defaults
	assert.Equal(t, 10, config.Security.BcryptCost)
	assert.Equal(t, 4, config.Security.HashWorkers)
	assert.Empty(t, config.Security.BootstrapAdmin.Login)
	assert.True(t, config.Security.RateLimit.Enabled)
	assert.Equal(t, WindowLimit{Max: 20, Window: time.Minute}, config.Security.Limits.CustomerLogin)
	assert.Equal(t, WindowLimit{Max: 10, Window: time.Minute}, config.Security.Limits.AdminLogin)
	assert.Equal(t, WindowLimit{Max: 60, Window: time.Minute}, config.Security.Limits.FuelListing)
	assert.Equal(t, 10*time.Minute, config.Security.LimiterJanitor.Retention)

	// Test station defaults
	assert.Equal(t, int64(100000), config.Station.StartingBalance)
	assert.Empty(t, config.Station.Catalog)

	// Test logging defaults
	assert.Equal(t, "info", config.Logging.Level)
	assert.Equal(t, "json", config.Logging.Format)
	assert.Equal(t, "stdout", config.Logging.Output)
	assert.Equal(t, 100, config.Logging.MaxSize)
	assert.Equal(t, 3, config.Logging.MaxBackups)
	assert.Equal(t, 28, config.Logging.MaxAge)
	assert.True(t, config.Logging.Compress)

	// Test metrics defaults
	assert.True(t, config.Metrics.Enabled)
	assert.Equal(t, "/metrics", config.Metrics.Path)
	assert.Equal(t, 9090, config.Metrics.Port)

	// Test observability defaults
	assert.Equal(t, "fuelstation", config.Observability.ServiceName)
	assert.False(t, config.Observability.Tracing.Enabled)
	assert.Equal(t, "stdout", config.Observability.Tracing.Exporter)
	assert.Equal(t, 1.0, config.Observability.Tracing.SampleRate)

	require.NoError(t, config.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		errorMsg string
	}{
		{
			name:     "invalid server port",
			mutate:   func(c *Config) { c.Server.Port = -1 },
			errorMsg: "invalid server config",
		},
		{
			name:     "invalid storage type",
			mutate:   func(c *Config) { c.Storage.Type = "invalid-type" },
			errorMsg: "invalid storage type",
		},
		{
			name:     "postgres without dsn",
			mutate:   func(c *Config) { c.Storage.Type = StorageTypePostgres },
			errorMsg: "database DSN is required",
		},
		{
			name: "badger without path",
			mutate: func(c *Config) {
				c.Storage.Type = StorageTypeBadger
				c.Storage.Path = ""
			},
			errorMsg: "path is required for badger storage",
		},
		{
			name:     "bcrypt cost too low",
			mutate:   func(c *Config) { c.Security.BcryptCost = 2 },
			errorMsg: "bcrypt cost",
		},
		{
			name:     "bootstrap admin without password",
			mutate:   func(c *Config) { c.Security.BootstrapAdmin.Login = "root" },
			errorMsg: "bootstrap admin requires both",
		},
		{
			name:     "zero login window",
			mutate:   func(c *Config) { c.Security.Limits.CustomerLogin.Window = 0 },
			errorMsg: "limit customer_login",
		},
		{
			name:     "negative starting balance",
			mutate:   func(c *Config) { c.Station.StartingBalance = -1 },
			errorMsg: "starting balance cannot be negative",
		},
		{
			name: "catalog tank over capacity",
			mutate: func(c *Config) {
				c.Station.Catalog = []CatalogFuel{{
					Name:  "AI-95",
					Price: 5550,
					Tanks: []CatalogTank{{Stored: 20, Capacity: 10}},
				}}
			},
			errorMsg: "catalog[0].tanks[0]",
		},
		{
			name: "catalog unknown category",
			mutate: func(c *Config) {
				c.Station.Catalog = []CatalogFuel{{Name: "Hydrogen", Price: 1, Category: "plasma"}}
			},
			errorMsg: "unknown fuel category",
		},
		{
			name:     "invalid log level",
			mutate:   func(c *Config) { c.Logging.Level = "verbose" },
			errorMsg: "invalid log level",
		},
		{
			name: "file output without path",
			mutate: func(c *Config) {
				c.Logging.Output = "file"
			},
			errorMsg: "file path is required",
		},
		{
			name:     "metrics port out of range",
			mutate:   func(c *Config) { c.Metrics.Port = 70000 },
			errorMsg: "metrics port",
		},
		{
			name: "otlp without endpoint",
			mutate: func(c *Config) {
				c.Observability.Tracing.Enabled = true
				c.Observability.Tracing.Exporter = "otlp"
			},
			errorMsg: "OTLP endpoint is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestStorageConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		config      StorageConfig
		expectError bool
	}{
		{name: "memory", config: StorageConfig{Type: StorageTypeMemory}},
		{name: "sqlite", config: StorageConfig{Type: StorageTypeSQLite, Database: DatabaseConfig{DSN: ":memory:"}}},
		{name: "postgres", config: StorageConfig{Type: StorageTypePostgres, Database: DatabaseConfig{DSN: "postgres://localhost/station"}}},
		{name: "badger", config: StorageConfig{Type: StorageTypeBadger, Path: "/tmp/station"}},
		{name: "negative conns", config: StorageConfig{Type: StorageTypeSQLite, Database: DatabaseConfig{DSN: "x", MaxOpenConns: -1}}, expectError: true},
		{name: "empty type", config: StorageConfig{}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSecurityConfig_RateLimitDisabled(t *testing.T) {
	config := NewDefaultConfig()
	config.Security.RateLimit = RateLimitConfig{Enabled: false}

	assert.NoError(t, config.Security.Validate())
}

func TestTracingConfig_Validate(t *testing.T) {
	config := NewDefaultConfig()
	config.Observability.Tracing.Enabled = true

	assert.NoError(t, config.Observability.Validate())

	config.Observability.Tracing.SampleRate = 1.5
	assert.Error(t, config.Observability.Validate())

	config.Observability.Tracing.SampleRate = 0.5
	config.Observability.Tracing.Exporter = "zipkin"
	assert.Error(t, config.Observability.Validate())
}
