// Package models - Service configuration and operational settings.
// This file defines configuration structures for all service components.
//
// Configuration Philosophy:
// - Hierarchical configuration with logical grouping (server, storage, security, etc.)
// - Defaults that work out of the box with the in-memory backend
// - Validation catches misconfigurations before any component starts
package models

import (
	"errors"
	"fmt"
	"time"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypeSQLite   = "sqlite"
	StorageTypePostgres = "postgres"
	StorageTypeBadger   = "badger"
)

// Config is the root configuration structure containing all service settings.
//
// Configuration Structure:
// - Server: HTTP server and network settings
// - Storage: ledger store backend
// - Security: credentials, rate limits and the bootstrap admin
// - Station: business parameters (starting balance, seed catalog)
// - Logging: structured logging and output configuration
// - Metrics / Observability: Prometheus endpoint and tracing
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	Storage       StorageConfig       `yaml:"storage" json:"storage"`
	Security      SecurityConfig      `yaml:"security" json:"security"`
	Station       StationConfig       `yaml:"station" json:"station"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
	Metrics       MetricsConfig       `yaml:"metrics" json:"metrics"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
}

type ServerConfig struct {
	Port         int           `yaml:"port" json:"port"`
	Host         string        `yaml:"host" json:"host"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	TLSEnabled   bool          `yaml:"tls_enabled" json:"tls_enabled"`
	TLSCertFile  string        `yaml:"tls_cert_file" json:"tls_cert_file"`
	TLSKeyFile   string        `yaml:"tls_key_file" json:"tls_key_file"`
}

type StorageConfig struct {
	Type     string         `yaml:"type" json:"type"`
	Path     string         `yaml:"path" json:"path"`
	Database DatabaseConfig `yaml:"database" json:"database"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

type SecurityConfig struct {
	BcryptCost     int                  `yaml:"bcrypt_cost" json:"bcrypt_cost"`
	HashWorkers    int                  `yaml:"hash_workers" json:"hash_workers"`
	BootstrapAdmin BootstrapAdmin       `yaml:"bootstrap_admin" json:"bootstrap_admin"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit" json:"rate_limit"`
	Limits         KeyedLimitsConfig    `yaml:"limits" json:"limits"`
	LimiterJanitor LimiterJanitorConfig `yaml:"limiter_janitor" json:"limiter_janitor"`
}

// BootstrapAdmin is seeded at start-up when both fields are set.
type BootstrapAdmin struct {
	Login    string `yaml:"login" json:"login"`
	Password string `yaml:"password" json:"-"`
}

// RateLimitConfig configures the per-client token bucket in front of the HTTP API.
type RateLimitConfig struct {
	Enabled           bool          `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int           `yaml:"burst_size" json:"burst_size"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
}

// WindowLimit is a fixed-window limit: at most Max calls per Window per key.
type WindowLimit struct {
	Max    int           `yaml:"max" json:"max"`
	Window time.Duration `yaml:"window" json:"window"`
}

// KeyedLimitsConfig holds the fixed-window limits guarding authentication and
// catalog reads.
type KeyedLimitsConfig struct {
	CustomerLogin WindowLimit `yaml:"customer_login" json:"customer_login"`
	AdminLogin    WindowLimit `yaml:"admin_login" json:"admin_login"`
	FuelListing   WindowLimit `yaml:"fuel_listing" json:"fuel_listing"`
}

// LimiterJanitorConfig controls purging of idle fixed-window entries.
type LimiterJanitorConfig struct {
	Interval  time.Duration `yaml:"interval" json:"interval"`
	Retention time.Duration `yaml:"retention" json:"retention"`
}

type StationConfig struct {
	StartingBalance int64         `yaml:"starting_balance" json:"starting_balance"`
	Catalog         []CatalogFuel `yaml:"catalog" json:"catalog"`
}

// CatalogFuel seeds a fuel and its tanks into an empty store.
type CatalogFuel struct {
	Name     string        `yaml:"name" json:"name"`
	Price    int64         `yaml:"price" json:"price"`
	Category string        `yaml:"category" json:"category"`
	Tanks    []CatalogTank `yaml:"tanks" json:"tanks"`
}

type CatalogTank struct {
	Stored   int64 `yaml:"stored" json:"stored"`
	Capacity int64 `yaml:"capacity" json:"capacity"`
}

type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	Output     string `yaml:"output" json:"output"`
	FilePath   string `yaml:"file_path" json:"file_path"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
	Port    int    `yaml:"port" json:"port"`
}

type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name" json:"service_name"`
	Tracing     TracingConfig `yaml:"tracing" json:"tracing"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" json:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate" json:"sample_rate"`
}

// NewDefaultConfig creates a configuration with working defaults.
//
// Default Values Rationale:
// - Memory storage: runs without external dependencies
// - Starting balance 100000: 1000.00 in display units for every new customer
// - Login limits 20/min (customers) and 10/min (admins) slow down credential stuffing
// - Catalog listing capped at 60/min globally
// - Janitor purges limiter entries idle for more than 10 minutes
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Storage: StorageConfig{
			Type: StorageTypeMemory,
			Path: "./data/station.badger",
			Database: DatabaseConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Security: SecurityConfig{
			BcryptCost:  10,
			HashWorkers: 4,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 120,
				BurstSize:         20,
				CleanupInterval:   5 * time.Minute,
			},
			Limits: KeyedLimitsConfig{
				CustomerLogin: WindowLimit{Max: 20, Window: time.Minute},
				AdminLogin:    WindowLimit{Max: 10, Window: time.Minute},
				FuelListing:   WindowLimit{Max: 60, Window: time.Minute},
			},
			LimiterJanitor: LimiterJanitorConfig{
				Interval:  time.Minute,
				Retention: 10 * time.Minute,
			},
		},
		Station: StationConfig{
			StartingBalance: 100000,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
			Compress:   true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
			Port:    9090,
		},
		Observability: ObservabilityConfig{
			ServiceName: "fuelstation",
			Tracing: TracingConfig{
				Enabled:    false,
				Exporter:   "stdout",
				SampleRate: 1.0,
			},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}

	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("invalid storage config: %w", err)
	}

	if err := c.Security.Validate(); err != nil {
		return fmt.Errorf("invalid security config: %w", err)
	}

	if err := c.Station.Validate(); err != nil {
		return fmt.Errorf("invalid station config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("invalid metrics config: %w", err)
	}

	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("invalid observability config: %w", err)
	}

	return nil
}

func (sc *ServerConfig) Validate() error {
	if sc.Port <= 0 || sc.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	if sc.Host == "" {
		return errors.New("host cannot be empty")
	}

	if sc.ReadTimeout < 0 || sc.WriteTimeout < 0 || sc.IdleTimeout < 0 {
		return errors.New("timeouts cannot be negative")
	}

	if sc.TLSEnabled {
		if sc.TLSCertFile == "" {
			return errors.New("TLS cert file is required when TLS is enabled")
		}
		if sc.TLSKeyFile == "" {
			return errors.New("TLS key file is required when TLS is enabled")
		}
	}

	return nil
}

func (stc *StorageConfig) Validate() error {
	switch stc.Type {
	case StorageTypeMemory:
		return nil
	case StorageTypeBadger:
		if stc.Path == "" {
			return errors.New("path is required for badger storage")
		}
	case StorageTypePostgres, StorageTypeSQLite:
		if stc.Database.DSN == "" {
			return errors.New("database DSN is required for database storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s", stc.Type)
	}

	if stc.Database.MaxOpenConns < 0 || stc.Database.MaxIdleConns < 0 {
		return errors.New("connection limits cannot be negative")
	}

	return nil
}

func (sec *SecurityConfig) Validate() error {
	// bcrypt.MinCost .. bcrypt.MaxCost
	if sec.BcryptCost < 4 || sec.BcryptCost > 31 {
		return errors.New("bcrypt cost must be between 4 and 31")
	}
	if sec.HashWorkers <= 0 {
		return errors.New("hash workers must be positive")
	}

	if (sec.BootstrapAdmin.Login == "") != (sec.BootstrapAdmin.Password == "") {
		return errors.New("bootstrap admin requires both login and password")
	}

	if sec.RateLimit.Enabled {
		if sec.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("requests per minute must be positive")
		}
		if sec.RateLimit.BurstSize <= 0 {
			return errors.New("burst size must be positive")
		}
		if sec.RateLimit.CleanupInterval <= 0 {
			return errors.New("cleanup interval must be positive")
		}
	}

	limits := map[string]WindowLimit{
		"customer_login": sec.Limits.CustomerLogin,
		"admin_login":    sec.Limits.AdminLogin,
		"fuel_listing":   sec.Limits.FuelListing,
	}
	for name, l := range limits {
		if err := l.Validate(); err != nil {
			return fmt.Errorf("limit %s: %w", name, err)
		}
	}

	if sec.LimiterJanitor.Interval <= 0 {
		return errors.New("limiter janitor interval must be positive")
	}
	if sec.LimiterJanitor.Retention <= 0 {
		return errors.New("limiter janitor retention must be positive")
	}

	return nil
}

func (wl WindowLimit) Validate() error {
	if wl.Max <= 0 {
		return errors.New("max must be positive")
	}
	if wl.Window <= 0 {
		return errors.New("window must be positive")
	}
	return nil
}

func (st *StationConfig) Validate() error {
	if st.StartingBalance < 0 {
		return errors.New("starting balance cannot be negative")
	}

	for i, cf := range st.Catalog {
		fuel := NewFuel(cf.Name, cf.Price, Category(cf.Category))
		if err := fuel.Validate(); err != nil {
			return fmt.Errorf("catalog[%d]: %w", i, err)
		}
		for j, ct := range cf.Tanks {
			tank := NewTank(0, ct.Stored, ct.Capacity)
			if err := tank.Validate(); err != nil {
				return fmt.Errorf("catalog[%d].tanks[%d]: %w", i, j, err)
			}
		}
	}

	return nil
}

func (lc *LoggingConfig) Validate() error {
	validLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLevels, lc.Level) {
		return fmt.Errorf("invalid log level: %s", lc.Level)
	}

	validFormats := []string{"json", "text"}
	if !contains(validFormats, lc.Format) {
		return fmt.Errorf("invalid log format: %s", lc.Format)
	}

	validOutputs := []string{"stdout", "stderr", "file"}
	if !contains(validOutputs, lc.Output) {
		return fmt.Errorf("invalid log output: %s", lc.Output)
	}

	if lc.Output == "file" && lc.FilePath == "" {
		return errors.New("file path is required when output is file")
	}

	return nil
}

func (mc *MetricsConfig) Validate() error {
	if !mc.Enabled {
		return nil
	}

	if mc.Path == "" {
		return errors.New("metrics path cannot be empty")
	}

	if mc.Port <= 0 || mc.Port > 65535 {
		return errors.New("metrics port must be between 1 and 65535")
	}

	return nil
}

func (oc *ObservabilityConfig) Validate() error {
	if !oc.Tracing.Enabled {
		return nil
	}

	if oc.ServiceName == "" {
		return errors.New("service name is required when tracing is enabled")
	}

	switch oc.Tracing.Exporter {
	case "stdout":
	case "otlp":
		if oc.Tracing.OTLPEndpoint == "" {
			return errors.New("OTLP endpoint is required for the otlp exporter")
		}
	default:
		return fmt.Errorf("invalid trace exporter: %s", oc.Tracing.Exporter)
	}

	if oc.Tracing.SampleRate < 0 || oc.Tracing.SampleRate > 1 {
		return errors.New("sample rate must be between 0 and 1")
	}

	return nil
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
