package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"fuelstation/internal/models"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STATION_"

// DotEnvFile is read before the environment overrides are applied. Variables
// already set in the process environment win over the file.
var DotEnvFile = ".env"

// Load loads configuration from file and environment variables
func Load(configPath string) (*models.Config, error) {
	if err := loadDotEnv(DotEnvFile); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", DotEnvFile, err)
	}

	// Start with default configuration
	config := models.NewDefaultConfig()

	// Load from file if provided and exists
	if configPath != "" {
		if err := loadFromFile(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Override with environment variables
	if err := loadFromEnvironment(config); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	// Validate the final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// loadDotEnv populates the process environment from a dotenv file. A missing
// file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// warnUnknownKeys logs keys the decoder will ignore, which are usually typos
// or settings from an older release. The service starts normally either way.
func warnUnknownKeys(data []byte) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var strict models.Config
	if err := dec.Decode(&strict); err != nil && !errors.Is(err, io.EOF) {
		slog.Warn("Config file contains keys that are ignored", "error", err)
	}
}

// loadFromFile loads configuration from a YAML file
func loadFromFile(config *models.Config, filePath string) error {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", filePath)
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	warnUnknownKeys(data)
	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}
	return nil
}

// loadFromEnvironment applies STATION_* overrides. A variable that is set but
// cannot be parsed is an error rather than silently ignored.
func loadFromEnvironment(config *models.Config) error {
	e := &envReader{}

	// Server configuration
	e.setInt("PORT", &config.Server.Port)
	e.setString("HOST", &config.Server.Host)
	e.setDuration("READ_TIMEOUT", &config.Server.ReadTimeout)
	e.setDuration("WRITE_TIMEOUT", &config.Server.WriteTimeout)
	e.setDuration("IDLE_TIMEOUT", &config.Server.IdleTimeout)
	e.setBool("TLS_ENABLED", &config.Server.TLSEnabled)
	e.setString("TLS_CERT_FILE", &config.Server.TLSCertFile)
	e.setString("TLS_KEY_FILE", &config.Server.TLSKeyFile)

	// Storage configuration
	e.setString("STORAGE_TYPE", &config.Storage.Type)
	e.setString("STORAGE_PATH", &config.Storage.Path)
	e.setString("DATABASE_DSN", &config.Storage.Database.DSN)
	e.setInt("DATABASE_MAX_OPEN_CONNS", &config.Storage.Database.MaxOpenConns)
	e.setInt("DATABASE_MAX_IDLE_CONNS", &config.Storage.Database.MaxIdleConns)
	e.setDuration("DATABASE_CONN_MAX_LIFETIME", &config.Storage.Database.ConnMaxLifetime)

	// Security configuration
	e.setInt("BCRYPT_COST", &config.Security.BcryptCost)
	e.setInt("HASH_WORKERS", &config.Security.HashWorkers)
	e.setString("ADMIN_LOGIN", &config.Security.BootstrapAdmin.Login)
	e.setString("ADMIN_PASSWORD", &config.Security.BootstrapAdmin.Password)
	e.setBool("RATE_LIMIT_ENABLED", &config.Security.RateLimit.Enabled)
	e.setInt("RATE_LIMIT_REQUESTS_PER_MINUTE", &config.Security.RateLimit.RequestsPerMinute)
	e.setInt("RATE_LIMIT_BURST_SIZE", &config.Security.RateLimit.BurstSize)
	e.setInt("LOGIN_LIMIT_MAX", &config.Security.Limits.CustomerLogin.Max)
	e.setDuration("LOGIN_LIMIT_WINDOW", &config.Security.Limits.CustomerLogin.Window)
	e.setInt("ADMIN_LOGIN_LIMIT_MAX", &config.Security.Limits.AdminLogin.Max)
	e.setDuration("ADMIN_LOGIN_LIMIT_WINDOW", &config.Security.Limits.AdminLogin.Window)
	e.setInt("FUEL_LISTING_LIMIT_MAX", &config.Security.Limits.FuelListing.Max)
	e.setDuration("FUEL_LISTING_LIMIT_WINDOW", &config.Security.Limits.FuelListing.Window)

	// Station configuration
	e.setInt64("STARTING_BALANCE", &config.Station.StartingBalance)

	// Logging configuration
	e.setString("LOG_LEVEL", &config.Logging.Level)
	e.setString("LOG_FORMAT", &config.Logging.Format)
	e.setString("LOG_OUTPUT", &config.Logging.Output)
	e.setString("LOG_FILE_PATH", &config.Logging.FilePath)
	e.setInt("LOG_MAX_SIZE", &config.Logging.MaxSize)
	e.setInt("LOG_MAX_BACKUPS", &config.Logging.MaxBackups)
	e.setInt("LOG_MAX_AGE", &config.Logging.MaxAge)
	e.setBool("LOG_COMPRESS", &config.Logging.Compress)

	// Metrics and tracing configuration
	e.setBool("METRICS_ENABLED", &config.Metrics.Enabled)
	e.setString("METRICS_PATH", &config.Metrics.Path)
	e.setInt("METRICS_PORT", &config.Metrics.Port)
	e.setString("SERVICE_NAME", &config.Observability.ServiceName)
	e.setBool("TRACING_ENABLED", &config.Observability.Tracing.Enabled)
	e.setString("TRACING_EXPORTER", &config.Observability.Tracing.Exporter)
	e.setString("TRACING_OTLP_ENDPOINT", &config.Observability.Tracing.OTLPEndpoint)
	e.setFloat("TRACING_SAMPLE_RATE", &config.Observability.Tracing.SampleRate)

	return errors.Join(e.errs...)
}

// envReader collects parse failures while applying overrides.
type envReader struct {
	errs []error
}

func (e *envReader) lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) fail(name, value string, err error) {
	e.errs = append(e.errs, fmt.Errorf("%s%s=%q: %w", EnvPrefix, name, value, err))
}

func (e *envReader) setString(name string, dst *string) {
	if v, ok := e.lookup(name); ok {
		*dst = v
	}
}

func (e *envReader) setInt(name string, dst *int) {
	if v, ok := e.lookup(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) setInt64(name string, dst *int64) {
	if v, ok := e.lookup(name); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = n
	}
}

func (e *envReader) setFloat(name string, dst *float64) {
	if v, ok := e.lookup(name); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = f
	}
}

func (e *envReader) setBool(name string, dst *bool) {
	if v, ok := e.lookup(name); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = b
	}
}

func (e *envReader) setDuration(name string, dst *time.Duration) {
	if v, ok := e.lookup(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.fail(name, v, err)
			return
		}
		*dst = d
	}
}

// SaveExample saves an example configuration file
func SaveExample(filePath string) error {
	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	config := models.NewDefaultConfig()

	config.Storage.Type = models.StorageTypeSQLite
	config.Storage.Database.DSN = "file:./data/station.db"
	config.Security.BootstrapAdmin = models.BootstrapAdmin{Login: "admin", Password: "change-me"}
	config.Station.Catalog = []models.CatalogFuel{
		{
			Name: "Petrol 95", Price: 5500, Category: string(models.CategoryPetrol),
			Tanks: []models.CatalogTank{{Stored: 800, Capacity: 1000}, {Stored: 300, Capacity: 500}},
		},
		{
			Name: "Diesel", Price: 5200, Category: string(models.CategoryDiesel),
			Tanks: []models.CatalogTank{{Stored: 600, Capacity: 1000}},
		},
		{
			Name: "EV charger", Price: 1500, Category: string(models.CategoryElectricity),
			Tanks: []models.CatalogTank{{Stored: 1, Capacity: 1}},
		},
	}

	// Example TLS configuration
	config.Server.TLSEnabled = false
	config.Server.TLSCertFile = "/path/to/cert.pem"
	config.Server.TLSKeyFile = "/path/to/key.pem"

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	header := []byte("# Example fuel station configuration. Most keys can be overridden with a\n# STATION_* environment variable; see internal/config.\n")
	if err := os.WriteFile(filePath, append(header, data...), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
