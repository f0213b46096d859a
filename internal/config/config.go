// Package config loads the service configuration from the environment and
// optional .env files.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Storage driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultEnvFiles are loaded, when present, before the environment is parsed.
// Variables already set in the process environment win.
var DefaultEnvFiles = []string{".env", ".env.local"}

// MidtransOptions configures the payment gateway.
type MidtransOptions struct {
	ServerKey   string        `env:"MIDTRANS_SERVER_KEY"`
	APIURL      string        `env:"MIDTRANS_API_URL" envDefault:"https://api.sandbox.midtrans.com"`
	SnapURL     string        `env:"MIDTRANS_SNAP_URL" envDefault:"https://app.sandbox.midtrans.com/snap/v1"`
	StatusCheck bool          `env:"MIDTRANS_STATUS_CHECK" envDefault:"false"`
	Timeout     time.Duration `env:"MIDTRANS_TIMEOUT" envDefault:"10s"`
}

// OtelOptions configures OpenTelemetry.
type OtelOptions struct {
	ServiceName    string `env:"OTEL_SERVICE_NAME" envDefault:"koperasi"`
	ServiceVersion string `env:"OTEL_SERVICE_VERSION" envDefault:"0.1.0"`
	Environment    string `env:"OTEL_ENVIRONMENT" envDefault:"development"`
	Exporter       string `env:"OTEL_EXPORTER" envDefault:"stdout"`
}

// Config is the full service configuration.
type Config struct {
	Port          int      `env:"PORT" envDefault:"8080"`
	StorageDriver string   `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	DataDir       string   `env:"DATA_DIR" envDefault:"data"`
	DatabaseURL   string   `env:"DATABASE_URL"`
	PlatformHosts []string `env:"PLATFORM_HOSTS" envSeparator:"," envDefault:"platform.test,localhost,127.0.0.1,::1"`

	// NamespaceRoleSecret derives the login passwords of postgres namespace roles.
	NamespaceRoleSecret string `env:"NAMESPACE_ROLE_SECRET"`

	HandlePoolSize int           `env:"HANDLE_POOL_SIZE" envDefault:"64"`
	HandlePoolTTL  time.Duration `env:"HANDLE_POOL_TTL" envDefault:"10m"`

	SubscriptionFee int64 `env:"SUBSCRIPTION_FEE" envDefault:"150000"`
	BcryptCost      int   `env:"BCRYPT_COST" envDefault:"10"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	Midtrans MidtransOptions
	Otel     OtelOptions
}

// LoadEnv loads the env files that exist and returns how many were loaded.
func LoadEnv(files []string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// Load reads env files and the environment into a validated Config.
func Load(files ...string) (Config, error) {
	if _, err := LoadEnv(files); err != nil {
		return Config{}, fmt.Errorf("loading env files: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing environment: %w", byEnvKey(err))
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// byEnvKey rewrites parse errors, which name struct fields, to name the
// environment variable instead.
func byEnvKey(err error) error {
	var agg env.AggregateError
	if !errors.As(err, &agg) {
		return err
	}

	keys := envKeys(reflect.TypeFor[Config]())
	errs := make([]error, len(agg.Errors))
	for i, e := range agg.Errors {
		errs[i] = e
		var perr env.ParseError
		if !errors.As(e, &perr) {
			continue
		}
		if key, ok := keys[perr.Name]; ok {
			errs[i] = fmt.Errorf("invalid %s: %w", key, perr.Err)
		}
	}
	return errors.Join(errs...)
}

// envKeys maps field names of t and its nested option structs to their
// environment variables.
func envKeys(t reflect.Type) map[string]string {
	keys := make(map[string]string)
	for i := range t.NumField() {
		f := t.Field(i)
		if tag, ok := f.Tag.Lookup("env"); ok {
			keys[f.Name] = strings.Split(tag, ",")[0]
			continue
		}
		if f.Type.Kind() == reflect.Struct {
			maps.Copy(keys, envKeys(f.Type))
		}
	}
	return keys
}

func (c *Config) normalize() {
	hosts := c.PlatformHosts[:0]
	for _, h := range c.PlatformHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts = append(hosts, h)
		}
	}
	c.PlatformHosts = hosts
	c.StorageDriver = strings.ToLower(c.StorageDriver)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case DriverSQLite:
		if c.DataDir == "" {
			errs = append(errs, errors.New("DATA_DIR is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
		if len(c.NamespaceRoleSecret) < 32 {
			errs = append(errs, errors.New("NAMESPACE_ROLE_SECRET of at least 32 characters is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER %q is not one of sqlite, postgres", c.StorageDriver))
	}

	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if len(c.PlatformHosts) == 0 {
		errs = append(errs, errors.New("PLATFORM_HOSTS must name at least one host"))
	}
	if c.HandlePoolSize <= 0 {
		errs = append(errs, errors.New("HANDLE_POOL_SIZE must be positive"))
	}
	if c.HandlePoolTTL <= 0 {
		errs = append(errs, errors.New("HANDLE_POOL_TTL must be positive"))
	}
	if c.SubscriptionFee <= 0 {
		errs = append(errs, errors.New("SUBSCRIPTION_FEE must be positive"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q is not one of text, json", c.LogFormat))
	}

	return errors.Join(errs...)
}

// SlogLevel parses LOG_LEVEL.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel)
	}
	return level, nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
