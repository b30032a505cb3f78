// Package config loads geuebt settings from defaults, an optional YAML file,
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"math"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Config holds every runtime setting.
type Config struct {
	Server  Server  `koanf:"server"`
	Storage Storage `koanf:"storage"`
	Blob    Blob    `koanf:"blob"`
	Log     Log     `koanf:"log"`
	Metrics Metrics `koanf:"metrics"`
}

// Server configures the HTTP listener.
type Server struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	// MaxBodySize caps request bodies, e.g. "64MiB" or "500 kB".
	MaxBodySize string `koanf:"max_body_size"`
}

// Addr returns host:port for net.Listen.
func (s Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// MaxBodyBytes parses MaxBodySize.
func (s Server) MaxBodyBytes() (int64, error) {
	n, err := humanize.ParseBytes(s.MaxBodySize)
	if err != nil {
		return 0, fmt.Errorf("server.max_body_size: %w", err)
	}
	if n == 0 || n > math.MaxInt64 {
		return 0, fmt.Errorf("server.max_body_size must be positive, got %q", s.MaxBodySize)
	}
	return int64(n), nil
}

// Storage selects and configures the document store.
type Storage struct {
	Driver        string `koanf:"driver"`
	SQLitePath    string `koanf:"sqlite_path"`
	PostgresDSN   string `koanf:"postgres_dsn"`
	BadgerDir     string `koanf:"badger_dir"`
	MongoURI      string `koanf:"mongo_uri"`
	MongoDatabase string `koanf:"mongo_database"`
}

// Blob selects and configures the sequence payload store.
type Blob struct {
	Driver string `koanf:"driver"`
	FSRoot string `koanf:"fs_root"`
	S3     S3     `koanf:"s3"`
}

// S3 configures the S3 / MinIO blob driver.
type S3 struct {
	Bucket          string `koanf:"bucket"`
	Region          string `koanf:"region"`
	Endpoint        string `koanf:"endpoint"`
	PathStyle       bool   `koanf:"path_style"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
}

// Log configures the process logger.
type Log struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Metrics toggles the Prometheus endpoint.
type Metrics struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
	StorageBadger   = "badger"
	StorageMongo    = "mongo"
)

// StorageDrivers lists the accepted storage drivers.
var StorageDrivers = []string{StorageMemory, StorageSQLite, StoragePostgres, StorageBadger, StorageMongo}

var (
	blobDrivers = []string{"fs", "memory", "s3"}
	logLevels   = []string{"debug", "info", "warn", "error"}
	logFormats  = []string{"tint", "text", "json"}
)

// Defaults returns the built-in configuration as flat koanf keys.
func Defaults() map[string]any {
	return map[string]any{
		"server.host":                "0.0.0.0",
		"server.port":                8000,
		"server.read_header_timeout": "10s",
		"server.shutdown_timeout":    "15s",
		"server.max_body_size":       "64MiB",
		"storage.driver":             StorageSQLite,
		"storage.sqlite_path":        "./geuebt.db",
		"storage.badger_dir":         "./geuebt-badger",
		"storage.mongo_database":     "geuebt",
		"blob.driver":                "fs",
		"blob.fs_root":               "./blobdata",
		"blob.s3.region":             "us-east-1",
		"log.level":                  "info",
		"log.format":                 "tint",
		"metrics.enabled":            true,
		"metrics.path":               "/metrics",
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadHeaderTimeout < 0 || c.Server.ShutdownTimeout < 0 {
		errs = append(errs, errors.New("server timeouts must not be negative"))
	}
	if _, err := c.Server.MaxBodyBytes(); err != nil {
		errs = append(errs, err)
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite driver"))
		}
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres driver"))
		}
	case StorageBadger:
		if c.Storage.BadgerDir == "" {
			errs = append(errs, errors.New("storage.badger_dir is required for the badger driver"))
		}
	case StorageMongo:
		if c.Storage.MongoURI == "" || c.Storage.MongoDatabase == "" {
			errs = append(errs, errors.New("storage.mongo_uri and storage.mongo_database are required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q (want one of %s)", c.Storage.Driver, strings.Join(StorageDrivers, ", ")))
	}

	if !contains(blobDrivers, c.Blob.Driver) {
		errs = append(errs, fmt.Errorf("unknown blob.driver %q (want one of %s)", c.Blob.Driver, strings.Join(blobDrivers, ", ")))
	}
	if c.Blob.Driver == "s3" && c.Blob.S3.Bucket == "" {
		errs = append(errs, errors.New("blob.s3.bucket is required for the s3 driver"))
	}
	if !contains(logLevels, strings.ToLower(c.Log.Level)) {
		errs = append(errs, fmt.Errorf("unknown log.level %q", c.Log.Level))
	}
	if !contains(logFormats, strings.ToLower(c.Log.Format)) {
		errs = append(errs, fmt.Errorf("unknown log.format %q", c.Log.Format))
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("metrics.path must start with '/', got %q", c.Metrics.Path))
	}
	return errors.Join(errs...)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
