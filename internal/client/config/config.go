package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

const (
	BulkBackendSQLite = "sqlite"
	BulkBackendS3     = "s3"
)

// Config holds runtime settings for the propsync client.
//
// Units: OnlineCheckInterval, RequestTimeout, UploadTimeout and S3Timeout
// are time.Duration values. SecureMaxValueSize and InlineThreshold are bytes.
type Config struct {
	// ServerBaseURL is the root of the REST API, e.g. https://host/api.
	ServerBaseURL string
	// HealthCheckAddr is an optional host:port of a gRPC health endpoint.
	// When empty, reachability is probed over HTTP at ServerBaseURL.
	HealthCheckAddr     string
	OnlineCheckInterval time.Duration
	RequestTimeout      time.Duration
	UploadTimeout       time.Duration

	DataDir          string
	DatabaseFile     string
	DevicePassphrase string

	SecureMaxValueSize int
	InlineThreshold    int
	CacheEnabled       bool
	PreferCacheFirst   bool

	BulkBackend    string
	S3Bucket       string
	S3Region       string
	S3BaseEndpoint string
	S3AccessKey    string
	S3SecretKey    string
	// S3Timeout bounds each mirrored S3 call.
	S3Timeout time.Duration

	LogLevel string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerBaseURL = "http://127.0.0.1:8000/api"
	c.HealthCheckAddr = ""
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 15 * time.Second
	c.UploadTimeout = 2 * time.Minute
	c.DataDir = ".propsync"
	c.DatabaseFile = "propsync.db"
	c.SecureMaxValueSize = 2048
	c.InlineThreshold = 1920
	c.CacheEnabled = true
	c.PreferCacheFirst = false
	c.BulkBackend = BulkBackendSQLite
	c.S3Region = "us-east-1"
	c.S3Timeout = 5 * time.Second
	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}

// DatabasePath is the SQLite file inside DataDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, c.DatabaseFile)
}

// Validate reports settings the client cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.ServerBaseURL == "" {
		errs = append(errs, errors.New("server base URL is required"))
	}
	if c.OnlineCheckInterval <= 0 {
		errs = append(errs, errors.New("online check interval must be positive"))
	}
	if c.SecureMaxValueSize > 0 && c.InlineThreshold >= c.SecureMaxValueSize {
		errs = append(errs, fmt.Errorf("inline threshold %d must be below secure max value size %d", c.InlineThreshold, c.SecureMaxValueSize))
	}
	switch c.BulkBackend {
	case BulkBackendSQLite:
	case BulkBackendS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("s3 bulk backend needs a bucket"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown bulk backend %q", c.BulkBackend))
	}
	return errors.Join(errs...)
}
