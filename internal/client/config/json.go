package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/propsync/internal/flagx"
	"github.com/dmitrijs2005/propsync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Fields left
// out of the file keep their current value, so pointers distinguish an
// absent boolean or number from its zero value.
type JsonConfig struct {
	ServerBaseURL       string          `json:"server_base_url"`
	HealthCheckAddr     string          `json:"health_check_addr"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	RequestTimeout      *timex.Duration `json:"request_timeout"`
	UploadTimeout       *timex.Duration `json:"upload_timeout"`

	DataDir          string `json:"data_dir"`
	DatabaseFile     string `json:"database_file"`
	DevicePassphrase string `json:"device_passphrase"`

	SecureMaxValueSize *int  `json:"secure_max_value_size"`
	InlineThreshold    *int  `json:"inline_threshold"`
	CacheEnabled       *bool `json:"cache_enabled"`
	PreferCacheFirst   *bool `json:"prefer_cache_first"`

	BulkBackend    string          `json:"bulk_backend"`
	S3Bucket       string          `json:"s3_bucket"`
	S3Region       string          `json:"s3_region"`
	S3BaseEndpoint string          `json:"s3_base_endpoint"`
	S3AccessKey    string          `json:"s3_access_key"`
	S3SecretKey    string          `json:"s3_secret_key"`
	S3Timeout      *timex.Duration `json:"s3_timeout"`

	LogLevel string `json:"log_level"`
}

// parseJson overlays Config with values loaded from a JSON file whose path
// is given with -c or -config. Without either flag nothing happens.
//
// Panics on read or unmarshal errors (caller should recover if desired).
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.ServerBaseURL, jc.ServerBaseURL)
	setString(&cfg.HealthCheckAddr, jc.HealthCheckAddr)
	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.UploadTimeout != nil {
		cfg.UploadTimeout = jc.UploadTimeout.Duration
	}

	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.DatabaseFile, jc.DatabaseFile)
	setString(&cfg.DevicePassphrase, jc.DevicePassphrase)

	if jc.SecureMaxValueSize != nil {
		cfg.SecureMaxValueSize = *jc.SecureMaxValueSize
	}
	if jc.InlineThreshold != nil {
		cfg.InlineThreshold = *jc.InlineThreshold
	}
	if jc.CacheEnabled != nil {
		cfg.CacheEnabled = *jc.CacheEnabled
	}
	if jc.PreferCacheFirst != nil {
		cfg.PreferCacheFirst = *jc.PreferCacheFirst
	}

	setString(&cfg.BulkBackend, jc.BulkBackend)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)
	setString(&cfg.S3AccessKey, jc.S3AccessKey)
	setString(&cfg.S3SecretKey, jc.S3SecretKey)
	if jc.S3Timeout != nil {
		cfg.S3Timeout = jc.S3Timeout.Duration
	}

	setString(&cfg.LogLevel, jc.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
