// Package config loads runtime configuration for the propsync client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   base URL of the REST API
//	-g string   host:port of a gRPC health endpoint
//	-i int      online status check interval (seconds)
//	-d string   data directory
//	-b string   bulk backend (sqlite or s3)
//	-l string   log level
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "3s" or a number of seconds. Keys left out keep their
// defaults:
//
//	{
//	  "server_base_url": "https://pm.example.com/api",
//	  "online_check_interval": "3s",
//	  "request_timeout": "15s",
//	  "data_dir": "/var/lib/propsync",
//	  "secure_max_value_size": 2048,
//	  "inline_threshold": 1920,
//	  "prefer_cache_first": false,
//	  "bulk_backend": "s3",
//	  "s3_bucket": "propsync-cache",
//	  "s3_timeout": "5s"
//	}
//
// With the s3 bulk backend, cache payloads are written to S3 as a mirror and
// still read from the local database. The offline queue never leaves it.
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
