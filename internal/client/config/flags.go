package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/propsync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   base URL of the REST API
//	-g string   host:port of a gRPC health endpoint
//	-i int      online check interval in seconds
//	-d string   data directory
//	-b string   bulk backend: sqlite or s3
//	-l string   log level: debug, info, warn, error
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-i", "-d", "-b", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerBaseURL, "a", cfg.ServerBaseURL, "base URL of the API")
	fs.StringVar(&cfg.HealthCheckAddr, "g", cfg.HealthCheckAddr, "address of a gRPC health endpoint")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.BulkBackend, "b", cfg.BulkBackend, "bulk backend (sqlite or s3)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
