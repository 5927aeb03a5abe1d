package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/propsync/internal/buildinfo"
	"github.com/dmitrijs2005/propsync/internal/client/app"
	"github.com/dmitrijs2005/propsync/internal/client/cli"
	"github.com/dmitrijs2005/propsync/internal/client/config"
	"github.com/dmitrijs2005/propsync/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	logger := logging.NewTextLogger(os.Stderr, cfg.LogLevel)

	core, err := app.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer func() {
		if err := core.Close(); err != nil {
			logger.Error(context.Background(), "shutdown", "err", err)
		}
	}()

	restored, err := core.Start(ctx)
	if err != nil {
		logger.Warn(ctx, "session not restored", "err", err)
	}

	cli.NewApp(core, os.Stdin, os.Stdout).Run(ctx, restored)

}
