// Command beaver-signin serves social sign-in for the invoicing application.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gobeaver/beaver-signin/config"
	"github.com/gobeaver/beaver-signin/logging"
	"github.com/gobeaver/beaver-signin/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "beaver-signin: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var cfg server.Config
	if err := config.Load(&cfg); err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if _, set := os.LookupEnv(config.DefaultPrefix + "LOG_FORMAT"); !set && cfg.Production() {
		cfg.Logging.Format = "json"
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	logger = logger.With("service", "beaver-signin", "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.Build(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}
	return srv.Run(ctx)
}
