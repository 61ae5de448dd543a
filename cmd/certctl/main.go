package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"

	"certstamp/internal/bootstrap"
	"certstamp/internal/cli"
	"certstamp/internal/config"
	"certstamp/internal/logging"
	"certstamp/internal/service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	open := func(ctx context.Context) (service.CertificateService, func() error, error) {
		cfg := config.Load()
		// Keep stdout for command output; service logs go to stderr.
		logger := logging.New(os.Stderr, cfg.LogLevel, nil)
		app, err := bootstrap.New(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		return app.Service, app.Close, nil
	}

	if err := cli.NewRootCmd(open).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
