// Package main is the entry point for the Loker secrets manager emulator.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/loker/loker/internal/clock"
	"github.com/loker/loker/internal/config"
	"github.com/loker/loker/internal/logging"
	"github.com/loker/loker/internal/metrics"
	"github.com/loker/loker/internal/secrets"
	"github.com/loker/loker/internal/server"
	"github.com/loker/loker/internal/store"
)

func main() {
	configPath := flag.String("config", "", "path to optional YAML configuration file")
	address := flag.String("address", "", "override listen address")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *address != "" {
		cfg.Server.Address = *address
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if dir := filepath.Dir(cfg.Store.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create database directory: %v\n", err)
			os.Exit(1)
		}
	}

	st, err := store.Open(cfg.Store.DatabasePath, cfg.Store.EncryptionKey)
	if err != nil {
		if errors.Is(err, store.ErrDatabaseLocked) {
			fmt.Fprintf(os.Stderr, "failed to unlock store: wrong encryption key for %s\n", cfg.Store.DatabasePath)
		} else {
			fmt.Fprintf(os.Stderr, "failed to open store: %v\n", err)
		}
		os.Exit(1)
	}
	defer st.Close()

	if cfg.Observability.Metrics {
		metrics.Register()
	}

	clk := clock.System{}
	svc := secrets.NewService(st, clk, cfg.Server.Region)
	srv := server.New(cfg, svc, clk)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("loker listening", "address", cfg.Server.Address, "tls", cfg.Server.UseHTTPS)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		slog.Info("server stopped")

	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(os.Stderr, "server error: %v\n", err)
			os.Exit(1)
		}
	}
}
