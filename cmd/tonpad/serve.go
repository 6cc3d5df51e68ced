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
	"syscall"
	"time"

	"github.com/tonpad-xyz/go-tonpad/config"
	"github.com/tonpad-xyz/go-tonpad/engine"
	"github.com/tonpad-xyz/go-tonpad/eventstore"
	"github.com/tonpad-xyz/go-tonpad/registry"
	"github.com/tonpad-xyz/go-tonpad/server"
)

func serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "", "Listen address (overrides TONPAD_LISTEN_ADDR)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: tonpad serve [options]

Run the launchpad API server. Configuration comes from the environment
(optionally a .env file); flags override it.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *addr != "" {
		cfg.ListenAddr = *addr
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return fmt.Errorf("bad log level %q: %w", cfg.LogLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	store, err := eventstore.NewSQLiteStore(cfg.EventDBPath)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	reg, err := registry.Open(cfg.RegistryDBPath)
	if err != nil {
		store.Close()
		return fmt.Errorf("open registry: %w", err)
	}
	defer reg.Close()

	eng := engine.New(store, logger)
	defer eng.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Replay(ctx); err != nil {
		return fmt.Errorf("replay: %w", err)
	}
	go eng.Run(ctx, cfg.SweepInterval, cfg.PendingSellTTL)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(eng, reg, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.ListenAddr, "events", cfg.EventDBPath, "registry", cfg.RegistryDBPath)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
