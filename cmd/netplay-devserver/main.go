// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// netplay-devserver runs a minimal authoritative netplay server for
// local development. It assigns identities, answers the data channel
// offer of each client, relays voice signaling between players, echoes
// the state each player publishes into its world, and broadcasts a
// snapshot of that world every devserver.tick_interval.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/netplay/internal/devserver"
	"github.com/bureau-foundation/netplay/lib/config"
	"github.com/bureau-foundation/netplay/lib/process"
	"github.com/bureau-foundation/netplay/lib/version"
	"github.com/bureau-foundation/netplay/transport"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var listen string
	var showVersion bool

	flagSet := pflag.NewFlagSet("netplay-devserver", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $NETPLAY_CONFIG, else built-in defaults)")
	flagSet.StringVar(&listen, "listen", "", "listen address, overriding devserver.listen")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print(os.Stdout, "netplay-devserver")
		return nil
	}

	cfg, err := config.Resolve(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if listen != "" {
		cfg.DevServer.Listen = listen
	}
	logger, err := cfg.Logging.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	server := devserver.New(devserver.Options{
		ICE:          transport.ICEConfigFromServer(cfg.Server),
		TickInterval: cfg.DevServer.TickInterval,
		Logger:       logger,
	})
	defer server.Close()

	mux := http.NewServeMux()
	mux.Handle(cfg.DevServer.Path, server)

	listener, err := net.Listen("tcp", cfg.DevServer.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.DevServer.Listen, err)
	}
	httpServer := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(listener)
	}()
	logger.Info("netplay-devserver listening",
		"version", version.Info(),
		"endpoint", fmt.Sprintf("ws://%s%s", listener.Addr(), cfg.DevServer.Path),
		"tick_interval", cfg.DevServer.TickInterval,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serveErr:
		return fmt.Errorf("serving: %w", err)
	}

	// Hijacked WebSocket connections are not tracked by Shutdown, so the
	// sessions are closed first.
	server.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}
