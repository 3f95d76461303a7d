// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// netplay-probe connects to a netplay server as a headless client,
// mirrors the server's world and measures round-trip time. It prints a
// status summary each time the connection becomes ready and when it
// exits.
//
// Usage:
//
//	netplay-probe [--config netplay.yaml] [--endpoint ws://host:port/play] [--duration 30s] [--watch]
//
// With --watch the status is shown as a live terminal dashboard
// instead.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/netplay/lib/clock"
	"github.com/bureau-foundation/netplay/lib/config"
	"github.com/bureau-foundation/netplay/lib/process"
	"github.com/bureau-foundation/netplay/lib/version"
	"github.com/bureau-foundation/netplay/ping"
	"github.com/bureau-foundation/netplay/replica"
	"github.com/bureau-foundation/netplay/transport"
	"github.com/bureau-foundation/netplay/world"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var endpoint string
	var duration time.Duration
	var watch bool
	var noColor bool
	var showVersion bool

	flagSet := pflag.NewFlagSet("netplay-probe", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $NETPLAY_CONFIG, else built-in defaults)")
	flagSet.StringVar(&endpoint, "endpoint", "", "signaling endpoint, overriding server.endpoint")
	flagSet.DurationVar(&duration, "duration", 0, "exit after this long (0 runs until interrupted)")
	flagSet.BoolVar(&watch, "watch", false, "show a live dashboard instead of printing status lines")
	flagSet.BoolVar(&noColor, "no-color", false, "disable colored output")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print(os.Stdout, "netplay-probe")
		return nil
	}

	cfg, err := config.Resolve(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if endpoint != "" {
		cfg.Server.Endpoint = endpoint
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if noColor || os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	logOutput := io.Writer(os.Stderr)
	if watch {
		// The dashboard owns the terminal.
		logOutput = io.Discard
	}
	logger, err := cfg.Logging.NewLogger(logOutput)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	return probe(ctx, cfg, logger, watch)
}

func probe(ctx context.Context, cfg *config.Config, logger *slog.Logger, watch bool) error {
	lifecycle := &countingLifecycle{logger: logger}
	scene := world.NewSceneMap(replica.TuningFromConfig(cfg.Sync), clock.Real(), lifecycle, logger)
	pinger := ping.New(ping.Options{Logger: logger})
	mirror := replica.New(replica.Options{Scene: scene, Logger: logger})

	disconnected := make(chan struct{}, 1)
	var connection *transport.Connection
	sample := func() status {
		identity, assigned := connection.Identity()
		return status{
			Endpoint:    cfg.Server.Endpoint,
			State:       connection.State(),
			Identity:    identity,
			Assigned:    assigned,
			LastRTT:     pinger.Last(),
			SmoothedRTT: pinger.Smoothed(),
			Samples:     pinger.Samples(),
			Entities:    scene.Len(),
			Initialized: lifecycle.InitializedCount(),
		}
	}
	hooks := transport.Hooks{
		Disconnected: func() {
			select {
			case disconnected <- struct{}{}:
			default:
			}
		},
	}
	if !watch {
		hooks.Ready = func() { fmt.Println(renderStatus(sample())) }
	}
	connection = transport.New(transport.Options{
		PeerFactory: transport.DefaultPeerFactory(transport.ICEConfigFromServer(cfg.Server)),
		Hooks:       hooks,
		Logger:      logger,
	})
	defer connection.Close()

	pinger.Attach(connection, cfg.Timing.PingInterval)
	if err := mirror.Attach(connection, cfg.Timing); err != nil {
		return err
	}

	logger.Info("starting netplay-probe", "version", version.Info(), "endpoint", cfg.Server.Endpoint)
	if err := connection.Connect(ctx, cfg.Server.Endpoint); err != nil {
		return err
	}

	if watch {
		program := tea.NewProgram(newDashboard(sample), tea.WithAltScreen())
		go func() {
			select {
			case <-ctx.Done():
			case <-disconnected:
			}
			program.Quit()
		}()
		if _, err := program.Run(); err != nil {
			return fmt.Errorf("running dashboard: %w", err)
		}
	} else {
		select {
		case <-ctx.Done():
		case <-disconnected:
			logger.Warn("server closed the connection")
		}
	}
	fmt.Println(renderStatus(sample()))
	return nil
}
