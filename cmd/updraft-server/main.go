// Copyright 2026 The Updraft Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/updraft-io/updraft/lib/clock"
	"github.com/updraft-io/updraft/lib/config"
	"github.com/updraft-io/updraft/lib/metrics"
	"github.com/updraft-io/updraft/lib/process"
	"github.com/updraft-io/updraft/lib/seed"
	"github.com/updraft-io/updraft/lib/service"
	"github.com/updraft-io/updraft/lib/storage/memstore"
	"github.com/updraft-io/updraft/lib/version"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath   string
		address      string
		devMode      bool
		seedPath     string
		snapshotPath string
		debug        bool
	)

	flagSet := pflag.NewFlagSet("updraft-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the YAML configuration file (default: $UPDRAFT_CONFIG)")
	flagSet.StringVar(&address, "address", "", "listen address, overriding the configuration file")
	flagSet.BoolVar(&devMode, "dev", false, "run with built-in defaults, no configuration file required")
	flagSet.StringVar(&seedPath, "seed", "", "seed fixture applied to a fresh store, overriding the configuration file")
	flagSet.StringVar(&snapshotPath, "snapshot", "", "snapshot loaded on startup and saved on shutdown, overriding the configuration file")
	flagSet.BoolVar(&debug, "debug", false, "enable debug logging")
	flagSet.BoolP("help", "h", false, "show help")

	// Handle --version before flag parsing to match other Updraft binaries.
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		version.Print("updraft-server")
		return nil
	}

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}

	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	// A .env file is a development convenience; absence is the normal
	// production state.
	_ = godotenv.Load()

	cfg, err := resolveConfig(configPath, devMode)
	if err != nil {
		return err
	}
	if address != "" {
		cfg.Server.Address = address
	}
	if seedPath != "" {
		cfg.Paths.Seed = seedPath
	}
	if snapshotPath != "" {
		cfg.Paths.Snapshot = snapshotPath
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := memstore.New(clock.Real())

	snapshotLoaded := false
	if cfg.Paths.Snapshot != "" {
		switch err := store.LoadSnapshot(cfg.Paths.Snapshot); {
		case err == nil:
			snapshotLoaded = true
			logger.Info("snapshot restored", "path", cfg.Paths.Snapshot)
		case errors.Is(err, fs.ErrNotExist):
			logger.Info("no snapshot found, starting empty", "path", cfg.Paths.Snapshot)
		default:
			return fmt.Errorf("loading snapshot: %w", err)
		}
	}

	// Seed only a store that did not come from a snapshot: seeding is
	// not idempotent, and a snapshot already contains whatever an
	// earlier run seeded.
	if cfg.Paths.Seed != "" && !snapshotLoaded {
		file, err := seed.ReadFile(cfg.Paths.Seed)
		if err != nil {
			return err
		}
		summary, err := seed.Apply(ctx, store, clock.Real(), file)
		if err != nil {
			return err
		}
		logger.Info("store seeded",
			"path", cfg.Paths.Seed,
			"accounts", summary.Accounts,
			"apps", summary.Apps,
			"deployments", summary.Deployments,
			"packages", summary.Packages,
		)
	}

	var recorder *metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder, err = metrics.Open(metrics.Config{
			Path:     cfg.Metrics.Path,
			PoolSize: cfg.Metrics.PoolSize,
			Logger:   logger,
		})
		if err != nil {
			return err
		}
		defer func() {
			if err := recorder.Close(); err != nil {
				logger.Error("closing metrics recorder", "error", err)
			}
		}()
	} else {
		logger.Info("metrics disabled, status reports will be discarded")
	}

	handler := NewHandler(store, recorder, logger)

	var shutdownTimeout time.Duration
	if cfg.Server.ShutdownTimeout != "" {
		// Validate already vetted the syntax; parse for the value.
		shutdownTimeout, err = time.ParseDuration(cfg.Server.ShutdownTimeout)
		if err != nil {
			return fmt.Errorf("invalid server.shutdown_timeout: %w", err)
		}
	}

	server := service.NewHTTPServer(service.HTTPServerConfig{
		Address:         cfg.Server.Address,
		Handler:         handler.Routes(),
		ShutdownTimeout: shutdownTimeout,
		Logger:          logger,
	})

	logger.Info("updraft server starting",
		"address", cfg.Server.Address,
		"environment", string(cfg.Environment),
		"metrics", cfg.Metrics.Enabled,
	)

	if err := server.Serve(ctx); err != nil {
		return err
	}

	if cfg.Paths.Snapshot != "" {
		if err := store.SaveSnapshot(cfg.Paths.Snapshot); err != nil {
			return fmt.Errorf("saving snapshot: %w", err)
		}
		logger.Info("snapshot saved", "path", cfg.Paths.Snapshot)
	}

	return nil
}

// resolveConfig picks the configuration source: an explicit --config
// path wins, then the UPDRAFT_CONFIG environment variable, then --dev
// defaults. Without any of those the server refuses to guess.
func resolveConfig(configPath string, devMode bool) (*config.Config, error) {
	switch {
	case configPath != "":
		return config.LoadFile(configPath)
	case os.Getenv("UPDRAFT_CONFIG") != "":
		return config.Load()
	case devMode:
		return config.Default(), nil
	default:
		return nil, fmt.Errorf("no configuration: pass --config, set UPDRAFT_CONFIG, or run with --dev")
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Updraft acquisition server — the endpoint devices poll for updates.

Serves update checks against each deployment's package history and
records download and deployment outcomes in the adoption counters.

Usage:
  updraft-server [flags]

Examples:
  # Development server on the default address with built-in defaults
  updraft-server --dev

  # Development server seeded from a fixture
  updraft-server --dev --seed fixtures/demo.jsonc

  # Production configuration
  updraft-server --config /etc/updraft/updraft.yaml

Flags:
`)
	flagSet.SetOutput(os.Stderr)
	flagSet.PrintDefaults()
}
