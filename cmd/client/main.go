package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/gophgrade/internal/client/api"
	"github.com/iudanet/gophgrade/internal/client/auth"
	"github.com/iudanet/gophgrade/internal/client/changes"
	"github.com/iudanet/gophgrade/internal/client/cli"
	"github.com/iudanet/gophgrade/internal/client/data"
	"github.com/iudanet/gophgrade/internal/client/iocli"
	"github.com/iudanet/gophgrade/internal/client/storage/boltdb"
	"github.com/iudanet/gophgrade/internal/client/sync"
	"github.com/iudanet/gophgrade/internal/clock"
	"github.com/iudanet/gophgrade/internal/config"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	fs := flag.NewFlagSet("gophgrade", flag.ContinueOnError)
	fs.Usage = func() { cli.PrintUsage(os.Stderr) }

	cfg, err := config.ParseClient(fs, os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	// Show version and exit if requested
	if cfg.ShowVersion {
		printVersion()
		return nil
	}

	// Получаем команду
	args := fs.Args()
	if len(args) == 0 {
		cli.PrintUsage(os.Stderr)
		return fmt.Errorf("no command given")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Открываем BoltDB storage
	store, err := boltdb.New(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	changeLog := changes.New(store, logger)

	// Часы продолжают серверное время предыдущего запуска
	serverClock := clock.New()
	offset, err := store.GetClockOffset(ctx)
	if err != nil {
		return fmt.Errorf("failed to read clock offset: %w", err)
	}
	serverClock.SetOffset(offset)
	latest, err := changeLog.Latest(ctx)
	if err != nil {
		return fmt.Errorf("failed to read change log: %w", err)
	}
	serverClock.Observe(latest)

	apiClient := api.NewClient(cfg.ServerURL)

	app := cli.New(cli.Deps{
		IO:            iocli.NewStdio(),
		Server:        apiClient,
		Store:         store,
		Log:           changeLog,
		Auth:          auth.NewService(apiClient, store, changeLog, serverClock, cfg.ServerURL, logger),
		Data:          data.NewService(store, changeLog, serverClock, logger),
		Coordinator:   sync.NewCoordinator(apiClient, store, changeLog, serverClock, logger),
		Clock:         serverClock,
		Logger:        logger,
		FlushInterval: cfg.FlushInterval,
		CheckInterval: cfg.CheckInterval,
		Debounce:      cfg.Debounce,
	})

	return app.Run(ctx, args[0], args[1:])
}

func printVersion() {
	fmt.Printf("GophGrade Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
