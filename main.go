package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/giygas/dosecurve-api/config"
	"github.com/giygas/dosecurve-api/data"
	"github.com/giygas/dosecurve-api/handlers"
	"github.com/giygas/dosecurve-api/health"
	"github.com/giygas/dosecurve-api/logging"
	"github.com/giygas/dosecurve-api/pharmacokinetics"
	"github.com/giygas/dosecurve-api/scheduler"
	"github.com/giygas/dosecurve-api/server"
	"github.com/giygas/dosecurve-api/validation"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(context.Background(), os.Args, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	app := &cli.Command{
		Name:   "dosecurve",
		Usage:  "Plasma concentration simulator for weekly injections",
		Writer: stdout,
		Commands: []*cli.Command{
			cmdServe(),
			cmdSimulate(),
		},
	}

	return app.Run(ctx, args)
}

func cmdServe() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the HTTP API",
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logging.InitLoggerFromConfig(cfg)
	defer logging.Close()

	logging.Info("Configuration loaded",
		"env", cfg.Env.String(),
		"storage", cfg.StorageBackend,
		"max_doses", cfg.MaxDoses,
		"max_span_days", cfg.MaxSpanDays,
		"cache_size", cfg.SimulationCacheSize,
	)

	store, err := data.Open(ctx, cfg)
	if err != nil {
		logging.Error("Failed to open dose store", "error", err)
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error("Failed to close dose store", "error", err)
		}
	}()

	engine, err := pharmacokinetics.NewEngine(cfg.SimulationCacheSize)
	if err != nil {
		return err
	}

	limiter := server.NewRateLimiter()
	checker := health.NewHealthChecker(store, engine, cfg.CachePurgeAt)
	handler := handlers.NewHTTPHandler(store, engine, validation.NewDataValidator(cfg.MaxDoses, cfg.MaxSpanDays), checker)

	sched := scheduler.NewScheduler(store, engine, limiter, cfg.CachePurgeAt)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	srv := server.NewServer(cfg, handler, limiter)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			logging.Error("Server failed", "error", err)
		}
		return err
	case <-ctx.Done():
		logging.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func cmdSimulate() *cli.Command {
	return &cli.Command{
		Name:  "simulate",
		Usage: "Simulate the concentrations of a dose table offline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "dose table (date<TAB>amount per line), - for stdin",
				Required: true,
			},
			&cli.BoolFlag{
				Name:    "weekly",
				Aliases: []string{"w"},
				Usage:   "print weekly averages instead of daily samples",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "output format: json or tsv",
				Value: "json",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			in, err := openInput(c.String("file"))
			if err != nil {
				return err
			}
			defer in.Close()

			return simulate(in, c.Root().Writer, c.Bool("weekly"), c.String("format"))
		},
	}
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dose table: %w", err)
	}
	return f, nil
}

var errUnknownFormat = errors.New("format must be json or tsv")
