package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikhailWahib/minicask"
	"github.com/MikhailWahib/minicask/internal/config"
	"github.com/MikhailWahib/minicask/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "minicask: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg); err != nil {
		cfg.Logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// loadConfig reads the optional config file and applies explicitly set flags over it.
func loadConfig(args []string) (*config.Config, error) {
	fs := flag.NewFlagSet("minicask", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to YAML/JSON config file")
	dir := fs.String("dir", "", "Data directory")
	maxFileSize := fs.Int64("max-file-size", 0, "Active segment size in bytes that triggers rotation")
	listen := fs.String("listen", "", "HTTP listen address")
	logLevel := fs.String("log-level", "", "Log level (trace, debug, info, warn, error)")
	disableMetrics := fs.Bool("disable-metrics", false, "Do not serve /metrics")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadFile(*configPath); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "dir":
			cfg.Dir = *dir
		case "max-file-size":
			cfg.MaxFileSize = *maxFileSize
		case "listen":
			cfg.ListenAddr = *listen
		case "log-level":
			cfg.LogLevel = *logLevel
		case "disable-metrics":
			cfg.DisableMetrics = *disableMetrics
		}
	})

	// The logger may have been built from the file's level before flags applied.
	cfg.Logger = nil
	cfg.FillDefaults()
	return cfg, nil
}

func run(cfg *config.Config) error {
	logger := cfg.Logger

	db, err := minicask.Open(cfg.Dir, cfg)
	if err != nil {
		return fmt.Errorf("open %s: %w", cfg.Dir, err)
	}

	srv := server.New(db, cfg)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var serveErr error
	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case <-srv.CloseRequested():
		logger.Info("shutting down", "reason", "close requested")
	case serveErr = <-errCh:
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}

	// Close after the HTTP server has drained so no request races the shutdown.
	if err := db.Close(); err != nil && !errors.Is(err, minicask.ErrClosed) {
		return fmt.Errorf("close store: %w", err)
	}
	if serveErr != nil {
		return serveErr
	}

	logger.Info("stopped")
	return nil
}
