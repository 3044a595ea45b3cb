// Package main implements the entry point for the sensorfw daemon.
// sensorfwd distributes device sensor data to local client processes:
// samples flow through a graph of processing nodes and are delivered to
// each client session over a unix socket at the client's chosen rate.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saukko/sensorfw/config"
	"github.com/saukko/sensorfw/ipc"
	"github.com/saukko/sensorfw/metric"
	"github.com/saukko/sensorfw/pkg/retry"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "sensorfwd"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Daemon failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	socketPath := flag.String("socket", "", "override the session socket path")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *socketPath != "" {
		cfg.SocketPath = *socketPath
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	slog.Info("Starting sensorfw daemon",
		"version", Version,
		"socket_path", cfg.SocketPath)

	registry := metric.NewRegistry()
	registry.CoreMetrics().RecordServiceStatus(appName, 1) // starting

	var handler *ipc.Handler
	handler = ipc.NewHandler(ipc.Config{
		SocketPath:     cfg.SocketPath,
		HandshakeRate:  cfg.Handshake.RatePerSecond,
		HandshakeBurst: cfg.Handshake.Burst,
		Logger:         logger,
		Registry:       registry,
		LostSession: func(sessionID int) {
			// The control plane additionally releases the session's node
			// requests; it is wired in by the graph assembly layer above
			// this core.
			logger.Info("session lost", "session_id", sessionID)
			handler.RemoveSession(sessionID)
		},
	})
	// An old daemon instance may still hold the socket while shutting
	// down; back off briefly before treating the bind as failed.
	bindRetry := retry.Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
	if err := retry.Do(context.Background(), bindRetry, handler.Listen); err != nil {
		registry.CoreMetrics().RecordError(appName, "listen")
		return fmt.Errorf("bind session socket: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	if err := handler.Start(ctx); err != nil {
		return fmt.Errorf("start session handler: %w", err)
	}
	start := time.Now()
	registry.CoreMetrics().RecordServiceStatus(appName, 2) // running

	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
		g.Go(func() error {
			slog.Info("Metrics endpoint up", "address", metricsServer.Address())
			if err := metricsServer.Start(); err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				registry.CoreMetrics().UptimeSeconds.Set(time.Since(start).Seconds())
			}
		}
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Shutting down", "timeout", shutdownTimeout)
		registry.CoreMetrics().RecordServiceStatus(appName, 3) // stopping
		if metricsServer != nil {
			_ = metricsServer.Stop()
		}
		return handler.Stop(shutdownTimeout)
	})

	err = g.Wait()
	registry.CoreMetrics().RecordServiceStatus(appName, 0) // stopped
	slog.Info("Daemon stopped")
	return err
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		cfg := config.Default()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	return config.Load(path)
}
