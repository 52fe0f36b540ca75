// Package main runs the chess server: REST sessions against a local engine
// or remote move service, JWT accounts and the websocket challenge lobby.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chessduel/cmd/chess-server/cli"
	"chessduel/internal/server/broker"
	"chessduel/internal/server/config"
	"chessduel/internal/server/engine"
	"chessduel/internal/server/http"
	"chessduel/internal/server/processor"
	"chessduel/internal/server/realtime"
	"chessduel/internal/server/remote"
	"chessduel/internal/server/service"
	"chessduel/internal/server/storage"

	"go.uber.org/zap"
)

const gracefulShutdownTimeout = 5 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "db" {
		if err := cli.Run(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "CLI error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := newLogger(cfg.Dev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg *config.Config, log *zap.Logger) error {
	if cfg.PIDPath != "" {
		pid, err := acquirePIDFile(cfg.PIDPath, cfg.PIDLock)
		if err != nil {
			return fmt.Errorf("pid file: %w", err)
		}
		defer pid.Release()
		log.Info("PID file created", zap.String("path", cfg.PIDPath), zap.Bool("lock", cfg.PIDLock))
	}

	var store *storage.Store
	if cfg.StoragePath != "" {
		var err error
		store, err = storage.NewStore(cfg.StoragePath, cfg.Dev, log.Named("storage"))
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		if err := store.InitDB(); err != nil {
			store.Close()
			return fmt.Errorf("schema: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Warn("storage did not close cleanly", zap.Error(err))
			}
		}()
		log.Info("persistent storage enabled", zap.String("path", cfg.StoragePath))
	} else {
		log.Info("persistent storage disabled, accounts unavailable")
	}

	jwtSecret, err := newJWTSecret(cfg.Dev)
	if err != nil {
		return err
	}

	pool, err := engine.NewPool(engine.PoolConfig{
		Workers:       cfg.Engine.Workers,
		SearchTimeout: time.Duration(cfg.Engine.SearchTimeout),
	}, engine.ProcessFactory(cfg.Engine.Path, cfg.Engine.Options, log.Named("uci")), log.Named("pool"))
	if err != nil {
		return fmt.Errorf("engine pool: %w", err)
	}
	defer func() {
		if err := pool.Shutdown(gracefulShutdownTimeout); err != nil {
			log.Warn("engine pool shutdown", zap.Error(err))
		}
	}()

	// A nil *remote.Client must not reach the broker as a non-nil interface
	var remoteSvc broker.RemoteService
	if cfg.Remote.URL != "" {
		remoteSvc = remote.New(cfg.Remote.URL, time.Duration(cfg.Remote.Timeout))
		log.Info("remote move service configured", zap.String("url", cfg.Remote.URL))
	}
	brk := broker.New(pool, remoteSvc, log.Named("broker"))

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	hub := realtime.NewHub(log.Named("lobby"))
	go hub.Run(hubCtx)

	svc := service.New(store, jwtSecret, cfg.MaxSessions, log.Named("service"))
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go svc.RunCleanupJob(cleanupCtx, service.CleanupJobInterval)

	proc := processor.New(svc, brk, log.Named("processor"))
	app := http.NewFiberApp(proc, svc, hub, log.Named("http"), cfg.Dev)

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	listenErr := make(chan error, 1)
	go func() {
		log.Info("chess server listening",
			zap.String("addr", addr),
			zap.Bool("dev", cfg.Dev),
			zap.Int("max_sessions", cfg.MaxSessions),
			zap.String("engine", cfg.Engine.Path),
			zap.Int("engine_workers", cfg.Engine.Workers))
		listenErr <- app.Listen(addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-listenErr:
		if err != nil {
			log.Error("listener stopped", zap.Error(err))
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer shutdownCancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn("server forced to shut down", zap.Error(err))
	}

	if err := proc.Close(gracefulShutdownTimeout); err != nil {
		log.Warn("processor close", zap.Error(err))
	}
	hubCancel()
	cleanupCancel()

	if err := svc.Shutdown(gracefulShutdownTimeout); err != nil {
		log.Warn("service shutdown", zap.Error(err))
	}

	log.Info("server exited")
	return nil
}

func newJWTSecret(dev bool) ([]byte, error) {
	if dev {
		// Fixed in dev so tokens survive restarts
		return []byte("dev-secret-minimum-32-characters-long"), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate JWT secret: %w", err)
	}
	return secret, nil
}
