package main

import (
	"context"
	"fmt"
	"path/filepath"

	"notisd/internal/config"
	"notisd/internal/daemon"
	"notisd/internal/ipc"
	"notisd/internal/logging"
)

func run(ctx context.Context, configPath, logLevel string, diagnostic bool) error {
	cfg, resolvedPath, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logging.SetDiagnostic(diagnostic)
	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger, err := logging.New(logging.Options{
		Level:  level,
		Format: cfg.Logging.Format,
		OutputPaths: []string{
			"stdout",
			filepath.Join(cfg.Paths.LogDir, "notisd.log"),
		},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	store := config.NewStore(cfg)
	d, err := daemon.New(store, resolvedPath, logger)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		return err
	}

	controlServer, err := ipc.NewServer(ctx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start control server: %w", err)
	}
	defer controlServer.Close()
	controlServer.Serve()

	eventServer, err := ipc.NewEventServer(ctx, cfg.EventSocketPath(), d.Hub(), logger)
	if err != nil {
		return fmt.Errorf("start event server: %w", err)
	}
	defer eventServer.Close()
	eventServer.Serve()

	reloader := config.NewReloadWatcher(store, resolvedPath, logger)
	if err := reloader.Start(ctx); err != nil {
		// Hot reload is best effort; the daemon keeps the startup snapshot.
		logger.Warn("config reload watcher unavailable", logging.Error(err))
	}
	defer reloader.Stop()

	logger.Info("notisd ready",
		logging.String(logging.FieldEventType, "daemon_ready"),
		logging.String("socket", cfg.SocketPath()),
		logging.String("events", cfg.EventSocketPath()))

	<-ctx.Done()
	logger.Info("notisd shutting down")
	return nil
}
