package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/petems/talkback/internal/app"
	"github.com/petems/talkback/internal/audio"
	"github.com/petems/talkback/internal/config"
	"github.com/petems/talkback/internal/device"
	"github.com/petems/talkback/internal/hotkey"
	"github.com/petems/talkback/internal/logging"
	"github.com/petems/talkback/internal/observe"
	"github.com/petems/talkback/internal/permissions"
	"github.com/petems/talkback/internal/tray"
	"golang.org/x/sync/errgroup"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	// Load config from XDG/Library/AppData, then .env and TALKBACK_* overrides
	cfg, err := config.Load()
	if err != nil {
		// Use default logger if config fails to load
		log := logging.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	// Initialize logger with configured level
	log := logging.NewWithLevel(cfg.LogLevel)

	// macOS requires explicit microphone approval before capture works
	if err := permissions.EnsurePermissions(); err != nil {
		log.Fatal().Err(err).Msg("Required permissions not granted")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := observe.InitProvider(observe.ProviderConfig{ServiceVersion: Version})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metrics")
	}
	metrics := observe.DefaultMetrics()

	// Initialize audio backend
	backend, err := device.New(cfg.Audio, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize audio")
	}
	defer backend.Close()

	source := audio.NewSource(backend.Capturer(), audio.SourceConfig{
		Name:    cfg.Audio.InputDevice,
		Logger:  log,
		Metrics: metrics,
	})
	sink := audio.NewSink(audio.SinkConfig{
		Driver:       backend,
		DeviceName:   cfg.Audio.OutputDevice,
		PollInterval: cfg.Audio.PollInterval,
		Logger:       log,
		Metrics:      metrics,
	})

	// Initialize hotkey manager
	hkManager, err := hotkey.New()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize hotkeys")
	}
	defer hkManager.Close()

	// Create tray UI first (we'll pass it to app)
	trayUI := tray.New(nil, log, Version, Commit) // App reference set below

	// Create app with tray as status updater
	application, err := app.New(app.Config{
		Source:        source,
		Sink:          sink,
		Devices:       backend,
		Config:        cfg,
		Logger:        log,
		StatusUpdater: trayUI,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize app")
	}

	// Set app reference in tray
	trayUI.SetApp(application)

	// Register global hotkey
	if err := hkManager.Register(cfg.PlatformHotkey(), application.OnHotkey); err != nil {
		log.Fatal().Err(err).Msg("Failed to register hotkey")
	}

	log.Info().Str("version", Version).Str("hotkey", cfg.PlatformHotkey()).Str("mode", cfg.Mode).
		Msg("talkback starting...")

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", provider.Handler)
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			log.Info().Str("addr", cfg.Metrics.Addr).Msg("Serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	// Start tray UI - MUST run on main thread. It returns on Quit or when
	// gctx ends (signal or metrics server failure).
	if err := trayUI.Run(gctx); err != nil {
		log.Error().Err(err).Msg("Tray error")
	}
	log.Info().Msg("Shutting down...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
	if err := provider.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Metrics shutdown error")
	}
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Metrics server error")
	}
}
