package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"appguard/config"
	"appguard/internal/api"
	"appguard/internal/auth"
	"appguard/internal/core"
	"appguard/internal/guard"
	"appguard/internal/logging"
	"appguard/internal/monitor"
	"appguard/internal/notify"
	"appguard/internal/overlay"
	"appguard/internal/proximity"
	"appguard/internal/registry"
	"appguard/internal/settings"
	"appguard/internal/storage/sqlite"
)

const (
	shutdownTimeout   = 10 * time.Second
	defaultConfigPath = "config.json"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	useEnv := flag.Bool("env", false, "Load configuration from environment variables")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "json", "Log format: json or text")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *useEnv {
		cfg, err = config.LoadFromEnv()
	} else {
		cfg, err = config.Load(*configPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logging.NewLogger(logging.LoggerConfig{
		Format: *logFormat,
		Level:  logging.ParseLevel(*logLevel),
	})
	logger.Info("starting appguard", "dev_mode", cfg.DevMode)

	db, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, err := registry.New(ctx, db, logger)
	if err != nil {
		return fmt.Errorf("failed to load registry: %w", err)
	}

	prefs, err := settings.Load(cfg.Settings.Path, logger)
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	go func() {
		if err := prefs.Watch(ctx); err != nil {
			logger.Warn("settings hot-reload unavailable", "error", err)
		}
	}()

	grace := time.Duration(prefs.Current().SessionGraceSeconds) * time.Second
	sessions := core.NewSessionStore(grace)

	// Notification fan-out doubles as the overlay presenter.
	notifier := notify.NewFanout(notify.NewLogSink(logger))
	if cfg.Telegram.Token != "" {
		telegram, err := notify.NewTelegramSink(cfg.Telegram.Token, cfg.Telegram.ChatID, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize telegram sink: %w", err)
		}
		notifier.Add(telegram)
	}

	overlayTimeout := overlay.DefaultTimeout
	if cfg.DevMode {
		overlayTimeout = overlay.DevModeTimeout
	}

	// One channel carries every event: detectors, the overlay failsafe and
	// auth completions all feed the coordinator through it.
	events := make(chan core.Event, 64)

	lifecycle := overlay.New(notifier, overlayTimeout, func(bundleID string) {
		events <- core.OverlayTimedOut{BundleID: bundleID}
	}, logger)

	var authenticator auth.Authenticator = auth.Unavailable{}
	if cfg.Auth.Command != "" {
		authenticator = &auth.ExecAuthenticator{Command: cfg.Auth.Command, Args: cfg.Auth.Args}
	}
	secrets := auth.NewSecretStore(db)

	procs := monitor.NewGopsutilProcesses()

	var detector *proximity.Detector
	if cfg.Companion.Enabled {
		detector = proximity.NewDetector(proximity.NewBLECentral(), db, events, proximity.Config{
			RSSIThreshold: prefs.Current().CompanionRSSIThreshold,
			NameFilter:    cfg.Companion.NameFilter,
		}, logger)
		prefs.OnChange(func(s core.Settings) {
			detector.SetRSSIThreshold(s.CompanionRSSIThreshold)
		})
	}

	tracker := monitor.NewInactivityTracker(reg, prefs, events, nil, logger)

	deps := guard.Deps{
		Events:        events,
		Sessions:      sessions,
		Overlay:       lifecycle,
		Registry:      reg,
		Processes:     procs,
		Settings:      prefs,
		Authenticator: authenticator,
		Secrets:       secrets,
		Notifier:      notifier,
		Inactivity:    tracker,
		Logger:        logger,
	}
	if detector != nil {
		deps.Trust = detector
	}
	coordinator := guard.New(deps)

	activity := monitor.NewActivityMonitor(procs, reg, sessions, prefs, lifecycle.Showing, events, nil, logger)
	idle := monitor.NewIdleDetector(prefs, events, nil, logger)
	sleepWake := monitor.NewSleepWakeDetector(events, nil, logger)

	go coordinator.Run(ctx)
	go activity.Run(ctx)
	go idle.Run(ctx)
	go sleepWake.Run(ctx)
	go tracker.Run(ctx)
	if detector != nil {
		go detector.Run(ctx)
	}

	control := logging.NewGuardControlLogger(coordinator, logger)

	routerConfig := api.RouterConfig{
		Registry: reg,
		Settings: prefs,
		Control:  control,
		Secrets:  secrets,
		APIKey:   cfg.Security.APIKey,
		Logger:   logger,
	}
	if detector != nil {
		routerConfig.Companion = detector
	}
	router := api.NewRouter(routerConfig)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		logger.Info("starting graceful shutdown", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		logger.Info("graceful shutdown complete")
	}

	return nil
}
