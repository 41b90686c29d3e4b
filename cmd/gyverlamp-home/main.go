package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gyverlamp-go-home/internal/lamp"
	"gyverlamp-go-home/internal/metrics"
	"gyverlamp-go-home/internal/schedule"
	"gyverlamp-go-home/internal/store"
	"gyverlamp-go-home/internal/transport"
	"gyverlamp-go-home/internal/web"
)

// version is set at build time via -ldflags "-X main.version=..."
var version = "dev"

func main() {
	// Temporary logger for config loading errors.
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfgPath := "config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		bootLogger.Error("load config", "err", err)
		os.Exit(1)
	}

	if err := cfg.validate(); err != nil {
		bootLogger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("gyverlamp-go-home starting", "lamps", len(cfg.Lamps))

	db, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		logger.Error("open store", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	lamps, err := buildLamps(cfg, db, transport.NewUDP(0), logger)
	if err != nil {
		logger.Error("create lamps", "err", err)
		os.Exit(1)
	}
	stale := pruneStaleLamps(db, lamps, logger)

	collector := metrics.New(lamps)
	collector.Start()

	loc, _ := cfg.location()
	sched, err := schedule.New(lamps, cfg.Schedules, loc, logger)
	if err != nil {
		logger.Error("invalid schedule", "err", err)
		os.Exit(1)
	}
	sched.Start()

	// Start automation engine (no-op when built with no_automation tag).
	auto, autoWebOpts := initAutomation(lamps, cfg, loc, logger)

	webOpts := []web.ServerOption{
		web.WithVersion(version),
		web.WithMetrics(collector.Handler()),
		web.WithScheduler(sched),
		web.WithRateLimit(cfg.Web.RateLimit.RPS, cfg.Web.RateLimit.Burst),
	}
	if cfg.Web.APIKey != "" {
		webOpts = append(webOpts, web.WithAPIKey(cfg.Web.APIKey))
	}
	if len(cfg.Web.AllowedOrigins) > 0 {
		webOpts = append(webOpts, web.WithAllowedOrigins(cfg.Web.AllowedOrigins))
	}
	webOpts = append(webOpts, autoWebOpts...)

	webServer := web.NewServer(lamps, logger, webOpts...)

	httpServer := &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      webServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("web server starting", "addr", cfg.Web.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
		}
	}()

	// Start MQTT bridge (no-op when built with no_mqtt tag).
	mqtt := initMQTT(lamps, cfg, logger)
	mqtt.RemoveLamps(stale)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	signal.Stop(sigCh)
	logger.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	sched.Stop()
	auto.Stop()
	mqtt.Stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "err", err)
	}
	webServer.Stop()
	collector.Stop()

	logger.Info("goodbye")
}

// buildLamps creates and loads one manager per configured lamp. All
// managers share one event bus.
func buildLamps(cfg *Config, st store.Store, tx transport.Broadcaster, logger *slog.Logger) (*lamp.Lamps, error) {
	timeout, err := cfg.sendTimeout()
	if err != nil {
		return nil, err
	}
	bus := lamp.NewEventBus(logger.With("component", "events"))

	managers := make([]*lamp.Manager, 0, len(cfg.Lamps))
	for _, lc := range cfg.Lamps {
		m, err := lamp.New(lc.entry(), st, tx, logger, lamp.WithEventBus(bus), lamp.WithSendTimeout(timeout))
		if err != nil {
			return nil, err
		}
		m.Load()
		managers = append(managers, m)
	}
	return lamp.NewLamps(managers...), nil
}

// pruneStaleLamps deletes stored state for lamps no longer in the config
// and returns their IDs.
func pruneStaleLamps(st store.Store, lamps *lamp.Lamps, logger *slog.Logger) []string {
	ids, err := st.ListLampIDs()
	if err != nil {
		logger.Error("list stored lamps", "err", err)
		return nil
	}
	var stale []string
	for _, id := range ids {
		if _, ok := lamps.Get(id); ok {
			continue
		}
		if err := st.DeleteLampState(id); err != nil {
			logger.Error("delete stale lamp state", "lamp", id, "err", err)
			continue
		}
		logger.Info("removed state of unconfigured lamp", "lamp", id)
		stale = append(stale, id)
	}
	return stale
}

func newLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "gyverlamp-go-home"),
		slog.String("version", version),
	})
	return slog.New(handler)
}
