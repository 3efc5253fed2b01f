package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bloomin8/eink-canvas-addon/internal/actions"
	"github.com/bloomin8/eink-canvas-addon/internal/canvas"
	"github.com/bloomin8/eink-canvas-addon/internal/config"
	"github.com/bloomin8/eink-canvas-addon/internal/configsync"
	"github.com/bloomin8/eink-canvas-addon/internal/coordinator"
	httpapi "github.com/bloomin8/eink-canvas-addon/internal/http"
	"github.com/bloomin8/eink-canvas-addon/internal/http/handlers"
	"github.com/bloomin8/eink-canvas-addon/internal/logging"
	"github.com/bloomin8/eink-canvas-addon/internal/mqtt"
	"github.com/bloomin8/eink-canvas-addon/internal/poller"
	"github.com/bloomin8/eink-canvas-addon/internal/storage"
	"github.com/bloomin8/eink-canvas-addon/internal/wake"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)

	if err := os.MkdirAll(cfg.DBDir(), 0o755); err != nil {
		logger.Error("failed to create db directory", "err", err)
		os.Exit(1)
	}

	repo, err := storage.New(ctx, cfg.DBPath, logging.Component(logger, "storage"))
	if err != nil {
		logger.Error("failed to initialize storage", "err", err)
		os.Exit(1)
	}
	defer repo.Close()

	cfgClient := configsync.NewClient(cfg.HABaseURL, cfg.SupervisorToken)
	cfgManager := configsync.NewManager(cfgClient, logging.Component(logger, "configsync"))
	if _, err := cfgManager.Refresh(ctx); err != nil {
		logger.Warn("initial config refresh failed", "err", err)
	}

	deviceClient := canvas.NewClient()
	waker := wake.New(logging.Component(logger, "wake"), cfg.BLEAdapter)

	coord := coordinator.New(deviceClient, waker, cfgManager, repo, logging.Component(logger, "coordinator"), cfg.Refresh)
	if err := coord.Restore(ctx); err != nil {
		logger.Warn("snapshot restore failed", "err", err)
	}

	dispatcher, err := actions.NewDispatcher(deviceClient, waker, cfgManager, coord, repo, logging.Component(logger, "actions"), cfg.Refresh)
	if err != nil {
		logger.Error("failed to build action dispatcher", "err", err)
		os.Exit(1)
	}

	hub := handlers.NewHub(logging.Component(logger, "ws"))
	go hub.Run(ctx)

	hubEvents, unsubscribeHub := coord.Subscribe()
	defer unsubscribeHub()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-hubEvents:
				if !ok {
					return
				}
				hub.Publish(event)
			}
		}
	}()

	if cfg.MQTT.Enabled() {
		mqttEvents, unsubscribeMQTT := coord.Subscribe()
		defer unsubscribeMQTT()
		publisher := mqtt.New(cfg.MQTT, logging.Component(logger, "mqtt"))
		// Connect blocks until the broker answers, so run the whole pipeline
		// off the main path; the Mosquitto add-on may still be booting.
		go func() {
			if err := publisher.Connect(); err != nil {
				logger.Error("mqtt connect failed", "err", err)
				return
			}
			publisher.Run(ctx, mqttEvents)
		}()
	}

	devicePoller := poller.New(coord, cfgManager, logging.Component(logger, "poller"))
	go devicePoller.Run(ctx)

	// First snapshot attempt is passive. A panel that sleeps through it shows
	// up as ASLEEP_ASSUMED until its own schedule or a user action wakes it.
	go func() {
		outcome := coord.RequestRefresh(ctx, wake.PolicyNever, coordinator.SourceStartup)
		if outcome.Status == coordinator.StatusFailed && !errors.Is(outcome.Err, coordinator.ErrNotConfigured) {
			logger.Warn("startup refresh failed", "err", outcome.Err)
		}
	}()

	go runConfigFallbackRefresh(ctx, cfgManager, devicePoller, logger, cfg.ConfigRefreshInterval)

	if cfg.SupervisorToken != "" {
		watcher := configsync.NewWatcher(cfg.HABaseURL, cfg.SupervisorToken, logging.Component(logger, "configsync"))
		go watcher.Run(ctx, func() {
			refreshCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			changed, err := cfgManager.Refresh(refreshCtx)
			if err != nil {
				logger.Warn("config refresh from event failed", "err", err)
				return
			}
			if changed {
				devicePoller.TriggerRefresh()
			}
		})
	} else {
		logger.Warn("SUPERVISOR_TOKEN is empty; config sync watcher disabled")
	}

	pruner := storage.NewPruner(repo, logging.Component(logger, "storage"), cfg.EventPruneInterval, cfg.EventRetention, cfg.EventKeep)
	go pruner.Run(ctx)

	api := handlers.New(dispatcher, coord, cfgManager, deviceClient, repo, hub, logging.Component(logger, "http"))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(api),
		ReadHeaderTimeout: 5 * time.Second,
		// Reads and writes stay generous: uploads arrive over house WiFi and
		// action requests may sit through a wake plus an e-ink full refresh.
		ReadTimeout:  time.Minute,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server starting", "addr", httpServer.Addr)
	if err := httpapi.RunServer(ctx, httpServer); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server terminated with error", "err", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func runConfigFallbackRefresh(ctx context.Context, cfg *configsync.Manager, p *poller.Poller, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			changed, err := cfg.Refresh(refreshCtx)
			cancel()
			if err != nil {
				logger.Warn("periodic config refresh failed", "err", err)
				continue
			}
			if changed {
				p.TriggerRefresh()
			}
		}
	}
}
