package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/bloomin8/eink-canvas-addon/internal/coordinator"
	"github.com/bloomin8/eink-canvas-addon/internal/mqtt"
)

const (
	defaultHTTPAddr              = ":8099"
	defaultDBPath                = "/data/eink_canvas.db"
	defaultHABaseURL             = "http://supervisor/core"
	defaultBLEAdapter            = "hci0"
	defaultConfigRefreshInterval = time.Minute
	defaultEventPruneInterval    = time.Hour
	defaultEventRetention        = 14 * 24 * time.Hour
	defaultEventKeep             = 500
	defaultMQTTBaseTopic         = "eink_canvas"
)

// Config stores runtime settings loaded from environment variables. Panel
// settings (host, BLE MAC, poll interval) are not here; those belong to the
// companion integration and arrive through configsync.
type Config struct {
	HTTPAddr              string
	DBPath                string
	HABaseURL             string
	SupervisorToken       string
	BLEAdapter            string
	ConfigRefreshInterval time.Duration
	LogLevel              slog.Level
	Refresh               coordinator.Tunables
	EventPruneInterval    time.Duration
	EventRetention        time.Duration
	EventKeep             int
	MQTT                  mqtt.Config
}

// Load builds Config from environment variables using stable defaults.
// SUPERVISOR_TOKEN is injected by the supervisor on Home Assistant OS.
func Load() Config {
	refresh := coordinator.DefaultTunables()
	return Config{
		HTTPAddr:              getenv("HTTP_ADDR", defaultHTTPAddr),
		DBPath:                getenv("DB_PATH", defaultDBPath),
		HABaseURL:             getenv("HA_BASE_URL", defaultHABaseURL),
		SupervisorToken:       strings.TrimSpace(os.Getenv("SUPERVISOR_TOKEN")),
		BLEAdapter:            getenv("BLE_ADAPTER", defaultBLEAdapter),
		ConfigRefreshInterval: parseDuration("CONFIG_REFRESH_INTERVAL", defaultConfigRefreshInterval),
		LogLevel:              parseLogLevel(getenv("LOG_LEVEL", "info")),
		Refresh: coordinator.Tunables{
			PostWakeDelay: parseDuration("POST_WAKE_DELAY", refresh.PostWakeDelay),
			RetryAttempts: parseInt("REFRESH_RETRY_ATTEMPTS", refresh.RetryAttempts),
			RetryDelay:    parseDuration("REFRESH_RETRY_DELAY", refresh.RetryDelay),
			RefreshBudget: parseDuration("REFRESH_BUDGET", refresh.RefreshBudget),
		}.Normalize(),
		EventPruneInterval: parseDuration("EVENT_PRUNE_INTERVAL", defaultEventPruneInterval),
		EventRetention:     parseDuration("EVENT_RETENTION", defaultEventRetention),
		EventKeep:          parseInt("EVENT_KEEP", defaultEventKeep),
		MQTT: mqtt.Config{
			BrokerURL: getenv("MQTT_BROKER_URL", ""),
			Username:  getenv("MQTT_USERNAME", ""),
			Password:  os.Getenv("MQTT_PASSWORD"),
			ClientID:  getenv("MQTT_CLIENT_ID", ""),
			BaseTopic: getenv("MQTT_BASE_TOPIC", defaultMQTTBaseTopic),
		},
	}
}

// DBDir returns the target directory for DBPath.
func (c Config) DBDir() string {
	return filepath.Dir(c.DBPath)
}

func getenv(key string, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func parseDuration(key string, fallback time.Duration) time.Duration {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseInt(key string, fallback int) int {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseLogLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
