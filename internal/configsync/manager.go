package configsync

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bloomin8/eink-canvas-addon/internal/model"
)

// Manager holds the last known pairing and detects version changes across
// refreshes.
type Manager struct {
	client *Client
	logger *slog.Logger

	mu         sync.RWMutex
	configured bool
	config     model.CanvasConfig
}

func NewManager(client *Client, logger *slog.Logger) *Manager {
	return &Manager{client: client, logger: logger}
}

func (m *Manager) Refresh(ctx context.Context) (bool, error) {
	res, err := m.client.FetchConfig(ctx)
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	changed := false
	if !res.Configured {
		if m.configured {
			changed = true
			m.logger.Info("canvas unpaired")
		}
		m.configured = false
		m.config = model.CanvasConfig{}
		return changed, nil
	}

	if !m.configured || res.Config.Version != m.config.Version {
		changed = true
		m.logger.Info("canvas config changed",
			"version", res.Config.Version,
			"host", res.Config.Host,
			"wake_configured", res.Config.WakeConfigured())
	}
	m.configured = true
	m.config = res.Config
	return changed, nil
}

func (m *Manager) Get() (model.CanvasConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.configured {
		return model.CanvasConfig{}, false
	}
	return m.config, true
}
