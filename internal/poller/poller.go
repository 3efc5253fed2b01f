package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bloomin8/eink-canvas-addon/internal/coordinator"
	"github.com/bloomin8/eink-canvas-addon/internal/model"
	"github.com/bloomin8/eink-canvas-addon/internal/wake"
)

// unconfiguredRetry is the re-check cadence while no panel is paired.
const unconfiguredRetry = 30 * time.Second

// pollMargin pads the device idle window so timed polls do not line up with
// the moment the panel nods off.
const pollMargin = 30 * time.Second

type Refresher interface {
	RequestRefresh(ctx context.Context, policy wake.Policy, source coordinator.Source) coordinator.Outcome
	View() coordinator.SnapshotView
}

type ConfigSource interface {
	Get() (model.CanvasConfig, bool)
}

// Poller drives periodic snapshot refreshes. Timed polls never pulse the
// radio; a sleeping panel stays asleep until its own wake schedule or a user
// action brings it back.
type Poller struct {
	refresher Refresher
	config    ConfigSource
	refreshCh chan struct{}
	logger    *slog.Logger
}

func New(refresher Refresher, config ConfigSource, logger *slog.Logger) *Poller {
	return &Poller{refresher: refresher, config: config, refreshCh: make(chan struct{}, 1), logger: logger}
}

// TriggerRefresh schedules an immediate poll, collapsing bursts into one.
func (p *Poller) TriggerRefresh() {
	select {
	case p.refreshCh <- struct{}{}:
	default:
	}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		triggered := false
		timer := time.NewTimer(p.interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.refreshCh:
			timer.Stop()
			triggered = true
		case <-timer.C:
		}

		cfg, configured := p.config.Get()
		if !configured {
			continue
		}
		if !triggered && !cfg.PollEnabled {
			continue
		}

		// A triggered poll may wake the panel: it means the pairing just
		// changed and somebody wants a first snapshot. Timed polls never do.
		policy := wake.PolicyNever
		if triggered {
			policy = wake.PolicyAuto
		}
		outcome := p.refresher.RequestRefresh(ctx, policy, coordinator.SourcePeriodic)
		if outcome.Status == coordinator.StatusFailed {
			if errors.Is(outcome.Err, coordinator.ErrNotConfigured) {
				p.logger.Info("poll skipped; canvas not configured")
				continue
			}
			if ctx.Err() == nil {
				p.logger.Error("poll failed", "err", outcome.Err)
			}
		}
	}
}

// interval picks the next poll delay: the configured cadence, floored by the
// panel's own idle window so polling is never tighter than its awake time.
func (p *Poller) interval() time.Duration {
	cfg, configured := p.config.Get()
	if !configured {
		return unconfiguredRetry
	}
	interval := cfg.PollInterval()
	if snap := p.refresher.View().Snapshot; snap != nil {
		if floor := snap.MaxIdle() + pollMargin; interval < floor {
			interval = floor
		}
	}
	return interval
}
