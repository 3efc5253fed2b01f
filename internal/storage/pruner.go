package storage

import (
	"context"
	"log/slog"
	"time"
)

// Pruner trims the event log on a schedule so the /data volume stays small
// on long-lived installs.
type Pruner struct {
	repo      *Repository
	logger    *slog.Logger
	interval  time.Duration
	retention time.Duration
	keep      int
}

func NewPruner(repo *Repository, logger *slog.Logger, interval, retention time.Duration, keep int) *Pruner {
	if interval <= 0 {
		interval = time.Hour
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	if keep <= 0 {
		keep = 500
	}
	return &Pruner{repo: repo, logger: logger, interval: interval, retention: retention, keep: keep}
}

func (p *Pruner) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := p.repo.PruneEvents(ctx, time.Now().Add(-p.retention), p.keep)
			if err != nil {
				p.logger.Warn("event log prune failed", "error", err)
				continue
			}
			if removed > 0 {
				p.logger.Debug("pruned event log", "removed", removed)
			}
		}
	}
}
