package coordinator

import (
	"sync"
	"time"

	"github.com/bloomin8/eink-canvas-addon/internal/model"
)

// Cache holds the last known device snapshot in memory. It answers every
// read; the network is only touched by explicit refreshes.
type Cache struct {
	mu          sync.RWMutex
	snapshot    *model.DeviceSnapshot
	capturedAt  time.Time
	lastAttempt time.Time
}

func NewCache() *Cache {
	return &Cache{}
}

// Current returns the cached snapshot, its capture time, and whether one
// exists at all.
func (c *Cache) Current() (model.DeviceSnapshot, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return model.DeviceSnapshot{}, time.Time{}, false
	}
	return *c.snapshot, c.capturedAt, true
}

// Store replaces the cached snapshot. A store counts as a contact attempt.
func (c *Cache) Store(snap model.DeviceSnapshot, capturedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := snap
	c.snapshot = &copied
	c.capturedAt = capturedAt
	if capturedAt.After(c.lastAttempt) {
		c.lastAttempt = capturedAt
	}
}

// MarkAttempt records that the device was contacted (successfully or not)
// without touching the snapshot.
func (c *Cache) MarkAttempt(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if at.After(c.lastAttempt) {
		c.lastAttempt = at
	}
}

func (c *Cache) LastAttempt() (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastAttempt, !c.lastAttempt.IsZero()
}

// Reachability derives the device's assumed state from snapshot age alone.
func (c *Cache) Reachability(now time.Time) model.Reachability {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return model.ComputeReachability(c.snapshot, c.capturedAt, now)
}
