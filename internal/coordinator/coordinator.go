package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bloomin8/eink-canvas-addon/internal/canvas"
	"github.com/bloomin8/eink-canvas-addon/internal/model"
	"github.com/bloomin8/eink-canvas-addon/internal/storage"
	"github.com/bloomin8/eink-canvas-addon/internal/wake"
)

var ErrNotConfigured = errors.New("canvas not configured")

const refreshKey = "refresh"

// Source says what prompted a refresh; it shows up in logs and events.
type Source string

const (
	SourceStartup    Source = "startup"
	SourcePeriodic   Source = "periodic"
	SourceUser       Source = "user"
	SourcePostAction Source = "post_action"
	SourcePush       Source = "push"
)

type Status string

const (
	StatusSuccess     Status = "SUCCESS"
	StatusUnreachable Status = "UNREACHABLE"
	StatusFailed      Status = "FAILED"
)

// Outcome is the shared result of one refresh flight. Unreachable is a normal
// outcome for a sleeping panel, so Err is only meaningful for StatusFailed.
type Outcome struct {
	Status     Status
	Snapshot   *model.DeviceSnapshot
	CapturedAt time.Time
	Wake       wake.Result
	Err        error
}

// Event fans out to subscribers after pushes and successful refreshes.
type Event struct {
	Snapshot     model.DeviceSnapshot `json:"snapshot"`
	CapturedAt   time.Time            `json:"captured_at"`
	Reachability model.Reachability   `json:"reachability"`
	Source       Source               `json:"source"`
}

// SnapshotView is the cache as served to readers, with reachability derived
// at read time.
type SnapshotView struct {
	Snapshot     *model.DeviceSnapshot `json:"snapshot"`
	CapturedAt   *time.Time            `json:"captured_at,omitempty"`
	LastAttempt  *time.Time            `json:"last_attempt,omitempty"`
	Reachability model.Reachability    `json:"reachability"`
}

type DeviceClient interface {
	DeviceInfo(ctx context.Context, cfg model.CanvasConfig) (model.DeviceSnapshot, error)
}

type Waker interface {
	MaybeWake(ctx context.Context, cfg model.CanvasConfig, policy wake.Policy) wake.Result
}

type ConfigSource interface {
	Get() (model.CanvasConfig, bool)
}

// Tunables bound the post-wake settle and retry behavior. The panel needs a
// moment after the BLE pulse before its HTTP server answers.
type Tunables struct {
	PostWakeDelay time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	RefreshBudget time.Duration
}

func DefaultTunables() Tunables {
	return Tunables{
		PostWakeDelay: 3 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    2 * time.Second,
		RefreshBudget: 90 * time.Second,
	}
}

func (t Tunables) Normalize() Tunables {
	defaults := DefaultTunables()
	if t.PostWakeDelay < 0 {
		t.PostWakeDelay = defaults.PostWakeDelay
	}
	if t.RetryAttempts < 0 {
		t.RetryAttempts = defaults.RetryAttempts
	}
	if t.RetryDelay <= 0 {
		t.RetryDelay = defaults.RetryDelay
	}
	if t.RefreshBudget <= 0 {
		t.RefreshBudget = defaults.RefreshBudget
	}
	return t
}

// Coordinator owns the snapshot cache and funnels every device refresh
// through one single-flight group, so a burst of callers costs the panel a
// single HTTP exchange.
type Coordinator struct {
	client   DeviceClient
	waker    Waker
	config   ConfigSource
	store    *storage.Repository
	cache    *Cache
	logger   *slog.Logger
	tunables Tunables

	flight singleflight.Group

	mu          sync.Mutex
	subscribers map[int]chan Event
	nextSubID   int

	nowFn   func() time.Time
	sleepFn func(ctx context.Context, d time.Duration) error
}

func New(client DeviceClient, waker Waker, config ConfigSource, store *storage.Repository, logger *slog.Logger, tunables Tunables) *Coordinator {
	return &Coordinator{
		client:      client,
		waker:       waker,
		config:      config,
		store:       store,
		cache:       NewCache(),
		logger:      logger,
		tunables:    tunables.Normalize(),
		subscribers: map[int]chan Event{},
		nowFn:       time.Now,
		sleepFn:     sleepContext,
	}
}

// Restore warms the cache from disk so reads work before the first contact.
func (c *Coordinator) Restore(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	snap, capturedAt, err := c.store.LoadSnapshot(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	c.cache.Store(snap, capturedAt)
	c.logger.Info("restored cached snapshot",
		"captured_at", capturedAt,
		"reachability", string(c.cache.Reachability(c.nowFn())))
	return nil
}

// View serves the cache without touching the network.
func (c *Coordinator) View() SnapshotView {
	now := c.nowFn()
	view := SnapshotView{Reachability: c.cache.Reachability(now)}
	if snap, capturedAt, ok := c.cache.Current(); ok {
		view.Snapshot = &snap
		view.CapturedAt = &capturedAt
	}
	if attempt, ok := c.cache.LastAttempt(); ok {
		view.LastAttempt = &attempt
	}
	return view
}

// RequestRefresh fetches fresh device state, deduplicating concurrent
// callers onto one flight. Callers whose context ends while waiting detach
// with a failed outcome; the flight itself keeps running on its own budget
// and still lands in the cache.
func (c *Coordinator) RequestRefresh(ctx context.Context, policy wake.Policy, source Source) Outcome {
	ch := c.flight.DoChan(refreshKey, func() (any, error) {
		return c.doRefresh(context.WithoutCancel(ctx), policy, source), nil
	})

	select {
	case <-ctx.Done():
		return Outcome{Status: StatusFailed, Err: ctx.Err()}
	case res := <-ch:
		outcome, ok := res.Val.(Outcome)
		if !ok {
			return Outcome{Status: StatusFailed, Err: errors.New("refresh flight returned no outcome")}
		}
		return outcome
	}
}

func (c *Coordinator) doRefresh(ctx context.Context, policy wake.Policy, source Source) Outcome {
	cfg, ok := c.config.Get()
	if !ok {
		return Outcome{Status: StatusFailed, Err: ErrNotConfigured}
	}

	ctx, cancel := context.WithTimeout(ctx, c.tunables.RefreshBudget)
	defer cancel()

	started := c.nowFn()
	wakeResult := c.waker.MaybeWake(ctx, cfg, policy)
	if wakeResult.Attempted() {
		if err := c.sleepFn(ctx, c.tunables.PostWakeDelay); err != nil {
			return Outcome{Status: StatusFailed, Wake: wakeResult, Err: err}
		}
	}

	snap, err := c.client.DeviceInfo(ctx, cfg)
	if canvas.IsUnreachable(err) && wakeResult.Attempted() {
		// The pulse went out but the panel has not shown up yet; give it a
		// few more chances before conceding it stayed asleep.
		for attempt := 1; attempt <= c.tunables.RetryAttempts && canvas.IsUnreachable(err); attempt++ {
			if sleepErr := c.sleepFn(ctx, c.tunables.RetryDelay); sleepErr != nil {
				break
			}
			snap, err = c.client.DeviceInfo(ctx, cfg)
		}
	}

	now := c.nowFn()
	switch {
	case err == nil:
		c.commit(ctx, snap, now, source)
		copied := snap
		c.logger.Debug("canvas refresh ok",
			"source", string(source),
			"wake", string(wakeResult),
			"elapsed", now.Sub(started))
		return Outcome{Status: StatusSuccess, Snapshot: &copied, CapturedAt: now, Wake: wakeResult}
	case canvas.IsUnreachable(err):
		c.cache.MarkAttempt(now)
		c.logger.Debug("canvas unreachable",
			"source", string(source),
			"wake", string(wakeResult),
			"error", err)
		return Outcome{Status: StatusUnreachable, Wake: wakeResult, Err: err}
	default:
		c.logger.Warn("canvas refresh failed",
			"source", string(source),
			"wake", string(wakeResult),
			"error", err)
		return Outcome{Status: StatusFailed, Wake: wakeResult, Err: err}
	}
}

// Push injects a snapshot obtained outside the refresh path, e.g. the echo
// of a settings write. An identical snapshot still resets the staleness
// clock but does not re-notify subscribers.
func (c *Coordinator) Push(snap model.DeviceSnapshot, source Source) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c.commit(ctx, snap, c.nowFn(), source)
}

func (c *Coordinator) commit(ctx context.Context, snap model.DeviceSnapshot, capturedAt time.Time, source Source) {
	prev, _, had := c.cache.Current()
	identical := had && prev.Equal(snap)
	c.cache.Store(snap, capturedAt)

	if c.store != nil {
		if err := c.store.SaveSnapshot(ctx, snap, capturedAt); err != nil {
			c.logger.Warn("persist snapshot failed", "error", err)
		}
	}
	if identical {
		return
	}
	c.notify(Event{
		Snapshot:     snap,
		CapturedAt:   capturedAt,
		Reachability: model.ComputeReachability(&snap, capturedAt, c.nowFn()),
		Source:       source,
	})
}

// Subscribe registers a snapshot event listener. The returned cancel func
// unregisters and closes the channel.
func (c *Coordinator) Subscribe() (<-chan Event, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSubID
	c.nextSubID++
	ch := make(chan Event, 8)
	c.subscribers[id] = ch

	cancel := func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subscribers[id]; ok {
			delete(c.subscribers, id)
			close(sub)
		}
	}
	return ch, cancel
}

func (c *Coordinator) notify(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ch := range c.subscribers {
		select {
		case ch <- event:
		default:
			// Slow consumer: drop rather than stall the refresh path.
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
