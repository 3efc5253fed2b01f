package poller

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bloomin8/eink-canvas-addon/internal/coordinator"
	"github.com/bloomin8/eink-canvas-addon/internal/model"
	"github.com/bloomin8/eink-canvas-addon/internal/wake"
)

type fakeRefresher struct {
	mu       sync.Mutex
	policies []wake.Policy
	view     coordinator.SnapshotView
	notify   chan struct{}
}

func newFakeRefresher() *fakeRefresher {
	return &fakeRefresher{notify: make(chan struct{}, 8)}
}

func (f *fakeRefresher) RequestRefresh(ctx context.Context, policy wake.Policy, source coordinator.Source) coordinator.Outcome {
	f.mu.Lock()
	f.policies = append(f.policies, policy)
	f.mu.Unlock()
	select {
	case f.notify <- struct{}{}:
	default:
	}
	return coordinator.Outcome{Status: coordinator.StatusSuccess}
}

func (f *fakeRefresher) View() coordinator.SnapshotView {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

func (f *fakeRefresher) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.policies)
}

type staticConfig struct {
	cfg model.CanvasConfig
	ok  bool
}

func (s staticConfig) Get() (model.CanvasConfig, bool) { return s.cfg, s.ok }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTriggeredPollWakesWithAutoPolicy(t *testing.T) {
	refresher := newFakeRefresher()
	cfg := model.CanvasConfig{Host: "192.0.2.10", PollEnabled: false, PollIntervalSec: 900}
	p := New(refresher, staticConfig{cfg: cfg, ok: true}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	// PollEnabled is off, so only the explicit trigger may cause a refresh.
	p.TriggerRefresh()

	select {
	case <-refresher.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("triggered poll did not run")
	}
	cancel()

	if got := refresher.refreshCount(); got != 1 {
		t.Fatalf("refreshes = %d, want 1", got)
	}
	refresher.mu.Lock()
	policy := refresher.policies[0]
	refresher.mu.Unlock()
	if policy != wake.PolicyAuto {
		t.Fatalf("triggered poll policy = %q, want %q", policy, wake.PolicyAuto)
	}
}

func TestTriggerCoalescesBursts(t *testing.T) {
	p := New(newFakeRefresher(), staticConfig{}, testLogger())

	p.TriggerRefresh()
	p.TriggerRefresh()
	p.TriggerRefresh()

	if got := len(p.refreshCh); got != 1 {
		t.Fatalf("pending triggers = %d, want 1", got)
	}
}

func TestTriggerWithoutConfigDoesNothing(t *testing.T) {
	refresher := newFakeRefresher()
	p := New(refresher, staticConfig{ok: false}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.TriggerRefresh()
	time.Sleep(50 * time.Millisecond)
	cancel()

	if got := refresher.refreshCount(); got != 0 {
		t.Fatalf("refreshes = %d, want 0 while unpaired", got)
	}
}

func TestIntervalFloorsAtDeviceIdleWindow(t *testing.T) {
	refresher := newFakeRefresher()
	snap := model.DeviceSnapshot{MaxIdleSec: 600}
	refresher.view = coordinator.SnapshotView{Snapshot: &snap}

	tests := []struct {
		name string
		cfg  staticConfig
		want time.Duration
	}{
		{
			name: "unconfigured",
			cfg:  staticConfig{ok: false},
			want: unconfiguredRetry,
		},
		{
			name: "configured above floor",
			cfg:  staticConfig{cfg: model.CanvasConfig{PollIntervalSec: 1800}, ok: true},
			want: 30 * time.Minute,
		},
		{
			name: "configured below floor",
			cfg:  staticConfig{cfg: model.CanvasConfig{PollIntervalSec: 60}, ok: true},
			want: 10*time.Minute + pollMargin,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			p := New(refresher, tt.cfg, testLogger())
			if got := p.interval(); got != tt.want {
				t.Fatalf("interval() = %v, want %v", got, tt.want)
			}
		})
	}
}
