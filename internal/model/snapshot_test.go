package model

import (
	"testing"
	"time"
)

func TestComputeReachabilityAgeBoundary(t *testing.T) {
	t.Helper()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	snap := &DeviceSnapshot{Name: "hall-canvas", MaxIdleSec: 120}

	tests := []struct {
		name       string
		capturedAt time.Time
		want       Reachability
	}{
		{
			name:       "younger than idle window",
			capturedAt: now.Add(-119 * time.Second),
			want:       ReachabilityOnline,
		},
		{
			name:       "exactly at idle window",
			capturedAt: now.Add(-120 * time.Second),
			want:       ReachabilityOnline,
		},
		{
			name:       "older than idle window",
			capturedAt: now.Add(-121 * time.Second),
			want:       ReachabilityAsleepAssumed,
		},
		{
			name:       "future capture clamps to online",
			capturedAt: now.Add(30 * time.Second),
			want:       ReachabilityOnline,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Helper()
			got := ComputeReachability(snap, tt.capturedAt, now)
			if got != tt.want {
				t.Fatalf("ComputeReachability() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestComputeReachabilityWithoutSnapshot(t *testing.T) {
	t.Helper()

	now := time.Now()
	if got := ComputeReachability(nil, time.Time{}, now); got != ReachabilityUnknown {
		t.Fatalf("ComputeReachability(nil) = %q, want %q", got, ReachabilityUnknown)
	}
	snap := &DeviceSnapshot{MaxIdleSec: 120}
	if got := ComputeReachability(snap, time.Time{}, now); got != ReachabilityUnknown {
		t.Fatalf("ComputeReachability(zero capture) = %q, want %q", got, ReachabilityUnknown)
	}
}

func TestComputeReachabilityAppliesDefaultIdleWindow(t *testing.T) {
	t.Helper()

	now := time.Now()
	snap := &DeviceSnapshot{MaxIdleSec: 0}

	if got := ComputeReachability(snap, now.Add(-DefaultMaxIdle+time.Second), now); got != ReachabilityOnline {
		t.Fatalf("ComputeReachability() = %q, want %q", got, ReachabilityOnline)
	}
	if got := ComputeReachability(snap, now.Add(-DefaultMaxIdle-time.Second), now); got != ReachabilityAsleepAssumed {
		t.Fatalf("ComputeReachability() = %q, want %q", got, ReachabilityAsleepAssumed)
	}
}

func TestDeviceSnapshotEqual(t *testing.T) {
	t.Helper()

	battery := func(v int) *int { return &v }

	base := DeviceSnapshot{
		Name:     "hall-canvas",
		Firmware: "1.4.2",
		Battery:  battery(87),
		Image:    "/gallerys/default/sunrise.jpg",
		PlayMode: PlayModeSingle,
	}

	same := base
	same.Battery = battery(87)
	if !base.Equal(same) {
		t.Fatal("Equal() = false for identical snapshots, want true")
	}

	drained := base
	drained.Battery = battery(61)
	if base.Equal(drained) {
		t.Fatal("Equal() = true for different battery, want false")
	}

	missing := base
	missing.Battery = nil
	if base.Equal(missing) {
		t.Fatal("Equal() = true when one battery is absent, want false")
	}

	moved := base
	moved.Battery = battery(87)
	moved.Image = "/gallerys/default/sunset.jpg"
	if base.Equal(moved) {
		t.Fatal("Equal() = true for different image, want false")
	}
}

func TestPlayModeString(t *testing.T) {
	t.Helper()

	tests := []struct {
		mode PlayMode
		want string
	}{
		{PlayModeSingle, "single"},
		{PlayModeSlideshow, "slideshow"},
		{PlayModePlaylist, "playlist"},
		{PlayMode(7), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.mode.String(); got != tt.want {
			t.Fatalf("PlayMode(%d).String() = %q, want %q", int(tt.mode), got, tt.want)
		}
	}
	if PlayMode(3).Valid() {
		t.Fatal("Valid() = true for out-of-range mode, want false")
	}
}
