package model

import "time"

// PlayMode mirrors the play_type field of the canvas firmware.
type PlayMode int

const (
	PlayModeSingle    PlayMode = 0
	PlayModeSlideshow PlayMode = 1
	PlayModePlaylist  PlayMode = 2
)

func (m PlayMode) Valid() bool {
	switch m {
	case PlayModeSingle, PlayModeSlideshow, PlayModePlaylist:
		return true
	}
	return false
}

func (m PlayMode) String() string {
	switch m {
	case PlayModeSingle:
		return "single"
	case PlayModeSlideshow:
		return "slideshow"
	case PlayModePlaylist:
		return "playlist"
	}
	return "unknown"
}

type Reachability string

const (
	ReachabilityOnline        Reachability = "ONLINE"
	ReachabilityAsleepAssumed Reachability = "ASLEEP_ASSUMED"
	ReachabilityUnknown       Reachability = "UNKNOWN"
)

// DefaultMaxIdle is assumed when the firmware reports no usable max_idle.
const DefaultMaxIdle = 5 * time.Minute

// DeviceSnapshot mirrors the /deviceInfo payload of the canvas firmware.
type DeviceSnapshot struct {
	Name             string   `json:"name"`
	Firmware         string   `json:"version"`
	BoardModel       string   `json:"board_model"`
	ScreenModel      string   `json:"screen_model"`
	NetworkType      string   `json:"network_type"`
	SSID             string   `json:"sta_ssid"`
	IP               string   `json:"sta_ip"`
	Width            int      `json:"width"`
	Height           int      `json:"height"`
	Battery          *int     `json:"battery,omitempty"`
	TotalSize        int64    `json:"total_size"`
	FreeSize         int64    `json:"free_size"`
	FSReady          bool     `json:"fs_ready"`
	SleepDurationSec int      `json:"sleep_duration"`
	MaxIdleSec       int      `json:"max_idle"`
	WakeSensitivity  int      `json:"idx_wake_sens"`
	Image            string   `json:"image"`
	NextWakeAtSec    int64    `json:"next_time"`
	Gallery          string   `json:"gallery"`
	Playlist         string   `json:"playlist"`
	PlayMode         PlayMode `json:"play_type"`
}

// MaxIdle is how long the panel keeps WiFi up after its last request.
func (s DeviceSnapshot) MaxIdle() time.Duration {
	if s.MaxIdleSec <= 0 {
		return DefaultMaxIdle
	}
	return time.Duration(s.MaxIdleSec) * time.Second
}

func (s DeviceSnapshot) Equal(other DeviceSnapshot) bool {
	if (s.Battery == nil) != (other.Battery == nil) {
		return false
	}
	if s.Battery != nil && *s.Battery != *other.Battery {
		return false
	}
	s.Battery, other.Battery = nil, nil
	return s == other
}

// ComputeReachability derives reachability from snapshot age alone; it never
// touches the network. A snapshot older than the panel's own idle window means
// the panel has almost certainly powered its radio down again.
func ComputeReachability(snap *DeviceSnapshot, capturedAt, now time.Time) Reachability {
	if snap == nil || capturedAt.IsZero() {
		return ReachabilityUnknown
	}
	age := now.Sub(capturedAt)
	if age < 0 {
		age = 0
	}
	if age <= snap.MaxIdle() {
		return ReachabilityOnline
	}
	return ReachabilityAsleepAssumed
}
