package model

import (
	"net"
	"strings"
	"time"
)

// CanvasConfig represents a normalized integration configuration payload.
type CanvasConfig struct {
	Version         int64     `json:"version"`
	UpdatedAt       time.Time `json:"updated_at"`
	Host            string    `json:"host"`
	Name            string    `json:"name"`
	BLEMAC          string    `json:"ble_mac"`
	BLEAutoWake     bool      `json:"ble_auto_wake"`
	PollEnabled     bool      `json:"poll_enabled"`
	PollIntervalSec int       `json:"poll_interval_sec"`
}

func (c CanvasConfig) PollInterval() time.Duration {
	interval := time.Duration(c.PollIntervalSec) * time.Second
	if interval < time.Minute {
		return time.Minute
	}
	return interval
}

// BaseURL builds the panel's HTTP endpoint. The firmware only speaks plain
// HTTP on the station IP, so a bare host gets an http scheme.
func (c CanvasConfig) BaseURL() string {
	raw := strings.TrimSpace(c.Host)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	return strings.TrimRight(raw, "/")
}

func (c CanvasConfig) WakeConfigured() bool {
	return NormalizeMAC(c.BLEMAC) != ""
}

// NormalizeMAC canonicalizes a Bluetooth address to upper-case colon form.
// It returns "" when the input does not parse as a 48-bit address.
func NormalizeMAC(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	hw, err := net.ParseMAC(trimmed)
	if err != nil || len(hw) != 6 {
		return ""
	}
	return strings.ToUpper(hw.String())
}
