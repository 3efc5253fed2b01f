package model

import (
	"testing"
	"time"
)

func TestCanvasConfigBaseURL(t *testing.T) {
	t.Helper()

	tests := []struct {
		name string
		cfg  CanvasConfig
		want string
	}{
		{
			name: "bare ip gets http scheme",
			cfg:  CanvasConfig{Host: "192.168.1.50"},
			want: "http://192.168.1.50",
		},
		{
			name: "host with port is kept",
			cfg:  CanvasConfig{Host: "192.168.1.50:8080"},
			want: "http://192.168.1.50:8080",
		},
		{
			name: "explicit scheme is kept",
			cfg:  CanvasConfig{Host: "http://canvas.local"},
			want: "http://canvas.local",
		},
		{
			name: "trailing slash is trimmed",
			cfg:  CanvasConfig{Host: "http://192.168.1.50/"},
			want: "http://192.168.1.50",
		},
		{
			name: "empty host yields empty url",
			cfg:  CanvasConfig{Host: "  "},
			want: "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Helper()
			got := tt.cfg.BaseURL()
			if got != tt.want {
				t.Fatalf("BaseURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCanvasConfigPollIntervalClampsLowValues(t *testing.T) {
	t.Helper()

	cfg := CanvasConfig{PollIntervalSec: 5}
	if got := cfg.PollInterval(); got != time.Minute {
		t.Fatalf("PollInterval() = %v, want %v", got, time.Minute)
	}

	cfg.PollIntervalSec = 600
	if got := cfg.PollInterval(); got != 10*time.Minute {
		t.Fatalf("PollInterval() = %v, want %v", got, 10*time.Minute)
	}
}

func TestNormalizeMAC(t *testing.T) {
	t.Helper()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lower colon form", in: "aa:bb:cc:dd:ee:ff", want: "AA:BB:CC:DD:EE:FF"},
		{name: "dash form", in: "AA-BB-CC-DD-EE-FF", want: "AA:BB:CC:DD:EE:FF"},
		{name: "surrounding spaces", in: "  aa:bb:cc:dd:ee:ff ", want: "AA:BB:CC:DD:EE:FF"},
		{name: "garbage", in: "not-a-mac", want: ""},
		{name: "too long", in: "aa:bb:cc:dd:ee:ff:00:11", want: ""},
		{name: "empty", in: "", want: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Helper()
			if got := NormalizeMAC(tt.in); got != tt.want {
				t.Fatalf("NormalizeMAC(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestWakeConfigured(t *testing.T) {
	t.Helper()

	cfg := CanvasConfig{BLEMAC: "aa:bb:cc:dd:ee:ff"}
	if !cfg.WakeConfigured() {
		t.Fatal("WakeConfigured() = false, want true")
	}
	cfg.BLEMAC = ""
	if cfg.WakeConfigured() {
		t.Fatal("WakeConfigured() = true, want false")
	}
	cfg.BLEMAC = "bogus"
	if cfg.WakeConfigured() {
		t.Fatal("WakeConfigured() = true for unparsable address, want false")
	}
}
