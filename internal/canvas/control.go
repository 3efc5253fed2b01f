package canvas

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bloomin8/eink-canvas-addon/internal/model"
)

const (
	// DefaultGallery is where the firmware stores images when no gallery is named.
	DefaultGallery = "default"

	// defaultShowDuration pins an image until something else is shown.
	defaultShowDuration = 99999
)

// ShowRequest describes one /show invocation. The firmware wants a different
// payload shape per play mode, which payload() assembles.
type ShowRequest struct {
	Filename    string
	Gallery     string
	Playlist    string
	PlayMode    model.PlayMode
	Dither      *int
	DurationSec int
}

func (r ShowRequest) payload() (map[string]any, error) {
	gallery := r.Gallery
	if gallery == "" {
		gallery = DefaultGallery
	}
	duration := r.DurationSec
	if duration <= 0 {
		duration = defaultShowDuration
	}

	body := map[string]any{"play_type": int(r.PlayMode)}
	switch r.PlayMode {
	case model.PlayModeSingle:
		if r.Filename == "" {
			return nil, fmt.Errorf("show: filename required for single image mode")
		}
		body["image"] = JoinImagePath(gallery, r.Filename)
	case model.PlayModeSlideshow:
		// Slideshow wants the bare filename plus the gallery it cycles.
		body["image"] = r.Filename
		body["gallery"] = gallery
		body["duration"] = duration
	case model.PlayModePlaylist:
		if r.Playlist == "" {
			return nil, fmt.Errorf("show: playlist required for playlist mode")
		}
		body["playlist"] = r.Playlist
		if r.Filename != "" {
			body["image"] = JoinImagePath(gallery, r.Filename)
		}
	default:
		return nil, fmt.Errorf("show: invalid play mode %d", int(r.PlayMode))
	}
	if r.Dither != nil {
		body["dither"] = *r.Dither
	}
	return body, nil
}

// Show drives the panel's /show endpoint.
func (c *Client) Show(ctx context.Context, cfg model.CanvasConfig, req ShowRequest) error {
	payload, err := req.payload()
	if err != nil {
		return err
	}
	return c.sendJSON(ctx, cfg, "show", http.MethodPost, "/show", payload)
}

// ShowImagePath displays a single stored image addressed by its full device
// path, e.g. /gallerys/default/sunrise.jpg.
func (c *Client) ShowImagePath(ctx context.Context, cfg model.CanvasConfig, path string, dither *int) error {
	gallery, filename := SplitImagePath(path)
	return c.Show(ctx, cfg, ShowRequest{
		Filename: filename,
		Gallery:  gallery,
		PlayMode: model.PlayModeSingle,
		Dither:   dither,
	})
}

// ShowNext advances to the next image in the current rotation.
func (c *Client) ShowNext(ctx context.Context, cfg model.CanvasConfig) error {
	_, err := c.do(ctx, cfg, "showNext", apiRequest{method: http.MethodPost, path: "/showNext"})
	return err
}

// Sleep sends the panel back into deep sleep immediately.
func (c *Client) Sleep(ctx context.Context, cfg model.CanvasConfig) error {
	_, err := c.do(ctx, cfg, "sleep", apiRequest{method: http.MethodPost, path: "/sleep"})
	return err
}

// Reboot restarts the panel firmware.
func (c *Client) Reboot(ctx context.Context, cfg model.CanvasConfig) error {
	_, err := c.do(ctx, cfg, "reboot", apiRequest{method: http.MethodPost, path: "/reboot"})
	return err
}

// ClearScreen wipes the panel to white. A full e-ink clear cycle is slow, so
// this op gets a generous deadline.
func (c *Client) ClearScreen(ctx context.Context, cfg model.CanvasConfig) error {
	_, err := c.do(ctx, cfg, "clearScreen", apiRequest{
		method:  http.MethodPost,
		path:    "/clearScreen",
		timeout: slowOpTimeout,
	})
	return err
}

// Settings is the subset of panel settings writable over /settings. Nil
// fields are left untouched on the device.
type Settings struct {
	Name             *string `json:"name,omitempty"`
	SleepDurationSec *int    `json:"sleep_duration,omitempty"`
	MaxIdleSec       *int    `json:"max_idle,omitempty"`
	WakeSensitivity  *int    `json:"idx_wake_sens,omitempty"`
}

func (s Settings) IsZero() bool {
	return s.Name == nil && s.SleepDurationSec == nil && s.MaxIdleSec == nil && s.WakeSensitivity == nil
}

// ApplyTo folds the written values into a snapshot so callers can reflect a
// settings change without waiting for the next full refresh.
func (s Settings) ApplyTo(snap *model.DeviceSnapshot) {
	if snap == nil {
		return
	}
	if s.Name != nil {
		snap.Name = *s.Name
	}
	if s.SleepDurationSec != nil {
		snap.SleepDurationSec = *s.SleepDurationSec
	}
	if s.MaxIdleSec != nil {
		snap.MaxIdleSec = *s.MaxIdleSec
	}
	if s.WakeSensitivity != nil {
		snap.WakeSensitivity = *s.WakeSensitivity
	}
}

// UpdateSettings writes panel settings. The firmware rejects an empty body,
// so an all-nil Settings is refused locally.
func (c *Client) UpdateSettings(ctx context.Context, cfg model.CanvasConfig, settings Settings) error {
	if settings.IsZero() {
		return fmt.Errorf("settings: no fields to update")
	}
	return c.sendJSON(ctx, cfg, "settings", http.MethodPost, "/settings", settings)
}

// JoinImagePath builds the device path for an image inside a gallery.
func JoinImagePath(gallery, filename string) string {
	if gallery == "" {
		gallery = DefaultGallery
	}
	return "/gallerys/" + gallery + "/" + filename
}

// SplitImagePath picks a /gallerys/<gallery>/<filename> path apart. Anything
// that does not match falls back to the default gallery and the last path
// segment, mirroring how the panel itself resolves loose names.
func SplitImagePath(path string) (gallery, filename string) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) >= 3 && parts[0] == "gallerys" {
		return parts[1], strings.Join(parts[2:], "/")
	}
	return DefaultGallery, parts[len(parts)-1]
}
