package configsync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bloomin8/eink-canvas-addon/internal/model"
)

type FetchResult struct {
	Configured bool
	Config     model.CanvasConfig
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string) *Client {
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "http://supervisor/core"
	}
	return &Client{
		baseURL: baseURL,
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type configResponse struct {
	Configured      bool      `json:"configured"`
	Version         int64     `json:"version"`
	UpdatedAt       time.Time `json:"updated_at"`
	Host            string    `json:"host"`
	Name            string    `json:"name"`
	BLEMAC          string    `json:"ble_mac"`
	BLEAutoWake     bool      `json:"ble_auto_wake"`
	PollEnabled     bool      `json:"poll_enabled"`
	PollIntervalSec int       `json:"poll_interval_sec"`
}

// FetchConfig asks the companion integration which panel is paired. A 404
// means the integration is installed but nothing is paired yet.
func (c *Client) FetchConfig(ctx context.Context) (FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/eink_canvas/config", nil)
	if err != nil {
		return FetchResult{}, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return FetchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return FetchResult{Configured: false}, nil
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return FetchResult{}, fmt.Errorf("config fetch status %d: %s", resp.StatusCode, string(body))
	}

	var payload configResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return FetchResult{}, err
	}
	if !payload.Configured || strings.TrimSpace(payload.Host) == "" {
		return FetchResult{Configured: false}, nil
	}

	cfg := model.CanvasConfig{
		Version:         payload.Version,
		UpdatedAt:       payload.UpdatedAt.UTC(),
		Host:            payload.Host,
		Name:            payload.Name,
		BLEMAC:          payload.BLEMAC,
		BLEAutoWake:     payload.BLEAutoWake,
		PollEnabled:     payload.PollEnabled,
		PollIntervalSec: payload.PollIntervalSec,
	}
	return FetchResult{Configured: true, Config: cfg}, nil
}
