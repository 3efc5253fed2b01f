package canvas

import (
	"context"
	"net/http"

	"github.com/bloomin8/eink-canvas-addon/internal/model"
)

// DeviceInfo fetches the panel's full status document from /deviceInfo.
func (c *Client) DeviceInfo(ctx context.Context, cfg model.CanvasConfig) (model.DeviceSnapshot, error) {
	var snap model.DeviceSnapshot
	if err := c.getJSON(ctx, cfg, "deviceInfo", "/deviceInfo", nil, &snap); err != nil {
		return model.DeviceSnapshot{}, err
	}
	return snap, nil
}

// State fetches the lightweight /state document. Its fields vary between
// firmware builds, so it stays untyped.
func (c *Client) State(ctx context.Context, cfg model.CanvasConfig) (map[string]any, error) {
	var state map[string]any
	if err := c.getJSON(ctx, cfg, "state", "/state", nil, &state); err != nil {
		return nil, err
	}
	return state, nil
}

// Whistle pings the panel's keep-alive endpoint, postponing its next sleep.
func (c *Client) Whistle(ctx context.Context, cfg model.CanvasConfig) error {
	_, err := c.do(ctx, cfg, "whistle", apiRequest{method: http.MethodGet, path: "/whistle"})
	return err
}
