package canvas

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bloomin8/eink-canvas-addon/internal/model"
)

// FetchImage streams a stored image off the panel by device path, e.g.
// /gallerys/default/sunrise.jpg. It returns the bytes and the content type
// the firmware claims.
func (c *Client) FetchImage(ctx context.Context, cfg model.CanvasConfig, path string) ([]byte, string, error) {
	if err := validateImagePath(path); err != nil {
		return nil, "", err
	}
	base := cfg.BaseURL()
	if base == "" {
		return nil, "", &ProtocolError{Op: "fetchImage", Reason: "no device host configured"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
	if err != nil {
		return nil, "", &ProtocolError{Op: "fetchImage", Reason: "build request", Err: err}
	}

	client := *c.httpClient
	client.Timeout = uploadTimeout

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", classify(cfg.Host, "fetchImage", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		return nil, "", &RejectedError{Status: resp.StatusCode, Body: excerpt(body)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", classify(cfg.Host, "fetchImage", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return data, contentType, nil
}

func validateImagePath(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("image: path %q must be absolute", path)
	}
	if strings.Contains(path, "..") {
		return fmt.Errorf("image: path %q must not traverse directories", path)
	}
	return nil
}
