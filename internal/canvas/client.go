package canvas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bloomin8/eink-canvas-addon/internal/model"
)

const (
	defaultTimeout = 10 * time.Second
	slowOpTimeout  = 35 * time.Second
	uploadTimeout  = 60 * time.Second
	maxBodyBytes   = 1 << 20
	maxImageBytes  = 8 << 20
)

// Client talks to the canvas firmware. The firmware is a small embedded HTTP
// server with a handful of quirks (content-types like text/json, a duplicated
// Content-Length on /upload), so response handling is deliberately forgiving.
type Client struct {
	httpClient *http.Client
}

func NewClient() *Client {
	return NewClientWithHTTPClient(&http.Client{Timeout: defaultTimeout})
}

func NewClientWithHTTPClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if httpClient.Timeout == 0 {
		httpClient.Timeout = defaultTimeout
	}
	return &Client{httpClient: httpClient}
}

type apiRequest struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	timeout     time.Duration
}

func (c *Client) do(ctx context.Context, cfg model.CanvasConfig, op string, r apiRequest) ([]byte, error) {
	base := cfg.BaseURL()
	if base == "" {
		return nil, &ProtocolError{Op: op, Reason: "no device host configured"}
	}
	endpoint := base + r.path
	if len(r.query) > 0 {
		endpoint += "?" + r.query.Encode()
	}

	var reader io.Reader
	if len(r.body) > 0 {
		reader = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, endpoint, reader)
	if err != nil {
		return nil, &ProtocolError{Op: op, Reason: "build request", Err: err}
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")

	client := *c.httpClient
	if r.timeout > 0 {
		client.Timeout = r.timeout
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, classify(cfg.Host, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classify(cfg.Host, op, err)
	}
	if resp.StatusCode >= 400 {
		return nil, &RejectedError{Status: resp.StatusCode, Body: excerpt(data)}
	}
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, cfg model.CanvasConfig, op, path string, query url.Values, v any) error {
	data, err := c.do(ctx, cfg, op, apiRequest{method: http.MethodGet, path: path, query: query})
	if err != nil {
		return err
	}
	return decodeLenient(op, data, v)
}

func (c *Client) sendJSON(ctx context.Context, cfg model.CanvasConfig, op, method, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return &ProtocolError{Op: op, Reason: "encode request", Err: err}
	}
	_, err = c.do(ctx, cfg, op, apiRequest{
		method:      method,
		path:        path,
		body:        body,
		contentType: "application/json",
	})
	return err
}

// classify folds transport failures into UnreachableError so callers can treat
// an asleep panel as an expected outcome. Anything else passes through.
func classify(host, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isMalformedResponseError(err) {
		return &ProtocolError{Op: op, Reason: "malformed response", Err: err}
	}
	if isTransportError(err) {
		return &UnreachableError{Host: host, Err: err}
	}
	return err
}

// decodeLenient first tries the body as-is, then hunts for an embedded JSON
// document. The firmware labels JSON as text/json or text/javascript and
// occasionally pads it with stray bytes.
func decodeLenient(op string, data []byte, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return &ProtocolError{Op: op, Reason: "empty response body"}
	}
	if json.Unmarshal(trimmed, v) == nil {
		return nil
	}
	if inner := extractJSON(trimmed); inner != nil {
		if json.Unmarshal(inner, v) == nil {
			return nil
		}
	}
	return &ProtocolError{Op: op, Reason: "undecodable body: " + excerpt(trimmed)}
}

func extractJSON(data []byte) []byte {
	for _, pair := range [][2]byte{{'{', '}'}, {'[', ']'}} {
		start := bytes.IndexByte(data, pair[0])
		end := bytes.LastIndexByte(data, pair[1])
		if start >= 0 && end > start {
			return data[start : end+1]
		}
	}
	return nil
}

func excerpt(data []byte) string {
	const max = 256
	trimmed := strings.TrimSpace(string(data))
	if len(trimmed) <= max {
		return trimmed
	}
	return trimmed[:max]
}
