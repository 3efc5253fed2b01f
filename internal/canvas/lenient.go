package canvas

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bloomin8/eink-canvas-addon/internal/model"
)

// rawPost re-issues a request over a bare TCP connection and parses the
// response with relaxed header rules. Some firmware builds emit a duplicate
// Content-Length header on /upload, which net/http rejects outright; the
// upload itself still succeeds on the device.
func (c *Client) rawPost(ctx context.Context, cfg model.CanvasConfig, op, path string, query url.Values, body []byte, contentType string) ([]byte, error) {
	parsed, err := url.Parse(cfg.BaseURL())
	if err != nil || parsed.Host == "" {
		return nil, &ProtocolError{Op: op, Reason: "bad device host", Err: err}
	}
	addr := parsed.Host
	if parsed.Port() == "" {
		addr = net.JoinHostPort(parsed.Hostname(), "80")
	}

	dialer := &net.Dialer{Timeout: defaultTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, classify(cfg.Host, op, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(uploadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	target := path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var req bytes.Buffer
	fmt.Fprintf(&req, "POST %s HTTP/1.1\r\n", target)
	fmt.Fprintf(&req, "Host: %s\r\n", parsed.Host)
	fmt.Fprintf(&req, "Content-Type: %s\r\n", contentType)
	fmt.Fprintf(&req, "Content-Length: %d\r\n", len(body))
	req.WriteString("Accept: application/json\r\n")
	req.WriteString("Connection: close\r\n")
	req.WriteString("\r\n")
	req.Write(body)

	if _, err := conn.Write(req.Bytes()); err != nil {
		return nil, classify(cfg.Host, op, err)
	}

	status, _, payload, err := readLenientResponse(bufio.NewReader(conn))
	if err != nil {
		return nil, classify(cfg.Host, op, err)
	}
	if status >= 400 {
		return nil, &RejectedError{Status: status, Body: excerpt(payload)}
	}
	return payload, nil
}

// readLenientResponse parses an HTTP/1.x response keeping only the first
// occurrence of each header, which is enough to survive the firmware's
// duplicated Content-Length.
func readLenientResponse(r *bufio.Reader) (int, map[string]string, []byte, error) {
	statusLine, err := readLine(r)
	if err != nil {
		return 0, nil, nil, err
	}
	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/") {
		return 0, nil, nil, fmt.Errorf("bad status line %q", statusLine)
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, nil, nil, fmt.Errorf("bad status code %q", parts[1])
	}

	headers := map[string]string{}
	for {
		line, err := readLine(r)
		if err != nil {
			return 0, nil, nil, err
		}
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(name))
		if _, seen := headers[key]; !seen {
			headers[key] = strings.TrimSpace(value)
		}
	}

	body, err := readLenientBody(r, headers)
	if err != nil {
		return 0, nil, nil, err
	}
	return status, headers, body, nil
}

func readLenientBody(r *bufio.Reader, headers map[string]string) ([]byte, error) {
	if strings.EqualFold(headers["transfer-encoding"], "chunked") {
		return readChunked(r)
	}
	if raw, ok := headers["content-length"]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad content-length %q", raw)
		}
		if n > maxBodyBytes {
			n = maxBodyBytes
		}
		body := make([]byte, n)
		if _, err := io.ReadFull(r, body); err != nil {
			return nil, err
		}
		return body, nil
	}
	// No framing headers: read until the peer closes, as HTTP/1.0 would.
	return io.ReadAll(io.LimitReader(r, maxBodyBytes))
}

func readChunked(r *bufio.Reader) ([]byte, error) {
	var body bytes.Buffer
	for {
		line, err := readLine(r)
		if err != nil {
			return nil, err
		}
		size, err := strconv.ParseInt(strings.TrimSpace(line), 16, 64)
		if err != nil {
			return nil, fmt.Errorf("bad chunk size %q", line)
		}
		if size == 0 {
			_, _ = readLine(r)
			return body.Bytes(), nil
		}
		if size > maxBodyBytes || body.Len()+int(size) > maxBodyBytes {
			return nil, errors.New("chunked response too large")
		}
		if _, err := io.CopyN(&body, r, size); err != nil {
			return nil, err
		}
		if _, err := readLine(r); err != nil {
			return nil, err
		}
	}
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
