package canvas

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// UnreachableError means the panel did not answer at all. A battery panel
// powers its radio down between refreshes, so this is a resting state rather
// than a fault.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e == nil {
		return "canvas unreachable"
	}
	return fmt.Sprintf("canvas %s unreachable: %v", e.Host, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ProtocolError means the panel answered with bytes that could not be made
// sense of even by the lenient parsers.
type ProtocolError struct {
	Op     string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e == nil {
		return "canvas protocol error"
	}
	if e.Err != nil {
		return fmt.Sprintf("canvas %s: %s: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("canvas %s: %s", e.Op, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// RejectedError means the panel understood the request and refused it.
type RejectedError struct {
	Status int
	Body   string
}

func (e *RejectedError) Error() string {
	if e == nil {
		return "canvas rejected request"
	}
	if e.Body == "" {
		return fmt.Sprintf("canvas rejected request: status %d", e.Status)
	}
	return fmt.Sprintf("canvas rejected request: status %d: %s", e.Status, e.Body)
}

// IsUnreachable reports whether err stems from the panel being asleep or off
// the network rather than from a malformed exchange.
func IsUnreachable(err error) bool {
	var unreachable *UnreachableError
	return errors.As(err, &unreachable)
}

func isTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}

	message := strings.ToLower(err.Error())
	if strings.Contains(message, "connection refused") {
		return true
	}
	if strings.Contains(message, "connection reset") {
		return true
	}
	if strings.Contains(message, "no route to host") {
		return true
	}
	if strings.Contains(message, "network is unreachable") {
		return true
	}
	if strings.Contains(message, "no such host") {
		return true
	}
	if strings.Contains(message, "i/o timeout") {
		return true
	}
	if strings.Contains(message, "timeout") {
		return true
	}
	return false
}

// isMalformedResponseError spots net/http refusing to parse a response, most
// notably the duplicate Content-Length header some firmware builds emit on
// /upload.
func isMalformedResponseError(err error) bool {
	if err == nil {
		return false
	}
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "multiple content-length") ||
		strings.Contains(message, "malformed http") ||
		strings.Contains(message, "invalid header")
}
