package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// Backend performs a single call to a text-generation model.
type Backend interface {
	Name() string
	Generate(ctx context.Context, prompt Prompt, params Params) (string, error)
}

// ErrTransient marks failures worth retrying.
var ErrTransient = errors.New("transient model error")

// MarkTransient wraps err so IsTransient reports true for it.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err is a failure that may succeed on retry:
// explicit transient marks, timeouts, and dropped or refused connections.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}

// transientStatus reports whether an HTTP status signals overload or a
// server-side fault.
func transientStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}

// looksTransient inspects error text from SDKs that do not expose typed
// status errors.
func looksTransient(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range []string{"timeout", "timed out", "rate limit", "too many requests", "overloaded",
		"connection reset", "status code: 429", "status code: 5", "statuscode=429", "statuscode=5", "server error"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
