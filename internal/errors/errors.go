// Package errors provides domain-specific error types for playmote.
//
// These types carry structured context (operation, address,
// retryability) that helps callers decide how to handle failures and
// provides better diagnostics than plain string wrapping.
package errors

import (
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	// ErrOutOfBounds reports an index outside the backend's counts.
	ErrOutOfBounds = errors.New("index out of bounds")
	// ErrNoCurrentTrack reports that nothing is playing.
	ErrNoCurrentTrack = errors.New("no current track")
	// ErrNoPlaylist reports that the backend has no current playlist.
	ErrNoPlaylist = errors.New("no current playlist")
	// ErrInvalidRef reports a track reference the backend cannot resolve.
	ErrInvalidRef = errors.New("invalid track reference")
	// ErrNotSupported reports an operation the backend cannot perform.
	ErrNotSupported = errors.New("not supported by this backend")
	// ErrBackendDown reports that the backend is unreachable.
	ErrBackendDown = errors.New("backend unreachable")
	// ErrNotConnected reports a dial through a tunnel that is not up.
	ErrNotConnected = errors.New("tunnel not connected")
)

// ── Structured error types ───────────────────────────────────────────

// NetworkError represents a failure in a network operation.
type NetworkError struct {
	Op        string // operation: "listen", "accept", "read", "write"
	Addr      string // network address involved
	Err       error  // underlying error
	Retryable bool   // whether the caller should retry
}

func (e *NetworkError) Error() string {
	s := fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *NetworkError) Unwrap() error { return e.Err }

// BackendError wraps a failure from the playback backend with the
// operation that triggered it.
type BackendError struct {
	Op  string // "play", "search", "volume", ...
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a NetworkError, automatically detecting retryability
// from the underlying error.
func Wrap(op, addr string, err error) *NetworkError {
	return &NetworkError{
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// WrapBackend creates a BackendError.
func WrapBackend(op string, err error) *BackendError {
	return &BackendError{Op: op, Err: err}
}

// ── Classification helpers ───────────────────────────────────────────

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return ne.Retryable
	}
	return classifyRetryable(err)
}

// IsTimeout reports whether err is a network timeout, which the
// polling loops treat as "nothing happened yet".
func IsTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use playmote/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }
