//go:build !linux

// Package mpris adapts an MPRIS player to the backend interface.  The
// session bus only exists on Linux; other platforms get a stub
// constructor.
package mpris

import (
	"playmote/internal/backend"
	"playmote/internal/errors"
	"playmote/util"
)

// New reports that MPRIS is unavailable on this platform.
func New(logger *util.Logger) (backend.Backend, error) {
	return nil, errors.WrapBackend("mpris", errors.ErrNotSupported)
}
