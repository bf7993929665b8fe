// Package metrics provides lightweight, lock-free counters for
// tracking runtime statistics of a playmote server.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// Collector tracks runtime metrics for a server instance.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	sessionsTotal     atomic.Int64
	commandsTotal     atomic.Int64
	commandsUnknown   atomic.Int64
	notificationsSent atomic.Int64
	backendReconnects atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64
	errorsTotal       atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened records an accepted client connection.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsTotal.Add(1)
}

// TotalSessions returns the lifetime session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsTotal.Load()
}

// ── Command metrics ──────────────────────────────────────────────────

// CommandDispatched records a successfully matched command.
func (c *Collector) CommandDispatched() {
	if c == nil {
		return
	}
	c.commandsTotal.Add(1)
}

// CommandUnknown records a line that matched no registered command.
func (c *Collector) CommandUnknown() {
	if c == nil {
		return
	}
	c.commandsUnknown.Add(1)
}

// TotalCommands returns the number of dispatched commands.
func (c *Collector) TotalCommands() int64 {
	if c == nil {
		return 0
	}
	return c.commandsTotal.Load()
}

// UnknownCommands returns the number of unmatched command lines.
func (c *Collector) UnknownCommands() int64 {
	if c == nil {
		return 0
	}
	return c.commandsUnknown.Load()
}

// ── Notification metrics ─────────────────────────────────────────────

// NotificationSent records one asynchronous push to a client.
func (c *Collector) NotificationSent() {
	if c == nil {
		return
	}
	c.notificationsSent.Add(1)
}

// Notifications returns the number of pushes sent.
func (c *Collector) Notifications() int64 {
	if c == nil {
		return 0
	}
	return c.notificationsSent.Load()
}

// ── Backend metrics ──────────────────────────────────────────────────

// BackendReconnect records a backend reconnection event.
func (c *Collector) BackendReconnect() {
	if c == nil {
		return
	}
	c.backendReconnects.Add(1)
}

// BackendReconnects returns the total backend reconnection count.
func (c *Collector) BackendReconnects() int64 {
	if c == nil {
		return 0
	}
	return c.backendReconnects.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from the network.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to the network.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	UptimeSeconds     float64 `json:"uptime_seconds"`
	SessionsTotal     int64   `json:"sessions_total"`
	CommandsTotal     int64   `json:"commands_total"`
	CommandsUnknown   int64   `json:"commands_unknown"`
	NotificationsSent int64   `json:"notifications_sent"`
	BackendReconnects int64   `json:"backend_reconnects"`
	BytesIn           int64   `json:"bytes_in"`
	BytesOut          int64   `json:"bytes_out"`
	ErrorsTotal       int64   `json:"errors_total"`
	LastError         string  `json:"last_error,omitempty"`
}

// Snap returns the current values. A nil collector yields a zero
// snapshot.
func (c *Collector) Snap() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	lastErr := c.lastErrorMsg
	start := c.startTime
	c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds:     time.Since(start).Seconds(),
		SessionsTotal:     c.sessionsTotal.Load(),
		CommandsTotal:     c.commandsTotal.Load(),
		CommandsUnknown:   c.commandsUnknown.Load(),
		NotificationsSent: c.notificationsSent.Load(),
		BackendReconnects: c.backendReconnects.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
		ErrorsTotal:       c.errorsTotal.Load(),
		LastError:         lastErr,
	}
}

// JSON renders the snapshot for the HTTP metrics endpoint.
func (c *Collector) JSON() ([]byte, error) {
	return json.Marshal(c.Snap())
}
