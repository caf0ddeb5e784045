// Package diaglog provides structured NDJSON diagnostic logging for the
// screencap daemon. Activated by SCREENCAP_DEBUG=true. When the variable is
// absent every Log call is a no-op and no file is created.
package diaglog

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Component labels.
const (
	ComponentChannel    = "channel"
	ComponentObserver   = "observer"
	ComponentNotifier   = "notifier"
	ComponentMediaStore = "media-store"
	ComponentSignal     = "shot-signal"
	ComponentCore       = "screencap-core"
	ComponentDiagExport = "diag-export"
)

// Event names.
const (
	EventHostConnect      = "host_connect"
	EventHostDisconnect   = "host_disconnect"
	EventMethodCall       = "method_call"
	EventMethodResult     = "method_result"
	EventEventPosted      = "event_posted"
	EventEventDropped     = "event_dropped"
	EventDetectionStart   = "detection_start"
	EventDetectionStop    = "detection_stop"
	EventChangeIgnored    = "change_ignored"
	EventScreenshotAccept = "screenshot_accepted"
	EventQueryFailed      = "query_failed"
	EventSignalReceived   = "signal_received"
	EventWatchAdded       = "watch_added"
)

// LogEntry is one structured event record written as a single JSON line.
type LogEntry struct {
	Timestamp string      `json:"ts"`
	Component string      `json:"component"`
	Event     string      `json:"event"`
	SessionID string      `json:"session_id,omitempty"`
	Reason    string      `json:"reason,omitempty"`
	Payload   interface{} `json:"payload,omitempty"` // redacted before write
}

// Logger writes LogEntry values to a rolling NDJSON file. When debug mode is
// disabled every Log call is a no-op.
type Logger struct {
	rw      *rollingWriter
	mu      sync.Mutex
	enabled bool
}

// New opens (or creates) the NDJSON log file at path. If debug mode is
// disabled, path is ignored and a no-op logger is returned.
func New(path string) (*Logger, error) {
	if !IsDebugEnabled() {
		return &Logger{enabled: false}, nil
	}
	rw, err := newRollingWriter(path, 10*1024*1024)
	if err != nil {
		return nil, err
	}
	return &Logger{rw: rw, enabled: true}, nil
}

// Log serialises entry to JSON and appends it to the rolling file.
// Sensitive payload fields are redacted first.
func (l *Logger) Log(entry LogEntry) {
	if l == nil || !l.enabled {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if entry.Payload != nil {
		entry.Payload = Redact(entry.Payload)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.rw.Write(data)
}

// Enabled reports whether entries are actually written.
func (l *Logger) Enabled() bool {
	return l != nil && l.enabled
}

// Close flushes and closes the underlying file. Safe on nil/disabled logger.
func (l *Logger) Close() error {
	if l == nil || !l.enabled || l.rw == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rw.close()
}

// IsDebugEnabled reports whether SCREENCAP_DEBUG is set to "true".
func IsDebugEnabled() bool {
	return os.Getenv("SCREENCAP_DEBUG") == "true"
}

// DefaultPath returns the log path, honouring SCREENCAP_LOG_PATH.
func DefaultPath() string {
	if p := os.Getenv("SCREENCAP_LOG_PATH"); p != "" {
		return p
	}
	return os.TempDir() + "/screencap-debug.log"
}

// NewNoOp returns a logger where every Log call is a no-op. Use as a
// fallback when New fails.
func NewNoOp() *Logger {
	return &Logger{enabled: false}
}
