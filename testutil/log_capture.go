package testutil

import (
	"bytes"
	"io"
	"log"
	"strings"
	"sync"
)

// LogCapture captures output of the standard logger for testing
type LogCapture struct {
	buf      bytes.Buffer
	mu       sync.Mutex
	original io.Writer
}

// NewLogCapture creates a new log capture instance
func NewLogCapture() *LogCapture {
	return &LogCapture{
		original: log.Writer(),
	}
}

// Write implements io.Writer so the logger can write under our lock.
func (lc *LogCapture) Write(p []byte) (int, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.Write(p)
}

// Start begins capturing log output
func (lc *LogCapture) Start() {
	log.SetOutput(lc)
}

// Stop restores original log output
func (lc *LogCapture) Stop() {
	log.SetOutput(lc.original)
}

// String returns all captured log output
func (lc *LogCapture) String() string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.buf.String()
}

// Reset clears the capture buffer
func (lc *LogCapture) Reset() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.buf.Reset()
}

// Contains checks if the log output contains the given substring
func (lc *LogCapture) Contains(substr string) bool {
	return strings.Contains(lc.String(), substr)
}

// Count returns the number of times a substring appears in the log
func (lc *LogCapture) Count(substr string) int {
	return strings.Count(lc.String(), substr)
}

// Lines returns all captured log lines
func (lc *LogCapture) Lines() []string {
	content := strings.TrimSpace(lc.String())
	if content == "" {
		return []string{}
	}
	return strings.Split(content, "\n")
}
