// Package ipc shares daemon state with local tools through a status file.
package ipc

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const statusFile = "status.json"

// StatusSnapshot is the daemon state at a point in time
type StatusSnapshot struct {
	Component   string     `json:"component"`   // observer or notifier
	Platform    string     `json:"platform"`    // runtime.GOOS
	APILevel    int        `json:"api_level"`   // platform.APILevel()
	ListenAddr  string     `json:"listen_addr"` // channel endpoint
	PID         int        `json:"pid"`
	Active      bool       `json:"active"` // detection running
	ActiveSince *time.Time `json:"active_since,omitempty"`
	Activations int        `json:"activations"`
	Hosts       int        `json:"hosts"` // connected channel hosts
	EventsSent  int        `json:"events_sent"`
	LastEvent   *time.Time `json:"last_event,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	Timestamp   time.Time  `json:"timestamp"`
}

// StatusDir returns ~/.cache/screencap
func StatusDir() string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "screencap")
}

// WriteStatus persists the snapshot to ~/.cache/screencap/status.json
func WriteStatus(status *StatusSnapshot) error {
	return WriteStatusTo(StatusDir(), status)
}

// WriteStatusTo replaces dir/status.json atomically.
func WriteStatusTo(dir string, status *StatusSnapshot) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}
	return atomicWriteJSON(filepath.Join(dir, statusFile), status)
}

// ReadStatus loads ~/.cache/screencap/status.json
func ReadStatus() (*StatusSnapshot, error) {
	return ReadStatusFrom(StatusDir())
}

func ReadStatusFrom(dir string) (*StatusSnapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, statusFile))
	if err != nil {
		return nil, err
	}

	var status StatusSnapshot
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("corrupt status file: %w", err)
	}
	return &status, nil
}

// RemoveStatus deletes the file on shutdown so readers don't see a stale daemon.
func RemoveStatus(dir string) error {
	err := os.Remove(filepath.Join(dir, statusFile))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func atomicWriteJSON(path string, data interface{}) error {
	tmpFile, err := os.CreateTemp(filepath.Dir(path), "status-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	ok := false
	defer func() {
		if !ok {
			tmpFile.Close()
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	ok = true

	return os.Rename(tmpPath, path)
}
