// Package pidfile keeps a single screencap daemon per user.
package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// PIDFile is a held PID file
type PIDFile struct {
	path string
	pid  int
}

// New claims path for the current process. It fails when the file names a
// process that is still running and replaces it otherwise.
func New(path string) (*PIDFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create PID directory: %w", err)
	}

	if existing, err := readPID(path); err == nil {
		if existing != os.Getpid() && isProcessRunning(existing) {
			return nil, fmt.Errorf("another instance is already running (PID %d)", existing)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale PID file: %w", err)
		}
	}

	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("failed to write PID file: %w", err)
	}

	return &PIDFile{path: path, pid: pid}, nil
}

// Path returns the file location
func (p *PIDFile) Path() string {
	return p.path
}

// Remove deletes the file if it still holds our PID
func (p *PIDFile) Remove() error {
	if p == nil {
		return nil
	}
	if pid, err := readPID(p.path); err == nil && pid == p.pid {
		return os.Remove(p.path)
	}
	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

// PathFor returns ~/.cache/screencap/<appName>.pid
func PathFor(appName string) string {
	return filepath.Join(os.Getenv("HOME"), ".cache", "screencap", appName+".pid")
}
