//go:build unix

package pidfile

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isProcessRunning probes pid with signal 0.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	// EPERM: the process exists but belongs to someone else.
	return errors.Is(err, unix.EPERM)
}
