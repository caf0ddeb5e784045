//go:build !unix

package pidfile

import "os"

// isProcessRunning is best effort where signal probing is unavailable.
func isProcessRunning(pid int) bool {
	if pid <= 0 {
		return false
	}
	_, err := os.FindProcess(pid)
	return err == nil
}
