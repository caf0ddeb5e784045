//go:build unix

package shotsignal

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// ParseSignal maps a configured name such as "SIGUSR1" or "usr2" to a
// signal usable as a screenshot hook.
func ParseSignal(name string) (os.Signal, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(n, "SIG") {
		n = "SIG" + n
	}
	switch n {
	case "SIGUSR1", "SIGUSR2":
		return unix.SignalNum(n), nil
	default:
		return nil, fmt.Errorf("unsupported screenshot signal %q", name)
	}
}
