//go:build !unix

package shotsignal

import (
	"fmt"
	"os"
)

// ParseSignal is unsupported where user signals do not exist.
func ParseSignal(name string) (os.Signal, error) {
	return nil, fmt.Errorf("screenshot signal %q not supported on this platform", name)
}
