// Package platform reports host facts the detection components expose to
// the host application.
package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Name returns the operating system identifier
func Name() string {
	return runtime.GOOS
}

// APILevel returns the platform's API/version level as a single integer.
// On unix hosts it is the kernel release encoded as major*100+minor
// (6.18.44 -> 618). It returns 0 when the level cannot be determined.
func APILevel() int {
	return parseRelease(release())
}

// parseRelease turns "6.18.44-fc-v130" or "23.4.0" into major*100+minor.
func parseRelease(rel string) int {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return 0
	}
	parts := strings.SplitN(rel, ".", 3)
	major, err := strconv.Atoi(leadingDigits(parts[0]))
	if err != nil {
		return 0
	}
	minor := 0
	if len(parts) > 1 {
		if m, err := strconv.Atoi(leadingDigits(parts[1])); err == nil {
			minor = m
		}
	}
	if minor > 99 {
		minor = 99
	}
	return major*100 + minor
}

func leadingDigits(s string) string {
	for i, r := range s {
		if r < '0' || r > '9' {
			return s[:i]
		}
	}
	return s
}

// PictureDirs returns the existing directories where screenshot tools on
// this platform usually save images.
func PictureDirs() []string {
	home := os.Getenv("HOME")
	if home == "" {
		return nil
	}

	candidates := []string{
		filepath.Join(home, "Pictures"),
		filepath.Join(home, "Desktop"),
	}
	if xdg := os.Getenv("XDG_PICTURES_DIR"); xdg != "" {
		candidates = append([]string{xdg}, candidates...)
	}

	var dirs []string
	seen := make(map[string]bool)
	for _, dir := range candidates {
		if seen[dir] {
			continue
		}
		seen[dir] = true
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
