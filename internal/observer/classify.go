package observer

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/tiroq/screencap/internal/mediastore"
)

const (
	// RecencyWindow is how far an item's added time may be from now for
	// it to count as a fresh capture.
	RecencyWindow = 10 * time.Second
	// DebounceWindow suppresses repeat accepts of the same path.
	DebounceWindow = 2 * time.Second
	// RetentionWindow is how long an accepted item identifier is remembered.
	RetentionWindow = 15 * time.Second

	// PendingPrefix marks placeholder files written before the final image.
	PendingPrefix = ".pending-"
	// ScreenshotMarker is matched case-insensitively against path and name.
	ScreenshotMarker = "screenshot"
)

// Rejection explains why an item is not a screenshot. The empty value
// means the item is a screenshot candidate.
type Rejection string

const (
	RejectNone          Rejection = ""
	RejectPending       Rejection = "pending"
	RejectStale         Rejection = "stale"
	RejectNotScreenshot Rejection = "not_screenshot"
)

// Classify applies the screenshot heuristics to item at time now.
func Classify(item *mediastore.Item, now time.Time) Rejection {
	if IsPending(item.DisplayName, item.Path) {
		return RejectPending
	}
	if !IsRecent(item.DateAdded, now) {
		return RejectStale
	}
	if !LooksLikeScreenshot(item.Path, item.DisplayName) {
		return RejectNotScreenshot
	}
	return RejectNone
}

// IsPending reports whether the name, or any segment of path, carries the
// temporary placeholder prefix.
func IsPending(name, path string) bool {
	if strings.HasPrefix(strings.ToLower(name), PendingPrefix) {
		return true
	}
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if strings.HasPrefix(seg, PendingPrefix) {
			return true
		}
	}
	return false
}

// IsRecent reports whether added lies within RecencyWindow of now, in
// either direction.
func IsRecent(added, now time.Time) bool {
	d := now.Sub(added)
	if d < 0 {
		d = -d
	}
	return d <= RecencyWindow
}

// LooksLikeScreenshot reports whether path or name mentions a screenshot.
func LooksLikeScreenshot(path, name string) bool {
	return strings.Contains(strings.ToLower(path), ScreenshotMarker) ||
		strings.Contains(strings.ToLower(name), ScreenshotMarker)
}
