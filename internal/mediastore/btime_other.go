//go:build !linux && !darwin

package mediastore

import "time"

func birthTime(string) (time.Time, bool) {
	return time.Time{}, false
}
