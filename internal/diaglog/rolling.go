package diaglog

import (
	"fmt"
	"os"
	"sync"
)

// previousSuffix names the single retained generation of a rotated log.
const previousSuffix = ".old"

// rollingWriter appends to path and, once the next write would pass maxSize,
// moves the file to path+".old" and starts a new one. At most two
// generations exist on disk.
type rollingWriter struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	f       *os.File
	size    int64
}

func newRollingWriter(path string, maxSize int64) (*rollingWriter, error) {
	rw := &rollingWriter{path: path, maxSize: maxSize}
	if err := rw.open(); err != nil {
		return nil, err
	}
	return rw, nil
}

func (rw *rollingWriter) open() error {
	f, err := os.OpenFile(rw.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return err
	}
	rw.f, rw.size = f, info.Size()
	return nil
}

// rotate must be called with mu held.
func (rw *rollingWriter) rotate() error {
	if err := rw.f.Close(); err != nil {
		return err
	}
	if err := os.Rename(rw.path, rw.path+previousSuffix); err != nil {
		return fmt.Errorf("rotate %s: %w", rw.path, err)
	}
	return rw.open()
}

// Write appends p, syncing after every entry. An entry larger than maxSize
// still lands whole in a fresh file.
func (rw *rollingWriter) Write(p []byte) (int, error) {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.size > 0 && rw.size+int64(len(p)) > rw.maxSize {
		if err := rw.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := rw.f.Write(p)
	rw.size += int64(n)
	if err != nil {
		return n, err
	}
	_ = rw.f.Sync()
	return n, nil
}

func (rw *rollingWriter) close() error {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	_ = rw.f.Sync()
	return rw.f.Close()
}
