package mediastore

import (
	"fmt"
	"io"
	"io/fs"
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/tiroq/screencap/internal/diaglog"
)

// Subscription is an active change feed. Close is idempotent and returns only
// after the callback has returned for the last time, so it must not be
// called from inside the callback.
type Subscription struct {
	store   *Store
	watcher *fsnotify.Watcher
	fn      func(ChangeRef)

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Subscribe starts watching every root and its descendants. fn is invoked
// serially from a single goroutine for each created or written file.
func (s *Store) Subscribe(fn func(ChangeRef)) (io.Closer, error) {
	if len(s.roots) == 0 {
		return nil, fmt.Errorf("media store has no roots")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	sub := &Subscription{
		store:   s,
		watcher: watcher,
		fn:      fn,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}

	watched := 0
	for _, root := range s.roots {
		n, err := sub.addTree(root, nil)
		if err != nil {
			log.Printf("[STORE] Failed to watch %s: %v", root, err)
			continue
		}
		watched += n
	}
	if watched == 0 {
		_ = watcher.Close()
		return nil, fmt.Errorf("none of the media roots could be watched")
	}

	go sub.run()
	return sub, nil
}

// addTree adds dir and all its subdirectories to the watch set. Regular
// files found on the way are passed to found when it is non-nil.
func (sub *Subscription) addTree(dir string, found func(path string)) (int, error) {
	added := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil // unreadable subtree
		}
		if !d.IsDir() {
			if found != nil && d.Type().IsRegular() {
				found(path)
			}
			return nil
		}
		if err := sub.watcher.Add(path); err != nil {
			log.Printf("[STORE] Cannot watch %s: %v", path, err)
			return nil
		}
		added++
		sub.store.log(diaglog.LogEntry{
			Event:   diaglog.EventWatchAdded,
			Payload: map[string]interface{}{"dir": path},
		})
		return nil
	})
	return added, err
}

func (sub *Subscription) run() {
	defer close(sub.stopped)

	for {
		select {
		case <-sub.done:
			return
		case event, ok := <-sub.watcher.Events:
			if !ok {
				return
			}
			sub.handle(event)
		case err, ok := <-sub.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[STORE] File watcher error: %v", err)
		}
	}
}

func (sub *Subscription) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}

	if event.Has(fsnotify.Create) && isDir(event.Name) {
		// Files may land before the watch is in place (mkdir then write,
		// or a whole folder moved in), so report what is already there.
		var existing []string
		if _, err := sub.addTree(event.Name, func(path string) {
			existing = append(existing, path)
		}); err != nil {
			log.Printf("[STORE] Failed to watch new directory %s: %v", event.Name, err)
		}
		for _, path := range existing {
			sub.emit(path)
		}
		return
	}

	sub.emit(event.Name)
}

func (sub *Subscription) emit(path string) {
	select {
	case <-sub.done:
		return
	default:
	}
	sub.fn(refFor(path))
}

// Close stops the feed. No callback runs after Close returns.
func (sub *Subscription) Close() error {
	sub.closeOnce.Do(func() {
		close(sub.done)
		sub.closeErr = sub.watcher.Close()
		<-sub.stopped
	})
	return sub.closeErr
}
