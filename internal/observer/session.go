package observer

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tiroq/screencap/internal/channel"
	"github.com/tiroq/screencap/internal/diaglog"
	"github.com/tiroq/screencap/internal/mediastore"
)

// afterFunc schedules f after d and returns a function that cancels it.
type afterFunc func(d time.Duration, f func()) (stop func() bool)

func timerAfterFunc(d time.Duration, f func()) func() bool {
	return time.AfterFunc(d, f).Stop
}

// Session owns the state of one detection run: the de-duplication set, the
// last accepted screenshot and the pending cleanup task. It is created by
// StartDetection and discarded by StopDetection.
type Session struct {
	id     string
	store  Store
	sink   channel.EventSink
	logger *diaglog.Logger

	now       func() time.Time
	afterFunc afterFunc

	mu             sync.Mutex
	closed         bool
	processed      map[string]time.Time // item ID -> expiry
	lastPath       string
	lastAcceptedAt time.Time
	cancelCleanup  func() bool
}

func newSession(store Store, sink channel.EventSink, logger *diaglog.Logger, now func() time.Time, af afterFunc) *Session {
	return &Session{
		id:        uuid.NewString(),
		store:     store,
		sink:      sink,
		logger:    logger,
		now:       now,
		afterFunc: af,
		processed: make(map[string]time.Time),
	}
}

// ID returns the session identifier used in diagnostics
func (s *Session) ID() string {
	return s.id
}

// OnChange is the event path for one changed store item. Failures to read
// the item are logged and treated as "no event".
func (s *Session) OnChange(ref mediastore.ChangeRef) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.isProcessedLocked(ref.ID) {
		s.mu.Unlock()
		log.Printf("[DETECT] Item already processed: %s", ref.ID)
		s.ignored(ref, "already_processed")
		return
	}
	s.mu.Unlock()

	item, err := s.store.Query(ref)
	if err != nil {
		log.Printf("[DETECT] Cannot read %s: %v", ref.Path, err)
		s.log(diaglog.LogEntry{
			Event:   diaglog.EventQueryFailed,
			Reason:  err.Error(),
			Payload: map[string]interface{}{"path": ref.Path},
		})
		return
	}

	if reason := Classify(item, s.now()); reason != RejectNone {
		if reason == RejectPending {
			log.Printf("[DETECT] Ignoring temporary pending file: %s", item.DisplayName)
		}
		s.ignored(ref, string(reason))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	now := s.now()
	sinceLast := now.Sub(s.lastAcceptedAt)
	if item.Path == s.lastPath && sinceLast < DebounceWindow {
		s.mu.Unlock()
		log.Printf("[DETECT] Duplicate screenshot ignored: %s (%dms since last)", item.Path, sinceLast.Milliseconds())
		s.ignored(ref, "duplicate")
		return
	}

	s.lastPath = item.Path
	s.lastAcceptedAt = now
	s.processed[ref.ID] = now.Add(RetentionWindow)
	s.scheduleCleanupLocked()
	s.mu.Unlock()

	log.Printf("[DETECT] Screenshot detected: %s", item.Path)
	s.log(diaglog.LogEntry{
		Event:   diaglog.EventScreenshotAccept,
		Payload: map[string]interface{}{"path": item.Path, "mime": item.MIME},
	})
	s.sink.InvokeMethod(channel.MethodOnScreenshotTaken, item.Path)
}

// isProcessedLocked reports whether id is in the de-duplication set and
// still within its retention window. Expired entries are dropped.
func (s *Session) isProcessedLocked(id string) bool {
	expiry, ok := s.processed[id]
	if !ok {
		return false
	}
	if !s.now().Before(expiry) {
		delete(s.processed, id)
		return false
	}
	return true
}

// scheduleCleanupLocked replaces the pending cleanup task with one that
// fires after RetentionWindow.
func (s *Session) scheduleCleanupLocked() {
	if s.cancelCleanup != nil {
		s.cancelCleanup()
	}
	s.cancelCleanup = s.afterFunc(RetentionWindow, s.sweep)
}

// sweep removes expired identifiers. Entries that outlive this run keep a
// follow-up task alive so nothing stays in the set forever.
func (s *Session) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	now := s.now()
	var next time.Time
	for id, expiry := range s.processed {
		if !now.Before(expiry) {
			delete(s.processed, id)
			log.Printf("[DETECT] Cleaned up processed item: %s", id)
			continue
		}
		if next.IsZero() || expiry.Before(next) {
			next = expiry
		}
	}

	s.cancelCleanup = nil
	if !next.IsZero() {
		s.cancelCleanup = s.afterFunc(next.Sub(now), s.sweep)
	}
}

// Processed returns the number of identifiers in the de-duplication set
func (s *Session) Processed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.processed)
}

// Close cancels the cleanup task and drops all state. Later OnChange calls
// are ignored.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.cancelCleanup != nil {
		s.cancelCleanup()
		s.cancelCleanup = nil
	}
	s.processed = make(map[string]time.Time)
	s.lastPath = ""
	s.lastAcceptedAt = time.Time{}
}

func (s *Session) ignored(ref mediastore.ChangeRef, reason string) {
	s.log(diaglog.LogEntry{
		Event:   diaglog.EventChangeIgnored,
		Reason:  reason,
		Payload: map[string]interface{}{"path": ref.Path, "id": ref.ID},
	})
}

func (s *Session) log(entry diaglog.LogEntry) {
	if s.logger == nil {
		return
	}
	entry.Component = diaglog.ComponentObserver
	entry.SessionID = s.id
	s.logger.Log(entry)
}
