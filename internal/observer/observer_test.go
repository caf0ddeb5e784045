package observer

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tiroq/screencap/internal/channel"
	"github.com/tiroq/screencap/internal/mediastore"
	"github.com/tiroq/screencap/testutil"
)

// fakeStore hands out a single callback and serves items from a map.
type fakeStore struct {
	mu         sync.Mutex
	subscribes int
	closes     int
	fn         func(mediastore.ChangeRef)
	items      map[string]*mediastore.Item
	errs       map[string]error
	subErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		items: make(map[string]*mediastore.Item),
		errs:  make(map[string]error),
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func (s *fakeStore) Subscribe(fn func(mediastore.ChangeRef)) (io.Closer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subErr != nil {
		return nil, s.subErr
	}
	s.subscribes++
	s.fn = fn
	return closerFunc(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.closes++
		s.fn = nil
		return nil
	}), nil
}

func (s *fakeStore) Query(ref mediastore.ChangeRef) (*mediastore.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.errs[ref.Path]; err != nil {
		return nil, err
	}
	item, ok := s.items[ref.Path]
	if !ok {
		return nil, mediastore.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (s *fakeStore) put(path string, added time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[path] = &mediastore.Item{Path: path, DisplayName: filepath.Base(path), DateAdded: added, MIME: "image/png"}
}

// emit delivers a change the way the real feed would: only while subscribed.
func (s *fakeStore) emit(id, path string) {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn(mediastore.ChangeRef{ID: id, Path: path})
	}
}

// fakeClock drives both time.Now and scheduled tasks.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	tasks []*fakeTask
}

type fakeTask struct {
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	task := &fakeTask{at: c.now.Add(d), f: f}
	c.tasks = append(c.tasks, task)
	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		if task.stopped || task.fired {
			return false
		}
		task.stopped = true
		return true
	}
}

// Advance moves time forward and runs every due task in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTask
	for _, task := range c.tasks {
		if !task.stopped && !task.fired && !task.at.After(c.now) {
			task.fired = true
			due = append(due, task)
		}
	}
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, task := range due {
		task.f()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, task := range c.tasks {
		if !task.stopped && !task.fired {
			n++
		}
	}
	return n
}

type fixture struct {
	store  *fakeStore
	clock  *fakeClock
	events *testutil.EventRecorder
	obs    *Observer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  newFakeStore(),
		clock:  newFakeClock(),
		events: testutil.NewEventRecorder(),
	}
	f.obs = New(f.store, f.events)
	f.obs.now = f.clock.Now
	f.obs.afterFunc = f.clock.AfterFunc
	f.obs.apiLevel = func() int { return 618 }
	return f
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	testutil.AssertNoError(t, f.obs.StartDetection(), "StartDetection")
}

func TestStartDetectionTwiceSubscribesOnce(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.start(t)

	testutil.AssertEqual(t, 1, f.store.subscribes, "subscriptions")
	testutil.AssertTrue(t, f.obs.IsActive(), "observer active")
}

func TestStopDetectionIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.obs.StopDetection()
	f.start(t)
	f.obs.StopDetection()
	f.obs.StopDetection()

	testutil.AssertEqual(t, 1, f.store.closes, "unsubscribes")
	testutil.AssertFalse(t, f.obs.IsActive(), "observer active")
}

func TestFreshScreenshotIsForwarded(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	path := "/home/u/Pictures/Screenshots/Screenshot_1.png"
	f.store.put(path, f.clock.Now().Add(-time.Second))
	f.store.emit("id-1", path)

	events := f.events.Events()
	testutil.AssertEqual(t, 1, len(events), "forwarded events")
	testutil.AssertEqual(t, channel.MethodOnScreenshotTaken, events[0].Method, "event method")
	testutil.AssertEqual(t, path, events[0].Arguments, "event payload")
}

func TestPendingFileIsNeverForwarded(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	path := "/home/u/Pictures/.pending-foo/Screenshot_1.png"
	f.store.put(path, f.clock.Now())
	f.store.emit("id-1", path)

	testutil.AssertEqual(t, 0, f.events.Count(), "forwarded events")
}

func TestStaleScreenshotIsNotForwarded(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	path := "/home/u/Pictures/Screenshot_old.png"
	f.store.put(path, f.clock.Now().Add(-20*time.Second))
	f.store.emit("id-1", path)

	testutil.AssertEqual(t, 0, f.events.Count(), "forwarded events")
}

func TestNonScreenshotIsNotForwarded(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	path := "/home/u/Pictures/cat.jpg"
	f.store.put(path, f.clock.Now())
	f.store.emit("id-1", path)

	testutil.AssertEqual(t, 0, f.events.Count(), "forwarded events")
}

func TestSamePathDebounce(t *testing.T) {
	tests := []struct {
		name string
		gap  time.Duration
		want int
	}{
		{"500ms apart", 500 * time.Millisecond, 1},
		{"just under window", DebounceWindow - time.Millisecond, 1},
		{"exactly at window", DebounceWindow, 2},
		{"3000ms apart", 3000 * time.Millisecond, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.start(t)

			path := "/home/u/Pictures/Screenshots/Screenshot_1.png"
			f.store.put(path, f.clock.Now())
			f.store.emit("id-1", path)

			f.clock.Advance(tt.gap)
			f.store.emit("id-2", path)

			testutil.AssertEqual(t, tt.want, f.events.Count(), "forwarded events")
		})
	}
}

func TestDistinctPathsInQuickSuccession(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	a := "/home/u/Pictures/Screenshots/Screenshot_1.png"
	b := "/home/u/Pictures/Screenshots/Screenshot_2.png"
	f.store.put(a, f.clock.Now())
	f.store.put(b, f.clock.Now())

	f.store.emit("id-a", a)
	f.clock.Advance(100 * time.Millisecond)
	f.store.emit("id-b", b)

	testutil.AssertEqual(t, 2, f.events.Count(), "forwarded events")
}

func TestSameIdentifierWithinRetentionIsDiscarded(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	path := "/home/u/Pictures/Screenshots/Screenshot_1.png"
	f.store.put(path, f.clock.Now())
	f.store.emit("id-1", path)

	// Past the debounce window, so only the identifier set can stop it.
	f.clock.Advance(5 * time.Second)
	f.store.put(path, f.clock.Now())
	f.store.emit("id-1", path)

	testutil.AssertEqual(t, 1, f.events.Count(), "forwarded events")
}

func TestIdentifierForgottenAfterRetention(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	path := "/home/u/Pictures/Screenshots/Screenshot_1.png"
	f.store.put(path, f.clock.Now())
	f.store.emit("id-1", path)
	testutil.AssertEqual(t, 1, f.obs.session.Processed(), "identifiers after accept")

	f.clock.Advance(RetentionWindow)
	testutil.AssertEqual(t, 0, f.obs.session.Processed(), "identifiers after retention")

	f.store.put(path, f.clock.Now())
	f.store.emit("id-1", path)
	testutil.AssertEqual(t, 2, f.events.Count(), "forwarded events")
}

func TestCleanupTaskIsReplaced(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	for i, path := range []string{"/p/Screenshot_1.png", "/p/Screenshot_2.png", "/p/Screenshot_3.png"} {
		f.store.put(path, f.clock.Now())
		f.store.emit("id-"+path, path)
		testutil.AssertEqual(t, 1, f.clock.pending(), "pending cleanup tasks")
		testutil.AssertEqual(t, i+1, f.events.Count(), "forwarded events")
		f.clock.Advance(3 * time.Second)
	}

	f.clock.Advance(RetentionWindow)
	testutil.AssertEqual(t, 0, f.obs.session.Processed(), "identifiers after retention")
	testutil.AssertEqual(t, 0, f.clock.pending(), "pending cleanup tasks")
}

func TestStopThenChangeProducesNothing(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	path := "/home/u/Pictures/Screenshots/Screenshot_1.png"
	f.store.put(path, f.clock.Now())

	// Keep the callback the subscription handed out, as a late delivery would.
	f.store.mu.Lock()
	late := f.store.fn
	f.store.mu.Unlock()

	f.obs.StopDetection()
	f.store.emit("id-1", path)
	late(mediastore.ChangeRef{ID: "id-1", Path: path})

	testutil.AssertEqual(t, 0, f.events.Count(), "forwarded events")
}

func TestStopCancelsCleanupAndClearsState(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	path := "/home/u/Pictures/Screenshots/Screenshot_1.png"
	f.store.put(path, f.clock.Now())
	f.store.emit("id-1", path)
	session := f.obs.session

	f.obs.StopDetection()
	testutil.AssertEqual(t, 0, f.clock.pending(), "pending cleanup tasks")
	testutil.AssertEqual(t, 0, session.Processed(), "identifiers after stop")

	// A fresh session does not remember the previous path or identifier.
	f.start(t)
	f.store.emit("id-1", path)
	testutil.AssertEqual(t, 2, f.events.Count(), "forwarded events")
}

func TestQueryErrorIsSwallowed(t *testing.T) {
	lc := testutil.NewLogCapture()
	lc.Start()
	defer lc.Stop()

	f := newFixture(t)
	f.start(t)

	path := "/home/u/Pictures/Screenshots/Screenshot_1.png"
	f.store.errs[path] = errors.New("permission denied")
	f.store.emit("id-1", path)
	f.store.emit("id-2", "/home/u/Pictures/Screenshots/gone.png")

	testutil.AssertEqual(t, 0, f.events.Count(), "forwarded events")
	testutil.AssertTrue(t, lc.Contains("permission denied"), "query error logged")
	testutil.AssertTrue(t, f.obs.IsActive(), "observer still active")
}

func TestStartDetectionSubscribeFailure(t *testing.T) {
	f := newFixture(t)
	f.store.subErr = errors.New("too many watches")

	err := f.obs.StartDetection()
	if err == nil {
		t.Fatal("expected error")
	}
	testutil.AssertFalse(t, f.obs.IsActive(), "observer active")

	_, err = f.obs.HandleMethodCall(&channel.MethodCall{Method: channel.MethodStartDetection})
	var merr *channel.MethodError
	testutil.AssertTrue(t, errors.As(err, &merr), "method error returned")
}

func TestHandleMethodCall(t *testing.T) {
	f := newFixture(t)

	got, err := f.obs.HandleMethodCall(&channel.MethodCall{Method: channel.MethodStartDetection})
	testutil.AssertNoError(t, err, "startDetection")
	testutil.AssertEqual(t, true, got, "startDetection result")
	testutil.AssertTrue(t, f.obs.IsActive(), "active after startDetection")

	got, err = f.obs.HandleMethodCall(&channel.MethodCall{Method: channel.MethodGetSdkVersion})
	testutil.AssertNoError(t, err, "getSdkVersion")
	testutil.AssertEqual(t, 618, got, "getSdkVersion result")
	testutil.AssertEqual(t, 1, f.store.subscribes, "getSdkVersion has no side effects")

	got, err = f.obs.HandleMethodCall(&channel.MethodCall{Method: channel.MethodStopDetection})
	testutil.AssertNoError(t, err, "stopDetection")
	testutil.AssertEqual(t, true, got, "stopDetection result")
	testutil.AssertFalse(t, f.obs.IsActive(), "active after stopDetection")

	_, err = f.obs.HandleMethodCall(&channel.MethodCall{Method: "takeScreenshot"})
	testutil.AssertErrorIs(t, err, channel.ErrNotImplemented, "unknown method")
}

func TestDetachStopsDetection(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	f.obs.Detach()

	testutil.AssertFalse(t, f.obs.IsActive(), "observer active")
	testutil.AssertEqual(t, 1, f.store.closes, "unsubscribes")
}

func TestObserverWithMediaStore(t *testing.T) {
	dir := t.TempDir()
	shots := filepath.Join(dir, "Screenshots")
	if err := os.Mkdir(shots, 0755); err != nil {
		t.Fatal(err)
	}

	events := testutil.NewEventRecorder()
	obs := New(mediastore.NewStore(dir), events)
	testutil.AssertNoError(t, obs.StartDetection(), "StartDetection")
	defer obs.StopDetection()

	png := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 64)...)

	// A placeholder that never becomes a real file.
	if err := os.WriteFile(filepath.Join(shots, ".pending-1-Screenshot.png"), png, 0644); err != nil {
		t.Fatal(err)
	}
	shot := filepath.Join(shots, "Screenshot_2026.png")
	if err := os.WriteFile(shot, png, 0644); err != nil {
		t.Fatal(err)
	}

	testutil.AssertEventually(t, func() bool { return events.Count() >= 1 }, 5*time.Second, 20*time.Millisecond, "screenshot event")
	time.Sleep(200 * time.Millisecond)

	got := events.Events()
	testutil.AssertEqual(t, 1, len(got), "forwarded events")
	testutil.AssertEqual(t, shot, got[0].Arguments, "event payload")
}

func TestRewrittenOldScreenshotIsNotForwarded(t *testing.T) {
	if testing.Short() {
		t.Skip("waits past the recency window")
	}

	dir := t.TempDir()
	old := filepath.Join(dir, "Screenshot_old.png")
	png := append([]byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, make([]byte, 64)...)
	if err := os.WriteFile(old, png, 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(RecencyWindow + time.Second)

	appendTo := func(path string) {
		t.Helper()
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			t.Fatal(err)
		}
		defer f.Close()
		if _, err := f.Write([]byte{0, 0, 0, 0}); err != nil {
			t.Fatal(err)
		}
	}

	store := mediastore.NewStore(dir)
	appendTo(old)
	item, err := store.Query(mediastore.ChangeRef{ID: "check", Path: old})
	testutil.AssertNoError(t, err, "Query")
	if IsRecent(item.DateAdded, time.Now()) {
		t.Skip("filesystem does not record creation time")
	}

	lc := testutil.NewLogCapture()
	lc.Start()
	defer lc.Stop()

	events := testutil.NewEventRecorder()
	obs := New(store, events)
	testutil.AssertNoError(t, obs.StartDetection(), "StartDetection")
	defer obs.StopDetection()

	// A fresh screenshot still goes through.
	fresh := filepath.Join(dir, "Screenshot_new.png")
	if err := os.WriteFile(fresh, png, 0644); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEventually(t, func() bool { return events.Count() >= 1 }, 5*time.Second, 20*time.Millisecond, "fresh screenshot event")
	time.Sleep(200 * time.Millisecond)
	events.Reset()
	lc.Reset()

	appendTo(old)
	testutil.AssertNever(t, func() bool { return events.Count() > 0 }, time.Second, 20*time.Millisecond, "rewritten old screenshot forwarded")

	for _, line := range lc.Lines() {
		if strings.Contains(line, "Screenshot detected") {
			t.Errorf("unexpected detection: %s", line)
		}
	}
}
