// Package observer implements the heuristic detection component: it watches
// the media store for new images and reports the ones that look like fresh
// screenshots to the host.
package observer

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/tiroq/screencap/internal/channel"
	"github.com/tiroq/screencap/internal/diaglog"
	"github.com/tiroq/screencap/internal/mediastore"
	"github.com/tiroq/screencap/internal/platform"
	"github.com/tiroq/screencap/internal/statemachine"
)

// ComponentName is announced to hosts in the channel Hello.
const ComponentName = "observer"

// Store is the media store the observer subscribes to.
type Store interface {
	Subscribe(fn func(mediastore.ChangeRef)) (io.Closer, error)
	Query(ref mediastore.ChangeRef) (*mediastore.Item, error)
}

// Observer is the heuristic screenshot detector.
type Observer struct {
	store  Store
	sink   channel.EventSink
	logger *diaglog.Logger
	sm     *statemachine.StateMachine

	now       func() time.Time
	afterFunc afterFunc
	apiLevel  func() int

	mu      sync.Mutex
	sub     io.Closer
	session *Session
}

// New creates an inactive observer delivering events to sink
func New(store Store, sink channel.EventSink) *Observer {
	return &Observer{
		store:     store,
		sink:      sink,
		sm:        statemachine.NewStateMachine(),
		now:       time.Now,
		afterFunc: timerAfterFunc,
		apiLevel:  platform.APILevel,
	}
}

// SetLogger injects a diaglog.Logger. Must be called before StartDetection.
func (o *Observer) SetLogger(l *diaglog.Logger) {
	o.logger = l
}

// StartDetection subscribes to the store. It is a no-op while detection is
// already active.
func (o *Observer) StartDetection() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.sm.IsActive() {
		return nil
	}

	session := newSession(o.store, o.sink, o.logger, o.now, o.afterFunc)
	sub, err := o.store.Subscribe(session.OnChange)
	if err != nil {
		return fmt.Errorf("subscribe to media store: %w", err)
	}

	o.sub = sub
	o.session = session
	o.sm.Start()

	log.Printf("[DETECT] Observer started (session %s)", session.ID())
	o.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentObserver,
		Event:     diaglog.EventDetectionStart,
		SessionID: session.ID(),
	})
	return nil
}

// StopDetection unsubscribes and discards the session state. It is a
// no-op while detection is inactive.
func (o *Observer) StopDetection() {
	o.mu.Lock()
	if !o.sm.Stop() {
		o.mu.Unlock()
		return
	}
	sub, session := o.sub, o.session
	o.sub, o.session = nil, nil
	o.mu.Unlock()

	// Close outside o.mu: it waits for an in-flight callback to finish.
	if err := sub.Close(); err != nil {
		log.Printf("[DETECT] Failed to close store subscription: %v", err)
	}
	session.Close()

	log.Printf("[DETECT] Observer stopped (session %s)", session.ID())
	o.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentObserver,
		Event:     diaglog.EventDetectionStop,
		SessionID: session.ID(),
	})
}

// SDKVersion returns the platform API level
func (o *Observer) SDKVersion() int {
	return o.apiLevel()
}

// IsActive reports whether detection is running
func (o *Observer) IsActive() bool {
	return o.sm.IsActive()
}

// Status returns the lifecycle snapshot
func (o *Observer) Status() statemachine.Snapshot {
	return o.sm.Snapshot()
}

// Detach tears the component down when the plugin is unregistered.
func (o *Observer) Detach() {
	o.StopDetection()
}

// HandleMethodCall implements channel.MethodCallHandler.
func (o *Observer) HandleMethodCall(call *channel.MethodCall) (interface{}, error) {
	switch call.Method {
	case channel.MethodStartDetection:
		if err := o.StartDetection(); err != nil {
			return nil, &channel.MethodError{Code: "SUBSCRIBE_FAILED", Message: err.Error()}
		}
		return true, nil
	case channel.MethodStopDetection:
		o.StopDetection()
		return true, nil
	case channel.MethodGetSdkVersion:
		return o.SDKVersion(), nil
	default:
		return nil, channel.ErrNotImplemented
	}
}
