// Package notifier implements the native-signal detection component. It
// relays every platform screenshot notification to the host verbatim.
package notifier

import (
	"log"
	"sync"

	"github.com/tiroq/screencap/internal/channel"
	"github.com/tiroq/screencap/internal/diaglog"
	"github.com/tiroq/screencap/internal/shotsignal"
	"github.com/tiroq/screencap/internal/statemachine"
)

// ComponentName is announced to hosts in the channel Hello.
const ComponentName = "notifier"

// Notifier forwards shotsignal.UserDidTakeScreenshot to the host.
type Notifier struct {
	center *shotsignal.Center
	sink   channel.EventSink
	logger *diaglog.Logger
	sm     *statemachine.StateMachine

	mu    sync.Mutex
	token shotsignal.Token
}

// New creates an inactive notifier
func New(center *shotsignal.Center, sink channel.EventSink) *Notifier {
	return &Notifier{
		center: center,
		sink:   sink,
		sm:     statemachine.NewStateMachine(),
	}
}

// SetLogger injects a diaglog.Logger. Must be called before StartDetection.
func (n *Notifier) SetLogger(l *diaglog.Logger) {
	n.logger = l
}

// StartDetection registers for the screenshot notification. It is a no-op
// while already registered.
func (n *Notifier) StartDetection() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.sm.Start() {
		return
	}
	n.token = n.center.AddObserver(shotsignal.UserDidTakeScreenshot, n.onScreenshot)

	log.Println("[DETECT] Notifier started")
	n.logger.Log(diaglog.LogEntry{Component: diaglog.ComponentNotifier, Event: diaglog.EventDetectionStart})
}

// StopDetection unregisters. It is a no-op while not registered.
func (n *Notifier) StopDetection() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.sm.Stop() {
		return
	}
	n.center.RemoveObserver(n.token)
	n.token = 0

	log.Println("[DETECT] Notifier stopped")
	n.logger.Log(diaglog.LogEntry{Component: diaglog.ComponentNotifier, Event: diaglog.EventDetectionStop})
}

// onScreenshot needs no classification; the signal is authoritative.
func (n *Notifier) onScreenshot(note shotsignal.Notification) {
	n.logger.Log(diaglog.LogEntry{
		Component: diaglog.ComponentNotifier,
		Event:     diaglog.EventSignalReceived,
		Payload:   map[string]interface{}{"source": note.Source},
	})
	n.sink.InvokeMethod(channel.MethodOnScreenshotTaken, nil)
}

// IsActive reports whether the notifier is registered
func (n *Notifier) IsActive() bool {
	return n.sm.IsActive()
}

// Status returns the lifecycle snapshot
func (n *Notifier) Status() statemachine.Snapshot {
	return n.sm.Snapshot()
}

// Detach tears the component down when the plugin is unregistered.
func (n *Notifier) Detach() {
	n.StopDetection()
}

// HandleMethodCall implements channel.MethodCallHandler. This component
// exposes no version query.
func (n *Notifier) HandleMethodCall(call *channel.MethodCall) (interface{}, error) {
	switch call.Method {
	case channel.MethodStartDetection:
		n.StartDetection()
		return true, nil
	case channel.MethodStopDetection:
		n.StopDetection()
		return true, nil
	default:
		return nil, channel.ErrNotImplemented
	}
}
