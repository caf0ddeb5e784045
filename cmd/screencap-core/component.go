package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/tiroq/screencap/internal/channel"
	"github.com/tiroq/screencap/internal/config"
	"github.com/tiroq/screencap/internal/diaglog"
	"github.com/tiroq/screencap/internal/ipc"
	"github.com/tiroq/screencap/internal/mediastore"
	"github.com/tiroq/screencap/internal/notifier"
	"github.com/tiroq/screencap/internal/observer"
	"github.com/tiroq/screencap/internal/platform"
	"github.com/tiroq/screencap/internal/shotsignal"
	"github.com/tiroq/screencap/internal/statemachine"
)

// component is the detection component attached to the channel.
type component interface {
	channel.MethodCallHandler
	start() error
	Status() statemachine.Snapshot
	Detach()
}

type observerComponent struct{ *observer.Observer }

func (c observerComponent) start() error { return c.StartDetection() }

type notifierComponent struct{ *notifier.Notifier }

func (c notifierComponent) start() error {
	c.StartDetection()
	return nil
}

func buildComponent(ctx context.Context, cfg *config.Config, sink channel.EventSink, dl *diaglog.Logger) (component, error) {
	switch cfg.Component {
	case config.ComponentObserver:
		roots := cfg.ResolveWatchDirs()
		if len(roots) == 0 {
			roots = platform.PictureDirs()
		}
		if len(roots) == 0 {
			return nil, fmt.Errorf("no picture directories found; set watch_dirs in %s", config.Path())
		}
		// Screenshot hooks may still send the notifier signal; its default
		// action would terminate the daemon.
		if sig, err := shotsignal.ParseSignal(cfg.Signal); err == nil {
			signal.Ignore(sig)
		}

		store := mediastore.NewStore(roots...)
		store.SetLogger(dl)
		outLog.Printf("[STARTUP] Observer watching %v", store.Roots())

		o := observer.New(store, sink)
		o.SetLogger(dl)
		return observerComponent{o}, nil

	case config.ComponentNotifier:
		sig, err := shotsignal.ParseSignal(cfg.Signal)
		if err != nil {
			return nil, err
		}
		center := shotsignal.NewCenter()
		shotsignal.ListenSignals(ctx, center, sig)
		outLog.Printf("[STARTUP] Notifier relaying %s (kill -%s %d)", sig, cfg.Signal, os.Getpid())

		n := notifier.New(center, sink)
		n.SetLogger(dl)
		return notifierComponent{n}, nil
	}
	return nil, fmt.Errorf("unknown component %q", cfg.Component)
}

// eventCounter forwards events to the channel and remembers delivery stats
// for the status file.
type eventCounter struct {
	next channel.EventSink

	mu   sync.Mutex
	sent int
	last time.Time
}

func newEventCounter(next channel.EventSink) *eventCounter {
	return &eventCounter{next: next}
}

func (e *eventCounter) InvokeMethod(method string, arguments interface{}) {
	e.mu.Lock()
	e.sent++
	e.last = time.Now()
	e.mu.Unlock()

	if path, ok := arguments.(string); ok {
		outLog.Printf("[DETECT] %s %s", method, path)
	} else {
		outLog.Printf("[DETECT] %s", method)
	}
	e.next.InvokeMethod(method, arguments)
}

func (e *eventCounter) stats() (int, time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sent, e.last
}

type statusWriter struct {
	dir        string
	cfg        *config.Config
	comp       component
	server     *channel.Server
	events     *eventCounter
	listenAddr string
	lastErr    string
}

func (w *statusWriter) write() {
	snap := w.comp.Status()
	sent, last := w.events.stats()

	status := &ipc.StatusSnapshot{
		Component:   string(w.cfg.Component),
		Platform:    platform.Name(),
		APILevel:    platform.APILevel(),
		ListenAddr:  w.listenAddr,
		PID:         os.Getpid(),
		Active:      snap.State == statemachine.StateActive,
		Activations: snap.Activations,
		Hosts:       w.server.HostCount(),
		EventsSent:  sent,
		LastError:   w.lastErr,
		Timestamp:   time.Now(),
	}
	if status.Active {
		since := snap.ActiveSince
		status.ActiveSince = &since
	}
	if !last.IsZero() {
		status.LastEvent = &last
	}

	if err := ipc.WriteStatusTo(w.dir, status); err != nil {
		errLog.Printf("Failed to write status: %v", err)
	}
}
