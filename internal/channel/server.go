package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tiroq/screencap/internal/diaglog"
)

const (
	outboxSize   = 64
	writeTimeout = 5 * time.Second
)

// hostConn is one connected host. gorilla connections allow a single
// concurrent writer, so writes go through writeMu.
type hostConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (h *hostConn) writeJSON(v interface{}) error {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	_ = h.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return h.conn.WriteJSON(v)
}

// Server is the plugin side of the channel. It is an http.Handler that
// upgrades requests to WebSocket connections.
type Server struct {
	component string
	upgrader  websocket.Upgrader

	handler   MethodCallHandler
	handlerMu sync.RWMutex

	conns   map[*hostConn]struct{}
	connsMu sync.Mutex

	outbox    chan EventData
	done      chan struct{}
	senderWG  sync.WaitGroup
	closeOnce sync.Once

	logger   *diaglog.Logger
	loggerMu sync.RWMutex
}

// NewServer creates a channel server announcing component in its Hello
// message and starts the event sender.
func NewServer(component string) *Server {
	s := &Server{
		component: component,
		upgrader: websocket.Upgrader{
			// Hosts are local processes; the origin header is not meaningful.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns:  make(map[*hostConn]struct{}),
		outbox: make(chan EventData, outboxSize),
		done:   make(chan struct{}),
	}
	s.senderWG.Add(1)
	go s.sendEvents()
	return s
}

// SetMethodCallHandler installs the handler for incoming calls. A nil
// handler answers every call with StatusNotImplemented.
func (s *Server) SetMethodCallHandler(h MethodCallHandler) {
	s.handlerMu.Lock()
	s.handler = h
	s.handlerMu.Unlock()
}

// SetLogger injects a diaglog.Logger. Passing nil disables structured logging.
func (s *Server) SetLogger(l *diaglog.Logger) {
	s.loggerMu.Lock()
	s.logger = l
	s.loggerMu.Unlock()
}

// ServeHTTP upgrades the request and serves the host until it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.done:
		http.Error(w, "channel closed", http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[CHANNEL] Upgrade failed: %v", err)
		return
	}

	host := &hostConn{conn: conn}
	if !s.addConn(host) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "plugin detached"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	defer s.removeConn(host)

	hello, err := newMessage(OpHello, HelloData{
		Channel:         Name,
		Component:       s.component,
		Platform:        runtime.GOOS,
		ProtocolVersion: ProtocolVersion,
	})
	if err != nil {
		return
	}
	if err := host.writeJSON(hello); err != nil {
		log.Printf("[CHANNEL] Failed to send hello: %v", err)
		return
	}

	s.log(diaglog.LogEntry{
		Event:   diaglog.EventHostConnect,
		Payload: map[string]interface{}{"remote": r.RemoteAddr},
	})

	s.readMessages(host)
}

// readMessages serves calls from one host serially, in arrival order.
func (s *Server) readMessages(host *hostConn) {
	for {
		var msg Message
		if err := host.conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-s.done:
				default:
					log.Printf("[CHANNEL] Host read error: %v", err)
				}
			}
			return
		}

		switch msg.Op {
		case OpMethodCall:
			var call MethodCall
			if err := json.Unmarshal(msg.D, &call); err != nil {
				log.Printf("[CHANNEL] Malformed method call: %v", err)
				continue
			}
			result := s.dispatch(&call)
			reply, err := newMessage(OpMethodResult, result)
			if err != nil {
				continue
			}
			if err := host.writeJSON(reply); err != nil {
				log.Printf("[CHANNEL] Failed to send result for %s: %v", call.Method, err)
				return
			}
		default:
			// Hosts only send method calls.
		}
	}
}

// dispatch runs the handler and converts its outcome into a MethodResult.
// Handler panics are reported as errors so a faulty call never takes down
// the connection.
func (s *Server) dispatch(call *MethodCall) (result *MethodResult) {
	result = &MethodResult{CallID: call.CallID, Method: call.Method}

	s.handlerMu.RLock()
	h := s.handler
	s.handlerMu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("[CHANNEL] PANIC in %s handler: %v", call.Method, r)
			result.Status = StatusError
			result.Result = nil
			result.Error = &MethodError{Code: "PANIC", Message: fmt.Sprint(r)}
		}
		s.log(diaglog.LogEntry{
			Event:   diaglog.EventMethodResult,
			Payload: map[string]interface{}{"method": call.Method, "status": result.Status},
		})
	}()

	s.log(diaglog.LogEntry{
		Event:   diaglog.EventMethodCall,
		Payload: map[string]interface{}{"method": call.Method, "call_id": call.CallID},
	})

	if h == nil {
		result.Status = StatusNotImplemented
		return result
	}

	value, err := h.HandleMethodCall(call)
	if err != nil {
		var merr *MethodError
		switch {
		case errors.Is(err, ErrNotImplemented):
			result.Status = StatusNotImplemented
		case errors.As(err, &merr):
			result.Status = StatusError
			result.Error = merr
		default:
			result.Status = StatusError
			result.Error = &MethodError{Code: "ERROR", Message: err.Error()}
		}
		return result
	}

	data, err := encodeArguments(value)
	if err != nil {
		result.Status = StatusError
		result.Error = &MethodError{Code: "ENCODE", Message: err.Error()}
		return result
	}
	result.Status = StatusSuccess
	result.Result = data
	return result
}

// InvokeMethod posts an event to every connected host. It never blocks:
// delivery happens on the sender goroutine, and the event is dropped when
// the outbox is full or the server is closed.
func (s *Server) InvokeMethod(method string, arguments interface{}) {
	args, err := encodeArguments(arguments)
	if err != nil {
		log.Printf("[CHANNEL] Cannot encode %s arguments: %v", method, err)
		return
	}
	ev := EventData{Method: method, Arguments: args}

	select {
	case <-s.done:
		s.dropped(ev, "closed")
		return
	default:
	}

	select {
	case s.outbox <- ev:
	default:
		s.dropped(ev, "outbox_full")
	}
}

func (s *Server) sendEvents() {
	defer s.senderWG.Done()
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.outbox:
			s.broadcast(ev)
		}
	}
}

func (s *Server) broadcast(ev EventData) {
	msg, err := newMessage(OpEvent, ev)
	if err != nil {
		return
	}

	s.connsMu.Lock()
	hosts := make([]*hostConn, 0, len(s.conns))
	for h := range s.conns {
		hosts = append(hosts, h)
	}
	s.connsMu.Unlock()

	if len(hosts) == 0 {
		s.dropped(ev, "no_host")
		return
	}

	for _, h := range hosts {
		if err := h.writeJSON(msg); err != nil {
			log.Printf("[CHANNEL] Failed to deliver %s: %v", ev.Method, err)
		}
	}
	s.log(diaglog.LogEntry{
		Event:   diaglog.EventEventPosted,
		Payload: map[string]interface{}{"method": ev.Method, "hosts": len(hosts)},
	})
}

func (s *Server) dropped(ev EventData, reason string) {
	log.Printf("[CHANNEL] Dropping %s event (%s)", ev.Method, reason)
	s.log(diaglog.LogEntry{
		Event:   diaglog.EventEventDropped,
		Reason:  reason,
		Payload: map[string]interface{}{"method": ev.Method},
	})
}

// addConn registers h unless the server is closed. Close snapshots conns
// under the same lock, so a host is either in that snapshot or refused here.
func (s *Server) addConn(h *hostConn) bool {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	select {
	case <-s.done:
		return false
	default:
	}
	s.conns[h] = struct{}{}
	return true
}

func (s *Server) removeConn(h *hostConn) {
	s.connsMu.Lock()
	_, ok := s.conns[h]
	delete(s.conns, h)
	s.connsMu.Unlock()

	if ok {
		_ = h.conn.Close()
		s.log(diaglog.LogEntry{Event: diaglog.EventHostDisconnect})
	}
}

// HostCount returns the number of connected hosts
func (s *Server) HostCount() int {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	return len(s.conns)
}

// Close disconnects every host and stops the sender. Pending events are
// discarded.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.senderWG.Wait()

		s.connsMu.Lock()
		hosts := make([]*hostConn, 0, len(s.conns))
		for h := range s.conns {
			hosts = append(hosts, h)
		}
		s.connsMu.Unlock()

		for _, h := range hosts {
			_ = h.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "plugin detached"),
				time.Now().Add(time.Second))
			_ = h.conn.Close()
		}
	})
	return nil
}

func (s *Server) log(entry diaglog.LogEntry) {
	s.loggerMu.RLock()
	l := s.logger
	s.loggerMu.RUnlock()
	if l == nil {
		return
	}
	if entry.Component == "" {
		entry.Component = diaglog.ComponentChannel
	}
	l.Log(entry)
}
