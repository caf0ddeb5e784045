package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultCallTimeout bounds InvokeMethod when ctx carries no deadline.
const DefaultCallTimeout = 10 * time.Second

// Client is the host side of the channel.
type Client struct {
	url  string
	conn *websocket.Conn
	mu   sync.RWMutex

	writeMu sync.Mutex

	callID   int
	callIDMu sync.Mutex

	pending   map[string]chan *MethodResult
	pendingMu sync.Mutex

	handlers   map[string][]func(arguments json.RawMessage)
	handlersMu sync.RWMutex

	hello     HelloData
	helloChan chan HelloData

	onDisconnected func()

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client for the plugin channel at url (ws://host:port/path)
func NewClient(url string) *Client {
	return &Client{
		url:       url,
		pending:   make(map[string]chan *MethodResult),
		handlers:  make(map[string][]func(json.RawMessage)),
		helloChan: make(chan HelloData, 1),
		done:      make(chan struct{}),
	}
}

// Connect dials the plugin and waits for its Hello message.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return fmt.Errorf("already connected")
	}
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readMessages(conn)

	timer := time.NewTimer(DefaultCallTimeout)
	defer timer.Stop()

	select {
	case hello := <-c.helloChan:
		if hello.Channel != Name {
			_ = c.Close()
			return fmt.Errorf("unexpected channel %q", hello.Channel)
		}
		c.mu.Lock()
		c.hello = hello
		c.mu.Unlock()
		return nil
	case <-ctx.Done():
		_ = c.Close()
		return ctx.Err()
	case <-timer.C:
		_ = c.Close()
		return fmt.Errorf("timeout waiting for Hello message")
	}
}

// Hello returns the plugin's announcement received on Connect
func (c *Client) Hello() HelloData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hello
}

func (c *Client) readMessages(conn *websocket.Conn) {
	defer func() {
		c.failPending()
		if c.onDisconnected != nil {
			c.onDisconnected()
		}
	}()

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Printf("[HOST] Channel read error: %v", err)
				}
			}
			return
		}

		switch msg.Op {
		case OpHello:
			var hello HelloData
			if err := json.Unmarshal(msg.D, &hello); err == nil {
				select {
				case c.helloChan <- hello:
				default:
				}
			}

		case OpMethodResult:
			var result MethodResult
			if err := json.Unmarshal(msg.D, &result); err == nil {
				c.handleResult(&result)
			}

		case OpEvent:
			var ev EventData
			if err := json.Unmarshal(msg.D, &ev); err == nil {
				c.handleEvent(&ev)
			}
		}
	}
}

func (c *Client) handleResult(result *MethodResult) {
	c.pendingMu.Lock()
	ch, ok := c.pending[result.CallID]
	c.pendingMu.Unlock()

	if !ok {
		log.Printf("Warning: result for unknown call %q (%s)", result.CallID, result.Method)
		return
	}
	ch <- result
}

func (c *Client) handleEvent(ev *EventData) {
	c.handlersMu.RLock()
	fns := append([]func(json.RawMessage){}, c.handlers[ev.Method]...)
	c.handlersMu.RUnlock()

	for _, fn := range fns {
		fn(ev.Arguments)
	}
}

// failPending wakes every waiting call after the connection is gone.
func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		select {
		case ch <- nil:
		default:
		}
		delete(c.pending, id)
	}
}

// InvokeMethod calls method on the plugin and returns the raw result.
// A StatusNotImplemented answer is reported as ErrNotImplemented and a
// StatusError answer as *MethodError.
func (c *Client) InvokeMethod(ctx context.Context, method string, arguments interface{}) (json.RawMessage, error) {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	args, err := encodeArguments(arguments)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}

	c.callIDMu.Lock()
	c.callID++
	id := strconv.Itoa(c.callID)
	c.callIDMu.Unlock()

	msg, err := newMessage(OpMethodCall, MethodCall{CallID: id, Method: method, Arguments: args})
	if err != nil {
		return nil, err
	}

	resultChan := make(chan *MethodResult, 1)
	c.pendingMu.Lock()
	c.pending[id] = resultChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	c.writeMu.Lock()
	err = conn.WriteJSON(msg)
	c.writeMu.Unlock()
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultCallTimeout)
		defer cancel()
	}

	select {
	case result := <-resultChan:
		if result == nil {
			return nil, fmt.Errorf("connection closed during %s", method)
		}
		switch result.Status {
		case StatusSuccess:
			return result.Result, nil
		case StatusNotImplemented:
			return nil, fmt.Errorf("%s: %w", method, ErrNotImplemented)
		default:
			if result.Error != nil {
				return nil, result.Error
			}
			return nil, &MethodError{Code: "ERROR", Message: "call failed without detail"}
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", method, ctx.Err())
	}
}

// StartDetection asks the plugin to begin detection
func (c *Client) StartDetection(ctx context.Context) (bool, error) {
	return c.invokeBool(ctx, MethodStartDetection)
}

// StopDetection asks the plugin to stop detection
func (c *Client) StopDetection(ctx context.Context) (bool, error) {
	return c.invokeBool(ctx, MethodStopDetection)
}

// SdkVersion returns the plugin platform's API level
func (c *Client) SdkVersion(ctx context.Context) (int, error) {
	raw, err := c.InvokeMethod(ctx, MethodGetSdkVersion, nil)
	if err != nil {
		return 0, err
	}
	var v int
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("decode %s result: %w", MethodGetSdkVersion, err)
	}
	return v, nil
}

func (c *Client) invokeBool(ctx context.Context, method string) (bool, error) {
	raw, err := c.InvokeMethod(ctx, method, nil)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false, fmt.Errorf("decode %s result: %w", method, err)
	}
	return ok, nil
}

// OnEvent registers fn for events named method. Handlers run on the read
// goroutine in registration order.
func (c *Client) OnEvent(method string, fn func(arguments json.RawMessage)) {
	c.handlersMu.Lock()
	c.handlers[method] = append(c.handlers[method], fn)
	c.handlersMu.Unlock()
}

// OnScreenshotTaken registers fn for screenshot events. path is empty when
// the plugin's signal carries no payload.
func (c *Client) OnScreenshotTaken(fn func(path string)) {
	c.OnEvent(MethodOnScreenshotTaken, func(arguments json.RawMessage) {
		var path string
		if len(arguments) > 0 {
			if err := json.Unmarshal(arguments, &path); err != nil {
				log.Printf("Warning: malformed %s payload: %v", MethodOnScreenshotTaken, err)
			}
		}
		fn(path)
	})
}

// OnDisconnected registers callback for disconnection events. Must be set
// before Connect.
func (c *Client) OnDisconnected(handler func()) {
	c.onDisconnected = handler
}

// Close closes the connection
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = conn.Close()
	})
	return err
}
