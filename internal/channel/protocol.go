// Package channel implements the message channel between a detection
// component and its host application: request/response method calls from
// the host and fire-and-forget events from the plugin, carried as op-coded
// JSON messages over a WebSocket.
package channel

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Name is the channel name both sides announce.
const Name = "screen_capture_detector"

// ProtocolVersion is bumped on incompatible wire changes.
const ProtocolVersion = 1

// Method names shared by host and plugin.
const (
	MethodStartDetection    = "startDetection"
	MethodStopDetection     = "stopDetection"
	MethodGetSdkVersion     = "getSdkVersion"
	MethodOnScreenshotTaken = "onScreenshotTaken"
)

// OpCodes
const (
	OpHello        = 0
	OpEvent        = 5
	OpMethodCall   = 6
	OpMethodResult = 7
)

// Result statuses
const (
	StatusSuccess        = "success"
	StatusError          = "error"
	StatusNotImplemented = "notImplemented"
)

// ErrNotImplemented is returned by handlers for unknown method names and by
// the client when the plugin answers with StatusNotImplemented.
var ErrNotImplemented = errors.New("method not implemented")

// Message is the envelope for everything on the wire.
type Message struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

type HelloData struct {
	Channel         string `json:"channel"`
	Component       string `json:"component"`
	Platform        string `json:"platform"`
	ProtocolVersion int    `json:"protocolVersion"`
}

// MethodCall is a host -> plugin request.
type MethodCall struct {
	CallID    string          `json:"callId"`
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type MethodResult struct {
	CallID string          `json:"callId"`
	Method string          `json:"method"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *MethodError    `json:"error,omitempty"`
}

// EventData is a plugin -> host notification; it has no response.
type EventData struct {
	Method    string          `json:"method"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// MethodError describes a failed method call.
type MethodError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *MethodError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// MethodCallHandler answers method calls. Returning ErrNotImplemented (or an
// error wrapping it) yields a StatusNotImplemented result.
type MethodCallHandler interface {
	HandleMethodCall(call *MethodCall) (interface{}, error)
}

// MethodCallHandlerFunc adapts a function to MethodCallHandler.
type MethodCallHandlerFunc func(call *MethodCall) (interface{}, error)

func (f MethodCallHandlerFunc) HandleMethodCall(call *MethodCall) (interface{}, error) {
	return f(call)
}

// EventSink receives plugin -> host events. Implementations must not block.
type EventSink interface {
	InvokeMethod(method string, arguments interface{})
}

func newMessage(op int, payload interface{}) (Message, error) {
	msg := Message{Op: op}
	data, err := json.Marshal(payload)
	if err != nil {
		return msg, err
	}
	msg.D = data
	return msg, nil
}

// encodeArguments marshals v, returning nil for a nil value so that events
// without payload omit the field entirely.
func encodeArguments(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
