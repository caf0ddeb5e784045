// Package shotsignal carries the platform's authoritative "user took a
// screenshot" notification to interested observers.
package shotsignal

import (
	"sync"
	"time"
)

// UserDidTakeScreenshot is posted exactly once per user-initiated capture.
const UserDidTakeScreenshot = "UserDidTakeScreenshotNotification"

// Notification is what observers receive. It carries no capture metadata.
type Notification struct {
	Name     string
	Source   string
	PostedAt time.Time
}

// Token identifies one registration returned by AddObserver.
type Token uint64

type registration struct {
	token Token
	fn    func(Notification)
}

// Center dispatches named notifications to registered observers.
type Center struct {
	mu        sync.RWMutex
	next      Token
	observers map[string][]registration
	names     map[Token]string
}

// NewCenter creates an empty notification center
func NewCenter() *Center {
	return &Center{
		observers: make(map[string][]registration),
		names:     make(map[Token]string),
	}
}

// AddObserver registers fn for notifications called name.
func (c *Center) AddObserver(name string, fn func(Notification)) Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.next++
	tok := c.next
	c.observers[name] = append(c.observers[name], registration{token: tok, fn: fn})
	c.names[tok] = name
	return tok
}

// RemoveObserver drops the registration. It reports false for unknown or
// already removed tokens.
func (c *Center) RemoveObserver(tok Token) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	name, ok := c.names[tok]
	if !ok {
		return false
	}
	delete(c.names, tok)

	regs := c.observers[name]
	for i, r := range regs {
		if r.token == tok {
			c.observers[name] = append(regs[:i:i], regs[i+1:]...)
			break
		}
	}
	if len(c.observers[name]) == 0 {
		delete(c.observers, name)
	}
	return true
}

// Post delivers a notification to every observer of name, in registration
// order, on the caller's goroutine. It returns the number of observers
// notified.
func (c *Center) Post(name, source string) int {
	c.mu.RLock()
	regs := append([]registration(nil), c.observers[name]...)
	c.mu.RUnlock()

	n := Notification{Name: name, Source: source, PostedAt: time.Now()}
	for _, r := range regs {
		r.fn(n)
	}
	return len(regs)
}

// ObserverCount returns the number of observers registered for name
func (c *Center) ObserverCount(name string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.observers[name])
}
