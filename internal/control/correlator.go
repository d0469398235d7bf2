// Package control implements the control-plane correlator: it assigns
// identifiers to caller-initiated control requests, routes inbound
// responses back to the originator, times out pending requests, and fails
// every pending entry when the session closes.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// ErrTimeout is returned when a pending request's deadline elapses before a
// matching response arrives.
var ErrTimeout = errors.New("control: operation timed out")

// ErrClosed is returned for every pending entry when the session closes
// while it was still outstanding.
var ErrClosed = errors.New("control: closed while pending")

// RemoteError wraps an error payload the process sent back for a control
// request.
type RemoteError struct{ Message string }

func (e *RemoteError) Error() string { return fmt.Sprintf("control: remote error: %s", e.Message) }

type outcome struct {
	payload json.RawMessage
	err     error
}

type pendingEntry struct {
	ch chan outcome
}

// Correlator is a concurrent mapping from request identifier to a
// single-shot reply slot.
type Correlator struct {
	prefix  string
	counter uint64

	mu      sync.Mutex
	pending map[string]*pendingEntry
	closed  bool
}

// New creates a correlator whose generated identifiers are prefixed with
// prefix (typically the session identifier once known, or a fresh random
// value before connect).
func New(prefix string) *Correlator {
	return &Correlator{prefix: prefix, pending: make(map[string]*pendingEntry)}
}

// NextID returns the next "<prefix>-<n>" identifier. Identifiers are unique
// for the lifetime of the correlator.
func (c *Correlator) NextID() string {
	n := atomic.AddUint64(&c.counter, 1)
	return fmt.Sprintf("%s-%d", c.prefix, n)
}

// Call registers id, invokes send (expected to transmit the request over the
// wire), then waits for a resolution, a context cancellation, or the
// correlator being closed. send is called while the entry is already
// registered, so a response racing in immediately after the write is never
// lost.
func (c *Correlator) Call(ctx context.Context, id string, send func() error) (json.RawMessage, error) {
	entry := &pendingEntry{ch: make(chan outcome, 1)}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[id] = entry
	c.mu.Unlock()

	if err := send(); err != nil {
		c.remove(id)
		return nil, err
	}

	select {
	case o := <-entry.ch:
		return o.payload, o.err
	case <-ctx.Done():
		if c.remove(id) {
			return nil, ErrTimeout
		}
		// Already resolved concurrently with the deadline; prefer the real
		// outcome over a synthetic timeout.
		select {
		case o := <-entry.ch:
			return o.payload, o.err
		default:
			return nil, ErrTimeout
		}
	}
}

// remove deletes id from the pending map and reports whether it was present
// (i.e. whether this call is the one that gets to resolve it).
func (c *Correlator) remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.pending[id]
	delete(c.pending, id)
	return ok
}

// Resolve delivers a success payload to the pending entry for id, if any. It
// reports whether a pending entry was found (an unmatched request_id is a
// protocol-level anomaly the caller may choose to log).
func (c *Correlator) Resolve(id string, payload json.RawMessage) bool {
	return c.finish(id, outcome{payload: payload})
}

// Reject delivers an error payload to the pending entry for id, if any.
func (c *Correlator) Reject(id string, message string) bool {
	return c.finish(id, outcome{err: &RemoteError{Message: message}})
}

func (c *Correlator) finish(id string, o outcome) bool {
	c.mu.Lock()
	entry, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	entry.ch <- o
	return true
}

// CloseAll fails every currently pending entry with ErrClosed and marks the
// correlator closed so that subsequent Call invocations fail immediately.
// Idempotent.
func (c *Correlator) CloseAll() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]*pendingEntry)
	c.mu.Unlock()

	for _, entry := range pending {
		entry.ch <- outcome{err: ErrClosed}
	}
}
