// Package demux implements the turn stream demultiplexer: it routes inbound
// data-plane messages to whichever per-turn subscriber is currently active
// and completes that subscriber exactly when the turn's result message
// arrives.
package demux

import (
	"context"
	"sync"
)

// Message is the minimal shape the demultiplexer needs from a parsed
// message: its wire type discriminator. claudeagent.Message satisfies this
// structurally.
type Message interface {
	MessageType() string
}

// Subscriber is a per-turn sink for data-plane messages. It owns an
// unbounded buffer: if the caller cannot keep up, the buffer grows rather
// than dropping or blocking the dispatcher.
type Subscriber struct {
	mu     sync.Mutex
	queue  []Message
	notify chan struct{}
	done   bool
	err    error
}

func newSubscriber() *Subscriber {
	return &Subscriber{notify: make(chan struct{}, 1)}
}

// NewSink returns a standalone Subscriber not tied to the demultiplexer's
// single active-turn slot — used for sinks that span every turn of a
// session (e.g. an unbounded "all messages" stream) rather than one.
func NewSink() *Subscriber {
	return newSubscriber()
}

// Push delivers m to the subscriber. Exported for standalone sinks created
// via NewSink; the active-turn subscriber is pushed to internally by
// Dispatch.
func (s *Subscriber) Push(m Message) { s.push(m) }

// Complete finishes the subscriber, as Dispatch/Fail do for the active-turn
// subscriber. Exported for standalone sinks created via NewSink.
func (s *Subscriber) Complete(err error) { s.complete(err) }

func (s *Subscriber) push(m Message) {
	s.mu.Lock()
	s.queue = append(s.queue, m)
	s.mu.Unlock()
	s.kick()
}

func (s *Subscriber) complete(err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.err = err
	s.mu.Unlock()
	s.kick()
}

func (s *Subscriber) kick() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Recv returns the next buffered message. Once the subscriber has completed
// and the buffer is drained, it returns (nil, nil) for normal completion or
// (nil, err) for error completion (session close, transport termination).
func (s *Subscriber) Recv(ctx context.Context) (Message, error) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			m := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return m, nil
		}
		if s.done {
			err := s.err
			s.mu.Unlock()
			return nil, err
		}
		s.mu.Unlock()

		select {
		case <-s.notify:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// IsDataPlane reports whether msg is a data-plane message (as opposed to a
// control_request/control_response envelope). Exported so callers building
// cross-turn sinks via AddRawSink can apply the same filter Dispatch does.
func IsDataPlane(msg Message) bool { return isDataPlane(msg) }

func isDataPlane(msg Message) bool {
	switch msg.MessageType() {
	case "control_request", "control_response":
		return false
	default:
		return true
	}
}

// Demux holds the single active turn subscriber plus any raw observability
// sinks.
type Demux struct {
	mu       sync.Mutex
	active   *Subscriber
	rawSinks []func(Message)
}

// New returns an empty demultiplexer (no active turn subscriber).
func New() *Demux {
	return &Demux{}
}

// AddRawSink registers fn to receive every inbound parsed message, including
// control messages. fn is invoked inline on the dispatch path; it must be
// fast.
func (d *Demux) AddRawSink(fn func(Message)) {
	d.mu.Lock()
	d.rawSinks = append(d.rawSinks, fn)
	d.mu.Unlock()
}

// Subscribe atomically swaps in a fresh subscriber. Any prior subscriber is
// completed normally (no error) without having necessarily seen a result —
// the caller abandoned it by subscribing again.
func (d *Demux) Subscribe() *Subscriber {
	fresh := newSubscriber()
	d.mu.Lock()
	prior := d.active
	d.active = fresh
	d.mu.Unlock()
	if prior != nil {
		prior.complete(nil)
	}
	return fresh
}

// Dispatch delivers msg to the raw sinks, then — if msg is a data-plane
// message and a turn subscriber is active — to that subscriber. A "result"
// message completes the subscriber normally and clears the slot immediately
// after delivery.
func (d *Demux) Dispatch(msg Message) {
	d.mu.Lock()
	sinks := append([]func(Message){}, d.rawSinks...)
	d.mu.Unlock()
	for _, sink := range sinks {
		sink(msg)
	}

	if !isDataPlane(msg) {
		return
	}

	d.mu.Lock()
	sub := d.active
	isResult := msg.MessageType() == "result"
	if isResult {
		d.active = nil
	}
	d.mu.Unlock()

	if sub == nil {
		return
	}
	sub.push(msg)
	if isResult {
		sub.complete(nil)
	}
}

// Fail completes the currently active subscriber (if any) with err — used
// when the transport terminates or the session closes mid-turn.
func (d *Demux) Fail(err error) {
	d.mu.Lock()
	sub := d.active
	d.active = nil
	d.mu.Unlock()
	if sub != nil {
		sub.complete(err)
	}
}
