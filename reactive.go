package claudeagent

import (
	"context"
	"sync"

	"github.com/anthropics/claude-agent-sdk-go/internal/demux"
)

// MessageHandler is a cross-turn observer invoked for every regular message
// a ReactiveSession receives, before that message is handed to the turn's
// own subscriber. It must be fast: it runs inline on the read path.
type MessageHandler func(Message)

// ResultHandler is a cross-turn observer invoked for every turn's result
// message.
type ResultHandler func(*ResultMessage)

// ReactiveSession wraps a Session so that each turn is represented by a lazy
// TurnSpec instead of a directly-returned iterator: nothing is sent to the
// process until the caller subscribes to one of the TurnSpec's producers.
type ReactiveSession struct {
	session *Session

	mu         sync.Mutex
	onMessage  []MessageHandler
	onResult   []ResultHandler
}

// NewReactiveSession wraps an unconnected Session.
func NewReactiveSession(session *Session) *ReactiveSession {
	rs := &ReactiveSession{session: session}
	session.demux.AddRawSink(func(m Message) {
		rs.dispatch(m)
	})
	return rs
}

func (rs *ReactiveSession) dispatch(m Message) {
	// AddRawSink feeds every inbound message, control-plane frames included;
	// OnMessage/OnResult are documented as data-plane-only observers.
	if !demux.IsDataPlane(m) {
		return
	}

	rs.mu.Lock()
	messageHandlers := append([]MessageHandler{}, rs.onMessage...)
	resultHandlers := append([]ResultHandler{}, rs.onResult...)
	rs.mu.Unlock()

	for _, h := range messageHandlers {
		h(m)
	}
	if result, ok := m.(*ResultMessage); ok {
		for _, h := range resultHandlers {
			h(result)
		}
	}
}

// OnMessage registers a cross-turn handler invoked for every data-plane
// message, result messages included, across every turn of the session's
// lifetime.
func (rs *ReactiveSession) OnMessage(h MessageHandler) {
	rs.mu.Lock()
	rs.onMessage = append(rs.onMessage, h)
	rs.mu.Unlock()
}

// OnResult registers a cross-turn handler invoked for every turn's result
// message.
func (rs *ReactiveSession) OnResult(h ResultHandler) {
	rs.mu.Lock()
	rs.onResult = append(rs.onResult, h)
	rs.mu.Unlock()
}

// Connect spawns the underlying session's process.
func (rs *ReactiveSession) Connect(ctx context.Context) error {
	return rs.session.Connect(ctx, "")
}

// Close tears down the underlying session.
func (rs *ReactiveSession) Close() error {
	return rs.session.Close()
}

// Interrupt, SetPermissionMode and SetModel pass through to the underlying
// Session unchanged — they are not turn-scoped.
func (rs *ReactiveSession) Interrupt(ctx context.Context) error { return rs.session.Interrupt(ctx) }
func (rs *ReactiveSession) SetPermissionMode(ctx context.Context, mode PermissionMode) error {
	return rs.session.SetPermissionMode(ctx, mode)
}
func (rs *ReactiveSession) SetModel(ctx context.Context, model string) error {
	return rs.session.SetModel(ctx, model)
}

// Query returns a TurnSpec for prompt. No message is sent to the process
// until the caller subscribes via Text, TextStream, or Messages.
func (rs *ReactiveSession) Query(prompt string) *TurnSpec {
	return &TurnSpec{rs: rs, prompt: prompt}
}

// TurnSpec is a triple of lazy producers over one turn. Subscribing to any
// one of them takes the turn slot, sends the query if it has not already
// been sent, and streams until the turn's result.
type TurnSpec struct {
	rs     *ReactiveSession
	prompt string

	mu      sync.Mutex
	started bool
	it      *MessageIterator
	err     error
}

// start is idempotent: the first subscriber across Text/TextStream/Messages
// sends the query and installs the turn's iterator; later subscribers reuse
// it, so a TurnSpec still represents exactly one turn no matter how many of
// its producers are consulted.
func (ts *TurnSpec) start(ctx context.Context) (*MessageIterator, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.started {
		return ts.it, ts.err
	}
	ts.started = true
	ts.it, ts.err = ts.rs.session.query(ctx, ts.prompt)
	return ts.it, ts.err
}

// Text is a one-shot producer yielding all assistant text for the turn,
// concatenated in arrival order.
func (ts *TurnSpec) Text(ctx context.Context) (string, error) {
	it, err := ts.start(ctx)
	if err != nil {
		return "", err
	}
	var out string
	for {
		msg, err := it.Next(ctx)
		if err != nil {
			return out, err
		}
		if msg == nil {
			return out, nil
		}
		if am, ok := msg.(*AssistantMessage); ok {
			out += am.Text()
		}
	}
}

// TextFragment is one piece of a TextStream: either a chunk of assistant
// text, or (on the final call) the turn's terminal error, if any.
type TextFragment struct {
	Text string
	Done bool
	Err  error
}

// TextStream returns a producer yielding assistant text fragments as they
// arrive; call repeatedly until Done is true.
func (ts *TurnSpec) TextStream(ctx context.Context) func() TextFragment {
	it, err := ts.start(ctx)
	if err != nil {
		return func() TextFragment { return TextFragment{Done: true, Err: err} }
	}
	return func() TextFragment {
		for {
			msg, err := it.Next(ctx)
			if err != nil {
				return TextFragment{Done: true, Err: err}
			}
			if msg == nil {
				return TextFragment{Done: true}
			}
			if am, ok := msg.(*AssistantMessage); ok {
				if text := am.Text(); text != "" {
					return TextFragment{Text: text}
				}
				continue
			}
		}
	}
}

// Messages returns a producer yielding every regular message of the turn,
// result message included.
func (ts *TurnSpec) Messages(ctx context.Context) *MessageIterator {
	it, err := ts.start(ctx)
	if err != nil {
		// A TurnSpec whose query failed to send still needs to hand back an
		// iterator whose first Next reports that failure, rather than a nil
		// pointer the caller would have to special-case.
		sub := demux.NewSink()
		sub.Complete(err)
		return &MessageIterator{sub: sub}
	}
	return it
}
