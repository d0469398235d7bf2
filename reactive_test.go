package claudeagent

import (
	"context"
	"strings"
	"sync"
	"testing"
)

func TestReactiveSessionTurnSpec(t *testing.T) {
	ctx := context.Background()
	s := NewSession(fakeAgentOptions(t), nil, nil)
	rs := NewReactiveSession(s)
	defer rs.Close()

	if err := rs.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	text, err := rs.Query("hello reactive").Text(ctx)
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if !strings.Contains(text, "hello reactive") {
		t.Fatalf("Text = %q, want it to contain the prompt", text)
	}
}

func TestReactiveSessionTurnSpecIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewSession(fakeAgentOptions(t), nil, nil)
	rs := NewReactiveSession(s)
	defer rs.Close()
	if err := rs.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	turn := rs.Query("once")
	text1, err := turn.Text(ctx)
	if err != nil {
		t.Fatalf("first Text: %v", err)
	}
	// A second subscription to the same TurnSpec must reuse the already
	//-started turn rather than sending the prompt twice.
	it := turn.Messages(ctx)
	msg, err := it.Next(ctx)
	if err != nil {
		t.Fatalf("second Messages/Next: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected the already-drained turn to be exhausted, got %T", msg)
	}
	if !strings.Contains(text1, "once") {
		t.Fatalf("text1 = %q, want it to contain the prompt", text1)
	}
}

func TestReactiveSessionCrossTurnHandlers(t *testing.T) {
	ctx := context.Background()
	s := NewSession(fakeAgentOptions(t), nil, nil)
	rs := NewReactiveSession(s)
	defer rs.Close()
	if err := rs.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var mu sync.Mutex
	var messages int
	var results int
	done := make(chan struct{}, 1)

	rs.OnMessage(func(m Message) {
		mu.Lock()
		messages++
		mu.Unlock()
	})
	rs.OnResult(func(r *ResultMessage) {
		mu.Lock()
		results++
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	})

	if _, err := rs.Query("observed").Text(ctx); err != nil {
		t.Fatalf("Text: %v", err)
	}

	<-done
	mu.Lock()
	defer mu.Unlock()
	if messages == 0 {
		t.Fatalf("OnMessage handler never fired")
	}
	if results != 1 {
		t.Fatalf("OnResult handler fired %d times, want 1", results)
	}
}

func TestReactiveSessionTextStream(t *testing.T) {
	ctx := context.Background()
	s := NewSession(fakeAgentOptions(t), nil, nil)
	rs := NewReactiveSession(s)
	defer rs.Close()
	if err := rs.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	next := rs.Query("streamed").TextStream(ctx)
	var out string
	for {
		frag := next()
		if frag.Err != nil {
			t.Fatalf("TextStream: %v", frag.Err)
		}
		out += frag.Text
		if frag.Done {
			break
		}
	}
	if !strings.Contains(out, "streamed") {
		t.Fatalf("out = %q, want it to contain the prompt", out)
	}
}
