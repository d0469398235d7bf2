package control

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCallResolvesAfterSend(t *testing.T) {
	c := New("sess")
	id := c.NextID()

	sent := make(chan struct{})
	go func() {
		<-sent
		c.Resolve(id, []byte(`{"ok":true}`))
	}()

	payload, err := c.Call(context.Background(), id, func() error {
		close(sent)
		return nil
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(payload) != `{"ok":true}` {
		t.Fatalf("payload = %s", payload)
	}
}

func TestCallTimesOut(t *testing.T) {
	c := New("sess")
	id := c.NextID()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Call(ctx, id, func() error { return nil })
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Call = %v, want ErrTimeout", err)
	}
}

func TestCallSendFailurePropagates(t *testing.T) {
	c := New("sess")
	id := c.NextID()
	sendErr := errors.New("write failed")

	_, err := c.Call(context.Background(), id, func() error { return sendErr })
	if !errors.Is(err, sendErr) {
		t.Fatalf("Call = %v, want the send error", err)
	}
}

func TestRejectReturnsRemoteError(t *testing.T) {
	c := New("sess")
	id := c.NextID()

	go c.Reject(id, "tool not found")

	_, err := c.Call(context.Background(), id, func() error { return nil })
	var remote *RemoteError
	if !errors.As(err, &remote) || remote.Message != "tool not found" {
		t.Fatalf("Call = %v, want a RemoteError with message %q", err, "tool not found")
	}
}

func TestCloseAllFailsEveryPendingEntry(t *testing.T) {
	c := New("sess")
	id1 := c.NextID()
	id2 := c.NextID()

	results := make(chan error, 2)
	for _, id := range []string{id1, id2} {
		id := id
		go func() {
			_, err := c.Call(context.Background(), id, func() error { return nil })
			results <- err
		}()
	}

	// Give both calls a chance to register before closing.
	time.Sleep(10 * time.Millisecond)
	c.CloseAll()

	for i := 0; i < 2; i++ {
		if err := <-results; !errors.Is(err, ErrClosed) {
			t.Fatalf("pending call error = %v, want ErrClosed", err)
		}
	}

	if _, err := c.Call(context.Background(), c.NextID(), func() error { return nil }); !errors.Is(err, ErrClosed) {
		t.Fatalf("Call after CloseAll = %v, want ErrClosed", err)
	}
}

func TestNextIDIsUniqueAndPrefixed(t *testing.T) {
	c := New("sess")
	a, b := c.NextID(), c.NextID()
	if a == b {
		t.Fatalf("NextID returned the same id twice: %q", a)
	}
	if a[:5] != "sess-" {
		t.Fatalf("NextID = %q, want it prefixed with %q", a, "sess-")
	}
}
