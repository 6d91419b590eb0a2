package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/opine-markets/opined/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBus is an in-memory SignalBus: subscriptions never deliver and the
// durable stream is a slice with Redis-style "seq-0" IDs.
type fakeBus struct {
	mu      sync.Mutex
	entries []domain.StreamMessage
	readErr error
}

func (b *fakeBus) Publish(context.Context, string, []byte) error { return nil }

func (b *fakeBus) Subscribe(ctx context.Context, _ string) (<-chan []byte, error) {
	ch := make(chan []byte)
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

func (b *fakeBus) StreamAppend(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = append(b.entries, domain.StreamMessage{
		ID:      fmt.Sprintf("%d-0", len(b.entries)+1),
		Payload: payload,
	})
	return nil
}

func (b *fakeBus) StreamRead(_ context.Context, _ string, lastID string, count int) ([]domain.StreamMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.readErr != nil {
		return nil, b.readErr
	}
	var out []domain.StreamMessage
	for _, e := range b.entries {
		if e.ID > lastID && len(out) < count {
			out = append(out, e)
		}
	}
	return out, nil
}

func waitForClients(t *testing.T, h *Hub, want int, msg string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for h.clientCount() != want {
		if time.Now().After(deadline) {
			t.Fatal(msg)
		}
		time.Sleep(time.Millisecond)
	}
}

func newTestClient(h *Hub) *client {
	return &client{
		hub:  h,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}
}

func TestReplay_DeliversStreamEntries(t *testing.T) {
	bus := &fakeBus{}
	for _, payload := range []string{`{"type":"market_created"}`, `{"type":"prices_changed"}`} {
		if err := bus.StreamAppend(context.Background(), domain.StreamEvents, []byte(payload)); err != nil {
			t.Fatalf("StreamAppend() error: %v", err)
		}
	}
	c := newTestClient(NewHub(bus, testLogger()))

	c.handleReplay(subscribeMsg{Action: "replay"})

	if got := len(c.send); got != 2 {
		t.Fatalf("replay delivered %d messages, want 2", got)
	}
	var first replayEntry
	if err := json.Unmarshal(<-c.send, &first); err != nil {
		t.Fatalf("decode replay entry: %v", err)
	}
	if first.Type != "replay" || first.ID != "1-0" {
		t.Errorf("first entry = %+v, want type replay id 1-0", first)
	}
	if string(first.Payload) != `{"type":"market_created"}` {
		t.Errorf("first payload = %s", first.Payload)
	}
}

func TestReplay_ResumesAfterLastID(t *testing.T) {
	bus := &fakeBus{}
	for i := 0; i < 3; i++ {
		if err := bus.StreamAppend(context.Background(), domain.StreamEvents, []byte(`{}`)); err != nil {
			t.Fatalf("StreamAppend() error: %v", err)
		}
	}
	c := newTestClient(NewHub(bus, testLogger()))

	c.handleReplay(subscribeMsg{Action: "replay", LastID: "2-0"})

	if got := len(c.send); got != 1 {
		t.Fatalf("replay delivered %d messages, want 1", got)
	}
	var entry replayEntry
	if err := json.Unmarshal(<-c.send, &entry); err != nil {
		t.Fatalf("decode replay entry: %v", err)
	}
	if entry.ID != "3-0" {
		t.Errorf("resumed entry ID = %s, want 3-0", entry.ID)
	}
}

func TestReplay_ReadFailureSendsNothing(t *testing.T) {
	bus := &fakeBus{readErr: errors.New("redis down")}
	c := newTestClient(NewHub(bus, testLogger()))

	c.handleReplay(subscribeMsg{Action: "replay"})

	if got := len(c.send); got != 0 {
		t.Errorf("replay delivered %d messages after read failure, want 0", got)
	}
}

// A client pump finishing after the hub has shut down must not block on
// the unregister channel forever.
func TestDetach_AfterShutdownDoesNotBlock(t *testing.T) {
	h := NewHub(&fakeBus{}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- h.Run(ctx) }()
	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}

	c := newTestClient(h)
	released := make(chan struct{})
	go func() {
		c.detach()
		close(released)
	}()

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("detach blocked after hub shutdown")
	}
}

func TestRun_RegistersAndUnregistersClients(t *testing.T) {
	h := NewHub(&fakeBus{}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- h.Run(ctx) }()

	c := newTestClient(h)
	h.register <- c
	waitForClients(t, h, 1, "client not added after register")

	c.detach()
	waitForClients(t, h, 0, "client not removed after detach")

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}
