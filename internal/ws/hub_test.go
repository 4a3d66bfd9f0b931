package ws

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type memorySubscriber struct {
	mu       sync.Mutex
	received [][]byte
	closed   bool
	fail     bool
}

func (s *memorySubscriber) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("send failed")
	}
	s.received = append(s.received, append([]byte(nil), payload...))
	return nil
}

func (s *memorySubscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *memorySubscriber) messages() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.received))
	copy(out, s.received)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition never met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBroadcastReachesProjectSubscribers(t *testing.T) {
	hub := NewHub()
	sub := &memorySubscriber{}
	other := &memorySubscriber{}
	hub.Register("myapp", sub)
	hub.Register("otherapp", other)

	hub.Broadcast("myapp", []byte("cloning repo"))
	waitFor(t, func() bool { return len(sub.messages()) == 1 })

	if string(sub.messages()[0]) != "cloning repo" {
		t.Fatalf("unexpected payload %q", sub.messages()[0])
	}
	if len(other.messages()) != 0 {
		t.Fatalf("stream leaked across projects: %q", other.messages())
	}
}

func TestUnregisterStopsDelivery(t *testing.T) {
	hub := NewHub()
	sub := &memorySubscriber{}
	hub.Register("myapp", sub)
	hub.Unregister("myapp", sub)

	hub.Broadcast("myapp", []byte("after unregister"))
	// Broadcast is handled by the same loop that processed the unregister,
	// so by the time a second broadcast returns the first was dropped.
	hub.Broadcast("myapp", []byte("drain"))
	if len(sub.messages()) != 0 {
		t.Fatalf("unregistered subscriber still received %q", sub.messages())
	}
}

func TestFailingSubscriberIsDropped(t *testing.T) {
	hub := NewHub()
	bad := &memorySubscriber{fail: true}
	hub.Register("myapp", bad)

	hub.Broadcast("myapp", []byte("first"))
	waitFor(t, func() bool {
		bad.mu.Lock()
		defer bad.mu.Unlock()
		return bad.closed
	})
}
