package events_test

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"p2pmsg/internal/domain"
	"p2pmsg/internal/events"
)

// mockSubscriber records events in arrival order, the "mock subscriber"
// spec §4.H asks tests to use in place of a real UI.
type mockSubscriber struct {
	mu   sync.Mutex
	seen []domain.Event
}

func (m *mockSubscriber) Notify(ev domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, ev)
}

func (m *mockSubscriber) snapshot() []domain.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Event{}, m.seen...)
}

func TestBus_DeliversInFIFOOrder(t *testing.T) {
	bus := events.New(zerolog.Nop(), 16)
	defer bus.Close()

	sub := &mockSubscriber{}
	bus.Subscribe(sub)

	for i := 0; i < 5; i++ {
		bus.Publish(domain.EventMessageReceived{Body: []byte{byte(i)}})
	}

	deadline := time.Now().Add(time.Second)
	for {
		if len(sub.snapshot()) == 5 || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	got := sub.snapshot()
	if len(got) != 5 {
		t.Fatalf("expected 5 events, got %d", len(got))
	}
	for i, ev := range got {
		mr, ok := ev.(domain.EventMessageReceived)
		if !ok || mr.Body[0] != byte(i) {
			t.Fatalf("event %d out of order: %+v", i, ev)
		}
	}
}

func TestBus_MultipleSubscribersAllNotified(t *testing.T) {
	bus := events.New(zerolog.Nop(), 4)
	defer bus.Close()

	a, b := &mockSubscriber{}, &mockSubscriber{}
	bus.Subscribe(a)
	bus.Subscribe(b)

	bus.Publish(domain.EventPeerDisconnected{Reason: "test"})

	deadline := time.Now().Add(time.Second)
	for {
		if len(a.snapshot()) == 1 && len(b.snapshot()) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for delivery")
		}
		time.Sleep(time.Millisecond)
	}
}
