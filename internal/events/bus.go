// Package events implements the one-way event bus between the core and
// its subscribers (spec §4.H, §9 "Cyclic UI/core references"). The core
// never calls back into UI structures; it only ever publishes onto a
// bounded, FIFO-per-connection channel that a drain loop fans out to
// registered subscribers.
//
// Learned from _examples/ZenonEl-OwlWhisper/internal/core/events.go's
// typed-event/bounded-channel EventManager shape, reworked into this
// repo's idiom: domain-typed event structs instead of an untyped
// interface{} payload, and constructor-injected subscribers instead of a
// package-level manager.
package events

import (
	"sync"

	"github.com/rs/zerolog"

	"p2pmsg/internal/domain"
)

// Bus fans events out to subscribers in the order Publish was called.
// One Bus is shared by every connection its App (and Manager) runs.
type Bus struct {
	log   zerolog.Logger
	queue chan domain.Event

	mu   sync.RWMutex
	subs []domain.EventSubscriber

	stop chan struct{}
	done chan struct{}
}

// New returns a Bus with the given outbound queue depth. With a depth of 0
// every Publish waits until the drain loop takes its event; callers
// generally want a modest buffer (e.g. 64) so a slow subscriber does not
// stall the reader.
func New(log zerolog.Logger, depth int) *Bus {
	b := &Bus{
		log:   log,
		queue: make(chan domain.Event, depth),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	b.log.Debug().Int("depth", depth).Msg("event bus started")
	go b.drain()
	return b
}

// Subscribe registers sub to receive every subsequently published event.
func (b *Bus) Subscribe(sub domain.EventSubscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
}

// Publish enqueues ev for delivery. It never blocks on subscriber work; it
// only blocks if the internal queue is full, which the drain loop keeps
// drained under normal operation.
func (b *Bus) Publish(ev domain.Event) {
	select {
	case b.queue <- ev:
	case <-b.stop:
	}
}

// Close stops the drain loop and waits for in-flight events to flush.
func (b *Bus) Close() {
	close(b.stop)
	<-b.done
}

func (b *Bus) drain() {
	defer close(b.done)
	for {
		select {
		case ev := <-b.queue:
			b.deliver(ev)
		case <-b.stop:
			// Flush whatever is already queued before exiting so a
			// PeerDisconnected published just before Close is not lost.
			for {
				select {
				case ev := <-b.queue:
					b.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(ev domain.Event) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()
	for _, s := range subs {
		s.Notify(ev)
	}
}
