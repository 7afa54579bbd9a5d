// Package eventbus fans small in-process events out to subscribers.
package eventbus

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by kinobot components.
const (
	BroadcastFinished = "broadcast.finished"
	NotifierPrefix    = "notifier."
)

type Event struct {
	Type string
	Time time.Time
	Data any
}

// Bus never blocks the publisher. A subscriber whose buffer is full misses
// the event and the miss is counted in Dropped.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int, types ...string) (ch <-chan Event, unsubscribe func())
	Dropped() uint64
}

func New() Bus {
	return &memBus{subs: map[uint64]*sub{}}
}

type sub struct {
	ch     chan Event
	types  []string
	closed atomic.Bool
}

// wants reports whether typ matches one of the filters. A filter ending in
// "." or "*" matches by prefix; no filters match everything.
func (s *sub) wants(typ string) bool {
	if len(s.types) == 0 {
		return true
	}
	for _, f := range s.types {
		switch {
		case strings.HasSuffix(f, "*"):
			if strings.HasPrefix(typ, strings.TrimSuffix(f, "*")) {
				return true
			}
		case strings.HasSuffix(f, "."):
			if strings.HasPrefix(typ, f) {
				return true
			}
		case f == typ:
			return true
		}
	}
	return false
}

type memBus struct {
	mu      sync.RWMutex
	subs    map[uint64]*sub
	seq     atomic.Uint64
	dropped atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.closed.Load() || !s.wants(e.Type) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a buffered channel for the given event types. The
// returned func removes the subscription and closes the channel.
func (b *memBus) Subscribe(buffer int, types ...string) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &sub{ch: make(chan Event, buffer), types: types}
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = s
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			// Publish holds the read lock while sending, so the channel
			// cannot be written once the entry is gone.
			b.mu.Lock()
			delete(b.subs, id)
			s.closed.Store(true)
			close(s.ch)
			b.mu.Unlock()
		})
	}
}

func (b *memBus) Dropped() uint64 { return b.dropped.Load() }
