// Package events is a small in-process publish/subscribe bus used to broadcast
// conditions that no single caller owns, such as a rejected AI credential.
package events

import (
	"sync"
	"time"
)

type Kind string

const (
	KindCredentialInvalid  Kind = "credential_invalid"
	KindCredentialReplaced Kind = "credential_replaced"
)

type Event struct {
	Kind Kind
	At   time.Time
	Err  error
}

type Bus struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(Event)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn for every published event and returns a function that
// removes it again.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers e synchronously to all current subscribers.
func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	subs := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		subs = append(subs, fn)
	}
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(e)
	}
}
