package events

import (
	"log"
	"sync"

	"cam-station/pkg/models"
)

// Broadcaster fans session and schedule lifecycle events out to any number
// of subscribers. The core publishes here without knowing about transport
// concerns; the API layer, loggers and tests all attach through Subscribe.
type Broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(models.Event)
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]func(models.Event))}
}

// Subscribe registers a callback for every published event and returns an
// unsubscribe function.
func (b *Broadcaster) Subscribe(fn func(models.Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.subs[id] = fn

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

// Publish delivers the event to every current subscriber. A panicking
// subscriber must not take down the session that published.
func (b *Broadcaster) Publish(event models.Event) {
	b.mu.RLock()
	fns := make([]func(models.Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		safeInvoke(fn, event)
	}
}

func safeInvoke(fn func(models.Event), event models.Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Event subscriber panicked on %s: %v", event.Type, r)
		}
	}()
	fn(event)
}

// SubscriberCount reports how many subscribers are attached.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
