// Package cache holds per-account derived state and the bus that invalidates
// it after structural mutations such as a year turnover.
package cache

import (
	"sync"
	"time"
)

// Event announces that an account's data changed shape
type Event struct {
	Account string
	Reason  string
	At      time.Time
}

// Bus fans invalidation events out to subscribers
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(Event)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(Event))}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers ev synchronously to every subscriber.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.mu.RLock()
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

type entry[V any] struct {
	value   V
	expires time.Time
}

// Cache is a TTL cache keyed by account and an inner key
type Cache[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]map[string]entry[V]
}

func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]map[string]entry[V]),
	}
}

func (c *Cache[V]) Get(account, key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[account][key]
	if !ok || (c.ttl > 0 && c.now().After(e.expires)) {
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[V]) Set(account, key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries[account] == nil {
		c.entries[account] = make(map[string]entry[V])
	}
	c.entries[account][key] = entry[V]{value: value, expires: c.now().Add(c.ttl)}
}

func (c *Cache[V]) Delete(account, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries[account], key)
}

// InvalidateAccount drops every entry of one account
func (c *Cache[V]) InvalidateAccount(account string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, account)
}

// Attach subscribes the cache to bus and returns the unsubscribe function.
func (c *Cache[V]) Attach(bus *Bus) func() {
	return bus.Subscribe(func(ev Event) {
		c.InvalidateAccount(ev.Account)
	})
}
