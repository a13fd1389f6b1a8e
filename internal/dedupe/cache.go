// ABOUTME: TTL-bounded seen-set for inbound message IDs.
// ABOUTME: Lets the bridge drop redelivered messages without reprocessing them.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultTTL is how long a message ID stays remembered.
	DefaultTTL = 10 * time.Minute

	// DefaultMaxEntries caps memory when senders flood unique IDs.
	DefaultMaxEntries = 10000
)

type seenAt struct {
	at   time.Time
	elem *list.Element
}

// Cache remembers recently seen message IDs for a bounded window. A
// linked list keeps IDs in arrival order so the oldest entry evicts in
// O(1) when the cache is full.
type Cache struct {
	mu      sync.Mutex
	ids     map[string]*seenAt
	order   *list.List
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache and starts a background sweep of expired IDs.
// Zero values select the defaults.
func New(ttl time.Duration, maxSize int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxEntries
	}
	c := &Cache{
		ids:     make(map[string]*seenAt),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// Seen atomically reports whether the message ID was already recorded
// within the TTL, recording it when it was not. Empty IDs are never
// duplicates: messages without an ID cannot be deduplicated.
func (c *Cache) Seen(messageID string) bool {
	if messageID == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.ids[messageID]; ok && c.now().Sub(entry.at) < c.ttl {
		return true
	}
	c.record(messageID)
	return false
}

// record must be called with mu held.
func (c *Cache) record(messageID string) {
	now := c.now()

	if entry, ok := c.ids[messageID]; ok {
		entry.at = now
		c.order.MoveToBack(entry.elem)
		return
	}

	if len(c.ids) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			c.order.Remove(front)
			delete(c.ids, front.Value.(string))
		}
	}

	c.ids[messageID] = &seenAt{at: now, elem: c.order.PushBack(messageID)}
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for id, entry := range c.ids {
		if now.Sub(entry.at) > c.ttl {
			c.order.Remove(entry.elem)
			delete(c.ids, id)
		}
	}
}

// Len reports the number of remembered IDs.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.ids)
}

// Close stops the background sweep. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
