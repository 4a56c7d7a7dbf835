package cache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pashuarogyam/vetai/utils/heap"
)

type memoryEntry struct {
	// Storage key, see Key.
	key string

	text string

	// Creation time in unix nanoseconds.
	createdAt int64
}

type MemoryCache struct {
	entries map[string]*memoryEntry

	// Oldest entries are at the top.
	byAge *heap.MinHeap[*memoryEntry]
	mu    sync.Mutex

	ttl        time.Duration
	maxEntries int

	// Must be used for every time read to keep tests deterministic.
	clock clock.Clock
}

// NewMemoryCache returns a cache and a function that stops its cleanup loop.
func NewMemoryCache(ttl time.Duration, maxEntries int) (*MemoryCache, func()) {
	return newMemoryCacheWithClock(ttl, maxEntries, clock.New())
}

func newMemoryCacheWithClock(
	ttl time.Duration, maxEntries int, clk clock.Clock,
) (*MemoryCache, func()) {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	c := &MemoryCache{
		entries:    make(map[string]*memoryEntry),
		ttl:        ttlOrDefault(ttl),
		maxEntries: maxEntries,
		clock:      clk,
	}
	c.byAge = heap.NewMinHeap(func(a *memoryEntry, b *memoryEntry) bool {
		if a.createdAt != b.createdAt {
			return a.createdAt < b.createdAt
		}
		return a.key < b.key
	})

	stop := c.startCleanup(5 * time.Minute)
	return c, stop
}

func (c *MemoryCache) Get(
	ctx context.Context, prompt string, hasImage bool,
) (string, bool, error) {
	key := Key(prompt, hasImage)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		return "", false, nil
	}
	if c.expired(entry, c.clock.Now().UnixNano()) {
		c.delete(entry)
		return "", false, nil
	}
	return entry.text, true, nil
}

func (c *MemoryCache) Put(
	ctx context.Context, prompt string, hasImage bool, text string,
) error {
	key := Key(prompt, hasImage)
	entry := &memoryEntry{
		key:       key,
		text:      text,
		createdAt: c.clock.Now().UnixNano(),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, exists := c.entries[key]; exists {
		c.delete(existing)
	}
	for len(c.entries) >= c.maxEntries {
		oldest, ok := c.byAge.Pop()
		if !ok {
			break
		}
		delete(c.entries, oldest.key)
	}

	c.entries[key] = entry
	c.byAge.Push(entry)
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) expired(entry *memoryEntry, now int64) bool {
	return now-entry.createdAt >= c.ttl.Nanoseconds()
}

func (c *MemoryCache) delete(entry *memoryEntry) {
	delete(c.entries, entry.key)
	c.byAge.Remove(entry)
}

func (c *MemoryCache) cleanup() {
	now := c.clock.Now().UnixNano()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Entries leave the heap in creation order, so the first fresh one ends
	// the scan.
	for {
		oldest, ok := c.byAge.Peek()
		if !ok || !c.expired(oldest, now) {
			return
		}
		c.byAge.Pop()
		delete(c.entries, oldest.key)
	}
}

func (c *MemoryCache) startCleanup(interval time.Duration) func() {
	ticker := c.clock.Ticker(interval)
	done := make(chan bool)

	go func() {
		for {
			select {
			case <-ticker.C:
				c.cleanup()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}
