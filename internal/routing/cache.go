package routing

import (
	"container/list"
	"sync"
	"time"
)

// No example repo in the corpus imports an LRU cache library — the one
// candidate pulled in anywhere (golang.org/x groupcache-style packages)
// arrives only as an indirect dependency of something else, not a cache
// a service wires up directly, and a distributed cache is the wrong
// shape for an in-process, single-provider results cache anyway. Hence
// container/list + a map, not a third-party cache.

type cacheEntry struct {
	key       interface{}
	value     interface{}
	expiresAt time.Time
}

// resultCache is a bounded LRU cache with per-entry TTL, used to avoid
// re-querying the routing provider for recently seen endpoint pairs.
type resultCache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	ll       *list.List
	items    map[interface{}]*list.Element
}

func newResultCache(capacity int, ttl time.Duration) *resultCache {
	return &resultCache{
		ttl:      ttl,
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[interface{}]*list.Element),
	}
}

func (c *resultCache) get(key interface{}) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.ll.Remove(el)
		delete(c.items, key)
		return nil, false
	}
	c.ll.MoveToFront(el)
	return entry.value, true
}

func (c *resultCache) set(key, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).value = value
		el.Value.(*cacheEntry).expiresAt = time.Now().Add(c.ttl)
		c.ll.MoveToFront(el)
		return
	}

	entry := &cacheEntry{key: key, value: value, expiresAt: time.Now().Add(c.ttl)}
	el := c.ll.PushFront(entry)
	c.items[key] = el

	if c.capacity > 0 && c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}
