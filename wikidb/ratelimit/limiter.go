// Package ratelimit implements a bounded per-credential rate limiter:
// process-wide mutable state limited to a bounded counter keyed by
// credential hash.
package ratelimit

import (
	"container/list"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// DefaultWindow and DefaultMaxRequests set the default fixed-window
// budget: a credential may make MaxRequests requests per Window before
// further requests are rejected.
const (
	DefaultWindow      = time.Minute
	DefaultMaxRequests = 600
)

type counter struct {
	key          uint64
	windowStart  time.Time
	requestCount int
}

// Limiter is a bounded LRU of per-credential fixed-window counters,
// keyed by xxhash of the API key (never the raw key itself, so a
// dumped limiter state leaks nothing). Eviction is by fixed entry
// count rather than by byte budget, since counters are small and
// uniform in size.
type Limiter struct {
	mu          sync.Mutex
	window      time.Duration
	maxRequests int
	capacity    int

	entries   map[uint64]*list.Element
	evictList *list.List
}

// New constructs a Limiter capped at capacity distinct credentials.
func New(capacity int, window time.Duration, maxRequests int) *Limiter {
	if capacity <= 0 {
		capacity = 10000
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	return &Limiter{
		window:      window,
		maxRequests: maxRequests,
		capacity:    capacity,
		entries:     make(map[uint64]*list.Element),
		evictList:   list.New(),
	}
}

// Allow reports whether apiKey may make another request now, recording
// the attempt either way. Result is {allowed, remaining, resetAt}.
func (l *Limiter) Allow(apiKey string) (allowed bool, remaining int, resetAt time.Time) {
	key := xxhash.Sum64String(apiKey)
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	el, ok := l.entries[key]
	var c *counter
	if ok {
		c = el.Value.(*counter)
		l.evictList.MoveToFront(el)
		if now.Sub(c.windowStart) >= l.window {
			c.windowStart = now
			c.requestCount = 0
		}
	} else {
		c = &counter{key: key, windowStart: now}
		el = l.evictList.PushFront(c)
		l.entries[key] = el
		l.evictOverflow()
	}

	resetAt = c.windowStart.Add(l.window)
	if c.requestCount >= l.maxRequests {
		return false, 0, resetAt
	}
	c.requestCount++
	remaining = l.maxRequests - c.requestCount
	return true, remaining, resetAt
}

func (l *Limiter) evictOverflow() {
	for len(l.entries) > l.capacity {
		oldest := l.evictList.Back()
		if oldest == nil {
			return
		}
		l.evictList.Remove(oldest)
		delete(l.entries, oldest.Value.(*counter).key)
	}
}
