package wikidb

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/metrics"
)

// rangeCacheKey identifies one admitted byte range by its bounds.
type rangeCacheKey struct {
	start, end int64 // half-open [start, end)
}

// rangeCacheEntry is one admitted, satisfied byte range.
type rangeCacheEntry struct {
	key  rangeCacheKey
	data []byte
}

// RangeFetcher wraps a single object as a length-known, byte-addressable
// blob with a bounded LRU of previously-fetched ranges. One RangeFetcher
// is scoped to one object key; the request context (reqctx) owns one
// per Parquet file it touches during a request.
type RangeFetcher struct {
	bucket  Bucket
	key     string
	metrics *metrics.Metrics

	mu          sync.Mutex
	length      int64
	lengthKnown bool
	cache       map[rangeCacheKey]*list.Element
	lru         *list.List
	totalBytes  int64
	budget      int64
}

// NewRangeFetcher constructs a RangeFetcher for key, with budget as the
// byte ceiling for its admitted-range cache.
func NewRangeFetcher(bucket Bucket, key string, budget int64, m *metrics.Metrics) *RangeFetcher {
	return &RangeFetcher{
		bucket: bucket,
		key:    key,
		budget:  budget,
		lru:     list.New(),
		cache:   make(map[rangeCacheKey]*list.Element),
		metrics: m,
	}
}

// ByteLength returns the object's total length, issuing a HEAD (or
// equivalent) on first call and caching the result.
func (r *RangeFetcher) ByteLength(ctx context.Context) (int64, error) {
	r.mu.Lock()
	if r.lengthKnown {
		defer r.mu.Unlock()
		return r.length, nil
	}
	r.mu.Unlock()

	length, err := r.bucket.Size(ctx, r.key)
	if err != nil {
		return 0, NewError(KindNotFound, "HEAD failed for "+r.key, err)
	}

	r.mu.Lock()
	r.length = length
	r.lengthKnown = true
	r.mu.Unlock()
	return length, nil
}

// Slice returns bytes [start, end) of the object. A request fully
// covered by one cached range never performs I/O. Ranges smaller than
// 10% of the cache budget are admitted into the LRU; larger ones are
// returned without being cached (so one huge read can't evict the
// entire working set).
func (r *RangeFetcher) Slice(ctx context.Context, start, end int64) ([]byte, error) {
	length, err := r.ByteLength(ctx)
	if err != nil {
		return nil, err
	}
	if start < 0 || end <= start || end > length {
		return nil, NewError(KindInvalidArgument, fmt.Sprintf("invalid range [%d,%d) for object of length %d", start, end, length), nil)
	}

	if data, ok := r.lookup(start, end); ok {
		r.metrics.CacheHit("range")
		return data, nil
	}
	r.metrics.CacheMiss("range")

	tracker := r.metrics.StartBucketRequest()
	reader, _, err := r.bucket.NewRangeReaderEtag(ctx, r.key, start, end-start, "")
	if err != nil {
		tracker.Finish(ctx, 0)
		if ctx.Err() != nil {
			return nil, NewError(KindCanceled, "range read canceled", err)
		}
		return nil, err
	}
	defer reader.Close()

	buf := make([]byte, end-start)
	n := 0
	for n < len(buf) {
		m, rerr := reader.Read(buf[n:])
		n += m
		if rerr != nil {
			if n == len(buf) {
				break
			}
			tracker.Finish(ctx, 0)
			return nil, NewError(KindTransport, "short read", rerr)
		}
	}
	tracker.Finish(ctx, 200)

	size := end - start
	if size < r.budget/10 {
		r.admit(start, end, buf)
	}
	return buf, nil
}

func (r *RangeFetcher) lookup(start, end int64) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, elem := range r.cache {
		if key.start <= start && end <= key.end {
			r.lru.MoveToFront(elem)
			entry := elem.Value.(*rangeCacheEntry)
			return entry.data[start-key.start : end-key.start], true
		}
	}
	return nil, false
}

func (r *RangeFetcher) admit(start, end int64, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := rangeCacheKey{start: start, end: end}
	entry := &rangeCacheEntry{key: key, data: data}
	elem := r.lru.PushFront(entry)
	r.cache[key] = elem
	r.totalBytes += end - start

	for r.totalBytes > r.budget {
		back := r.lru.Back()
		if back == nil {
			break
		}
		victim := back.Value.(*rangeCacheEntry)
		r.lru.Remove(back)
		delete(r.cache, victim.key)
		r.totalBytes -= victim.key.end - victim.key.start
	}
	r.metrics.UpdateCacheStats("range:"+r.key, len(r.cache), r.totalBytes, r.budget)
}
