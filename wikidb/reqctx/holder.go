// Package reqctx implements a request-scoped resource container plus a
// process-wide index holder: a single-writer/many-readers cache for
// the three expensive, immutable indexes (geo, FTS, vector), built at
// most once per process and borrowed by reference from every request.
package reqctx

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/fts"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/geo"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/vector"
)

// IndexSet is the built, immutable bundle a request borrows by
// reference. A nil field means that index is unavailable for this
// process, and the query facade degrades accordingly.
type IndexSet struct {
	Geo    *geo.Index
	FTS    *fts.Index
	Vector map[string]*vector.Index // keyed by "model/category"
}

// Loaders supplies the three build functions the holder calls at most
// once. Vector loaders are per key (model/category), discovered lazily
// since the set of models/categories isn't known until a request asks
// for one.
type Loaders struct {
	LoadGeo    func(ctx context.Context) (*geo.Index, error)
	LoadFTS    func(ctx context.Context) (*fts.Index, error)
	LoadVector func(ctx context.Context, key string) (*vector.Index, error)
}

// Holder is the process-wide, single-writer/many-readers index cache:
// built indexes are read-only and freely shared by reference;
// construction itself is guarded so concurrent first-requesters
// collapse onto one build.
type Holder struct {
	loaders Loaders

	mu     sync.RWMutex
	set    IndexSet
	group  singleflight.Group
	warmed bool
}

// NewHolder constructs an empty Holder. Indexes are built lazily on
// first demand unless WarmUp is called first.
func NewHolder(loaders Loaders) *Holder {
	return &Holder{loaders: loaders, set: IndexSet{Vector: make(map[string]*vector.Index)}}
}

// WarmUp preloads the geo and FTS indexes once; safe to call from
// multiple goroutines, and safe to call more than once (later calls
// are no-ops once warmed).
func (h *Holder) WarmUp(ctx context.Context) error {
	_, err, _ := h.group.Do("warmup", func() (interface{}, error) {
		h.mu.Lock()
		if h.warmed {
			h.mu.Unlock()
			return nil, nil
		}
		h.mu.Unlock()

		h.mu.RLock()
		needGeo := h.set.Geo == nil
		needFTS := h.set.FTS == nil
		h.mu.RUnlock()

		if needGeo && h.loaders.LoadGeo != nil {
			idx, err := h.loaders.LoadGeo(ctx)
			if err != nil {
				return nil, err
			}
			h.mu.Lock()
			h.set.Geo = idx
			h.mu.Unlock()
		}
		if needFTS && h.loaders.LoadFTS != nil {
			idx, err := h.loaders.LoadFTS(ctx)
			if err != nil {
				return nil, err
			}
			h.mu.Lock()
			h.set.FTS = idx
			h.mu.Unlock()
		}
		h.mu.Lock()
		h.warmed = true
		h.mu.Unlock()
		return nil, nil
	})
	return err
}

// Geo returns the shared geo index, building it on first demand if
// WarmUp hasn't already run. A nil result (with a nil error) means no
// loader was configured, or the attempted build produced an empty index.
func (h *Holder) Geo(ctx context.Context) (*geo.Index, error) {
	h.mu.RLock()
	if idx := h.set.Geo; idx != nil {
		h.mu.RUnlock()
		return idx, nil
	}
	h.mu.RUnlock()
	if h.loaders.LoadGeo == nil {
		return nil, nil
	}

	v, err, _ := h.group.Do("geo", func() (interface{}, error) {
		h.mu.RLock()
		if idx := h.set.Geo; idx != nil {
			h.mu.RUnlock()
			return idx, nil
		}
		h.mu.RUnlock()
		idx, err := h.loaders.LoadGeo(ctx)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.set.Geo = idx
		h.mu.Unlock()
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*geo.Index), nil
}

// FTS returns the shared FTS index, building it on first demand.
func (h *Holder) FTS(ctx context.Context) (*fts.Index, error) {
	h.mu.RLock()
	if idx := h.set.FTS; idx != nil {
		h.mu.RUnlock()
		return idx, nil
	}
	h.mu.RUnlock()
	if h.loaders.LoadFTS == nil {
		return nil, nil
	}

	v, err, _ := h.group.Do("fts", func() (interface{}, error) {
		h.mu.RLock()
		if idx := h.set.FTS; idx != nil {
			h.mu.RUnlock()
			return idx, nil
		}
		h.mu.RUnlock()
		idx, err := h.loaders.LoadFTS(ctx)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.set.FTS = idx
		h.mu.Unlock()
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*fts.Index), nil
}

// Vector returns the shared vector index for key ("model/category"),
// building it on first demand.
func (h *Holder) Vector(ctx context.Context, key string) (*vector.Index, error) {
	h.mu.RLock()
	idx, ok := h.set.Vector[key]
	h.mu.RUnlock()
	if ok {
		return idx, nil
	}
	if h.loaders.LoadVector == nil {
		return nil, nil
	}

	v, err, _ := h.group.Do("vector:"+key, func() (interface{}, error) {
		h.mu.RLock()
		if idx, ok := h.set.Vector[key]; ok {
			h.mu.RUnlock()
			return idx, nil
		}
		h.mu.RUnlock()
		idx, err := h.loaders.LoadVector(ctx, key)
		if err != nil {
			return nil, err
		}
		h.mu.Lock()
		h.set.Vector[key] = idx
		h.mu.Unlock()
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.(*vector.Index), nil
}
