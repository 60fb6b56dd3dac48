package reqctx

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/fts"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/geo"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/vector"
)

func TestHolderBuildsGeoOnceAcrossConcurrentCallers(t *testing.T) {
	var builds int32
	h := NewHolder(Loaders{
		LoadGeo: func(ctx context.Context) (*geo.Index, error) {
			atomic.AddInt32(&builds, 1)
			return geo.Build([]byte(`{"version":1,"entries":[]}`))
		},
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.Geo(context.Background()); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&builds) != 1 {
		t.Fatalf("expected geo index to be built exactly once, built %d times", builds)
	}
}

func TestHolderReturnsNilWithoutLoader(t *testing.T) {
	h := NewHolder(Loaders{})
	idx, err := h.FTS(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if idx != nil {
		t.Fatal("expected nil FTS index when no loader is configured")
	}
}

func TestHolderCachesVectorPerKey(t *testing.T) {
	var calls int32
	h := NewHolder(Loaders{
		LoadVector: func(ctx context.Context, key string) (*vector.Index, error) {
			atomic.AddInt32(&calls, 1)
			return vector.New(vector.Config{Dimension: 2, M: 4, EfConstruction: 10, Metric: vector.MetricCosine, RandomSeed: 1})
		},
	})

	idx1, err := h.Vector(context.Background(), "bge-m3/place")
	if err != nil {
		t.Fatal(err)
	}
	idx2, err := h.Vector(context.Background(), "bge-m3/place")
	if err != nil {
		t.Fatal(err)
	}
	if idx1 != idx2 {
		t.Fatal("expected the same index instance to be returned for the same key")
	}
	if _, err := h.Vector(context.Background(), "bge-m3/person"); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected exactly 2 loads (one per distinct key), got %d", calls)
	}
}

func TestWarmUpLoadsGeoAndFTSThenBecomesNoOp(t *testing.T) {
	var geoCalls, ftsCalls int32
	h := NewHolder(Loaders{
		LoadGeo: func(ctx context.Context) (*geo.Index, error) {
			atomic.AddInt32(&geoCalls, 1)
			return geo.Build([]byte(`{"version":1,"entries":[]}`))
		},
		LoadFTS: func(ctx context.Context) (*fts.Index, error) {
			atomic.AddInt32(&ftsCalls, 1)
			return fts.NewIndex(fts.DefaultParams), nil
		},
	})

	if err := h.WarmUp(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := h.WarmUp(context.Background()); err != nil {
		t.Fatal(err)
	}

	if atomic.LoadInt32(&geoCalls) != 1 || atomic.LoadInt32(&ftsCalls) != 1 {
		t.Fatalf("expected one load each, got geo=%d fts=%d", geoCalls, ftsCalls)
	}

	geoIdx, err := h.Geo(context.Background())
	if err != nil || geoIdx == nil {
		t.Fatalf("expected warmed-up geo index to be available, got %v, err=%v", geoIdx, err)
	}
}
