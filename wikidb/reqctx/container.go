package reqctx

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	wikidb "github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/fts"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/geo"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/manifest"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/metrics"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/parquet"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/vector"
)

// Paths names the object-store keys a Container resolves against.
type Paths struct {
	ManifestPath string
	TitlesPath   string
	IDsPath      string
	TypesPath    string
}

// Container is the per-request resource holder: five lazily initialized
// resources (columnar reader, manifest reader, plus the geo/FTS/vector
// indexes borrowed from the process-wide Holder), with a per-resource
// single-flight guard so concurrent callers within the same request
// share one load future. On request completion, Close drops every
// reference. The process-wide indexes it borrowed are untouched; only
// this request's own columnar reader (and the caches it owns) are
// discarded.
type Container struct {
	bucket  wikidb.Bucket
	metrics *metrics.Metrics
	paths   Paths
	holder  *Holder

	group singleflight.Group

	mu             sync.Mutex
	parquetReader  *parquet.Reader
	manifestReader *manifest.Reader
	closed         bool
}

// New builds a Container scoped to one request. Nothing is loaded yet;
// each resource is built (or borrowed) on first access.
func New(bucket wikidb.Bucket, m *metrics.Metrics, paths Paths, holder *Holder) *Container {
	return &Container{bucket: bucket, metrics: m, paths: paths, holder: holder}
}

// ParquetReader returns the request-scoped columnar reader, building
// it on first access. This reader (and the caches it owns) is never
// shared across requests.
func (c *Container) ParquetReader() (*parquet.Reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, wikidb.NewError(wikidb.KindInternal, "reqctx: container already closed", nil)
	}
	if c.parquetReader == nil {
		c.parquetReader = parquet.NewReader(c.bucket, c.metrics)
	}
	return c.parquetReader, nil
}

// ManifestReader returns the request-scoped manifest reader, loading
// it (with the manifest package's own retry-once fallback) on first
// access. Concurrent callers within the same request share one load.
func (c *Container) ManifestReader(ctx context.Context) (*manifest.Reader, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, wikidb.NewError(wikidb.KindInternal, "reqctx: container already closed", nil)
	}
	if c.manifestReader != nil {
		r := c.manifestReader
		c.mu.Unlock()
		return r, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("manifest", func() (interface{}, error) {
		c.mu.Lock()
		if c.manifestReader != nil {
			r := c.manifestReader
			c.mu.Unlock()
			return r, nil
		}
		c.mu.Unlock()

		r, err := manifest.Load(ctx, c.bucket, c.metrics, c.paths.ManifestPath, c.paths.TitlesPath, c.paths.IDsPath, c.paths.TypesPath)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.manifestReader = r
		c.mu.Unlock()
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*manifest.Reader), nil
}

// Geo borrows the process-wide geo index by reference, building it on
// first process-wide demand if no warm-up has run yet. Returns
// (nil, nil) if no geo index is configured for this process.
func (c *Container) Geo(ctx context.Context) (*geo.Index, error) {
	if c.holder == nil {
		return nil, nil
	}
	return c.holder.Geo(ctx)
}

// FTS borrows the process-wide BM25 index by reference.
func (c *Container) FTS(ctx context.Context) (*fts.Index, error) {
	if c.holder == nil {
		return nil, nil
	}
	return c.holder.FTS(ctx)
}

// Vector borrows the process-wide HNSW index for model/category by
// reference, keyed as "model/category".
func (c *Container) Vector(ctx context.Context, model, category string) (*vector.Index, error) {
	if c.holder == nil {
		return nil, nil
	}
	return c.holder.Vector(ctx, VectorKey(model, category))
}

// VectorKey builds the holder key for one model/category vector
// partition.
func VectorKey(model, category string) string {
	return fmt.Sprintf("%s/%s", model, category)
}

// Close releases every request-scoped reference. The process-wide
// Holder (and the indexes it owns) is untouched.
func (c *Container) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.parquetReader = nil
	c.manifestReader = nil
}
