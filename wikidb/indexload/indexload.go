// Package indexload builds the three process-wide indexes reqctx.Holder
// caches (geo, FTS, vector) from their serialized object-store forms,
// the loader-wiring cmd/wikidb needs but no other package owns. Each
// loader fetches its source object(s) in full. These documents are
// loaded once per process, never range-fetched, then handed to the
// owning package's own constructor.
package indexload

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	wikidb "github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/fts"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/geo"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/metrics"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/model"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/vector"
)

// FetchObject reads key in full: a Size HEAD followed by one
// NewRangeReaderEtag(0, length, "") covering the whole object, mirroring
// wikidb/manifest's own private full-object read (these loaders build
// in-memory structures that need the complete object up front, not a
// range-fetched, cacheable slice).
func FetchObject(ctx context.Context, bucket wikidb.Bucket, key string) ([]byte, error) {
	length, err := bucket.Size(ctx, key)
	if err != nil {
		return nil, err
	}
	reader, _, err := bucket.NewRangeReaderEtag(ctx, key, 0, length, "")
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	buf := make([]byte, length)
	n := 0
	for n < len(buf) {
		m, rerr := reader.Read(buf[n:])
		n += m
		if rerr != nil {
			if n == len(buf) {
				break
			}
			return nil, wikidb.NewError(wikidb.KindTransport, "short read for "+key, rerr)
		}
	}
	return buf, nil
}

func fetchGunzipped(ctx context.Context, bucket wikidb.Bucket, key string) ([]byte, error) {
	raw, err := FetchObject(ctx, bucket, key)
	if err != nil {
		return nil, err
	}
	gr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, wikidb.NewError(wikidb.KindCorrupt, "gzip header for "+key, err)
	}
	defer gr.Close()
	out, err := io.ReadAll(gr)
	if err != nil {
		return nil, wikidb.NewError(wikidb.KindCorrupt, "gzip stream for "+key, err)
	}
	return out, nil
}

// GeoIndexPath is the fixed object key for the geo index document.
const GeoIndexPath = "indexes/geo-index.json"

// Geo builds a LoadGeo closure over bucket, for indexes/geo-index.json.
func Geo(bucket wikidb.Bucket, m *metrics.Metrics) func(ctx context.Context) (*geo.Index, error) {
	return func(ctx context.Context) (*geo.Index, error) {
		var idx *geo.Index
		err := m.TrackIndexLoad("geo", func() error {
			raw, err := FetchObject(ctx, bucket, GeoIndexPath)
			if err != nil {
				return err
			}
			idx, err = geo.Build(raw)
			return err
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
}

// FTSIndexPath is the fixed object key for the gzip-compressed BM25
// source document.
const FTSIndexPath = "indexes/fts/articles.json.gz"

// ftsDocument is one element of indexes/fts/articles.json.gz's JSON
// array: the analyzable fields fts.Document needs, replayed through
// AddDocumentWithSource to rebuild the in-memory BM25 postings this
// package has no other way to persist.
type ftsDocument struct {
	ID          string         `json:"id"`
	Category    model.Category `json:"category"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Text        string         `json:"text"`
}

// FTS builds a LoadFTS closure over bucket, for
// indexes/fts/articles.json.gz.
func FTS(bucket wikidb.Bucket, m *metrics.Metrics) func(ctx context.Context) (*fts.Index, error) {
	return func(ctx context.Context) (*fts.Index, error) {
		var idx *fts.Index
		err := m.TrackIndexLoad("fts", func() error {
			raw, err := fetchGunzipped(ctx, bucket, FTSIndexPath)
			if err != nil {
				return err
			}
			var docs []ftsDocument
			if err := json.Unmarshal(raw, &docs); err != nil {
				return wikidb.NewError(wikidb.KindCorrupt, "decode "+FTSIndexPath, err)
			}
			built := fts.NewIndex(fts.DefaultParams)
			for _, d := range docs {
				built.AddDocumentWithSource(fts.Document{
					ID:          d.ID,
					Category:    d.Category,
					Title:       d.Title,
					Description: d.Description,
					Text:        d.Text,
				})
			}
			built.Finalize()
			idx = built
			return nil
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
}

// vectorPath builds the per-partition object key for an embeddings
// model/category pair: embeddings/<model>/<category>.lance.
func vectorPath(model, category string) string {
	return fmt.Sprintf("embeddings/%s/%s.lance", model, category)
}

// Vector builds a LoadVector closure over bucket: key is
// "<model>/<category>" (reqctx.VectorKey's format), decoded into the
// partition's object key, then into an HNSW index built from the
// decoded rows.
func Vector(bucket wikidb.Bucket, m *metrics.Metrics, cfg vector.Config) func(ctx context.Context, key string) (*vector.Index, error) {
	return func(ctx context.Context, key string) (*vector.Index, error) {
		modelName, category, ok := strings.Cut(key, "/")
		if !ok {
			return nil, wikidb.NewError(wikidb.KindInvalidArgument, "indexload: malformed vector key "+key, nil)
		}

		var idx *vector.Index
		err := m.TrackIndexLoad("vector:"+key, func() error {
			raw, err := FetchObject(ctx, bucket, vectorPath(modelName, category))
			if err != nil {
				return err
			}
			meta, rows, err := vector.Decode(raw)
			if err != nil {
				return err
			}
			built, err := vector.New(vector.Config{
				Dimension:      meta.EmbeddingDimension,
				M:              cfg.M,
				EfConstruction: cfg.EfConstruction,
				Metric:         cfg.Metric,
				RandomSeed:     cfg.RandomSeed,
			})
			if err != nil {
				return err
			}
			for _, row := range rows {
				if err := built.Insert(row.ID, row.Embedding); err != nil {
					return wikidb.NewError(wikidb.KindCorrupt, "indexload: inserting row into vector index", err)
				}
			}
			idx = built
			return nil
		})
		if err != nil {
			return nil, err
		}
		return idx, nil
	}
}
