// Package query implements the query facade: translating the four
// query classes (point lookup, k-NN vector search, BM25 text search,
// geo proximity) plus a relationships query into calls against the
// manifest reader, columnar reader, and geo/FTS/vector indexes
// borrowed from a request's Container.
package query

import (
	"context"
	"sort"
	"strings"

	wikidb "github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/embed"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/fts"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/geo"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/metrics"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/model"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/parquet"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/reqctx"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/vector"
)

// Facade is the single entry point a front end (out of scope here)
// would call into for every query class.
type Facade struct {
	container *reqctx.Container
	embed     *embed.Client
	metrics   *metrics.Metrics
}

// New builds a Facade scoped to one request's Container. embedClient
// may be nil if vector search is always called with a pre-computed
// query vector rather than query text.
func New(container *reqctx.Container, embedClient *embed.Client, m *metrics.Metrics) *Facade {
	return &Facade{container: container, embed: embedClient, metrics: m}
}

// ArticleByID resolves an article by id. Returns (nil, nil) if no such
// id exists.
func (f *Facade) ArticleByID(ctx context.Context, id string) (*model.Article, error) {
	var out *model.Article
	err := f.metrics.TrackQuery("article_by_id", func() error {
		m, err := f.container.ManifestReader(ctx)
		if err != nil {
			return err
		}
		pr, err := f.container.ParquetReader()
		if err != nil {
			return err
		}
		a, err := m.ResolveByID(ctx, pr, id)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// ArticleByTitle resolves an article by (normalized) title.
func (f *Facade) ArticleByTitle(ctx context.Context, title string) (*model.Article, error) {
	var out *model.Article
	err := f.metrics.TrackQuery("article_by_title", func() error {
		m, err := f.container.ManifestReader(ctx)
		if err != nil {
			return err
		}
		pr, err := f.container.ParquetReader()
		if err != nil {
			return err
		}
		a, err := m.ResolveByTitle(ctx, pr, title)
		if err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

// VectorSearchRequest configures VectorSearch. Exactly one of
// QueryText (embedded on the fly via the embedding client) or
// QueryVector (pre-computed) should be set.
type VectorSearchRequest struct {
	QueryText   string
	QueryVector []float32
	K           int
	Types       map[model.Category]bool
	Model       string
	UseHNSW     bool
	EfSearch    int
}

// VectorHit is one k-NN result.
type VectorHit struct {
	ID    string
	Score float32
}

// VectorSearchResult reports whether the HNSW graph was actually used,
// so a caller can tell a degraded response from a brute-force one.
type VectorSearchResult struct {
	Hits     []VectorHit
	UsedHNSW bool
}

// VectorSearch answers a k-nearest-neighbor query, scoring each loaded
// category index by brute force when req.UseHNSW is false. A category
// with no vector index loaded for the requested model contributes no
// hits; it is not scanned by any other means. Either case is reported
// back as UsedHNSW=false.
func (f *Facade) VectorSearch(ctx context.Context, req VectorSearchRequest) (VectorSearchResult, error) {
	var result VectorSearchResult
	err := f.metrics.TrackQuery("vector_search", func() error {
		queryVec := req.QueryVector
		if queryVec == nil {
			if f.embed == nil {
				return wikidb.NewError(wikidb.KindInvalidArgument, "query: no query vector and no embedding client configured", nil)
			}
			v, err := f.embed.Embed(ctx, req.QueryText)
			if err != nil {
				return err
			}
			queryVec = v
		}

		categories := categoriesFor(req.Types)
		seen := map[string]bool{}
		var merged []vector.Result
		usedHNSW := true

		for _, cat := range categories {
			idx, err := f.container.Vector(ctx, req.Model, string(cat))
			if err != nil {
				return err
			}
			if idx == nil {
				usedHNSW = false
				continue
			}
			var (
				res []vector.Result
				serr error
			)
			if req.UseHNSW {
				res, serr = idx.Search(queryVec, req.K, vector.SearchOptions{EfSearch: req.EfSearch})
			} else {
				usedHNSW = false
				res, serr = idx.BruteForceSearch(queryVec, req.K, nil)
			}
			if serr != nil {
				return serr
			}
			for _, r := range res {
				if !seen[r.ID] {
					seen[r.ID] = true
					merged = append(merged, r)
				}
			}
		}

		sort.Slice(merged, func(i, j int) bool {
			if merged[i].Score != merged[j].Score {
				return merged[i].Score > merged[j].Score
			}
			return merged[i].ID < merged[j].ID
		})
		if len(merged) > req.K {
			merged = merged[:req.K]
		}

		hits := make([]VectorHit, len(merged))
		for i, r := range merged {
			hits[i] = VectorHit{ID: r.ID, Score: r.Score}
		}
		result = VectorSearchResult{Hits: hits, UsedHNSW: usedHNSW && len(categories) > 0}
		return nil
	})
	return result, err
}

// TextSearchRequest configures TextSearch.
type TextSearchRequest struct {
	Query string
	Limit int
	Types map[model.Category]bool
}

// TextHit mirrors an fts.Hit, re-exported so callers don't import
// wikidb/fts directly.
type TextHit struct {
	ID         string
	Category   model.Category
	Score      float64
	Highlights map[fts.Field]string
}

// TextSearchResult reports whether the BM25 index was actually used.
type TextSearchResult struct {
	Hits      []TextHit
	UsedIndex bool
}

// TextSearch answers a BM25 query, degrading to normalized-prefix title
// matching when no FTS index is loaded.
func (f *Facade) TextSearch(ctx context.Context, req TextSearchRequest) (TextSearchResult, error) {
	var result TextSearchResult
	err := f.metrics.TrackQuery("text_search", func() error {
		idx, err := f.container.FTS(ctx)
		if err != nil {
			return err
		}
		if idx != nil {
			raw := idx.Search(req.Query, fts.Options{Limit: req.Limit, Types: req.Types, Highlight: true})
			hits := make([]TextHit, len(raw))
			for i, h := range raw {
				hits[i] = TextHit{ID: h.ID, Category: h.Category, Score: h.Score, Highlights: h.Highlights}
			}
			result = TextSearchResult{Hits: hits, UsedIndex: true}
			return nil
		}

		hits, err := f.prefixFallback(ctx, req)
		if err != nil {
			return err
		}
		result = TextSearchResult{Hits: hits, UsedIndex: false}
		return nil
	})
	return result, err
}

// prefixFallback matches req.Query as a normalized-title prefix
// against the manifest's title index, the cheapest scan available
// without an FTS index.
func (f *Facade) prefixFallback(ctx context.Context, req TextSearchRequest) ([]TextHit, error) {
	m, err := f.container.ManifestReader(ctx)
	if err != nil {
		return nil, err
	}
	pr, err := f.container.ParquetReader()
	if err != nil {
		return nil, err
	}

	prefix := model.NormalizeTitle(req.Query)
	var hits []TextHit
	for title, loc := range m.TitleIndex {
		if !strings.HasPrefix(title, prefix) {
			continue
		}
		if req.Types != nil && !req.Types[loc.Category] {
			continue
		}
		a, err := pr.ReadRow(ctx, loc.Path, loc.RowGroup, loc.Row)
		if err != nil {
			continue
		}
		hits = append(hits, TextHit{ID: a.ID, Category: a.Category, Score: 1})
		if req.Limit > 0 && len(hits) >= req.Limit {
			break
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].ID < hits[j].ID })
	return hits, nil
}

// GeoSearchRequest configures GeoSearch. Fast selects the indexed
// geohash-bucket path when available; when false (or no geo index is
// loaded), the facade falls back to an exhaustive manifest scan.
type GeoSearchRequest struct {
	Center       model.LatLng
	RadiusMeters float64
	Types        map[model.Category]bool
	Limit        int
	Fast         bool
}

// GeoHit is one proximity-search result.
type GeoHit struct {
	ID             string
	Category       model.Category
	DistanceMeters float64
}

// GeoSearchResult reports whether the geohash bucket index was used.
type GeoSearchResult struct {
	Hits      []GeoHit
	UsedIndex bool
}

// GeoSearch answers a proximity query, degrading to a full manifest
// scan when req.Fast is false or no geo index is loaded.
func (f *Facade) GeoSearch(ctx context.Context, req GeoSearchRequest) (GeoSearchResult, error) {
	var result GeoSearchResult
	err := f.metrics.TrackQuery("geo_search", func() error {
		idx, err := f.container.Geo(ctx)
		if err != nil {
			return err
		}
		if req.Fast && idx != nil {
			res, err := idx.Search(geo.SearchOptions{
				Center:       req.Center,
				RadiusMeters: req.RadiusMeters,
				Types:        req.Types,
				Limit:        req.Limit,
			})
			if err != nil {
				return err
			}
			hits := make([]GeoHit, len(res))
			for i, r := range res {
				hits[i] = GeoHit{ID: r.ID, Category: r.Category, DistanceMeters: r.DistanceMeters}
			}
			result = GeoSearchResult{Hits: hits, UsedIndex: true}
			return nil
		}

		hits, err := f.geoBruteForce(ctx, req)
		if err != nil {
			return err
		}
		result = GeoSearchResult{Hits: hits, UsedIndex: false}
		return nil
	})
	return result, err
}

// geoBruteForce scans every file the manifest knows about (restricted
// to req.Types if given), computing Haversine distance directly.
func (f *Facade) geoBruteForce(ctx context.Context, req GeoSearchRequest) ([]GeoHit, error) {
	m, err := f.container.ManifestReader(ctx)
	if err != nil {
		return nil, err
	}
	pr, err := f.container.ParquetReader()
	if err != nil {
		return nil, err
	}

	var files []string
	if req.Types != nil {
		for cat := range req.Types {
			files = append(files, m.FilesForCategory(cat)...)
		}
	} else {
		for _, fi := range m.Manifest.Files {
			files = append(files, fi.Path)
		}
	}

	var hits []GeoHit
	for _, file := range files {
		err := pr.StreamRows(ctx, file, parquet.StreamOptions{}, func(articles []model.Article) error {
			for _, a := range articles {
				if a.Coord == nil {
					continue
				}
				d := geo.HaversineMeters(req.Center, *a.Coord)
				if d <= req.RadiusMeters {
					hits = append(hits, GeoHit{ID: a.ID, Category: a.Category, DistanceMeters: d})
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].DistanceMeters != hits[j].DistanceMeters {
			return hits[i].DistanceMeters < hits[j].DistanceMeters
		}
		return hits[i].ID < hits[j].ID
	})
	if req.Limit > 0 && len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	return hits, nil
}

func categoriesFor(types map[model.Category]bool) []model.Category {
	if len(types) == 0 {
		return model.Categories
	}
	var out []model.Category
	for _, c := range model.Categories {
		if types[c] {
			out = append(out, c)
		}
	}
	return out
}
