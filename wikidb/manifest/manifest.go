// Package manifest loads the partition manifest and its three auxiliary
// lookup maps (title, id, type), and combines them with the columnar
// reader to resolve logical lookups.
package manifest

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	wikidb "github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/metrics"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/model"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/parquet"
)

// FileInfo describes one Parquet data file listed in the manifest.
type FileInfo struct {
	Path          string `json:"path"`
	ByteSize      int64  `json:"byteSize"`
	RowCount      int64  `json:"rowCount"`
	RowGroupCount int    `json:"rowGroupCount"`
}

// Manifest is the corpus-wide metadata document at articles/manifest.json.
type Manifest struct {
	TotalArticles  int                    `json:"totalArticles"`
	CategoryCounts map[model.Category]int `json:"categoryCounts"`
	Files          []FileInfo             `json:"files"`
}

// locationJSON mirrors model.Location's on-disk JSON shape; the
// serialized indexes use this directly as their map value type.
type locationJSON struct {
	Path     string         `json:"path"`
	RowGroup int            `json:"rowGroup"`
	Row      int            `json:"row"`
	Category model.Category `json:"category"`
}

func (l locationJSON) toModel() model.Location {
	return model.Location{Path: l.Path, RowGroup: l.RowGroup, Row: l.Row, Category: l.Category}
}

// Reader holds the manifest plus its three auxiliary lookup maps, and
// resolves title/id lookups against a columnar parquet.Reader.
type Reader struct {
	bucket  wikidb.Bucket
	metrics *metrics.Metrics

	Manifest   Manifest
	TitleIndex map[string]model.Location
	IdIndex    map[string]model.Location
	TypeIndex  map[model.Category][]string
}

// Load fetches the manifest and all three auxiliary indexes.
// manifestPath, titlesPath, idsPath, and typesPath are the non-gzipped
// object keys. For the three index paths a ".gz" sibling is tried
// automatically when the bare path is not found; the manifest path has
// no gzip fallback and is instead retried once at its alternate path
// (alternateManifestPath).
func Load(ctx context.Context, bucket wikidb.Bucket, m *metrics.Metrics, manifestPath, titlesPath, idsPath, typesPath string) (*Reader, error) {
	r := &Reader{bucket: bucket, metrics: m}

	loadErr := m.TrackIndexLoad("manifest", func() error {
		return loadJSON(ctx, bucket, manifestPath, &r.Manifest)
	})
	if loadErr != nil {
		// Retry once against an alternate path before surfacing NotFound.
		altPath := alternateManifestPath(manifestPath)
		altErr := m.TrackIndexLoad("manifest-fallback", func() error {
			return loadJSON(ctx, bucket, altPath, &r.Manifest)
		})
		if altErr != nil {
			return nil, wikidb.NewError(wikidb.KindNotFound, "manifest: "+manifestPath, loadErr)
		}
	}

	var titles map[string]locationJSON
	if err := m.TrackIndexLoad("title-index", func() error {
		return loadJSONWithGzipFallback(ctx, bucket, titlesPath, &titles)
	}); err != nil {
		return nil, wikidb.NewError(wikidb.KindNotFound, "title index: "+titlesPath, err)
	}
	r.TitleIndex = make(map[string]model.Location, len(titles))
	for k, v := range titles {
		r.TitleIndex[k] = v.toModel()
	}

	var ids map[string]locationJSON
	if err := m.TrackIndexLoad("id-index", func() error {
		return loadJSONWithGzipFallback(ctx, bucket, idsPath, &ids)
	}); err != nil {
		return nil, wikidb.NewError(wikidb.KindNotFound, "id index: "+idsPath, err)
	}
	r.IdIndex = make(map[string]model.Location, len(ids))
	for k, v := range ids {
		r.IdIndex[k] = v.toModel()
	}

	var types map[model.Category][]string
	if err := m.TrackIndexLoad("type-index", func() error {
		return loadJSONWithGzipFallback(ctx, bucket, typesPath, &types)
	}); err != nil {
		return nil, wikidb.NewError(wikidb.KindNotFound, "type index: "+typesPath, err)
	}
	r.TypeIndex = types

	return r, nil
}

func alternateManifestPath(path string) string {
	if strings.HasSuffix(path, ".json") {
		return strings.TrimSuffix(path, ".json") + ".backup.json"
	}
	return path + ".backup"
}

// LookupByTitle normalizes title and probes the title index.
func (r *Reader) LookupByTitle(title string) (model.Location, bool) {
	loc, ok := r.TitleIndex[model.NormalizeTitle(title)]
	return loc, ok
}

// LookupByID probes the id index directly.
func (r *Reader) LookupByID(id string) (model.Location, bool) {
	loc, ok := r.IdIndex[id]
	return loc, ok
}

// FilesForCategory returns the ordered file list holding only cat's
// articles, per the type index.
func (r *Reader) FilesForCategory(cat model.Category) []string {
	return r.TypeIndex[cat]
}

// ResolveByID loads the Article addressed by id using the id index and
// the given columnar reader. If the index's location record doesn't
// actually hold that id (a stale index), it falls back to a best-effort
// linear scan of the id's category's files and returns (nil, nil) if
// still unresolved.
func (r *Reader) ResolveByID(ctx context.Context, pr *parquet.Reader, id string) (*model.Article, error) {
	loc, ok := r.LookupByID(id)
	if ok {
		a, err := pr.ReadRow(ctx, loc.Path, loc.RowGroup, loc.Row)
		if err == nil && a.ID == id {
			return &a, nil
		}
		if err != nil && wikidb.KindOf(err) != wikidb.KindInvalidArgument {
			return nil, err
		}
	}

	var category model.Category
	if ok {
		category = loc.Category
	}
	files := r.filesToScan(category)
	for _, file := range files {
		var found *model.Article
		err := pr.StreamRows(ctx, file, parquet.StreamOptions{}, func(batch []model.Article) error {
			for i := range batch {
				if batch[i].ID == id {
					a := batch[i]
					found = &a
					return errStopScan
				}
			}
			return nil
		})
		if err != nil && err != errStopScan {
			return nil, err
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, nil
}

// ResolveByTitle mirrors ResolveByID for the title index.
func (r *Reader) ResolveByTitle(ctx context.Context, pr *parquet.Reader, title string) (*model.Article, error) {
	normalized := model.NormalizeTitle(title)
	loc, ok := r.LookupByTitle(title)
	if ok {
		a, err := pr.ReadRow(ctx, loc.Path, loc.RowGroup, loc.Row)
		if err == nil && model.NormalizeTitle(a.Title) == normalized {
			return &a, nil
		}
		if err != nil && wikidb.KindOf(err) != wikidb.KindInvalidArgument {
			return nil, err
		}
	}

	var category model.Category
	if ok {
		category = loc.Category
	}
	files := r.filesToScan(category)
	for _, file := range files {
		var found *model.Article
		err := pr.StreamRows(ctx, file, parquet.StreamOptions{}, func(batch []model.Article) error {
			for i := range batch {
				if model.NormalizeTitle(batch[i].Title) == normalized {
					a := batch[i]
					found = &a
					return errStopScan
				}
			}
			return nil
		})
		if err != nil && err != errStopScan {
			return nil, err
		}
		if found != nil {
			return found, nil
		}
	}
	return nil, nil
}

// filesToScan returns the files a stale-index fallback scan should
// cover: just cat's files if known, otherwise every file in the
// manifest (best-effort, most expensive path).
func (r *Reader) filesToScan(cat model.Category) []string {
	if cat != "" {
		if files := r.TypeIndex[cat]; len(files) > 0 {
			return files
		}
	}
	files := make([]string, len(r.Manifest.Files))
	for i, f := range r.Manifest.Files {
		files[i] = f.Path
	}
	return files
}

// errStopScan is a private sentinel StreamRows callbacks return to stop
// a scan early once a match is found; it is never exposed to callers.
var errStopScan = fmt.Errorf("manifest: scan match found")

func fetchFullObject(ctx context.Context, bucket wikidb.Bucket, key string) ([]byte, error) {
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

func loadJSON(ctx context.Context, bucket wikidb.Bucket, key string, out interface{}) error {
	buf, err := fetchFullObject(ctx, bucket, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return fmt.Errorf("manifest: decode %s: %w", key, err)
	}
	return nil
}

// loadJSONWithGzipFallback tries key as plain JSON first, then key+".gz"
// as gzip-compressed JSON, matching the optional ".gz" suffix the
// object-store layout allows for the three auxiliary indexes.
func loadJSONWithGzipFallback(ctx context.Context, bucket wikidb.Bucket, key string, out interface{}) error {
	err := loadJSON(ctx, bucket, key, out)
	if err == nil {
		return nil
	}
	if wikidb.KindOf(err) != wikidb.KindNotFound {
		return err
	}

	gzKey := key + ".gz"
	buf, err := fetchFullObject(ctx, bucket, gzKey)
	if err != nil {
		return err
	}
	gr, err := gzip.NewReader(bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("manifest: gzip header for %s: %w", gzKey, err)
	}
	defer gr.Close()
	raw, err := io.ReadAll(gr)
	if err != nil {
		return fmt.Errorf("manifest: gzip stream for %s: %w", gzKey, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("manifest: decode %s: %w", gzKey, err)
	}
	return nil
}
