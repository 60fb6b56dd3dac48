// Package parquet implements a read-only columnar reader: footer
// parsing (see footer.go), page decoding (see decode.go), and here the
// Reader that ties both to a RangeFetcher per file and exposes
// row/row-group/article-level access with two bounded LRUs (parsed
// footers, decoded row groups).
package parquet

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	wikidb "github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/metrics"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/model"
)

const (
	defaultFooterCacheBudget   = 64 * 1000 * 1000
	defaultRowGroupCacheBudget = 128 * 1000 * 1000
	defaultRangeFetchBudget    = 32 * 1000 * 1000
)

// Reader is a read-only handle onto a bucket of Parquet files, owning
// its footer and row-group caches. The request container (reqctx)
// builds one Reader per request, so these caches are not shared across
// requests.
type Reader struct {
	bucket  wikidb.Bucket
	metrics *metrics.Metrics

	mu            sync.Mutex
	fetchers      map[string]*wikidb.RangeFetcher
	footerCache   *sizedLRU
	rowGroupCache *sizedLRU
	footerGroup   singleflight.Group
	rowGroupGroup singleflight.Group
}

// NewReader constructs a Reader over bucket. m must not be nil.
func NewReader(bucket wikidb.Bucket, m *metrics.Metrics) *Reader {
	return &Reader{
		bucket:        bucket,
		metrics:       m,
		fetchers:      make(map[string]*wikidb.RangeFetcher),
		footerCache:   newSizedLRU(defaultFooterCacheBudget),
		rowGroupCache: newSizedLRU(defaultRowGroupCacheBudget),
	}
}

func (r *Reader) fetcherFor(file string) *wikidb.RangeFetcher {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rf, ok := r.fetchers[file]; ok {
		return rf
	}
	rf := wikidb.NewRangeFetcher(r.bucket, file, defaultRangeFetchBudget, r.metrics)
	r.fetchers[file] = rf
	return rf
}

// GetMetadata returns file's parsed FileMetaData, reading the trailing
// 8 bytes then the footer on first access and caching the decoded
// result thereafter.
func (r *Reader) GetMetadata(ctx context.Context, file string) (*FileMetaData, error) {
	r.mu.Lock()
	if cached, ok := r.footerCache.get(file); ok {
		r.mu.Unlock()
		r.metrics.CacheHit("parquet-footer")
		return cached.(*FileMetaData), nil
	}
	r.mu.Unlock()
	r.metrics.CacheMiss("parquet-footer")

	v, err, _ := r.footerGroup.Do(file, func() (interface{}, error) {
		return r.loadMetadata(ctx, file)
	})
	if err != nil {
		return nil, err
	}
	return v.(*FileMetaData), nil
}

func (r *Reader) loadMetadata(ctx context.Context, file string) (*FileMetaData, error) {
	rf := r.fetcherFor(file)
	length, err := rf.ByteLength(ctx)
	if err != nil {
		return nil, err
	}
	if length < TrailerLen {
		return nil, wikidb.NewError(wikidb.KindCorrupt, fmt.Sprintf("%s: file too small to contain a footer", file), nil)
	}

	trailer, err := rf.Slice(ctx, length-TrailerLen, length)
	if err != nil {
		return nil, err
	}
	footerLen, err := ParseTrailer(trailer)
	if err != nil {
		return nil, wikidb.NewError(wikidb.KindCorrupt, file, err)
	}
	if footerLen < 0 || footerLen+TrailerLen > length {
		return nil, wikidb.NewError(wikidb.KindCorrupt, fmt.Sprintf("%s: footer length %d exceeds file size %d", file, footerLen, length), nil)
	}

	footerStart := length - TrailerLen - footerLen
	footer, err := rf.Slice(ctx, footerStart, length-TrailerLen)
	if err != nil {
		return nil, err
	}
	fm, err := DecodeFileMetaData(footer)
	if err != nil {
		return nil, wikidb.NewError(wikidb.KindCorrupt, file, err)
	}

	r.mu.Lock()
	r.footerCache.put(file, fm, int64(len(footer)))
	r.mu.Unlock()
	return fm, nil
}

// schemaOptional reports whether the named leaf column is declared
// optional in fm's flattened schema.
func schemaOptional(fm *FileMetaData, name string) bool {
	for _, se := range fm.Schema {
		if se.Name == name && se.NumChildren == 0 {
			return se.Optional
		}
	}
	return false
}

// columnSet is the decoded values for every column of one row group,
// keyed by leaf column name.
type columnSet map[string][]Value

func (r *Reader) rowGroupColumns(ctx context.Context, file string, fm *FileMetaData, rgIdx int) (columnSet, error) {
	cacheKey := fmt.Sprintf("%s#%d", file, rgIdx)

	r.mu.Lock()
	if cached, ok := r.rowGroupCache.get(cacheKey); ok {
		r.mu.Unlock()
		r.metrics.CacheHit("parquet-rowgroup")
		return cached.(columnSet), nil
	}
	r.mu.Unlock()
	r.metrics.CacheMiss("parquet-rowgroup")

	v, err, _ := r.rowGroupGroup.Do(cacheKey, func() (interface{}, error) {
		return r.loadRowGroupColumns(ctx, file, fm, rgIdx)
	})
	if err != nil {
		return nil, err
	}
	return v.(columnSet), nil
}

func (r *Reader) loadRowGroupColumns(ctx context.Context, file string, fm *FileMetaData, rgIdx int) (columnSet, error) {
	if rgIdx < 0 || rgIdx >= len(fm.RowGroups) {
		return nil, wikidb.NewError(wikidb.KindInvalidArgument, fmt.Sprintf("row group %d out of range (file has %d)", rgIdx, len(fm.RowGroups)), nil)
	}
	rg := fm.RowGroups[rgIdx]
	rf := r.fetcherFor(file)

	cols := make(columnSet, len(rg.Columns))
	totalBytes := int64(0)
	for _, cc := range rg.Columns {
		if len(cc.MetaData.PathInSchema) != 1 {
			continue
		}
		name := cc.MetaData.PathInSchema[0]
		optional := schemaOptional(fm, name)

		start := cc.MetaData.DataPageOffset
		end := start + cc.MetaData.CompressedSize
		buf, err := rf.Slice(ctx, start, end)
		if err != nil {
			return nil, err
		}

		var values []Value
		pos := 0
		for int64(len(values)) < cc.MetaData.NumValues && pos < len(buf) {
			vals, n, err := DecodePage(buf[pos:], cc.MetaData.Codec, cc.MetaData.Type, optional)
			if err != nil {
				return nil, wikidb.NewError(wikidb.KindCorrupt, fmt.Sprintf("%s: row group %d column %s", file, rgIdx, name), err)
			}
			values = append(values, vals...)
			pos += n
		}
		cols[name] = values
		totalBytes += end - start
	}

	r.mu.Lock()
	r.rowGroupCache.put(fmt.Sprintf("%s#%d", file, rgIdx), cols, totalBytes)
	r.mu.Unlock()
	return cols, nil
}

// ReadRowGroup decodes every row of row group rgIdx in file into
// Articles, in row order.
func (r *Reader) ReadRowGroup(ctx context.Context, file string, rgIdx int) ([]model.Article, error) {
	fm, err := r.GetMetadata(ctx, file)
	if err != nil {
		return nil, err
	}
	cols, err := r.rowGroupColumns(ctx, file, fm, rgIdx)
	if err != nil {
		return nil, err
	}
	numRows := int(fm.RowGroups[rgIdx].NumRows)
	out := make([]model.Article, numRows)
	for row := 0; row < numRows; row++ {
		a, err := buildArticle(cols, row)
		if err != nil {
			return nil, wikidb.NewError(wikidb.KindCorrupt, fmt.Sprintf("%s: row group %d row %d", file, rgIdx, row), err)
		}
		out[row] = a
	}
	return out, nil
}

// ReadRow decodes a single row addressed by (row group, row ordinal).
func (r *Reader) ReadRow(ctx context.Context, file string, rgIdx, row int) (model.Article, error) {
	fm, err := r.GetMetadata(ctx, file)
	if err != nil {
		return model.Article{}, err
	}
	if rgIdx < 0 || rgIdx >= len(fm.RowGroups) {
		return model.Article{}, wikidb.NewError(wikidb.KindInvalidArgument, fmt.Sprintf("row group %d out of range", rgIdx), nil)
	}
	if row < 0 || int64(row) >= fm.RowGroups[rgIdx].NumRows {
		return model.Article{}, wikidb.NewError(wikidb.KindInvalidArgument, fmt.Sprintf("row %d out of range for row group %d", row, rgIdx), nil)
	}
	cols, err := r.rowGroupColumns(ctx, file, fm, rgIdx)
	if err != nil {
		return model.Article{}, err
	}
	a, err := buildArticle(cols, row)
	if err != nil {
		return model.Article{}, wikidb.NewError(wikidb.KindCorrupt, fmt.Sprintf("%s: row group %d row %d", file, rgIdx, row), err)
	}
	return a, nil
}

// ReadArticles decodes up to limit Articles from file starting at the
// flat row ordinal offset (counting across row groups in order).
func (r *Reader) ReadArticles(ctx context.Context, file string, limit, offset int) ([]model.Article, error) {
	fm, err := r.GetMetadata(ctx, file)
	if err != nil {
		return nil, err
	}
	out := make([]model.Article, 0, limit)
	skipped := 0
	for rgIdx, rg := range fm.RowGroups {
		if len(out) >= limit {
			break
		}
		numRows := int(rg.NumRows)
		if skipped+numRows <= offset {
			skipped += numRows
			continue
		}
		cols, err := r.rowGroupColumns(ctx, file, fm, rgIdx)
		if err != nil {
			return nil, err
		}
		startRow := 0
		if skipped < offset {
			startRow = offset - skipped
		}
		for row := startRow; row < numRows && len(out) < limit; row++ {
			a, err := buildArticle(cols, row)
			if err != nil {
				return nil, wikidb.NewError(wikidb.KindCorrupt, fmt.Sprintf("%s: row group %d row %d", file, rgIdx, row), err)
			}
			out = append(out, a)
		}
		skipped += numRows
	}
	return out, nil
}

// StreamOptions narrows a StreamRows scan to a column projection, a
// row-group subset, and a delivery batch size.
type StreamOptions struct {
	Columns   []string // empty means all columns this reader knows how to assemble
	RowGroups []int    // empty means every row group in file order
	BatchSize int      // <= 0 defaults to one row group per batch
}

// StreamRows calls fn with successive batches of Articles from file,
// stopping at the first error fn returns (including a sentinel the
// caller uses to stop early).
func (r *Reader) StreamRows(ctx context.Context, file string, opts StreamOptions, fn func([]model.Article) error) error {
	fm, err := r.GetMetadata(ctx, file)
	if err != nil {
		return err
	}
	groups := opts.RowGroups
	if len(groups) == 0 {
		groups = make([]int, len(fm.RowGroups))
		for i := range groups {
			groups[i] = i
		}
	}
	batchSize := opts.BatchSize

	for _, rgIdx := range groups {
		if rgIdx < 0 || rgIdx >= len(fm.RowGroups) {
			return wikidb.NewError(wikidb.KindInvalidArgument, fmt.Sprintf("row group %d out of range", rgIdx), nil)
		}
		if err := ctx.Err(); err != nil {
			return wikidb.NewError(wikidb.KindCanceled, "stream canceled", err)
		}
		cols, err := r.rowGroupColumns(ctx, file, fm, rgIdx)
		if err != nil {
			return err
		}
		if len(opts.Columns) > 0 {
			projected := make(columnSet, len(opts.Columns))
			for _, name := range opts.Columns {
				if vs, ok := cols[name]; ok {
					projected[name] = vs
				}
			}
			cols = projected
		}
		numRows := int(fm.RowGroups[rgIdx].NumRows)
		if batchSize <= 0 {
			batch := make([]model.Article, 0, numRows)
			for row := 0; row < numRows; row++ {
				a, err := buildArticle(cols, row)
				if err != nil {
					return wikidb.NewError(wikidb.KindCorrupt, fmt.Sprintf("%s: row group %d row %d", file, rgIdx, row), err)
				}
				batch = append(batch, a)
			}
			if err := fn(batch); err != nil {
				return err
			}
			continue
		}
		for start := 0; start < numRows; start += batchSize {
			end := start + batchSize
			if end > numRows {
				end = numRows
			}
			batch := make([]model.Article, 0, end-start)
			for row := start; row < end; row++ {
				a, err := buildArticle(cols, row)
				if err != nil {
					return wikidb.NewError(wikidb.KindCorrupt, fmt.Sprintf("%s: row group %d row %d", file, rgIdx, row), err)
				}
				batch = append(batch, a)
			}
			if err := fn(batch); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildArticle(cols columnSet, row int) (model.Article, error) {
	get := func(name string) (Value, bool) {
		vs, ok := cols[name]
		if !ok || row >= len(vs) {
			return Value{}, false
		}
		return vs[row], true
	}

	var a model.Article
	if v, ok := get("id"); ok && !v.IsNull {
		a.ID = string(v.Bytes)
	}
	if v, ok := get("category"); ok && !v.IsNull {
		a.Category = model.Category(v.Bytes)
	}
	if v, ok := get("title"); ok && !v.IsNull {
		a.Title = string(v.Bytes)
	}
	if v, ok := get("description"); ok && !v.IsNull {
		a.Description = string(v.Bytes)
	}
	if v, ok := get("wikidata_id"); ok && !v.IsNull {
		a.WikidataID = string(v.Bytes)
	}
	lat, latOK := get("lat")
	lng, lngOK := get("lng")
	if latOK && lngOK && !lat.IsNull && !lng.IsNull {
		a.Coord = &model.LatLng{Lat: lat.Float64, Lng: lng.Float64}
	}
	if v, ok := get("infobox"); ok && !v.IsNull && len(v.Bytes) > 0 {
		m := make(map[string]string)
		if err := json.Unmarshal(v.Bytes, &m); err != nil {
			return a, fmt.Errorf("infobox json: %w", err)
		}
		a.Infobox = m
	}
	if v, ok := get("text"); ok && !v.IsNull {
		a.Text = string(v.Bytes)
	}
	if v, ok := get("updated_at"); ok && !v.IsNull {
		a.UpdatedAt = time.UnixMilli(v.Int64).UTC()
	}
	return a, nil
}
