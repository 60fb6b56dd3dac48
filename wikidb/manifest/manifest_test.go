package manifest

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"testing"

	"bytes"

	"github.com/prometheus/client_golang/prometheus"

	wikidb "github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/metrics"
	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/model"
)

func gzipJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(raw); err != nil {
		t.Fatal(err)
	}
	if err := gw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestBucket(t *testing.T) (wikidb.MockBucket, Manifest, map[string]locationJSON, map[string]locationJSON, map[model.Category][]string) {
	t.Helper()

	man := Manifest{
		TotalArticles:  2,
		CategoryCounts: map[model.Category]int{model.CategoryPlace: 2},
		Files:          []FileInfo{{Path: "articles/place/place.0.parquet", ByteSize: 100, RowCount: 2, RowGroupCount: 1}},
	}
	titles := map[string]locationJSON{
		"san francisco": {Path: "articles/place/place.0.parquet", RowGroup: 0, Row: 0, Category: model.CategoryPlace},
		"oakland":       {Path: "articles/place/place.0.parquet", RowGroup: 0, Row: 1, Category: model.CategoryPlace},
	}
	ids := map[string]locationJSON{
		"Q62":  {Path: "articles/place/place.0.parquet", RowGroup: 0, Row: 0, Category: model.CategoryPlace},
		"Q326": {Path: "articles/place/place.0.parquet", RowGroup: 0, Row: 1, Category: model.CategoryPlace},
	}
	types := map[model.Category][]string{
		model.CategoryPlace: {"articles/place/place.0.parquet"},
	}

	manBytes, err := json.Marshal(man)
	if err != nil {
		t.Fatal(err)
	}

	bucket := wikidb.MockBucket{Items: map[string][]byte{
		"articles/manifest.json": manBytes,
		"indexes/titles.json":    mustJSON(t, titles),
		"indexes/ids.json.gz":    gzipJSON(t, ids),
		"indexes/types.json":     mustJSON(t, types),
	}}
	return bucket, man, titles, ids, types
}

func mustJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestLoadManifestAndIndexes(t *testing.T) {
	bucket, man, _, _, _ := newTestBucket(t)
	m := metrics.New(prometheus.NewRegistry())
	ctx := context.Background()

	r, err := Load(ctx, bucket, m, "articles/manifest.json", "indexes/titles.json", "indexes/ids.json", "indexes/types.json")
	if err != nil {
		t.Fatal(err)
	}
	if r.Manifest.TotalArticles != man.TotalArticles {
		t.Fatalf("expected %d total articles, got %d", man.TotalArticles, r.Manifest.TotalArticles)
	}
	if len(r.TitleIndex) != 2 || len(r.IdIndex) != 2 {
		t.Fatalf("unexpected index sizes: titles=%d ids=%d", len(r.TitleIndex), len(r.IdIndex))
	}
	if files := r.FilesForCategory(model.CategoryPlace); len(files) != 1 {
		t.Fatalf("expected 1 file for place, got %v", files)
	}
}

func TestLoadManifestGzipFallback(t *testing.T) {
	// ids.json.gz is provided but "indexes/ids.json" is not in the bucket,
	// exercising the bare-path-miss-then-gzip-sibling path directly.
	bucket, _, _, _, _ := newTestBucket(t)
	m := metrics.New(prometheus.NewRegistry())
	ctx := context.Background()

	r, err := Load(ctx, bucket, m, "articles/manifest.json", "indexes/titles.json", "indexes/ids.json", "indexes/types.json")
	if err != nil {
		t.Fatal(err)
	}
	loc, ok := r.LookupByID("Q62")
	if !ok {
		t.Fatal("expected Q62 to resolve via gzip fallback index")
	}
	if loc.Row != 0 {
		t.Fatalf("unexpected row: %d", loc.Row)
	}
}

func TestLoadManifestFallbackPath(t *testing.T) {
	man := Manifest{TotalArticles: 1}
	bucket := wikidb.MockBucket{Items: map[string][]byte{
		// Primary manifest path absent; only the backup exists.
		"articles/manifest.backup.json": mustJSON(t, man),
		"indexes/titles.json":           mustJSON(t, map[string]locationJSON{}),
		"indexes/ids.json":              mustJSON(t, map[string]locationJSON{}),
		"indexes/types.json":            mustJSON(t, map[model.Category][]string{}),
	}}
	m := metrics.New(prometheus.NewRegistry())
	ctx := context.Background()

	r, err := Load(ctx, bucket, m, "articles/manifest.json", "indexes/titles.json", "indexes/ids.json", "indexes/types.json")
	if err != nil {
		t.Fatal(err)
	}
	if r.Manifest.TotalArticles != 1 {
		t.Fatalf("expected fallback manifest to load, got %+v", r.Manifest)
	}
}

func TestLoadManifestPersistentFailureIsNotFound(t *testing.T) {
	bucket := wikidb.MockBucket{Items: map[string][]byte{}}
	m := metrics.New(prometheus.NewRegistry())
	ctx := context.Background()

	_, err := Load(ctx, bucket, m, "articles/manifest.json", "indexes/titles.json", "indexes/ids.json", "indexes/types.json")
	if err == nil {
		t.Fatal("expected error")
	}
	if wikidb.KindOf(err) != wikidb.KindNotFound {
		t.Fatalf("expected NotFound, got %v", wikidb.KindOf(err))
	}
}

func TestLookupByTitleNormalizes(t *testing.T) {
	bucket, _, _, _, _ := newTestBucket(t)
	m := metrics.New(prometheus.NewRegistry())
	ctx := context.Background()

	r, err := Load(ctx, bucket, m, "articles/manifest.json", "indexes/titles.json", "indexes/ids.json", "indexes/types.json")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := r.LookupByTitle("San_Francisco"); !ok {
		t.Fatal("expected normalized lookup to match 'san francisco'")
	}
	if _, ok := r.LookupByTitle("  OAKLAND "); !ok {
		t.Fatal("expected normalized lookup to match 'oakland'")
	}
	if _, ok := r.LookupByTitle("nonexistent"); ok {
		t.Fatal("expected miss for unknown title")
	}
}
