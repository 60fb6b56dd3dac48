package geo

import (
	"encoding/json"
	"sort"

	"github.com/RoaringBitmap/roaring"

	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/model"
)

// Entry is one article's geo-indexed position, per the
// indexes/geo-index.json "entries" array.
type Entry struct {
	ID       string         `json:"id"`
	Category model.Category `json:"category"`
	Lat      float64        `json:"lat"`
	Lng      float64        `json:"lng"`
}

// document is the on-disk shape of indexes/geo-index.json.
type document struct {
	Version int                 `json:"version"`
	Entries []Entry             `json:"entries"`
	Buckets map[string][]string `json:"buckets"`
}

// Index is the in-memory geohash-bucketed position index built from
// indexes/geo-index.json. Each bucket key is a DefaultPrecision-length
// geohash prefix; its value is a roaring bitmap over ordinals into
// entries, letting set operations (bucket union during BFS expansion)
// stay compact even for a large corpus.
type Index struct {
	entries   []Entry
	entryByID map[string]int
	buckets   map[string]*roaring.Bitmap
}

// Build constructs an Index from a decoded geo-index document.
func Build(raw []byte) (*Index, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	idx := &Index{
		entries:   doc.Entries,
		entryByID: make(map[string]int, len(doc.Entries)),
		buckets:   make(map[string]*roaring.Bitmap, len(doc.Buckets)),
	}
	for i, e := range doc.Entries {
		idx.entryByID[e.ID] = i
	}

	if len(doc.Buckets) > 0 {
		for prefix, ids := range doc.Buckets {
			bm := roaring.New()
			for _, id := range ids {
				if ord, ok := idx.entryByID[id]; ok {
					bm.Add(uint32(ord))
				}
			}
			idx.buckets[prefix] = bm
		}
		return idx, nil
	}

	// Buckets omitted from the document (e.g. a hand-authored fixture):
	// derive them from each entry's own geohash.
	for i, e := range doc.Entries {
		prefix := Encode(e.Lat, e.Lng, DefaultPrecision)
		bm, ok := idx.buckets[prefix]
		if !ok {
			bm = roaring.New()
			idx.buckets[prefix] = bm
		}
		bm.Add(uint32(i))
	}
	return idx, nil
}

// Len reports the number of indexed entries.
func (idx *Index) Len() int { return len(idx.entries) }

// Result is one hit from Search, sorted ascending by DistanceMeters.
type Result struct {
	Entry
	DistanceMeters float64
}

// SearchOptions configures Search. There is no minimum-distance bound:
// every match is within [0, RadiusMeters] of Center.
type SearchOptions struct {
	Center       model.LatLng
	RadiusMeters float64
	Types        map[model.Category]bool // nil/empty means no type filter
	Limit        int                     // <=0 means unbounded
}

// Search performs a bounding-box-prefiltered, Haversine-refined radius
// search: it BFS-expands geohash cells outward from the center cell
// until every cell whose bounding box could contain a point within
// RadiusMeters has been visited, collects every entry in those cells,
// filters by exact distance and (optionally) category, then returns
// ascending by distance, truncated to Limit.
func (idx *Index) Search(opts SearchOptions) ([]Result, error) {
	centerHash := Encode(opts.Center.Lat, opts.Center.Lng, DefaultPrecision)

	visited := map[string]bool{centerHash: true}
	frontier := []string{centerHash}
	candidates := roaring.New()
	if bm, ok := idx.buckets[centerHash]; ok {
		candidates.Or(bm)
	}

	for len(frontier) > 0 {
		next := make([]string, 0)
		anyExpandable := false
		for _, hash := range frontier {
			b, err := Decode(hash)
			if err != nil {
				return nil, err
			}
			if !cellMayContainRadius(b, opts.Center, opts.RadiusMeters) {
				continue
			}
			anyExpandable = true
			neighbors, err := Neighbors(hash)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if visited[n] {
					continue
				}
				visited[n] = true
				next = append(next, n)
				if bm, ok := idx.buckets[n]; ok {
					candidates.Or(bm)
				}
			}
		}
		if !anyExpandable {
			break
		}
		frontier = next
	}

	results := make([]Result, 0, candidates.GetCardinality())
	it := candidates.Iterator()
	for it.HasNext() {
		ord := it.Next()
		e := idx.entries[ord]
		if len(opts.Types) > 0 && !opts.Types[e.Category] {
			continue
		}
		d := HaversineMeters(opts.Center, model.LatLng{Lat: e.Lat, Lng: e.Lng})
		if d > opts.RadiusMeters {
			continue
		}
		results = append(results, Result{Entry: e, DistanceMeters: d})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].DistanceMeters != results[j].DistanceMeters {
			return results[i].DistanceMeters < results[j].DistanceMeters
		}
		return results[i].ID < results[j].ID
	})
	if opts.Limit > 0 && len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// cellMayContainRadius reports whether any point in b could be within
// radiusMeters of center, using the cell's nearest corner/edge distance
// as a conservative lower bound.
func cellMayContainRadius(b Bounds, center model.LatLng, radiusMeters float64) bool {
	clampedLat := clamp(center.Lat, b.MinLat, b.MaxLat)
	clampedLng := clamp(center.Lng, b.MinLng, b.MaxLng)
	nearest := model.LatLng{Lat: clampedLat, Lng: clampedLng}
	return HaversineMeters(center, nearest) <= radiusMeters
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
