package vector

import (
	"fmt"
	"sort"
)

// Result is one scored hit from Search.
type Result struct {
	ID    string
	Score float32
}

// FilterStrategy selects how Search applies a candidate-id restriction.
type FilterStrategy int

const (
	// FilterAuto chooses pre-filter when the candidate set is small
	// relative to the index, post-filter otherwise.
	FilterAuto FilterStrategy = iota
	FilterPre
	FilterPost
)

// preFilterThresholdRatio is the |candidate set| / N cutoff FilterAuto
// uses to decide between pre- and post-filtering: pre-filter when
// |candidate set| <= threshold * N.
const preFilterThresholdRatio = 0.2

// postFilterOverfetch is the multiplier applied to k when over-fetching
// for a post-filter pass.
const postFilterOverfetch = 4

// SearchOptions configures Search.
type SearchOptions struct {
	EfSearch int
	// Filter restricts results to this id set (nil means unrestricted).
	Filter   map[string]bool
	Strategy FilterStrategy
}

// Search returns the k nearest neighbors of query: greedy-descend from
// the top layer to layer 1, then an ef-bounded layer-0 search,
// returning the top-k by ascending distance mapped to the metric's
// similarity score.
func (idx *Index) Search(query []float32, k int, opts SearchOptions) ([]Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if !idx.hasEntry {
		return nil, nil
	}
	if len(query) != idx.config.Dimension {
		return nil, fmt.Errorf("vector: query dimension %d does not match index dimension %d", len(query), idx.config.Dimension)
	}

	ef := opts.EfSearch
	if ef < k {
		ef = k
	}

	var allowedArena map[uint32]bool
	strategy := opts.Strategy
	if opts.Filter != nil && strategy == FilterAuto {
		ratio := float64(len(opts.Filter)) / float64(len(idx.nodes))
		if ratio <= preFilterThresholdRatio {
			strategy = FilterPre
		} else {
			strategy = FilterPost
		}
	}

	searchEf := ef
	if opts.Filter != nil && strategy == FilterPost {
		searchEf = ef * postFilterOverfetch
	}
	if opts.Filter != nil && strategy == FilterPre {
		allowedArena = make(map[uint32]bool, len(opts.Filter))
		for id := range opts.Filter {
			if arena, ok := idx.idToArena[id]; ok {
				allowedArena[arena] = true
			}
		}
		if len(allowedArena) == 0 {
			return nil, nil
		}
	}

	entry := idx.entry
	for l := idx.maxLevel; l > 0; l-- {
		entry = idx.greedyStep(query, entry, l)
	}

	candidates := idx.searchLayer(query, entry, searchEf, 0, allowedArena)

	if opts.Filter != nil && strategy == FilterPost {
		filtered := candidates[:0:0]
		for _, c := range candidates {
			if opts.Filter[idx.nodes[c.ID].id] {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{ID: idx.nodes[c.ID].id, Score: ScoreFromDistance(idx.config.Metric, c.Distance)}
	}
	return results, nil
}

// BruteForceSearch scores every vector against query directly, without
// walking the HNSW graph; the query facade uses it when a caller sets
// UseHNSW to false.
func (idx *Index) BruteForceSearch(query []float32, k int, filter map[string]bool) ([]Result, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(query) != idx.config.Dimension {
		return nil, fmt.Errorf("vector: query dimension %d does not match index dimension %d", len(query), idx.config.Dimension)
	}

	results := make([]Result, 0, len(idx.nodes))
	for _, n := range idx.nodes {
		if filter != nil && !filter[n.id] {
			continue
		}
		d := idx.distance(query, n.vector)
		results = append(results, Result{ID: n.id, Score: ScoreFromDistance(idx.config.Metric, d)})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
