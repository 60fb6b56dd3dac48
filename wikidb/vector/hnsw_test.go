package vector

import (
	"math"
	"testing"
)

func unitVector(dim, hot int) []float32 {
	v := make([]float32, dim)
	v[hot] = 1
	return v
}

func TestCosineDistanceIdenticalVectorsIsZero(t *testing.T) {
	v := []float32{1, 2, 3}
	if d := cosineDistance(v, v); math.Abs(float64(d)) > 1e-6 {
		t.Fatalf("expected ~0 distance for identical vectors, got %f", d)
	}
}

func TestCosineDistanceZeroVectorIsMaximal(t *testing.T) {
	zero := []float32{0, 0, 0}
	other := []float32{1, 0, 0}
	if d := cosineDistance(zero, other); d != 1 {
		t.Fatalf("expected distance 1 for zero vector, got %f", d)
	}
}

func TestCosineDistanceOrthogonalIsOne(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	if d := cosineDistance(a, b); math.Abs(float64(d)-1) > 1e-6 {
		t.Fatalf("expected distance 1 for orthogonal vectors, got %f", d)
	}
}

func TestScoreFromDistanceMappings(t *testing.T) {
	if s := ScoreFromDistance(MetricCosine, 0.25); math.Abs(float64(s)-0.75) > 1e-6 {
		t.Fatalf("expected cosine score 0.75, got %f", s)
	}
	if s := ScoreFromDistance(MetricDot, 2); s != -2 {
		t.Fatalf("expected dot score -2, got %f", s)
	}
	if s := ScoreFromDistance(MetricEuclidean, 0); math.Abs(float64(s)-1) > 1e-6 {
		t.Fatalf("expected euclidean score 1 at distance 0, got %f", s)
	}
}

func buildTestIndex(t *testing.T, n int) *Index {
	t.Helper()
	idx, err := New(Config{Dimension: 4, M: 4, EfConstruction: 20, Metric: MetricCosine, RandomSeed: 42})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		v := unitVector(4, i%4)
		// Perturb slightly so vectors sharing a hot dimension remain
		// distinguishable by id.
		v[(i+1)%4] = float32(i) * 0.01
		if err := idx.Insert(idString(i), v); err != nil {
			t.Fatal(err)
		}
	}
	return idx
}

func idString(i int) string {
	return "v" + string(rune('a'+i))
}

func TestInsertAndSearchFindsExactMatch(t *testing.T) {
	idx := buildTestIndex(t, 20)
	query := unitVector(4, 0)
	results, err := idx.Search(query, 5, SearchOptions{EfSearch: 20})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0].ID != idString(0) {
		t.Fatalf("expected va (exact hot-dimension match) to rank first, got %+v", results[0])
	}
}

func TestSearchResultsMonotonicByScore(t *testing.T) {
	idx := buildTestIndex(t, 30)
	query := unitVector(4, 2)
	results, err := idx.Search(query, 10, SearchOptions{EfSearch: 30})
	if err != nil {
		t.Fatal(err)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Score > results[i-1].Score {
			t.Fatalf("expected descending score order, got %+v", results)
		}
	}
}

func TestSearchRejectsDimensionMismatch(t *testing.T) {
	idx := buildTestIndex(t, 5)
	if _, err := idx.Search([]float32{1, 2}, 3, SearchOptions{}); err == nil {
		t.Fatal("expected error for dimension mismatch")
	}
}

func TestInsertRejectsDuplicateID(t *testing.T) {
	idx, err := New(Config{Dimension: 2, M: 4, EfConstruction: 10, Metric: MetricCosine, RandomSeed: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Insert("x", []float32{1, 0}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Insert("x", []float32{0, 1}); err == nil {
		t.Fatal("expected error for duplicate id")
	}
}

func TestBruteForceSearchMatchesFilter(t *testing.T) {
	idx := buildTestIndex(t, 10)
	results, err := idx.BruteForceSearch(unitVector(4, 0), 5, map[string]bool{idString(0): true, idString(4): true})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.ID != idString(0) && r.ID != idString(4) {
			t.Fatalf("unexpected id in filtered brute-force results: %s", r.ID)
		}
	}
}

func TestSearchPreFilterRestrictsResults(t *testing.T) {
	idx := buildTestIndex(t, 20)
	filter := map[string]bool{idString(1): true, idString(5): true, idString(9): true}
	results, err := idx.Search(unitVector(4, 1), 10, SearchOptions{EfSearch: 20, Filter: filter, Strategy: FilterPre})
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if !filter[r.ID] {
			t.Fatalf("pre-filter leaked id not in filter set: %s", r.ID)
		}
	}
}

func TestNoOrphanNodesReachableAtLayerZero(t *testing.T) {
	idx := buildTestIndex(t, 25)
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	reachable := make(map[uint32]bool)
	queue := []uint32{idx.entry}
	reachable[idx.entry] = true
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		n := idx.nodes[cur]
		if len(n.links) == 0 {
			continue
		}
		for _, neighbor := range n.links[0] {
			if !reachable[neighbor] {
				reachable[neighbor] = true
				queue = append(queue, neighbor)
			}
		}
	}
	for i, n := range idx.nodes {
		if !reachable[uint32(i)] {
			t.Fatalf("node %s is not reachable at layer 0 from the entry point", n.id)
		}
	}
}
