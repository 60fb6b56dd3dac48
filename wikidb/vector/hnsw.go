package vector

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
)

// MaxLevel bounds the geometric level distribution.
const MaxLevel = 16

// Config holds the HNSW construction/search tuning parameters.
type Config struct {
	Dimension      int
	M              int // max bidirectional links per node per non-zero layer (2M on layer 0)
	EfConstruction int
	Metric         Metric
	RandomSeed     int64
}

func (c Config) validate() error {
	if c.Dimension <= 0 {
		return fmt.Errorf("vector: dimension must be positive")
	}
	if c.M <= 0 {
		return fmt.Errorf("vector: M must be positive")
	}
	if c.EfConstruction <= 0 {
		return fmt.Errorf("vector: EfConstruction must be positive")
	}
	return nil
}

// Index is an in-memory HNSW graph. Internal ids are dense arena
// indices into nodes; every non-entry node is reachable at layer 0 from
// the entry node, maintained by Insert's symmetric linking.
type Index struct {
	mu sync.RWMutex

	config   Config
	distance DistanceFunc
	rng      *rand.Rand

	nodes      []*node
	idToArena  map[string]uint32
	entry      uint32
	maxLevel   int
	hasEntry   bool
}

// New creates an empty HNSW index.
func New(cfg Config) (*Index, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	seed := cfg.RandomSeed
	if seed == 0 {
		seed = 1
	}
	return &Index{
		config:    cfg,
		distance:  distanceFuncFor(cfg.Metric),
		rng:       rand.New(rand.NewSource(seed)),
		idToArena: make(map[string]uint32),
	}, nil
}

// Len returns the number of indexed vectors.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.nodes)
}

// generateLevel draws a layer from the geometric distribution
// floor(-ln(U) * 1/ln(M)), bounded by MaxLevel.
func (idx *Index) generateLevel() int {
	u := idx.rng.Float64()
	for u == 0 {
		u = idx.rng.Float64()
	}
	level := int(math.Floor(-math.Log(u) / math.Log(float64(idx.config.M))))
	if level > MaxLevel {
		level = MaxLevel
	}
	return level
}

// Insert adds id/vec to the graph: greedy-descend from the entry point
// to level+1, then per layer level..0 run a breadth-EfConstruction
// layer search, select up to M (2M at layer 0) nearest neighbors, and
// symmetrically link, pruning any neighbor whose list now exceeds its
// layer's cap.
func (idx *Index) Insert(id string, vec []float32) error {
	if len(vec) != idx.config.Dimension {
		return fmt.Errorf("vector: dimension %d does not match index dimension %d", len(vec), idx.config.Dimension)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.idToArena[id]; exists {
		return fmt.Errorf("vector: id %q already indexed", id)
	}

	level := idx.generateLevel()
	n := &node{id: id, vector: vec, level: level, links: make([][]uint32, level+1)}
	for l := range n.links {
		n.links[l] = make([]uint32, 0, idx.capFor(l))
	}

	arenaID := uint32(len(idx.nodes))
	idx.nodes = append(idx.nodes, n)
	idx.idToArena[id] = arenaID

	if !idx.hasEntry {
		idx.entry = arenaID
		idx.maxLevel = level
		idx.hasEntry = true
		return nil
	}

	entry := idx.entry
	for l := idx.maxLevel; l > level; l-- {
		entry = idx.greedyStep(vec, entry, l)
	}

	for l := min(level, idx.maxLevel); l >= 0; l-- {
		candidates := idx.searchLayer(vec, entry, idx.config.EfConstruction, l, nil)
		selected := selectClosest(candidates, idx.capFor(l))
		idx.connect(arenaID, selected, l)
		if len(candidates) > 0 {
			entry = candidates[0].ID
		}
	}

	if level > idx.maxLevel {
		idx.entry = arenaID
		idx.maxLevel = level
	}
	return nil
}

// capFor returns the neighbor cap for layer l: 2M at layer 0, M above.
func (idx *Index) capFor(l int) int {
	if l == 0 {
		return 2 * idx.config.M
	}
	return idx.config.M
}

// greedyStep returns the id of the node closest to vec reachable from
// entry at level l by greedy hill-climbing: it keeps moving to a closer
// neighbor until no neighbor of the current best is closer.
func (idx *Index) greedyStep(vec []float32, entry uint32, level int) uint32 {
	best := entry
	bestDist := idx.distance(vec, idx.nodes[entry].vector)
	improved := true
	for improved {
		improved = false
		n := idx.nodes[best]
		if level >= len(n.links) {
			continue
		}
		for _, neighbor := range n.links[level] {
			d := idx.distance(vec, idx.nodes[neighbor].vector)
			if d < bestDist {
				bestDist = d
				best = neighbor
				improved = true
			}
		}
	}
	return best
}

// searchLayer runs a breadth-ef candidate search at level starting from
// entry: a min-heap of unvisited candidates and a max-heap of kept
// results, early-terminating once the closest unvisited candidate is
// farther than the worst kept result.
// If allowed is non-nil, only ids in it are kept as results (but the
// graph is still walked through filtered-out nodes, matching the
// reject-during-search pre-filter strategy for large candidate sets).
func (idx *Index) searchLayer(vec []float32, entry uint32, ef int, level int, allowed map[uint32]bool) []Candidate {
	visited := make(map[uint32]bool, ef*2)
	entryDist := idx.distance(vec, idx.nodes[entry].vector)

	candidates := newMinHeap()
	results := newMaxHeap()
	visited[entry] = true
	candidates.push(Candidate{ID: entry, Distance: entryDist})
	if allowed == nil || allowed[entry] {
		results.push(Candidate{ID: entry, Distance: entryDist})
	}

	for candidates.Len() > 0 {
		c := candidates.pop()
		if results.Len() >= ef && c.Distance > results.peek().Distance {
			break
		}
		n := idx.nodes[c.ID]
		if level >= len(n.links) {
			continue
		}
		for _, neighborID := range n.links[level] {
			if visited[neighborID] {
				continue
			}
			visited[neighborID] = true
			d := idx.distance(vec, idx.nodes[neighborID].vector)
			if results.Len() < ef || d < results.peek().Distance {
				candidates.push(Candidate{ID: neighborID, Distance: d})
				if allowed == nil || allowed[neighborID] {
					results.push(Candidate{ID: neighborID, Distance: d})
					if results.Len() > ef {
						results.pop()
					}
				}
			}
		}
	}
	return results.sortedAscending()
}

// selectClosest truncates candidates (already ascending by distance) to
// the m closest.
func selectClosest(candidates []Candidate, m int) []Candidate {
	if len(candidates) <= m {
		return candidates
	}
	return candidates[:m]
}

// connect symmetrically links arenaID to each selected neighbor at
// level, pruning any neighbor's list back to its layer cap if adding
// the new edge pushed it over.
func (idx *Index) connect(arenaID uint32, selected []Candidate, level int) {
	n := idx.nodes[arenaID]
	for _, c := range selected {
		n.links[level] = append(n.links[level], c.ID)

		neighbor := idx.nodes[c.ID]
		if level >= len(neighbor.links) {
			continue
		}
		neighbor.links[level] = append(neighbor.links[level], arenaID)
		cap := idx.capFor(level)
		if len(neighbor.links[level]) > cap {
			idx.pruneNeighbor(neighbor, level, cap)
		}
	}
}

// pruneNeighbor keeps only n's cap closest neighbors at level, by its
// own vector's distance to each.
func (idx *Index) pruneNeighbor(n *node, level int, cap int) {
	type scored struct {
		id uint32
		d  float32
	}
	scoredLinks := make([]scored, len(n.links[level]))
	for i, id := range n.links[level] {
		scoredLinks[i] = scored{id: id, d: idx.distance(n.vector, idx.nodes[id].vector)}
	}
	for i := 1; i < len(scoredLinks); i++ {
		for j := i; j > 0 && scoredLinks[j].d < scoredLinks[j-1].d; j-- {
			scoredLinks[j], scoredLinks[j-1] = scoredLinks[j-1], scoredLinks[j]
		}
	}
	if len(scoredLinks) > cap {
		scoredLinks = scoredLinks[:cap]
	}
	kept := make([]uint32, len(scoredLinks))
	for i, s := range scoredLinks {
		kept[i] = s.id
	}
	n.links[level] = kept
}
