package vector

import "container/heap"

// Candidate is one scored node during a layer search.
type Candidate struct {
	ID       uint32
	Distance float32
}

// minHeap orders candidates by ascending distance (closest first), used
// for the unvisited-candidate frontier during layer search.
type minHeap struct{ items []Candidate }

func (h *minHeap) Len() int            { return len(h.items) }
func (h *minHeap) Less(i, j int) bool  { return h.items[i].Distance < h.items[j].Distance }
func (h *minHeap) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *minHeap) Push(x interface{})  { h.items = append(h.items, x.(Candidate)) }
func (h *minHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

func newMinHeap() *minHeap { return &minHeap{} }

func (h *minHeap) push(c Candidate) { heap.Push(h, c) }
func (h *minHeap) pop() Candidate   { return heap.Pop(h).(Candidate) }
func (h *minHeap) peek() Candidate  { return h.items[0] }

// maxHeap orders candidates by descending distance (farthest first), so
// the top is the worst kept result and can be evicted once a better
// candidate is found.
type maxHeap struct{ items []Candidate }

func (h *maxHeap) Len() int            { return len(h.items) }
func (h *maxHeap) Less(i, j int) bool  { return h.items[i].Distance > h.items[j].Distance }
func (h *maxHeap) Swap(i, j int)       { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *maxHeap) Push(x interface{})  { h.items = append(h.items, x.(Candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

func newMaxHeap() *maxHeap { return &maxHeap{} }

func (h *maxHeap) push(c Candidate) { heap.Push(h, c) }
func (h *maxHeap) pop() Candidate   { return heap.Pop(h).(Candidate) }
func (h *maxHeap) peek() Candidate  { return h.items[0] }

// sortedAscending drains h into a slice ordered closest-first (ascending
// distance), by repeatedly popping the farthest and prepending.
func (h *maxHeap) sortedAscending() []Candidate {
	out := make([]Candidate, h.Len())
	for i := h.Len() - 1; i >= 0; i-- {
		out[i] = h.pop()
	}
	return out
}
