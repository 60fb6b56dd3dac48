package fts

import (
	"math"
	"sort"

	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/model"
)

// Field names the document fields the index scores independently.
type Field string

const (
	FieldTitle       Field = "title"
	FieldDescription Field = "description"
	FieldText        Field = "text"
)

// FieldWeight returns the canonical per-field weighting used by this
// index: title counts three times as much as body text, description
// 1.5x.
func FieldWeight(f Field) float64 {
	switch f {
	case FieldTitle:
		return 3.0
	case FieldDescription:
		return 1.5
	default:
		return 1.0
	}
}

// Params holds the BM25 tuning constants, defaulted to k1=1.2, b=0.75.
type Params struct {
	K1 float64
	B  float64
}

// DefaultParams is k1=1.2, b=0.75.
var DefaultParams = Params{K1: 1.2, B: 0.75}

type posting struct {
	docOrd int32
	tf     int32
}

// fieldStats tracks per-field document length and corpus-wide average,
// needed by the BM25 length-normalization term.
type fieldStats struct {
	docLen  map[int32]int32
	totalLen int64
	count    int64
}

func (s *fieldStats) avgLen() float64 {
	if s.count == 0 {
		return 0
	}
	return float64(s.totalLen) / float64(s.count)
}

// doc is one indexed document's identity and category, addressable by
// its dense ordinal.
type doc struct {
	id       string
	category model.Category
}

// Index is an in-memory BM25 inverted index over a fixed set of fields.
type Index struct {
	params Params

	docs    []doc
	docOrd  map[string]int32
	fields  map[Field]*fieldStats
	// postings[field][term] -> postings sorted by docOrd ascending
	postings map[Field]map[string][]posting

	// sources retains original field text per doc ordinal, only
	// populated when AddDocumentWithSource is used, so Search can emit
	// highlights without re-fetching the article.
	sources map[int32]sourceText
}

// NewIndex creates an empty index using the given BM25 params.
func NewIndex(params Params) *Index {
	return &Index{
		params:   params,
		docOrd:   make(map[string]int32),
		fields:   make(map[Field]*fieldStats),
		postings: make(map[Field]map[string][]posting),
	}
}

// Document is one article's analyzable field content, fed to AddDocument
// during index construction.
type Document struct {
	ID          string
	Category    model.Category
	Title       string
	Description string
	Text        string
}

// AddDocument tokenizes doc's fields and records postings and field
// length statistics for it. Documents must be added in a single pass;
// the index does not support incremental deletion.
func (idx *Index) AddDocument(d Document) {
	idx.addDocument(d, false)
}

// AddDocumentWithSource behaves like AddDocument but also retains d's
// original field text, so Search can return highlight snippets for it.
func (idx *Index) AddDocumentWithSource(d Document) {
	idx.addDocument(d, true)
}

func (idx *Index) addDocument(d Document, keepSource bool) {
	ord := int32(len(idx.docs))
	idx.docs = append(idx.docs, doc{id: d.ID, category: d.Category})
	idx.docOrd[d.ID] = ord

	fieldText := map[Field]string{
		FieldTitle:       d.Title,
		FieldDescription: d.Description,
		FieldText:        d.Text,
	}
	for field, text := range fieldText {
		tokens := Analyze(text)
		stats, ok := idx.fields[field]
		if !ok {
			stats = &fieldStats{docLen: make(map[int32]int32)}
			idx.fields[field] = stats
		}
		stats.docLen[ord] = int32(len(tokens))
		stats.totalLen += int64(len(tokens))
		stats.count++

		tf := make(map[string]int32, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		postingsByTerm, ok := idx.postings[field]
		if !ok {
			postingsByTerm = make(map[string][]posting)
			idx.postings[field] = postingsByTerm
		}
		for term, count := range tf {
			postingsByTerm[term] = append(postingsByTerm[term], posting{docOrd: ord, tf: count})
		}
	}

	if keepSource {
		if idx.sources == nil {
			idx.sources = make(map[int32]sourceText)
		}
		idx.sources[ord] = sourceText{title: d.Title, description: d.Description, text: d.Text}
	}
}

// Finalize sorts every term's posting list by doc ordinal, required
// before Search is called. Call once after all AddDocument calls.
func (idx *Index) Finalize() {
	for _, byTerm := range idx.postings {
		for term, list := range byTerm {
			sort.Slice(list, func(i, j int) bool { return list[i].docOrd < list[j].docOrd })
			byTerm[term] = list
		}
	}
}

// docFreq returns the number of documents in field containing term.
func (idx *Index) docFreq(field Field, term string) int {
	return len(idx.postings[field][term])
}

func (idx *Index) numDocs() int { return len(idx.docs) }

// idf is the standard BM25 inverse document frequency with a +1 floor
// so a term appearing in every document still contributes a small
// positive weight.
func (idx *Index) idf(field Field, term string) float64 {
	n := float64(idx.numDocs())
	df := float64(idx.docFreq(field, term))
	return math.Log(1 + (n-df+0.5)/(df+0.5))
}

// Options configures Search.
type Options struct {
	Limit     int
	MinScore  float64
	Types     map[model.Category]bool
	Highlight bool
	Fuzzy     *FuzzyOptions
}

// FuzzyOptions enables Levenshtein-distance fuzzy term matching.
type FuzzyOptions struct {
	MinTermLength int
	PrefixLength  int
	MaxDistance   int
}

// Hit is one scored search result.
type Hit struct {
	ID         string
	Category   model.Category
	Score      float64
	Highlights map[Field]string
}

// Search analyzes query the same way documents were analyzed, scores
// every matching document by field-weighted BM25 (taking tf/len from
// the highest-weighted field that contains the term), and returns hits
// sorted by score descending, truncated to Limit and filtered by
// MinScore/Types.
func (idx *Index) Search(query string, opts Options) []Hit {
	terms := Analyze(query)
	if len(terms) == 0 {
		return nil
	}

	scores := make(map[int32]float64)
	rawQueryForHighlight := terms

	for _, term := range terms {
		idx.accumulateTerm(term, 1.0, scores)
		if opts.Fuzzy != nil && len(term) >= opts.Fuzzy.MinTermLength {
			for candidate, dist := range idx.fuzzyCandidates(term, *opts.Fuzzy) {
				weight := 1 - float64(dist)/float64(opts.Fuzzy.MaxDistance)
				if weight < 0 {
					continue
				}
				idx.accumulateTerm(candidate, weight, scores)
			}
		}
	}

	hits := make([]Hit, 0, len(scores))
	for ord, score := range scores {
		if score < opts.MinScore {
			continue
		}
		d := idx.docs[ord]
		if len(opts.Types) > 0 && !opts.Types[d.category] {
			continue
		}
		hit := Hit{ID: d.id, Category: d.category, Score: score}
		hits = append(hits, hit)
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if opts.Limit > 0 && len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}

	if opts.Highlight {
		idx.attachHighlights(hits, rawQueryForHighlight)
	}
	return hits
}

// accumulateTerm finds, per document, the highest-weighted field that
// contains term, and adds that field's BM25 contribution (scaled by
// weight, used for fuzzy matches) into scores.
func (idx *Index) accumulateTerm(term string, weight float64, scores map[int32]float64) {
	type best struct {
		field Field
		posting
	}
	bestForDoc := make(map[int32]best)

	for field, byTerm := range idx.postings {
		list, ok := byTerm[term]
		if !ok {
			continue
		}
		fw := FieldWeight(field)
		for _, p := range list {
			cur, ok := bestForDoc[p.docOrd]
			if !ok || fw > FieldWeight(cur.field) {
				bestForDoc[p.docOrd] = best{field: field, posting: p}
			}
		}
	}

	for ord, b := range bestForDoc {
		stats := idx.fields[b.field]
		avgLen := stats.avgLen()
		length := float64(stats.docLen[ord])
		tf := float64(b.tf)
		k1 := idx.params.K1
		bParam := idx.params.B
		idf := idx.idf(b.field, term)
		denom := tf + k1*(1-bParam+bParam*length/maxFloat(avgLen, 1))
		contribution := FieldWeight(b.field) * idf * (tf * (k1 + 1)) / denom
		scores[ord] += weight * contribution
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// fuzzyCandidates scans every indexed term for a prefix match plus a
// Levenshtein distance within opts.MaxDistance, returning a map of
// candidate term to its distance.
func (idx *Index) fuzzyCandidates(term string, opts FuzzyOptions) map[string]int {
	out := make(map[string]int)
	prefix := term
	if len(prefix) > opts.PrefixLength {
		prefix = prefix[:opts.PrefixLength]
	}
	for _, byTerm := range idx.postings {
		for candidate := range byTerm {
			if candidate == term {
				continue
			}
			if len(candidate) < opts.PrefixLength || candidate[:opts.PrefixLength] != prefix {
				continue
			}
			dist := levenshtein(term, candidate)
			if dist <= opts.MaxDistance {
				if existing, ok := out[candidate]; !ok || dist < existing {
					out[candidate] = dist
				}
			}
		}
	}
	return out
}

// levenshtein computes the classic edit distance between a and b.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			del := prev[j] + 1
			ins := cur[j-1] + 1
			sub := prev[j-1] + cost
			cur[j] = minInt(del, minInt(ins, sub))
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
