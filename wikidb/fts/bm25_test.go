package fts

import (
	"testing"

	"github.com/dot-org-ai/wikipedia.org.ai-sub004/wikidb/model"
)

func TestAnalyzeLowercasesStemsAndDropsStopWords(t *testing.T) {
	tokens := Analyze("The Quick Brown Foxes Jumping")
	want := []string{"quick", "brown", "fox", "jump"}
	if len(tokens) != len(want) {
		t.Fatalf("expected %v, got %v", want, tokens)
	}
	for i, w := range want {
		if tokens[i] != w {
			t.Fatalf("expected %v, got %v", want, tokens)
		}
	}
}

func TestAnalyzeStripsAccents(t *testing.T) {
	tokens := Analyze("café")
	if len(tokens) != 1 || tokens[0] != "cafe" {
		t.Fatalf("expected [cafe], got %v", tokens)
	}
}

func TestBM25TwoDocumentRanking(t *testing.T) {
	idx := NewIndex(DefaultParams)
	idx.AddDocument(Document{ID: "d1", Category: model.CategoryOther, Text: "the quick brown fox"})
	idx.AddDocument(Document{ID: "d2", Category: model.CategoryOther, Text: "brown fox"})
	idx.Finalize()

	hits := idx.Search("brown fox", Options{})
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d: %+v", len(hits), hits)
	}
	if hits[0].ID != "d2" {
		t.Fatalf("expected d2 (shorter, denser match) to rank first, got %s first", hits[0].ID)
	}
	if hits[0].Score <= hits[1].Score {
		t.Fatalf("expected d2's score to exceed d1's: %+v", hits)
	}
}

func TestBM25RespectsTypeFilter(t *testing.T) {
	idx := NewIndex(DefaultParams)
	idx.AddDocument(Document{ID: "p1", Category: model.CategoryPlace, Text: "mountain range"})
	idx.AddDocument(Document{ID: "e1", Category: model.CategoryEvent, Text: "mountain festival"})
	idx.Finalize()

	hits := idx.Search("mountain", Options{Types: map[model.Category]bool{model.CategoryPlace: true}})
	if len(hits) != 1 || hits[0].ID != "p1" {
		t.Fatalf("expected only p1 to match place filter, got %+v", hits)
	}
}

func TestBM25MinScoreFilters(t *testing.T) {
	idx := NewIndex(DefaultParams)
	idx.AddDocument(Document{ID: "d1", Category: model.CategoryOther, Text: "brown fox jumps"})
	idx.Finalize()

	hits := idx.Search("brown fox", Options{MinScore: 1e9})
	if len(hits) != 0 {
		t.Fatalf("expected no hits above an impossible min score, got %+v", hits)
	}
}

func TestBM25LimitTruncates(t *testing.T) {
	idx := NewIndex(DefaultParams)
	idx.AddDocument(Document{ID: "d1", Category: model.CategoryOther, Text: "brown fox"})
	idx.AddDocument(Document{ID: "d2", Category: model.CategoryOther, Text: "brown fox again"})
	idx.Finalize()

	hits := idx.Search("brown fox", Options{Limit: 1})
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
}

func TestFuzzyMatchingContributesScaledScore(t *testing.T) {
	idx := NewIndex(DefaultParams)
	idx.AddDocument(Document{ID: "d1", Category: model.CategoryOther, Text: "elephant sanctuary"})
	idx.Finalize()

	// "elefant" (misspelled) should fuzzy-match "elephant".
	hits := idx.Search("elefant", Options{Fuzzy: &FuzzyOptions{MinTermLength: 4, PrefixLength: 2, MaxDistance: 2}})
	if len(hits) != 1 || hits[0].ID != "d1" {
		t.Fatalf("expected fuzzy match to find d1, got %+v", hits)
	}
}

func TestHighlightEmitsMarkedSnippet(t *testing.T) {
	idx := NewIndex(DefaultParams)
	idx.AddDocumentWithSource(Document{ID: "d1", Category: model.CategoryOther, Text: "the brown fox ran fast"})
	idx.Finalize()

	hits := idx.Search("fox", Options{Highlight: true})
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	snippet := hits[0].Highlights[FieldText]
	if snippet == "" {
		t.Fatal("expected a non-empty highlight snippet")
	}
	if !contains(snippet, HighlightTagPre+"fox"+HighlightTagPost) {
		t.Fatalf("expected snippet to wrap 'fox' in highlight tags, got %q", snippet)
	}
}

func TestLevenshteinBasics(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"kitten", "sitting", 3},
		{"", "abc", 3},
		{"abc", "abc", 0},
	}
	for _, c := range cases {
		if got := levenshtein(c.a, c.b); got != c.want {
			t.Fatalf("levenshtein(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func contains(s, sub string) bool {
	return len(s) >= len(sub) && indexOf(s, sub) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
