package fts

import (
	"strings"
)

// HighlightMaxLen bounds the length of an emitted snippet.
const HighlightMaxLen = 200

// HighlightTagPre and HighlightTagPost are the match-wrapping tags
// attachHighlights uses for every snippet; they are fixed constants and
// Search offers no option to replace them.
const (
	HighlightTagPre  = "<mark>"
	HighlightTagPost = "</mark>"
)

// sourceText retains a document's original, un-analyzed field text so
// Search can emit highlight snippets; only populated when a document
// was added via AddDocumentWithSource.
type sourceText struct {
	title       string
	description string
	text        string
}

// attachHighlights fills in Hit.Highlights for each hit using the
// index's retained source text (see AddDocumentWithSource). If no
// source text was retained for a document, its Highlights map is left
// nil rather than guessed at.
func (idx *Index) attachHighlights(hits []Hit, queryTerms []string) {
	if idx.sources == nil {
		return
	}
	termSet := make(map[string]bool, len(queryTerms))
	for _, t := range queryTerms {
		termSet[t] = true
	}
	for i := range hits {
		ord, ok := idx.docOrd[hits[i].ID]
		if !ok {
			continue
		}
		src, ok := idx.sources[ord]
		if !ok {
			continue
		}
		hits[i].Highlights = map[Field]string{
			FieldTitle:       snippet(src.title, termSet, HighlightTagPre, HighlightTagPost),
			FieldDescription: snippet(src.description, termSet, HighlightTagPre, HighlightTagPost),
			FieldText:        snippet(src.text, termSet, HighlightTagPre, HighlightTagPost),
		}
	}
}

// snippet finds the first token in text matching (after lowercasing and
// stemming; only ASCII letters and digits form tokens here, and no
// Unicode folding or stop-word removal is applied) any term in
// matchTerms, wraps it in pre/post tags,
// and returns a window around it capped at HighlightMaxLen.
func snippet(text string, matchTerms map[string]bool, pre, post string) string {
	if text == "" {
		return ""
	}

	type span struct{ start, end int }
	var spans []span
	var cur strings.Builder
	curStart := -1
	flush := func(end int) {
		if cur.Len() == 0 {
			return
		}
		tok := stem(strings.ToLower(cur.String()))
		if matchTerms[tok] {
			spans = append(spans, span{start: curStart, end: end})
		}
		cur.Reset()
		curStart = -1
	}
	for i, r := range text {
		if isWordRune(r) {
			if curStart == -1 {
				curStart = i
			}
			cur.WriteRune(r)
		} else {
			flush(i)
		}
	}
	flush(len(text))

	if len(spans) == 0 {
		if len(text) <= HighlightMaxLen {
			return text
		}
		return text[:HighlightMaxLen]
	}

	first := spans[0]
	windowStart := first.start - HighlightMaxLen/2
	if windowStart < 0 {
		windowStart = 0
	}
	windowEnd := windowStart + HighlightMaxLen
	if windowEnd > len(text) {
		windowEnd = len(text)
	}

	var out strings.Builder
	pos := windowStart
	for _, sp := range spans {
		if sp.start < windowStart || sp.end > windowEnd {
			continue
		}
		out.WriteString(text[pos:sp.start])
		out.WriteString(pre)
		out.WriteString(text[sp.start:sp.end])
		out.WriteString(post)
		pos = sp.end
	}
	out.WriteString(text[pos:windowEnd])
	return out.String()
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
