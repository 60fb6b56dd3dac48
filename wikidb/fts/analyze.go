// Package fts implements a BM25 inverted-index full-text search engine:
// an analysis pipeline, a field-weighted BM25 scorer, optional
// Levenshtein fuzzy matching, and snippet highlighting.
package fts

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MinTokenLength and MaxTokenLength are the default token length
// filters applied during analysis.
const (
	MinTokenLength = 2
	MaxTokenLength = 32
)

// stopWords is the default English stop-word list applied during
// analysis; terms in this set never become index postings.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"that": true, "the": true, "to": true, "was": true, "were": true,
	"will": true, "with": true, "this": true, "but": true, "not": true,
	"or": true, "his": true, "her": true, "they": true, "their": true,
}

// stripMarks removes Unicode combining marks (accents) after NFD
// decomposition, so "café" and "cafe" analyze to the same token.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// ligatures folds the common typographic ligatures the pipeline is
// expected to normalize before tokenizing.
var ligatures = strings.NewReplacer(
	"æ", "ae", "Æ", "AE",
	"œ", "oe", "Œ", "OE",
	"ﬁ", "fi", "ﬂ", "fl",
)

// Analyze runs the full pipeline on s: lowercase, Unicode-normalize,
// tokenize on non-alphanumeric boundaries, length-filter, stop-word
// filter, stem.
func Analyze(s string) []string {
	s = ligatures.Replace(s)
	folded, _, err := transform.String(stripMarks, s)
	if err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		tok := cur.String()
		cur.Reset()
		if len(tok) < MinTokenLength || len(tok) > MaxTokenLength {
			return
		}
		if stopWords[tok] {
			return
		}
		tokens = append(tokens, stem(tok))
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// stem applies a small set of suffix-stripping rules, in the style of a
// simplified Porter stemmer: enough to unify common plural/verb forms
// without a full linguistic stemmer dependency.
func stem(tok string) string {
	switch {
	case strings.HasSuffix(tok, "ies") && len(tok) > 4:
		return tok[:len(tok)-3] + "y"
	case strings.HasSuffix(tok, "es") && len(tok) > 4:
		return tok[:len(tok)-2]
	case strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") && len(tok) > 3:
		return tok[:len(tok)-1]
	case strings.HasSuffix(tok, "ing") && len(tok) > 5:
		return tok[:len(tok)-3]
	case strings.HasSuffix(tok, "ed") && len(tok) > 4:
		return tok[:len(tok)-2]
	default:
		return tok
	}
}
