package wikidb

import "go.uber.org/zap"

// NewLogger builds the process-wide structured logger. Every component
// in this module accepts a *zap.Logger rather than reaching for a
// package-global, so request-scoped code can attach fields (request id,
// query kind) with With() before passing it down.
func NewLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
