// Package tagger drives an external part-of-speech tagger.
package tagger

//go:generate mockgen -destination=mocks/mock_tagger.go -package=mocks -source=tagger.go Tagger

import "context"

// UnknownLemma is the marker the tagger prints when it has no lemma for a token.
const UnknownLemma = "<unknown>"

// Result is the tagger's analysis of one input token.
type Result struct {
	Tag string
	// Lemma is nil when the tagger reported the lemma as unknown.
	Lemma *string
}

// Tagger turns a batch of tokens into one Result per token, in input order.
//
// Implementations wrap a single long-lived process and are not safe for
// concurrent use: each worker owns its own Tagger.
type Tagger interface {
	// SetModel selects the model identifier ("<file>:<encoding>"). It is cheap
	// when the identifier is unchanged.
	SetModel(model string) error
	// SetArguments sets the command-line flags passed to the process.
	SetArguments(args []string)
	// Process blocks until every token has been tagged.
	Process(ctx context.Context, tokens []string) ([]Result, error)
	// Close stops the underlying process.
	Close() error
}

// StringPtr returns a pointer to s, for building Results.
func StringPtr(s string) *string { return &s }
