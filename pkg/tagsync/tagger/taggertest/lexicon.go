// Package taggertest provides an in-memory Tagger for tests.
package taggertest

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/cognicore/tagsync/pkg/tagsync/tagger"
)

// Entry is the analysis returned for one token.
type Entry struct {
	Tag   string
	Lemma string // tagger.UnknownLemma or empty means absent
}

// Lexicon tags tokens by exact lookup. Unknown tokens get Fallback.
type Lexicon struct {
	Entries  map[string]Entry
	Fallback Entry

	mu      sync.Mutex
	model   string
	args    []string
	batches [][]string
	closed  bool
}

// English covers the sample sentence used across the test suites.
func English() *Lexicon {
	return &Lexicon{
		Entries: map[string]Entry{
			"this":      {"DT", "this"},
			"is":        {"VBZ", "be"},
			"a":         {"DT", "a"},
			"text":      {"NN", "text"},
			"without":   {"IN", "without"},
			"any":       {"DT", "any"},
			"special":   {"JJ", "special"},
			"character": {"NN", "character"},
			".":         {"SENT", "."},
		},
		Fallback: Entry{Tag: "NN", Lemma: tagger.UnknownLemma},
	}
}

var _ tagger.Tagger = (*Lexicon)(nil)

func (l *Lexicon) SetModel(model string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.model = model
	return nil
}

func (l *Lexicon) SetArguments(args []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.args = slices.Clone(args)
}

func (l *Lexicon) Process(ctx context.Context, tokens []string) ([]tagger.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.batches = append(l.batches, slices.Clone(tokens))
	l.mu.Unlock()

	out := make([]tagger.Result, len(tokens))
	for i, tok := range tokens {
		if strings.TrimSpace(tok) == "" {
			continue
		}
		e, ok := l.Entries[tok]
		if !ok {
			e = l.Fallback
		}
		out[i].Tag = e.Tag
		if e.Lemma != "" && e.Lemma != tagger.UnknownLemma {
			out[i].Lemma = tagger.StringPtr(e.Lemma)
		}
	}
	return out, nil
}

func (l *Lexicon) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}

// Model returns the last model set.
func (l *Lexicon) Model() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.model
}

// Arguments returns the last arguments set.
func (l *Lexicon) Arguments() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.args)
}

// Batches returns every token batch received so far.
func (l *Lexicon) Batches() [][]string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.batches)
}

// Closed reports whether Close was called.
func (l *Lexicon) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}
