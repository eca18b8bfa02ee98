// Package ingest turns raw input into documents with token annotations ready
// for tagging.
package ingest

import (
	"fmt"
	"unicode"

	"github.com/cognicore/tagsync/pkg/tagsync/internalerr"
)

// Mode selects how the tokenizer splits text.
type Mode string

const (
	// ModeWhitespace emits maximal runs of non-space characters.
	ModeWhitespace Mode = "whitespace"
	// ModeWord emits runs of letters, digits, hyphens and apostrophes; every
	// other non-space character is a token of its own.
	ModeWord Mode = "word"
)

// ParseMode validates a configured mode name. Empty means whitespace.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeWhitespace:
		return ModeWhitespace, nil
	case ModeWord:
		return ModeWord, nil
	}
	return "", internalerr.Configf("tokenizer.mode", "unknown mode %q", s)
}

// Span is a token position as rune offsets, end exclusive.
type Span struct {
	Begin int
	End   int
}

func (s Span) String() string { return fmt.Sprintf("[%d,%d)", s.Begin, s.End) }

// Tokenizer splits text into token spans.
type Tokenizer struct {
	mode Mode
}

// NewTokenizer creates a tokenizer for mode.
func NewTokenizer(mode Mode) *Tokenizer {
	if mode == "" {
		mode = ModeWhitespace
	}
	return &Tokenizer{mode: mode}
}

// Mode returns the tokenizer's mode.
func (t *Tokenizer) Mode() Mode { return t.mode }

// Spans returns the token spans of text in order.
func (t *Tokenizer) Spans(text string) []Span {
	var spans []Span
	begin := -1
	pos := 0

	flush := func() {
		if begin >= 0 {
			spans = append(spans, Span{Begin: begin, End: pos})
			begin = -1
		}
	}

	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			flush()
		case t.mode == ModeWord && !isWordRune(r):
			flush()
			spans = append(spans, Span{Begin: pos, End: pos + 1})
		default:
			if begin < 0 {
				begin = pos
			}
		}
		pos++
	}
	flush()

	return spans
}

// Tokenize returns the token strings of text.
func (t *Tokenizer) Tokenize(text string) []string {
	runes := []rune(text)
	spans := t.Spans(text)
	out := make([]string, len(spans))
	for i, s := range spans {
		out[i] = string(runes[s.Begin:s.End])
	}
	return out
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsMark(r) || r == '-' || r == '\''
}
