package ingest

import (
	"errors"
	"reflect"
	"testing"

	"github.com/cognicore/tagsync/pkg/tagsync/internalerr"
)

func TestTokenizerWhitespace(t *testing.T) {
	tokenizer := NewTokenizer(ModeWhitespace)

	text := "This is a text without any special character ."
	spans := tokenizer.Spans(text)

	expected := []Span{
		{0, 4}, {5, 7}, {8, 9}, {10, 14}, {15, 22}, {23, 26}, {27, 34}, {35, 44}, {45, 46},
	}
	if !reflect.DeepEqual(spans, expected) {
		t.Errorf("Spans mismatch:\n got %v\nwant %v", spans, expected)
	}
}

func TestTokenizerWhitespaceKeepsPunctuation(t *testing.T) {
	tokenizer := NewTokenizer(ModeWhitespace)

	tokens := tokenizer.Tokenize("Hello, world.")
	expected := []string{"Hello,", "world."}
	if !reflect.DeepEqual(tokens, expected) {
		t.Errorf("Expected %v, got %v", expected, tokens)
	}
}

func TestTokenizerWordSplitsPunctuation(t *testing.T) {
	tokenizer := NewTokenizer(ModeWord)

	tokens := tokenizer.Tokenize("Hello, world. It's state-of-the-art!")
	expected := []string{"Hello", ",", "world", ".", "It's", "state-of-the-art", "!"}
	if !reflect.DeepEqual(tokens, expected) {
		t.Errorf("Expected %v, got %v", expected, tokens)
	}
}

func TestTokenizerRuneOffsets(t *testing.T) {
	tokenizer := NewTokenizer(ModeWord)

	// "Ça" and "déjà" carry multi-byte runes
	spans := tokenizer.Spans("Ça marche déjà.")
	expected := []Span{{0, 2}, {3, 9}, {10, 14}, {14, 15}}
	if !reflect.DeepEqual(spans, expected) {
		t.Errorf("Spans mismatch:\n got %v\nwant %v", spans, expected)
	}
}

func TestTokenizerEmptyText(t *testing.T) {
	for _, mode := range []Mode{ModeWhitespace, ModeWord} {
		tokenizer := NewTokenizer(mode)
		if spans := tokenizer.Spans(" \n\t "); len(spans) != 0 {
			t.Errorf("%s: expected no spans, got %v", mode, spans)
		}
		if spans := tokenizer.Spans(""); len(spans) != 0 {
			t.Errorf("%s: expected no spans for empty text, got %v", mode, spans)
		}
	}
}

func TestTokenizerDefaultMode(t *testing.T) {
	if got := NewTokenizer("").Mode(); got != ModeWhitespace {
		t.Errorf("Expected default mode %q, got %q", ModeWhitespace, got)
	}
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeWhitespace, false},
		{"whitespace", ModeWhitespace, false},
		{"word", ModeWord, false},
		{"sentencepiece", "", true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if tt.wantErr {
			if !errors.Is(err, internalerr.ErrInvalidConfig) {
				t.Errorf("ParseMode(%q): expected ErrInvalidConfig, got %v", tt.in, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMode(%q): unexpected error %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
