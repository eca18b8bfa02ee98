package ingest

import (
	"fmt"

	"github.com/cognicore/tagsync/pkg/tagsync/cas"
)

// Pipeline builds documents ready for tagging:
// source text → document → token annotations
type Pipeline struct {
	tokenizer *Tokenizer
	tokenType *cas.Type
}

// NewPipeline creates a pipeline that indexes one annotation of tokenType per token.
func NewPipeline(tokenizer *Tokenizer, tokenType *cas.Type) *Pipeline {
	return &Pipeline{tokenizer: tokenizer, tokenType: tokenType}
}

// Process creates a document for src with its tokens indexed.
func (p *Pipeline) Process(src Source) (*cas.Document, error) {
	doc := cas.NewDocument(p.tokenType.TypeSystem(), src.Text)
	doc.SetName(src.Name)
	if _, err := p.Annotate(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Annotate indexes token annotations over doc's text and returns how many were added.
func (p *Pipeline) Annotate(doc *cas.Document) (int, error) {
	spans := p.tokenizer.Spans(doc.Text())
	for _, s := range spans {
		a, err := doc.CreateAnnotation(p.tokenType, s.Begin, s.End)
		if err != nil {
			return 0, fmt.Errorf("token %s: %w", s, err)
		}
		if err := doc.AddToIndex(a); err != nil {
			return 0, err
		}
	}
	return len(spans), nil
}
