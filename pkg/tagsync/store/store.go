package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cognicore/tagsync/pkg/tagsync/cas"
)

// Store is the main interface for persisting tagged documents
type Store interface {
	Close() error

	// SaveDocument inserts or replaces the document and all its indexed annotations.
	SaveDocument(ctx context.Context, r Record) error
	// LoadDocument returns the stored record, or internalerr.ErrNotFound.
	LoadDocument(ctx context.Context, id string) (Record, error)
	// ListDocuments returns a summary of every stored document, newest first.
	ListDocuments(ctx context.Context) ([]DocInfo, error)
	DeleteDocument(ctx context.Context, id string) error
}

// Record is the persisted form of a document
type Record struct {
	ID          string
	Name        string
	Text        string
	UpdatedAt   time.Time
	Annotations []AnnotationRecord // index order
}

// AnnotationRecord is one persisted annotation with its set feature values
type AnnotationRecord struct {
	ID       string
	Type     string
	Begin    int
	End      int
	Features map[string]string
}

// DocInfo summarizes a stored document
type DocInfo struct {
	ID          string
	Name        string
	Length      int
	Annotations int
	UpdatedAt   time.Time
}

// Snapshot captures doc's text and indexed annotations.
func Snapshot(doc *cas.Document) Record {
	anns := doc.Annotations()
	r := Record{
		ID:          doc.ID(),
		Name:        doc.Name(),
		Text:        doc.Text(),
		UpdatedAt:   time.Now().UTC(),
		Annotations: make([]AnnotationRecord, 0, len(anns)),
	}
	for _, a := range anns {
		ar := AnnotationRecord{
			ID:    a.ID(),
			Type:  a.Type().Name(),
			Begin: a.Begin(),
			End:   a.End(),
		}
		for _, f := range a.Type().Features() {
			if v, ok := a.StringValue(f); ok {
				if ar.Features == nil {
					ar.Features = make(map[string]string)
				}
				ar.Features[f.Name()] = v
			}
		}
		r.Annotations = append(r.Annotations, ar)
	}
	return r
}

// Restore rebuilds a document from r against ts. Every stored type and
// feature must exist in ts.
func Restore(r Record, ts *cas.TypeSystem) (*cas.Document, error) {
	doc := cas.NewDocumentWithID(r.ID, ts, r.Text)
	doc.SetName(r.Name)

	for _, ar := range r.Annotations {
		typ, err := ts.Type(ar.Type)
		if err != nil {
			return nil, err
		}
		a, err := doc.CreateAnnotationWithID(ar.ID, typ, ar.Begin, ar.End)
		if err != nil {
			return nil, fmt.Errorf("restore annotation %s: %w", ar.ID, err)
		}
		for _, name := range sortedKeys(ar.Features) {
			f, err := typ.Feature(name)
			if err != nil {
				return nil, err
			}
			if err := a.SetStringValue(f, ar.Features[name]); err != nil {
				return nil, err
			}
		}
		if err := doc.AddToIndex(a); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// Info summarizes r.
func (r Record) Info() DocInfo {
	return DocInfo{
		ID:          r.ID,
		Name:        r.Name,
		Length:      len([]rune(r.Text)),
		Annotations: len(r.Annotations),
		UpdatedAt:   r.UpdatedAt,
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
