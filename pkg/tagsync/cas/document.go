package cas

import (
	"fmt"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/tagsync/pkg/tagsync/internalerr"
)

// Document is a text plus its annotation index. Offsets are rune offsets into
// the text, end exclusive.
//
// All methods are safe for concurrent use; readers of covered text and feature
// values never observe a half-applied mutation.
type Document struct {
	mu    sync.RWMutex
	id    string
	name  string
	text  string
	runes []rune
	ts    *TypeSystem
	index []*Annotation
	seq   int64
}

// Annotation is a typed span over a document carrying string feature values.
type Annotation struct {
	doc     *Document
	id      string
	typ     *Type
	begin   int
	end     int
	values  []*string
	indexed bool
	seq     int64
}

// NewDocument creates a document with a fresh ULID identifier.
func NewDocument(ts *TypeSystem, text string) *Document {
	return NewDocumentWithID(ulid.Make().String(), ts, text)
}

// NewDocumentWithID creates a document with a caller-chosen identifier,
// used when restoring persisted documents.
func NewDocumentWithID(id string, ts *TypeSystem, text string) *Document {
	return &Document{
		id:    id,
		text:  text,
		runes: []rune(text),
		ts:    ts,
	}
}

// ID returns the document identifier.
func (d *Document) ID() string { return d.id }

// Name returns the optional document name (usually its source path).
func (d *Document) Name() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.name
}

// SetName sets the document name.
func (d *Document) SetName(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.name = name
}

// Text returns the document text.
func (d *Document) Text() string { return d.text }

// Len returns the text length in runes.
func (d *Document) Len() int { return len(d.runes) }

// TypeSystem returns the schema the document's annotations are drawn from.
func (d *Document) TypeSystem() *TypeSystem { return d.ts }

// CreateAnnotation allocates an annotation of type t over [begin, end).
// The annotation is not visible through Select until AddToIndex is called.
func (d *Document) CreateAnnotation(t *Type, begin, end int) (*Annotation, error) {
	return d.CreateAnnotationWithID(ulid.Make().String(), t, begin, end)
}

// CreateAnnotationWithID is CreateAnnotation with a caller-chosen identifier.
func (d *Document) CreateAnnotationWithID(id string, t *Type, begin, end int) (*Annotation, error) {
	if t == nil || t.ts != d.ts {
		name := "<nil>"
		if t != nil {
			name = t.name
		}
		return nil, &internalerr.SchemaError{Kind: "type", Name: name}
	}
	if begin < 0 || end < begin || end > len(d.runes) {
		return nil, fmt.Errorf("span [%d,%d) outside document of length %d: %w",
			begin, end, len(d.runes), internalerr.ErrInvalidInput)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.seq++
	return &Annotation{
		doc:    d,
		id:     id,
		typ:    t,
		begin:  begin,
		end:    end,
		values: make([]*string, len(t.features)),
		seq:    d.seq,
	}, nil
}

// AddToIndex inserts a into the annotation index. Adding an already indexed
// annotation is a no-op.
func (d *Document) AddToIndex(a *Annotation) error {
	if a == nil || a.doc != d {
		return fmt.Errorf("annotation does not belong to document %s: %w", d.id, internalerr.ErrInvalidInput)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if a.indexed {
		return nil
	}

	// first position that sorts strictly after a keeps insertion order stable
	pos := sort.Search(len(d.index), func(i int) bool {
		return before(a, d.index[i])
	})
	d.index = append(d.index, nil)
	copy(d.index[pos+1:], d.index[pos:])
	d.index[pos] = a
	a.indexed = true
	return nil
}

// before orders annotations by begin ascending, end descending, then creation.
func before(a, b *Annotation) bool {
	if a.begin != b.begin {
		return a.begin < b.begin
	}
	if a.end != b.end {
		return a.end > b.end
	}
	return a.seq < b.seq
}

// Select returns the indexed annotations of type t in index order.
func (d *Document) Select(t *Type) []*Annotation {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []*Annotation
	for _, a := range d.index {
		if a.typ == t {
			out = append(out, a)
		}
	}
	return out
}

// Annotations returns every indexed annotation in index order.
func (d *Document) Annotations() []*Annotation {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*Annotation, len(d.index))
	copy(out, d.index)
	return out
}

// Size returns the number of indexed annotations.
func (d *Document) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.index)
}

// CoveredText returns the text under a's span.
func (d *Document) CoveredText(a *Annotation) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return string(d.runes[a.begin:a.end])
}

// ID returns the annotation identifier.
func (a *Annotation) ID() string { return a.id }

// Type returns the annotation's type.
func (a *Annotation) Type() *Type { return a.typ }

// Begin returns the start offset.
func (a *Annotation) Begin() int { return a.begin }

// End returns the exclusive end offset.
func (a *Annotation) End() int { return a.end }

// Document returns the owning document.
func (a *Annotation) Document() *Document { return a.doc }

// CoveredText returns the text under the span.
func (a *Annotation) CoveredText() string { return a.doc.CoveredText(a) }

// StringValue returns the value of f and whether it has been set.
func (a *Annotation) StringValue(f *Feature) (string, bool) {
	if f == nil || f.domain != a.typ {
		return "", false
	}
	a.doc.mu.RLock()
	defer a.doc.mu.RUnlock()
	if v := a.values[f.index]; v != nil {
		return *v, true
	}
	return "", false
}

// SetStringValue sets f to value. f must be declared on the annotation's type.
func (a *Annotation) SetStringValue(f *Feature, value string) error {
	if f == nil {
		return &internalerr.FeatureNotFoundError{Type: a.typ.name, Feature: "<nil>"}
	}
	if f.domain != a.typ {
		return &internalerr.FeatureNotFoundError{Type: a.typ.name, Feature: f.name}
	}
	a.doc.mu.Lock()
	defer a.doc.mu.Unlock()
	a.values[f.index] = &value
	return nil
}
