package annotator

import (
	"github.com/cognicore/tagsync/pkg/tagsync/cas"
)

// Document is the annotation store a run reads tokens from and writes results to.
// Implementations must be safe for the reads and writes of a single run
// interleaving with readers outside the run; *cas.Document is.
type Document interface {
	ID() string
	TypeSystem() *cas.TypeSystem
	Select(t *cas.Type) []*cas.Annotation
	CreateAnnotation(t *cas.Type, begin, end int) (*cas.Annotation, error)
	AddToIndex(a *cas.Annotation) error
	CoveredText(a *cas.Annotation) string
}

// Extract returns the annotations of type t in document order.
func Extract(doc Document, t *cas.Type) []*cas.Annotation {
	return doc.Select(t)
}
