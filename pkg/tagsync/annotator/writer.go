package annotator

import (
	"fmt"

	"github.com/cognicore/tagsync/pkg/tagsync/cas"
)

// Writer stores one token's tag and lemma.
//
// In update mode both features live on the source type and are set on the
// span itself. Otherwise each value goes on a new annotation of its feature's
// type over the same span; two annotations are created even when the tag and
// lemma types coincide.
type Writer struct {
	Update bool
	Tag    *cas.Feature
	Lemma  *cas.Feature
}

// Write applies tag and lemma for span and returns the number of annotations added.
func (w Writer) Write(doc Document, span *cas.Annotation, tag, lemma string) (int, error) {
	if w.Update {
		if err := span.SetStringValue(w.Tag, tag); err != nil {
			return 0, err
		}
		if err := span.SetStringValue(w.Lemma, lemma); err != nil {
			return 0, err
		}
		return 0, nil
	}

	if err := annotate(doc, w.Tag, span, tag); err != nil {
		return 0, err
	}
	if err := annotate(doc, w.Lemma, span, lemma); err != nil {
		return 1, err
	}
	return 2, nil
}

func annotate(doc Document, f *cas.Feature, span *cas.Annotation, value string) error {
	a, err := doc.CreateAnnotation(f.Domain(), span.Begin(), span.End())
	if err != nil {
		return fmt.Errorf("annotate %s: %w", f, err)
	}
	if err := a.SetStringValue(f, value); err != nil {
		return err
	}
	return doc.AddToIndex(a)
}
