package annotator

import (
	"strings"

	"github.com/cognicore/tagsync/pkg/tagsync/cas"
	"github.com/cognicore/tagsync/pkg/tagsync/internalerr"
)

// FeatureAddress names a feature either on the source type ("lemma") or on an
// explicit type ("my.Lemma:value").
type FeatureAddress struct {
	Type    string // empty means the source type
	Feature string
}

// ParseFeatureAddress parses "feature" or "type:feature".
func ParseFeatureAddress(field, s string) (FeatureAddress, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return FeatureAddress{}, internalerr.Configf(field, "feature address is required")
	}
	parts := strings.Split(s, ":")
	switch len(parts) {
	case 1:
		return FeatureAddress{Feature: parts[0]}, nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return FeatureAddress{}, internalerr.Configf(field, "malformed feature address %q", s)
		}
		return FeatureAddress{Type: parts[0], Feature: parts[1]}, nil
	default:
		return FeatureAddress{}, internalerr.Configf(field, "malformed feature address %q", s)
	}
}

// Compound reports whether the address names its own type.
func (a FeatureAddress) Compound() bool { return a.Type != "" }

func (a FeatureAddress) String() string {
	if a.Type == "" {
		return a.Feature
	}
	return a.Type + ":" + a.Feature
}

// resolve looks the address up in ts, using source when no type is named.
func (a FeatureAddress) resolve(ts *cas.TypeSystem, source *cas.Type) (*cas.Feature, error) {
	t := source
	if a.Type != "" {
		var err error
		if t, err = ts.Type(a.Type); err != nil {
			return nil, err
		}
	}
	return t.Feature(a.Feature)
}
