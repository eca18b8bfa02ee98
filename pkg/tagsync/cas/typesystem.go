// Package cas holds documents and the typed span annotations layered over them.
package cas

import (
	"fmt"

	"github.com/cognicore/tagsync/pkg/tagsync/internalerr"
)

// TypeSystem is the schema shared by a set of documents: a list of annotation
// types, each carrying named string-valued features.
type TypeSystem struct {
	types  []*Type
	byName map[string]*Type
}

// Type is an annotation type within a TypeSystem.
type Type struct {
	ts       *TypeSystem
	id       int
	name     string
	features []*Feature
	byName   map[string]*Feature
}

// Feature is a named string slot on annotations of its domain type.
type Feature struct {
	domain *Type
	index  int
	name   string
}

// NewTypeSystem creates an empty type system.
func NewTypeSystem() *TypeSystem {
	return &TypeSystem{byName: make(map[string]*Type)}
}

// AddType declares a new type with the given feature names.
func (ts *TypeSystem) AddType(name string, features ...string) (*Type, error) {
	if name == "" {
		return nil, fmt.Errorf("type name: %w", internalerr.ErrInvalidInput)
	}
	if _, exists := ts.byName[name]; exists {
		return nil, fmt.Errorf("type %q already declared: %w", name, internalerr.ErrInvalidInput)
	}

	t := &Type{
		ts:     ts,
		id:     len(ts.types),
		name:   name,
		byName: make(map[string]*Feature, len(features)),
	}
	for _, fname := range features {
		if fname == "" {
			return nil, fmt.Errorf("type %q: empty feature name: %w", name, internalerr.ErrInvalidInput)
		}
		if _, dup := t.byName[fname]; dup {
			return nil, fmt.Errorf("type %q: duplicate feature %q: %w", name, fname, internalerr.ErrInvalidInput)
		}
		f := &Feature{domain: t, index: len(t.features), name: fname}
		t.features = append(t.features, f)
		t.byName[fname] = f
	}

	ts.types = append(ts.types, t)
	ts.byName[name] = t
	return t, nil
}

// Type resolves a type by name, failing with a SchemaError when absent.
func (ts *TypeSystem) Type(name string) (*Type, error) {
	if t, ok := ts.byName[name]; ok {
		return t, nil
	}
	return nil, &internalerr.SchemaError{Kind: "type", Name: name}
}

// Types returns all declared types in declaration order.
func (ts *TypeSystem) Types() []*Type {
	out := make([]*Type, len(ts.types))
	copy(out, ts.types)
	return out
}

// Name returns the fully qualified type name.
func (t *Type) Name() string { return t.name }

// ID returns the type's position in its type system.
func (t *Type) ID() int { return t.id }

// TypeSystem returns the owning type system.
func (t *Type) TypeSystem() *TypeSystem { return t.ts }

// Feature resolves a feature by base name.
func (t *Type) Feature(name string) (*Feature, error) {
	if f, ok := t.byName[name]; ok {
		return f, nil
	}
	return nil, &internalerr.FeatureNotFoundError{Type: t.name, Feature: name}
}

// Features returns the type's features in declaration order.
func (t *Type) Features() []*Feature {
	out := make([]*Feature, len(t.features))
	copy(out, t.features)
	return out
}

func (t *Type) String() string { return t.name }

// Name returns the feature's base name.
func (f *Feature) Name() string { return f.name }

// Domain returns the type the feature is declared on.
func (f *Feature) Domain() *Type { return f.domain }

func (f *Feature) String() string { return f.domain.name + ":" + f.name }
