package memstore

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/cognicore/tagsync/pkg/tagsync/internalerr"
	"github.com/cognicore/tagsync/pkg/tagsync/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu   sync.RWMutex
	docs map[string]store.Record
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{docs: make(map[string]store.Record)}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// SaveDocument replaces the record keyed by its ID.
func (s *Store) SaveDocument(ctx context.Context, r store.Record) error {
	if r.ID == "" {
		return internalerr.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[r.ID] = copyRecord(r)
	return nil
}

// LoadDocument returns a copy of the stored record.
func (s *Store) LoadDocument(ctx context.Context, id string) (store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.docs[id]
	if !ok {
		return store.Record{}, internalerr.ErrNotFound
	}
	return copyRecord(r), nil
}

// ListDocuments returns all documents, most recently saved first.
func (s *Store) ListDocuments(ctx context.Context) ([]store.DocInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.DocInfo, 0, len(s.docs))
	for _, r := range s.docs {
		out = append(out, r.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteDocument removes a document; deleting a missing one is not an error.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, id)
	return nil
}

func copyRecord(r store.Record) store.Record {
	anns := make([]store.AnnotationRecord, len(r.Annotations))
	for i, a := range r.Annotations {
		anns[i] = a
		anns[i].Features = maps.Clone(a.Features)
	}
	r.Annotations = anns
	return r
}
