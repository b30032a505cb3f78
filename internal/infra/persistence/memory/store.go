// Package memory provides an in-process DocumentStore used by tests and
// ephemeral deployments.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"geuebt/pkg/domain"
)

var _ domain.DocumentStore = (*Store)(nil)

// Store keeps documents in per-collection maps guarded by a single RWMutex.
type Store struct {
	mu   sync.RWMutex
	data map[domain.CollectionName]map[string]domain.Document
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{data: make(map[domain.CollectionName]map[string]domain.Document)}
}

func cloneDocument(doc domain.Document) domain.Document {
	out := doc
	out.Body = bytes.Clone(doc.Body)
	if doc.Number != nil {
		n := *doc.Number
		out.Number = &n
	}
	return out
}

func (s *Store) bucket(c domain.CollectionName) map[string]domain.Document {
	b, ok := s.data[c]
	if !ok {
		b = make(map[string]domain.Document)
		s.data[c] = b
	}
	return b
}

// Insert stores doc unless its key is taken.
func (s *Store) Insert(_ context.Context, c domain.CollectionName, doc domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bucket(c)
	if _, exists := b[doc.Key]; exists {
		return domain.ErrConflict{Collection: c, Key: doc.Key}
	}
	b[doc.Key] = cloneDocument(doc)
	return nil
}

// Get returns a copy of the stored document.
func (s *Store) Get(_ context.Context, c domain.CollectionName, key string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.data[c][key]
	if !ok {
		return domain.Document{}, domain.ErrNotFound{Collection: c, Key: key}
	}
	return cloneDocument(doc), nil
}

// Update applies mutate to a copy and stores it when mutate succeeds.
func (s *Store) Update(_ context.Context, c domain.CollectionName, key string, mutate domain.Mutator) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.data[c][key]
	if !ok {
		return domain.Document{}, domain.ErrNotFound{Collection: c, Key: key}
	}
	next := cloneDocument(current)
	if err := mutate(&next); err != nil {
		return domain.Document{}, err
	}
	next.Key = key
	s.data[c][key] = next
	return cloneDocument(next), nil
}

// Upsert inserts doc or mutates the stored document under the same lock.
func (s *Store) Upsert(_ context.Context, c domain.CollectionName, doc domain.Document, mutate domain.Mutator) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.bucket(c)
	current, ok := b[doc.Key]
	if !ok {
		b[doc.Key] = cloneDocument(doc)
		return true, nil
	}
	next := cloneDocument(current)
	if err := mutate(&next); err != nil {
		return false, err
	}
	next.Key = doc.Key
	b[doc.Key] = next
	return false, nil
}

// Find returns matching documents ordered by key.
func (s *Store) Find(_ context.Context, c domain.CollectionName, q domain.Query) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Document, 0, len(s.data[c]))
	for _, doc := range s.data[c] {
		if q.Matches(doc) {
			out = append(out, cloneDocument(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
