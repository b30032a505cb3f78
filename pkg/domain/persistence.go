package domain

import (
	"context"
	"encoding/json"
)

// Document is a stored record envelope. Organism and Number are lifted out of
// the body so backends can answer list queries without decoding it.
type Document struct {
	Key      string
	Organism Organism
	Number   *int
	Body     json.RawMessage
}

// Query filters documents by equality on the lifted index fields. Zero
// values match everything.
type Query struct {
	Organism  Organism
	Number    *int
	MinNumber *int
}

// Matches reports whether doc satisfies q.
func (q Query) Matches(doc Document) bool {
	if q.Organism != "" && doc.Organism != q.Organism {
		return false
	}
	if q.Number != nil && (doc.Number == nil || *doc.Number != *q.Number) {
		return false
	}
	if q.MinNumber != nil && (doc.Number == nil || *doc.Number < *q.MinNumber) {
		return false
	}
	return true
}

// Mutator edits a stored document body in place. Returning an error aborts
// the write.
type Mutator func(doc *Document) error

// DocumentStore is the raw keyed store shared by every registry collection.
// Writes to a single document are atomic; there is no cross-document
// transaction.
type DocumentStore interface {
	// Insert stores doc and fails with ErrConflict when the key exists.
	Insert(ctx context.Context, collection CollectionName, doc Document) error
	// Get returns the document or ErrNotFound.
	Get(ctx context.Context, collection CollectionName, key string) (Document, error)
	// Update applies mutate to an existing document and persists the result.
	Update(ctx context.Context, collection CollectionName, key string, mutate Mutator) (Document, error)
	// Upsert inserts doc when its key is absent, otherwise applies mutate to
	// the stored document. It reports whether an insert happened.
	Upsert(ctx context.Context, collection CollectionName, doc Document, mutate Mutator) (bool, error)
	// Find returns every matching document ordered by key.
	Find(ctx context.Context, collection CollectionName, q Query) ([]Document, error)
	Close() error
}

// IntPtr is a convenience for building queries and documents.
func IntPtr(v int) *int { return &v }
