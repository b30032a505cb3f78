package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"geuebt/pkg/domain"
)

// Collection is a typed keyed view over one DocumentStore collection.
// key extracts the natural key; index lifts the organism and number used by
// list queries and may be nil.
type Collection[T any] struct {
	name  domain.CollectionName
	store domain.DocumentStore
	key   func(T) string
	index func(T) (domain.Organism, *int)
}

// NewCollection binds a record type to a collection.
func NewCollection[T any](store domain.DocumentStore, name domain.CollectionName, key func(T) string, index func(T) (domain.Organism, *int)) Collection[T] {
	return Collection[T]{name: name, store: store, key: key, index: index}
}

// Name returns the collection name.
func (c Collection[T]) Name() domain.CollectionName { return c.name }

func (c Collection[T]) encode(v T) (domain.Document, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return domain.Document{}, fmt.Errorf("encode %s: %w", c.name, err)
	}
	doc := domain.Document{Key: c.key(v), Body: body}
	if c.index != nil {
		doc.Organism, doc.Number = c.index(v)
	}
	return doc, nil
}

func (c Collection[T]) decode(doc domain.Document) (T, error) {
	var v T
	if err := json.Unmarshal(doc.Body, &v); err != nil {
		return v, fmt.Errorf("decode %s %q: %w", c.name, doc.Key, err)
	}
	return v, nil
}

// keyed fills in the natural key field on conflicts raised by the backend.
func (c Collection[T]) keyed(err error) error {
	var conflict domain.ErrConflict
	if errors.As(err, &conflict) {
		conflict.Collection = c.name
		conflict.KeyField = domain.KeyField(c.name)
		return conflict
	}
	return err
}

// Insert stores v, failing with ErrConflict when its key exists.
func (c Collection[T]) Insert(ctx context.Context, v T) error {
	doc, err := c.encode(v)
	if err != nil {
		return err
	}
	return c.keyed(c.store.Insert(ctx, c.name, doc))
}

// Get loads the record stored under key.
func (c Collection[T]) Get(ctx context.Context, key string) (T, error) {
	doc, err := c.store.Get(ctx, c.name, key)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.decode(doc)
}

// Exists reports whether key is stored.
func (c Collection[T]) Exists(ctx context.Context, key string) (bool, error) {
	_, err := c.store.Get(ctx, c.name, key)
	var nf domain.ErrNotFound
	switch {
	case err == nil:
		return true, nil
	case errors.As(err, &nf):
		return false, nil
	default:
		return false, err
	}
}

// mutator decodes the stored record, applies fn and re-encodes it with
// refreshed index fields.
func (c Collection[T]) mutator(fn func(*T) error, out *T) domain.Mutator {
	return func(doc *domain.Document) error {
		v, err := c.decode(*doc)
		if err != nil {
			return err
		}
		if err := fn(&v); err != nil {
			return err
		}
		next, err := c.encode(v)
		if err != nil {
			return err
		}
		next.Key = doc.Key
		*doc = next
		if out != nil {
			*out = v
		}
		return nil
	}
}

// Update applies fn to the stored record.
func (c Collection[T]) Update(ctx context.Context, key string, fn func(*T) error) (T, error) {
	var out T
	if _, err := c.store.Update(ctx, c.name, key, c.mutator(fn, &out)); err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// Upsert inserts v or applies merge to the stored record. It reports whether
// v was inserted.
func (c Collection[T]) Upsert(ctx context.Context, v T, merge func(stored *T) error) (bool, error) {
	doc, err := c.encode(v)
	if err != nil {
		return false, err
	}
	inserted, err := c.store.Upsert(ctx, c.name, doc, c.mutator(merge, nil))
	return inserted, c.keyed(err)
}

// Find returns the records matching q ordered by key.
func (c Collection[T]) Find(ctx context.Context, q domain.Query) ([]T, error) {
	docs, err := c.store.Find(ctx, c.name, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := c.decode(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Keys returns the keys of the records matching q without decoding bodies.
func (c Collection[T]) Keys(ctx context.Context, q domain.Query) ([]string, error) {
	docs, err := c.store.Find(ctx, c.name, q)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Key)
	}
	return out, nil
}
