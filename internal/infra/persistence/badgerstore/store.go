// Package badgerstore provides an embedded key/value document store on badger v2.
// Keys are "<collection>/<key>" and values are JSON envelopes.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v2"

	"geuebt/pkg/domain"
)

var _ domain.DocumentStore = (*Store)(nil)

// maxRetries bounds optimistic transaction retries on write conflicts.
const maxRetries = 16

type envelope struct {
	Organism domain.Organism `json:"organism,omitempty"`
	Number   *int            `json:"number,omitempty"`
	Body     json.RawMessage `json:"body"`
}

// Store wraps a badger database.
type Store struct {
	db *badger.DB
}

// Open opens or creates a store under dir.
func Open(dir string) (*Store, error) {
	options := badger.DefaultOptions(dir)
	options.Logger = nil
	return open(options)
}

// OpenInMemory opens a store that never touches disk.
func OpenInMemory() (*Store, error) {
	options := badger.DefaultOptions("").WithInMemory(true)
	options.Logger = nil
	return open(options)
}

func open(options badger.Options) (*Store, error) {
	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Store{db: db}, nil
}

func itemKey(c domain.CollectionName, key string) []byte {
	return []byte(string(c) + "/" + key)
}

func encode(doc domain.Document) ([]byte, error) {
	return json.Marshal(envelope{Organism: doc.Organism, Number: doc.Number, Body: doc.Body})
}

func decode(key string, raw []byte) (domain.Document, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.Document{}, fmt.Errorf("decode %s: %w", key, err)
	}
	return domain.Document{Key: key, Organism: env.Organism, Number: env.Number, Body: env.Body}, nil
}

func read(txn *badger.Txn, c domain.CollectionName, key string) (domain.Document, error) {
	item, err := txn.Get(itemKey(c, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Document{}, domain.ErrNotFound{Collection: c, Key: key}
	}
	if err != nil {
		return domain.Document{}, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return domain.Document{}, err
	}
	return decode(key, raw)
}

func put(txn *badger.Txn, c domain.CollectionName, doc domain.Document) error {
	raw, err := encode(doc)
	if err != nil {
		return err
	}
	return txn.Set(itemKey(c, doc.Key), raw)
}

// retry reruns fn while badger reports a transaction conflict.
func (s *Store) retry(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxRetries; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// Insert stores doc. A concurrent writer on the same key counts as a conflict.
func (s *Store) Insert(ctx context.Context, c domain.CollectionName, doc domain.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(itemKey(c, doc.Key))
		switch {
		case err == nil:
			return domain.ErrConflict{Collection: c, Key: doc.Key}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return put(txn, c, doc)
	})
	if errors.Is(err, badger.ErrConflict) {
		return domain.ErrConflict{Collection: c, Key: doc.Key}
	}
	return err
}

// Get loads one document.
func (s *Store) Get(ctx context.Context, c domain.CollectionName, key string) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	var doc domain.Document
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		doc, err = read(txn, c, key)
		return err
	})
	return doc, err
}

// Update mutates an existing document, retrying on write conflicts.
func (s *Store) Update(ctx context.Context, c domain.CollectionName, key string, mutate domain.Mutator) (domain.Document, error) {
	var out domain.Document
	err := s.retry(ctx, func(txn *badger.Txn) error {
		doc, err := read(txn, c, key)
		if err != nil {
			return err
		}
		if err := mutate(&doc); err != nil {
			return err
		}
		doc.Key = key
		out = doc
		return put(txn, c, doc)
	})
	return out, err
}

// Upsert inserts doc or mutates the stored copy, retrying on write conflicts.
func (s *Store) Upsert(ctx context.Context, c domain.CollectionName, doc domain.Document, mutate domain.Mutator) (bool, error) {
	var inserted bool
	err := s.retry(ctx, func(txn *badger.Txn) error {
		current, err := read(txn, c, doc.Key)
		var nf domain.ErrNotFound
		if errors.As(err, &nf) {
			inserted = true
			return put(txn, c, doc)
		}
		if err != nil {
			return err
		}
		inserted = false
		if err := mutate(&current); err != nil {
			return err
		}
		current.Key = doc.Key
		return put(txn, c, current)
	})
	if err != nil {
		return false, err
	}
	return inserted, nil
}

// Find scans the collection prefix. Badger iterates in key order.
func (s *Store) Find(ctx context.Context, c domain.CollectionName, q domain.Query) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := []byte(string(c) + "/")
	var out []domain.Document
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			doc, err := decode(string(item.Key()[len(prefix):]), raw)
			if err != nil {
				return err
			}
			if q.Matches(doc) {
				out = append(out, doc)
			}
		}
		return nil
	})
	return out, err
}

// Close flushes and closes the database.
func (s *Store) Close() error { return s.db.Close() }
