// Package storetest holds the behavioural contract every domain.DocumentStore
// backend must satisfy.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"geuebt/pkg/domain"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) domain.DocumentStore

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func body(t *testing.T, name string, count int) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(payload{Name: name, Count: count})
	require.NoError(t, err)
	return raw
}

func decode(t *testing.T, doc domain.Document) payload {
	t.Helper()
	var p payload
	require.NoError(t, json.Unmarshal(doc.Body, &p))
	return p
}

// Run executes the contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertGetConflict", func(t *testing.T) { testInsertGetConflict(t, newStore(t)) })
	t.Run("GetNotFound", func(t *testing.T) { testGetNotFound(t, newStore(t)) })
	t.Run("Update", func(t *testing.T) { testUpdate(t, newStore(t)) })
	t.Run("Upsert", func(t *testing.T) { testUpsert(t, newStore(t)) })
	t.Run("FindPredicates", func(t *testing.T) { testFind(t, newStore(t)) })
	t.Run("CollectionsAreIsolated", func(t *testing.T) { testIsolation(t, newStore(t)) })
	t.Run("ConcurrentInsertSingleWinner", func(t *testing.T) { testConcurrentInsert(t, newStore(t)) })
}

func testInsertGetConflict(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	doc := domain.Document{Key: "iso-1", Organism: domain.OrganismListeria, Body: body(t, "first", 1)}
	require.NoError(t, s.Insert(ctx, domain.CollectionIsolates, doc))

	got, err := s.Get(ctx, domain.CollectionIsolates, "iso-1")
	require.NoError(t, err)
	assert.Equal(t, "iso-1", got.Key)
	assert.Equal(t, domain.OrganismListeria, got.Organism)
	assert.Nil(t, got.Number)
	assert.Equal(t, payload{Name: "first", Count: 1}, decode(t, got))

	err = s.Insert(ctx, domain.CollectionIsolates, domain.Document{Key: "iso-1", Body: body(t, "second", 2)})
	var conflict domain.ErrConflict
	require.True(t, errors.As(err, &conflict), "expected ErrConflict, got %v", err)
	assert.Equal(t, "iso-1", conflict.Key)

	got, err = s.Get(ctx, domain.CollectionIsolates, "iso-1")
	require.NoError(t, err)
	assert.Equal(t, "first", decode(t, got).Name, "conflicting insert must not overwrite")
}

func testGetNotFound(t *testing.T, s domain.DocumentStore) {
	_, err := s.Get(context.Background(), domain.CollectionRuns, "missing")
	var nf domain.ErrNotFound
	require.True(t, errors.As(err, &nf), "expected ErrNotFound, got %v", err)
	assert.Equal(t, domain.CollectionRuns, nf.Collection)
}

func testUpdate(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	_, err := s.Update(ctx, domain.CollectionIsolates, "missing", func(*domain.Document) error { return nil })
	var nf domain.ErrNotFound
	require.True(t, errors.As(err, &nf), "expected ErrNotFound, got %v", err)

	require.NoError(t, s.Insert(ctx, domain.CollectionIsolates, domain.Document{Key: "iso-1", Organism: domain.OrganismSalmonella, Body: body(t, "v1", 1)}))
	updated, err := s.Update(ctx, domain.CollectionIsolates, "iso-1", func(doc *domain.Document) error {
		p := decode(t, *doc)
		p.Count++
		doc.Body = body(t, "v2", p.Count)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, payload{Name: "v2", Count: 2}, decode(t, updated))

	boom := fmt.Errorf("boom")
	_, err = s.Update(ctx, domain.CollectionIsolates, "iso-1", func(doc *domain.Document) error {
		doc.Body = body(t, "discarded", 99)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Get(ctx, domain.CollectionIsolates, "iso-1")
	require.NoError(t, err)
	assert.Equal(t, payload{Name: "v2", Count: 2}, decode(t, got), "failed mutation must not persist")
	assert.Equal(t, domain.OrganismSalmonella, got.Organism)
}

func testUpsert(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	doc := domain.Document{Key: "c-1", Organism: domain.OrganismEscherichia, Number: domain.IntPtr(4), Body: body(t, "fresh", 1)}
	inserted, err := s.Upsert(ctx, domain.CollectionClusters, doc, func(*domain.Document) error {
		t.Fatalf("mutate must not run on insert")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Upsert(ctx, domain.CollectionClusters, domain.Document{Key: "c-1", Body: body(t, "ignored", 0)}, func(stored *domain.Document) error {
		p := decode(t, *stored)
		stored.Body = body(t, p.Name, p.Count+10)
		return nil
	})
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := s.Get(ctx, domain.CollectionClusters, "c-1")
	require.NoError(t, err)
	assert.Equal(t, payload{Name: "fresh", Count: 11}, decode(t, got))
	require.NotNil(t, got.Number)
	assert.Equal(t, 4, *got.Number)
}

func testFind(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	seed := []domain.Document{
		{Key: "d", Organism: domain.OrganismListeria, Number: domain.IntPtr(2)},
		{Key: "a", Organism: domain.OrganismListeria, Number: domain.IntPtr(0)},
		{Key: "c", Organism: domain.OrganismSalmonella, Number: domain.IntPtr(1)},
		{Key: "b", Organism: domain.OrganismListeria, Number: domain.IntPtr(5)},
	}
	for _, doc := range seed {
		doc.Body = body(t, doc.Key, 0)
		require.NoError(t, s.Insert(ctx, domain.CollectionClusters, doc))
	}
	keys := func(q domain.Query) []string {
		docs, err := s.Find(ctx, domain.CollectionClusters, q)
		require.NoError(t, err)
		out := make([]string, 0, len(docs))
		for _, d := range docs {
			out = append(out, d.Key)
		}
		return out
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, keys(domain.Query{}))
	assert.Equal(t, []string{"a", "b", "d"}, keys(domain.Query{Organism: domain.OrganismListeria}))
	assert.Equal(t, []string{"b", "c", "d"}, keys(domain.Query{MinNumber: domain.IntPtr(1)}))
	assert.Equal(t, []string{"b", "d"}, keys(domain.Query{Organism: domain.OrganismListeria, MinNumber: domain.IntPtr(1)}))
	assert.Equal(t, []string{"a"}, keys(domain.Query{Organism: domain.OrganismListeria, Number: domain.IntPtr(0)}))
	assert.Empty(t, keys(domain.Query{Organism: "Bacillus cereus"}))

	empty, err := s.Find(ctx, domain.CollectionRuns, domain.Query{})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testIsolation(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, domain.CollectionIsolates, domain.Document{Key: "same", Body: body(t, "isolate", 0)}))
	require.NoError(t, s.Insert(ctx, domain.CollectionSequences, domain.Document{Key: "same", Body: body(t, "sequence", 0)}))
	got, err := s.Get(ctx, domain.CollectionSequences, "same")
	require.NoError(t, err)
	assert.Equal(t, "sequence", decode(t, got).Name)
}

func testConcurrentInsert(t *testing.T, s domain.DocumentStore) {
	ctx := context.Background()
	const writers = 8
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.Insert(ctx, domain.CollectionRuns, domain.Document{Key: "run-1", Body: body(t, fmt.Sprint(i), i)})
			var conflict domain.ErrConflict
			switch {
			case err == nil:
				wins.Add(1)
			case errors.As(err, &conflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected insert error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(writers-1), conflicts.Load())
}
