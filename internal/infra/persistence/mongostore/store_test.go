package mongostore

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"geuebt/internal/infra/persistence/storetest"
	"geuebt/pkg/domain"
)

func TestEnvelopeRoundTripPreservesBody(t *testing.T) {
	in := domain.Document{
		Key:      "c-1",
		Organism: domain.OrganismListeria,
		Number:   domain.IntPtr(7),
		Body:     []byte(`{"cluster_id":"c-1","size":3,"root_members":["a","b"],"distance_matrix":{"a":{"b":0.5}},"tree":"(a,b);"}`),
	}
	env, err := toEnvelope(in)
	require.NoError(t, err)
	assert.Equal(t, "c-1", env.Key)
	assert.Equal(t, "Listeria monocytogenes", env.Organism)

	out, err := fromEnvelope(env)
	require.NoError(t, err)
	assert.Equal(t, in.Key, out.Key)
	assert.Equal(t, in.Organism, out.Organism)
	require.NotNil(t, out.Number)
	assert.Equal(t, 7, *out.Number)
	assert.JSONEq(t, string(in.Body), string(out.Body))
}

func TestEnvelopeEmptyBody(t *testing.T) {
	env, err := toEnvelope(domain.Document{Key: "k"})
	require.NoError(t, err)
	out, err := fromEnvelope(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(out.Body))
}

func TestEnvelopeRejectsInvalidJSON(t *testing.T) {
	_, err := toEnvelope(domain.Document{Key: "k", Body: []byte(`{not json`)})
	require.Error(t, err)
}

func TestBuildFilter(t *testing.T) {
	assert.Equal(t, bson.D{}, buildFilter(domain.Query{}))
	assert.Equal(t,
		bson.D{{Key: "organism", Value: "Salmonella enterica"}, {Key: "number", Value: bson.D{{Key: "$eq", Value: 0}}}},
		buildFilter(domain.Query{Organism: domain.OrganismSalmonella, Number: domain.IntPtr(0)}))
	assert.Equal(t,
		bson.D{{Key: "number", Value: bson.D{{Key: "$gte", Value: 1}}}},
		buildFilter(domain.Query{MinNumber: domain.IntPtr(1)}))
}

// TestStoreContract runs against a live server when GEUEBT_TEST_MONGO_URI is set.
func TestStoreContract(t *testing.T) {
	uri := os.Getenv("GEUEBT_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("GEUEBT_TEST_MONGO_URI not set")
	}
	storetest.Run(t, func(t *testing.T) domain.DocumentStore {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		dbName := "geuebt_test_" + strconv.FormatInt(time.Now().UnixNano(), 10)
		s, err := Open(ctx, uri, dbName)
		require.NoError(t, err)
		t.Cleanup(func() {
			_ = s.db.Drop(context.Background())
			_ = s.Close()
		})
		return s
	})
}
