// Package mongostore keeps each registry collection in its own MongoDB
// collection, keyed by _id.
package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"geuebt/pkg/domain"
)

var _ domain.DocumentStore = (*Store)(nil)

// Defaults match the legacy MONGO_URL / MONGO_DB settings.
const (
	DefaultURI      = "mongodb://localhost:27017"
	DefaultDatabase = "geuebt"
)

type envelope struct {
	Key      string `bson:"_id"`
	Organism string `bson:"organism"`
	Number   *int   `bson:"number,omitempty"`
	Body     bson.D `bson:"body"`
}

// Store is a DocumentStore over a MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects, pings and ensures the list-query indexes exist.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	if uri == "" {
		uri = DefaultURI
	}
	if database == "" {
		database = DefaultDatabase
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := &Store{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	for _, c := range domain.Collections {
		_, err := s.db.Collection(string(c)).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys: bson.D{{Key: "organism", Value: 1}, {Key: "number", Value: 1}},
		})
		if err != nil {
			return fmt.Errorf("index %s: %w", c, err)
		}
	}
	return nil
}

func toEnvelope(doc domain.Document) (envelope, error) {
	env := envelope{Key: doc.Key, Organism: string(doc.Organism), Number: doc.Number, Body: bson.D{}}
	if len(doc.Body) == 0 {
		return env, nil
	}
	if err := bson.UnmarshalExtJSON(doc.Body, false, &env.Body); err != nil {
		return envelope{}, fmt.Errorf("encode %s: %w", doc.Key, err)
	}
	return env, nil
}

func fromEnvelope(env envelope) (domain.Document, error) {
	body := env.Body
	if body == nil {
		body = bson.D{}
	}
	raw, err := bson.MarshalExtJSON(body, false, false)
	if err != nil {
		return domain.Document{}, fmt.Errorf("decode %s: %w", env.Key, err)
	}
	return domain.Document{
		Key:      env.Key,
		Organism: domain.Organism(env.Organism),
		Number:   env.Number,
		Body:     json.RawMessage(raw),
	}, nil
}

func buildFilter(q domain.Query) bson.D {
	filter := bson.D{}
	if q.Organism != "" {
		filter = append(filter, bson.E{Key: "organism", Value: string(q.Organism)})
	}
	number := bson.D{}
	if q.Number != nil {
		number = append(number, bson.E{Key: "$eq", Value: *q.Number})
	}
	if q.MinNumber != nil {
		number = append(number, bson.E{Key: "$gte", Value: *q.MinNumber})
	}
	if len(number) > 0 {
		filter = append(filter, bson.E{Key: "number", Value: number})
	}
	return filter
}

func (s *Store) coll(c domain.CollectionName) *mongo.Collection {
	return s.db.Collection(string(c))
}

// Insert relies on the _id unique index for conflict detection.
func (s *Store) Insert(ctx context.Context, c domain.CollectionName, doc domain.Document) error {
	env, err := toEnvelope(doc)
	if err != nil {
		return err
	}
	if _, err := s.coll(c).InsertOne(ctx, env); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrConflict{Collection: c, Key: doc.Key}
		}
		return fmt.Errorf("insert %s/%s: %w", c, doc.Key, err)
	}
	return nil
}

// Get loads one document by _id.
func (s *Store) Get(ctx context.Context, c domain.CollectionName, key string) (domain.Document, error) {
	var env envelope
	err := s.coll(c).FindOne(ctx, bson.D{{Key: "_id", Value: key}}).Decode(&env)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Document{}, domain.ErrNotFound{Collection: c, Key: key}
	}
	if err != nil {
		return domain.Document{}, fmt.Errorf("get %s/%s: %w", c, key, err)
	}
	return fromEnvelope(env)
}

func (s *Store) replace(ctx context.Context, c domain.CollectionName, doc domain.Document) error {
	env, err := toEnvelope(doc)
	if err != nil {
		return err
	}
	res, err := s.coll(c).ReplaceOne(ctx, bson.D{{Key: "_id", Value: doc.Key}}, env)
	if err != nil {
		return fmt.Errorf("replace %s/%s: %w", c, doc.Key, err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound{Collection: c, Key: doc.Key}
	}
	return nil
}

// Update reads, mutates and replaces the document. Single-document
// replacement is atomic; there is no optimistic version check.
func (s *Store) Update(ctx context.Context, c domain.CollectionName, key string, mutate domain.Mutator) (domain.Document, error) {
	doc, err := s.Get(ctx, c, key)
	if err != nil {
		return domain.Document{}, err
	}
	if err := mutate(&doc); err != nil {
		return domain.Document{}, err
	}
	doc.Key = key
	if err := s.replace(ctx, c, doc); err != nil {
		return domain.Document{}, err
	}
	return doc, nil
}

// Upsert inserts doc or mutates the stored copy. A lost insert race falls
// through to the update path.
func (s *Store) Upsert(ctx context.Context, c domain.CollectionName, doc domain.Document, mutate domain.Mutator) (bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		_, err := s.Update(ctx, c, doc.Key, mutate)
		var nf domain.ErrNotFound
		if !errors.As(err, &nf) {
			return false, err
		}
		err = s.Insert(ctx, c, doc)
		var conflict domain.ErrConflict
		if errors.As(err, &conflict) {
			continue
		}
		if err != nil {
			return false, err
		}
		return true, nil
	}
	return false, domain.ErrConflict{Collection: c, Key: doc.Key}
}

// Find returns matching documents sorted by _id.
func (s *Store) Find(ctx context.Context, c domain.CollectionName, q domain.Query) ([]domain.Document, error) {
	cur, err := s.coll(c).Find(ctx, buildFilter(q), options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", c, err)
	}
	defer func() { _ = cur.Close(ctx) }()
	var out []domain.Document
	for cur.Next(ctx) {
		var env envelope
		if err := cur.Decode(&env); err != nil {
			return nil, fmt.Errorf("decode %s: %w", c, err)
		}
		doc, err := fromEnvelope(env)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("find %s: %w", c, err)
	}
	return out, nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}
