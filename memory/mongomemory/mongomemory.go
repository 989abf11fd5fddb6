// Package mongomemory implements memory.Store over MongoDB: a thin Store
// wrapper that calls the real *mongo.Collection through a minimal
// collection interface.
package mongomemory

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/raaf-ai/raaf-go/memory"
)

const (
	defaultCollection = "agent_memory"
	defaultTimeout    = 5 * time.Second
)

// Options configures the Mongo-backed Store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements memory.Store using a MongoDB collection.
type Store struct {
	coll    collection
	timeout time.Duration
}

// New constructs a Store backed by the given Mongo client, ensuring a text
// index over value exists for Search.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongomemory: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongomemory: database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	mcoll := opts.Client.Database(opts.Database).Collection(collName)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := ensureIndexes(ctx, mcoll); err != nil {
		return nil, err
	}
	return &Store{coll: mcoll, timeout: timeout}, nil
}

type recordDocument struct {
	Key   string            `bson:"_id"`
	Value any               `bson:"value"`
	Tags  map[string]string `bson:"tags,omitempty"`
}

// Store upserts value under key.
func (s *Store) Store(ctx context.Context, key string, value any) error {
	if key == "" {
		return errors.New("mongomemory: key is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{"value": value}},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

// Search runs a best-effort text search over stored values, narrowed by an
// exact match on each tags[k] == v pair in filters. Results come in the
// order the collection returns them; they are not sorted by relevance and
// their Score is left at zero.
func (s *Store) Search(ctx context.Context, query string, filters map[string]string) ([]memory.Record, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{}
	for k, v := range filters {
		filter["tags."+k] = v
	}
	if query != "" {
		filter["$text"] = bson.M{"$search": query}
	}
	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	var docs []recordDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]memory.Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, memory.Record{Key: d.Key, Value: d.Value, Tags: d.Tags})
	}
	return out, nil
}

// Delete removes the record stored under key, if any.
func (s *Store) Delete(ctx context.Context, key string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.coll.DeleteOne(ctx, bson.M{"_id": key})
	return err
}

// ListKeys returns the keys of records whose tags match filter.
func (s *Store) ListKeys(ctx context.Context, filter map[string]string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	mfilter := bson.M{}
	for k, v := range filter {
		mfilter["tags."+k] = v
	}
	cur, err := s.coll.Find(ctx, mfilter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	var docs []struct {
		Key string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(docs))
	for _, d := range docs {
		keys = append(keys, d.Key)
	}
	return keys, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func ensureIndexes(ctx context.Context, coll *mongodriver.Collection) error {
	index := mongodriver.IndexModel{
		Keys: bson.D{{Key: "value", Value: "text"}},
	}
	_, err := coll.Indexes().CreateOne(ctx, index)
	return err
}

// collection is the minimal surface this package needs from
// *mongo.Collection, kept for test substitution.
type collection interface {
	UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongodriver.UpdateResult, error)
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (*mongodriver.Cursor, error)
	DeleteOne(ctx context.Context, filter any, opts ...options.Lister[options.DeleteOneOptions]) (*mongodriver.DeleteResult, error)
	Indexes() mongodriver.IndexView
}
