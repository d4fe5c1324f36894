package persistence

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/fluxoctx/pkg/api"
)

// MongoStore is a Store backed by MongoDB. Every (scope, key) pair is one
// document; keys are reported in lexical order.
type MongoStore struct {
	uri      string
	dbName   string
	collName string
	codec    Codec

	client *mongo.Client
	owns   bool
	coll   *mongo.Collection
}

// Ensure it implements Store.
var _ api.Store = (*MongoStore)(nil)

type mongoValueID struct {
	Scope string `bson:"scope"`
	Key   string `bson:"key"`
}

type mongoValueDoc struct {
	ID    mongoValueID `bson:"_id"`
	Scope string       `bson:"scope"`
	Key   string       `bson:"key"`
	Value []byte       `bson:"value"`
}

// NewMongoStore creates a MongoStore that connects to uri when Open is
// called. dbName defaults to "fluxoctx" if empty, collName defaults to
// "context".
func NewMongoStore(uri, dbName, collName string, codec Codec) *MongoStore {
	if dbName == "" {
		dbName = "fluxoctx"
	}
	if collName == "" {
		collName = "context"
	}
	if codec == nil {
		codec = GobCodec{}
	}
	return &MongoStore{uri: uri, dbName: dbName, collName: collName, codec: codec}
}

// NewMongoStoreWithClient creates a MongoStore on an existing client. The
// caller keeps ownership of client.
func NewMongoStoreWithClient(client *mongo.Client, dbName, collName string, codec Codec) *MongoStore {
	s := NewMongoStore("", dbName, collName, codec)
	s.client = client
	return s
}

// NewMongoStoreFromConfig is the "mongodb" module factory.
//
// Options: "uri" (required), "database", "collection", "codec".
func NewMongoStoreFromConfig(cfg api.StoreConfig) (api.Store, error) {
	uri := cfg.String("uri", "")
	if uri == "" {
		return nil, errors.New("mongodb: uri is required")
	}
	codec, err := codecFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewMongoStore(uri, cfg.String("database", ""), cfg.String("collection", ""), codec), nil
}

func (s *MongoStore) Open(ctx context.Context) error {
	if s.client == nil {
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(s.uri))
		if err != nil {
			return err
		}
		s.client = client
		s.owns = true
	}
	if err := s.client.Ping(ctx, nil); err != nil {
		return err
	}

	s.coll = s.client.Database(s.dbName).Collection(s.collName)
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "scope", Value: 1}, {Key: "key", Value: 1}},
	})
	return err
}

func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil || !s.owns {
		return nil
	}
	err := s.client.Disconnect(ctx)
	s.client = nil
	return err
}

func (s *MongoStore) Get(ctx context.Context, scope, key string) (any, error) {
	var doc mongoValueDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": mongoValueID{Scope: scope, Key: key}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return s.codec.Decode(doc.Value)
}

func (s *MongoStore) Set(ctx context.Context, scope, key string, value any) error {
	id := mongoValueID{Scope: scope, Key: key}
	if value == nil {
		_, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
		return err
	}

	data, err := s.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", scope, key, err)
	}

	doc := mongoValueDoc{ID: id, Scope: scope, Key: key, Value: data}
	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoStore) Keys(ctx context.Context, scope string) ([]string, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "key", Value: 1}}).
		SetProjection(bson.M{"key": 1})

	cur, err := s.coll.Find(ctx, bson.M{"scope": scope}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	keys := []string{}
	for cur.Next(ctx) {
		var doc struct {
			Key string `bson:"key"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		keys = append(keys, doc.Key)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (s *MongoStore) Delete(ctx context.Context, scope string) error {
	_, err := s.coll.DeleteMany(ctx, bson.M{"scope": scope})
	return err
}

func (s *MongoStore) Clean(ctx context.Context, activeNodes []string) error {
	raw, err := s.coll.Distinct(ctx, "scope", bson.M{})
	if err != nil {
		return err
	}

	scopes := make([]string, 0, len(raw))
	for _, v := range raw {
		if scope, ok := v.(string); ok {
			scopes = append(scopes, scope)
		}
	}

	stale := staleScopes(scopes, activeNodes)
	if len(stale) == 0 {
		return nil
	}
	_, err = s.coll.DeleteMany(ctx, bson.M{"scope": bson.M{"$in": stale}})
	return err
}
