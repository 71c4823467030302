// Package mongo is the MongoDB DocumentStore. MongoDB evaluates dotted paths across
// arrays natively, so filters and distinct are passed through.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fieldtrial/adapters/docstore"
	"fieldtrial/domain/core"
	"fieldtrial/ports"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store is a DocumentStore on a MongoDB database
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ ports.DocumentStore = (*Store)(nil)

// Open connects to uri and selects database
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

func toBSON(filter core.Filter) bson.M {
	m := bson.M{}
	for k, v := range filter {
		if id, ok := v.(core.ID); ok {
			v = id.String()
		}
		m[k] = v
	}
	return m
}

func (s *Store) FindDistinct(ctx context.Context, coll, fieldPath string, filter core.Filter) ([]any, error) {
	values, err := s.db.Collection(coll).Distinct(ctx, fieldPath, toBSON(filter))
	if err != nil {
		return nil, core.NewStoreError("find_distinct", coll, err)
	}
	out := make([]any, 0, len(values))
	for _, v := range values {
		out = append(out, normalizeValue(v))
	}
	return out, nil
}

func (s *Store) FindByID(ctx context.Context, coll string, id core.ID) (core.Document, error) {
	var raw bson.M
	err := s.db.Collection(coll).FindOne(ctx, bson.M{core.KeyID: id.String()}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, core.NewNotFoundError(coll, id)
	}
	if err != nil {
		return nil, core.NewStoreError("find_by_id", coll, err)
	}
	return normalize(raw)
}

func (s *Store) Find(ctx context.Context, coll string, filter core.Filter) ([]core.Document, error) {
	cur, err := s.db.Collection(coll).Find(ctx, toBSON(filter))
	if err != nil {
		return nil, core.NewStoreError("find", coll, err)
	}
	defer cur.Close(ctx)

	var out []core.Document
	for cur.Next(ctx) {
		var raw bson.M
		if err := cur.Decode(&raw); err != nil {
			return nil, core.NewStoreError("find", coll, err)
		}
		doc, err := normalize(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := cur.Err(); err != nil {
		return nil, core.NewStoreError("find", coll, err)
	}
	return out, nil
}

func (s *Store) Save(ctx context.Context, coll string, doc core.Document, upsert core.Filter) error {
	c := s.db.Collection(coll)
	if len(upsert) > 0 {
		var existing struct {
			ID any `bson:"_id"`
		}
		err := c.FindOne(ctx, toBSON(upsert), options.FindOne().SetProjection(bson.M{core.KeyID: 1})).Decode(&existing)
		switch {
		case err == nil:
			if id, ok := core.IDFromValue(normalizeValue(existing.ID)); ok {
				doc = docstore.WithID(doc, id)
			}
		case !errors.Is(err, mongo.ErrNoDocuments):
			return core.NewStoreError("save", coll, err)
		}
	}
	id, ok := core.IDFromValue(doc[core.KeyID])
	if !ok {
		id = core.NewID()
		doc = docstore.WithID(doc, id)
	}
	_, err := c.ReplaceOne(ctx, bson.M{core.KeyID: id.String()}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return core.NewStoreError("save", coll, err)
	}
	return nil
}

// normalize turns a decoded BSON document into the plain JSON shapes the domain reads
// (float64 numbers, []any arrays, string ids) by a trip through relaxed extended JSON
func normalize(raw bson.M) (core.Document, error) {
	if oid, ok := raw[core.KeyID].(primitive.ObjectID); ok {
		raw[core.KeyID] = oid.Hex()
	}
	ext, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidDocument, err)
	}
	var doc core.Document
	if err := json.Unmarshal(ext, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidDocument, err)
	}
	return doc, nil
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case primitive.ObjectID:
		return x.Hex()
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	}
	return v
}
