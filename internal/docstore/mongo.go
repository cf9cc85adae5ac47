package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/coderev/coderev/backend/go-services/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoBackend implements Backend on a MongoDB database. Watch needs a replica
// set because it relies on change streams.
type MongoBackend struct {
	db *mongo.Database
}

func NewMongoBackend(db *mongo.Database) *MongoBackend {
	return &MongoBackend{db: db}
}

func (m *MongoBackend) Get(ctx context.Context, collection, id string) (bson.Raw, error) {
	raw, err := m.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return raw, nil
}

func (m *MongoBackend) Set(ctx context.Context, collection, id string, doc interface{}) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := m.db.Collection(collection).ReplaceOne(ctx, bson.M{"_id": id}, doc, opts); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

func (m *MongoBackend) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	update := updateDocument(fields)
	if len(update) == 0 {
		return nil
	}
	res, err := m.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// updateDocument splits fields into $set and $unset; DeleteField values go
// to $unset. Empty fields give an empty document.
func updateDocument(fields map[string]interface{}) bson.M {
	set := bson.M{}
	unset := bson.M{}
	for path, v := range fields {
		if v == DeleteField {
			unset[path] = ""
		} else {
			set[path] = v
		}
	}
	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func (m *MongoBackend) Find(ctx context.Context, collection string, q Query) ([]bson.Raw, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	opts := options.Find()
	if q.Order != nil {
		dir := 1
		if q.Order.Desc {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.Order.Field, Value: dir}, {Key: "_id", Value: 1}})
	} else {
		opts.SetSort(bson.D{{Key: "_id", Value: 1}})
	}
	cur, err := m.db.Collection(collection).Find(ctx, Filter(q), opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	defer cur.Close(ctx)
	out := []bson.Raw{}
	for cur.Next(ctx) {
		out = append(out, append(bson.Raw(nil), cur.Current...))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	return out, nil
}

func (m *MongoBackend) Delete(ctx context.Context, collection, id string) error {
	res, err := m.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument bson.Raw `bson:"fullDocument"`
}

// Watch opens a change stream before reading the snapshot so no commit falls
// between them. Stream events are matched against q in process.
func (m *MongoBackend) Watch(ctx context.Context, collection string, q Query, fn func(Change)) (CancelFunc, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	col := m.db.Collection(collection)
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"operationType": bson.M{"$in": bson.A{"insert", "update", "replace", "delete"}}}}},
	}
	cs, err := col.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", collection, err)
	}
	snapshot, err := m.Find(ctx, collection, q)
	if err != nil {
		cs.Close(context.Background())
		return nil, err
	}

	view := make(map[string]bson.Raw, len(snapshot))
	for _, raw := range snapshot {
		id, _ := raw.Lookup("_id").StringValueOK()
		view[id] = raw
		fn(Change{Type: Added, ID: id, Doc: raw})
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	var stopped atomic.Bool
	go func() {
		defer cs.Close(context.Background())
		for cs.Next(streamCtx) {
			var ev changeEvent
			if err := cs.Decode(&ev); err != nil {
				logger.Warnf("watch %s: decode change: %v", collection, err)
				continue
			}
			if c, ok := classify(q, view, ev); ok && !stopped.Load() {
				fn(c)
			}
		}
		if err := cs.Err(); err != nil && streamCtx.Err() == nil {
			logger.Errorf("watch %s: change stream ended: %v", collection, err)
		}
	}()

	return func() {
		if !stopped.Swap(true) {
			cancel()
		}
	}, nil
}

// classify turns a stream event into a Change relative to the documents
// currently in view, updating view.
func classify(q Query, view map[string]bson.Raw, ev changeEvent) (Change, bool) {
	id := ev.DocumentKey.ID
	prev, before := view[id]
	after := false
	if ev.OperationType != "delete" && ev.FullDocument != nil {
		after = Matches(q, ev.FullDocument)
	}
	switch {
	case !before && after:
		doc := append(bson.Raw(nil), ev.FullDocument...)
		view[id] = doc
		return Change{Type: Added, ID: id, Doc: doc}, true
	case before && after:
		doc := append(bson.Raw(nil), ev.FullDocument...)
		view[id] = doc
		return Change{Type: Modified, ID: id, Doc: doc}, true
	case before && !after:
		delete(view, id)
		return Change{Type: Removed, ID: id, Doc: prev}, true
	}
	return Change{}, false
}

// Filter translates q into a MongoDB filter document.
func Filter(q Query) bson.M {
	if len(q.Where) == 0 {
		return bson.M{}
	}
	and := make(bson.A, 0, len(q.Where))
	for _, p := range q.Where {
		var cond interface{}
		switch p.Op {
		case OpEq:
			cond = p.Value
		case OpNe:
			cond = bson.M{"$exists": true, "$ne": p.Value}
		case OpLt:
			cond = bson.M{"$lt": p.Value}
		case OpLte:
			cond = bson.M{"$lte": p.Value}
		case OpGt:
			cond = bson.M{"$gt": p.Value}
		case OpGte:
			cond = bson.M{"$gte": p.Value}
		}
		and = append(and, bson.M{p.Field: cond})
	}
	return bson.M{"$and": and}
}
