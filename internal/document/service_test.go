package document

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roach88/querykit/internal/query"
)

// fakeCollection records what the service sends and answers with canned
// documents.
type fakeCollection struct {
	docs  []bson.M
	one   bson.M
	count int64
	err   error

	insertManyErr error

	pipelines []mongo.Pipeline
	filters   []any
	updates   []any
	inserted  []any
	deleted   []any
}

func (f *fakeCollection) single() *mongo.SingleResult {
	if f.err != nil {
		return mongo.NewSingleResultFromDocument(bson.M{}, f.err, nil)
	}
	if f.one == nil {
		return mongo.NewSingleResultFromDocument(bson.M{}, mongo.ErrNoDocuments, nil)
	}
	return mongo.NewSingleResultFromDocument(f.one, nil, nil)
}

func (f *fakeCollection) Aggregate(_ context.Context, pipeline interface{}, _ ...*options.AggregateOptions) (*mongo.Cursor, error) {
	f.pipelines = append(f.pipelines, pipeline.(mongo.Pipeline))
	if f.err != nil {
		return nil, f.err
	}
	docs := make([]interface{}, len(f.docs))
	for i, d := range f.docs {
		docs[i] = d
	}
	return mongo.NewCursorFromDocuments(docs, nil, nil)
}

func (f *fakeCollection) CountDocuments(_ context.Context, filter interface{}, _ ...*options.CountOptions) (int64, error) {
	f.filters = append(f.filters, filter)
	return f.count, f.err
}

func (f *fakeCollection) FindOne(_ context.Context, filter interface{}, _ ...*options.FindOneOptions) *mongo.SingleResult {
	f.filters = append(f.filters, filter)
	return f.single()
}

func (f *fakeCollection) InsertOne(_ context.Context, document interface{}, _ ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	f.inserted = append(f.inserted, document)
	if f.err != nil {
		return nil, f.err
	}
	return &mongo.InsertOneResult{InsertedID: document.(bson.M)["_id"]}, nil
}

func (f *fakeCollection) InsertMany(_ context.Context, documents []interface{}, _ ...*options.InsertManyOptions) (*mongo.InsertManyResult, error) {
	f.inserted = append(f.inserted, documents...)
	if f.insertManyErr != nil {
		return nil, f.insertManyErr
	}
	return &mongo.InsertManyResult{}, nil
}

func (f *fakeCollection) FindOneAndUpdate(_ context.Context, filter interface{}, update interface{}, _ ...*options.FindOneAndUpdateOptions) *mongo.SingleResult {
	f.filters = append(f.filters, filter)
	f.updates = append(f.updates, update)
	return f.single()
}

func (f *fakeCollection) UpdateMany(_ context.Context, filter interface{}, update interface{}, _ ...*options.UpdateOptions) (*mongo.UpdateResult, error) {
	f.filters = append(f.filters, filter)
	f.updates = append(f.updates, update)
	if f.err != nil {
		return nil, f.err
	}
	return &mongo.UpdateResult{MatchedCount: f.count, ModifiedCount: f.count}, nil
}

func (f *fakeCollection) FindOneAndDelete(_ context.Context, filter interface{}, _ ...*options.FindOneAndDeleteOptions) *mongo.SingleResult {
	f.filters = append(f.filters, filter)
	return f.single()
}

func (f *fakeCollection) DeleteMany(_ context.Context, filter interface{}, _ ...*options.DeleteOptions) (*mongo.DeleteResult, error) {
	f.deleted = append(f.deleted, filter)
	if f.err != nil {
		return nil, f.err
	}
	return &mongo.DeleteResult{DeletedCount: f.count}, nil
}

func newTestService(coll *fakeCollection, opts ...Option) *Service {
	log, _ := logtest.NewNullLogger()
	return NewService(coll, append([]Option{WithLogger(log), WithName("posts")}, opts...)...)
}

var adminFilter = query.Filter{Fields: map[string]query.FieldFilter{
	"admin": query.Comparison{query.OpIs: true},
}}

func TestService_Query(t *testing.T) {
	oid := mustOID(t, hexID)
	coll := &fakeCollection{docs: []bson.M{
		{"_id": oid, "name": "Ann", "age": 30, "tags": bson.A{"a"}},
	}}
	svc := newTestService(coll)

	got, err := svc.Query(context.Background(), query.Query{Filter: adminFilter})
	require.NoError(t, err)
	assert.Equal(t, []query.Record{
		{"_id": hexID, "name": "Ann", "age": int64(30), "tags": []any{"a"}},
	}, got)

	require.Len(t, coll.pipelines, 1)
	assert.Equal(t, bson.D{{Key: "$match", Value: bson.M{"admin": bson.M{"$eq": true}}}}, coll.pipelines[0][0])
}

func TestService_QueryEmpty(t *testing.T) {
	svc := newTestService(&fakeCollection{})

	got, err := svc.Query(context.Background(), query.Query{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestService_Count(t *testing.T) {
	coll := &fakeCollection{count: 3}
	svc := newTestService(coll)

	n, err := svc.Count(context.Background(), adminFilter)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, []any{bson.M{"admin": bson.M{"$eq": true}}}, coll.filters)
}

func TestService_Aggregate(t *testing.T) {
	t.Run("grouped", func(t *testing.T) {
		coll := &fakeCollection{docs: []bson.M{
			{"_id": bson.M{"authorId": "u1"}, "count_id": 2},
		}}
		svc := newTestService(coll)

		got, err := svc.Aggregate(context.Background(), query.Filter{}, query.AggregateQuery{
			Count:   []string{"id"},
			GroupBy: []string{"authorId"},
		})
		require.NoError(t, err)
		assert.Equal(t, []query.AggregateResponse{{
			Count:   map[string]any{"id": int64(2)},
			GroupBy: map[string]any{"authorId": "u1"},
		}}, got)
		assert.Equal(t, "$group", coll.pipelines[0][0][0].Key)
	})

	t.Run("no matches without groups", func(t *testing.T) {
		svc := newTestService(&fakeCollection{})
		got, err := svc.Aggregate(context.Background(), adminFilter, query.AggregateQuery{Count: []string{"id"}, Sum: []string{"age"}})
		require.NoError(t, err)
		assert.Equal(t, []query.AggregateResponse{{
			Count: map[string]any{"id": int64(0)},
			Sum:   map[string]any{"age": nil},
		}}, got)
	})

	t.Run("empty aggregate", func(t *testing.T) {
		coll := &fakeCollection{}
		_, err := newTestService(coll).Aggregate(context.Background(), query.Filter{}, query.AggregateQuery{})
		assert.True(t, query.IsEmptyAggregate(err))
		assert.Empty(t, coll.pipelines)
	})
}

func TestService_FindByID(t *testing.T) {
	oid := mustOID(t, hexID)

	coll := &fakeCollection{one: bson.M{"_id": oid, "name": "Ann"}}
	svc := newTestService(coll)
	got, err := svc.FindByID(context.Background(), hexID, query.Filter{})
	require.NoError(t, err)
	assert.Equal(t, query.Record{"_id": hexID, "name": "Ann"}, got)
	assert.Equal(t, bson.M{"_id": bson.M{"$eq": oid}}, coll.filters[0])

	missing := newTestService(&fakeCollection{})
	got, err = missing.FindByID(context.Background(), "nope", query.Filter{})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = missing.GetByID(context.Background(), "nope", query.Filter{})
	assert.True(t, query.IsNotFound(err))
}

func TestService_CreateOne(t *testing.T) {
	coll := &fakeCollection{}
	svc := newTestService(coll, WithIDGenerator(func() any { return "d-1" }))

	got, err := svc.CreateOne(context.Background(), query.Record{"title": "hello"})
	require.NoError(t, err)
	assert.Equal(t, query.Record{"_id": "d-1", "title": "hello"}, got)
	assert.Equal(t, []any{bson.M{"_id": "d-1", "title": "hello"}}, coll.inserted)
}

func TestService_CreateOneCoercesIDs(t *testing.T) {
	oid := mustOID(t, hexID)
	coll := &fakeCollection{}
	svc := newTestService(coll, WithObjectIDFields("authorId"))

	got, err := svc.CreateOne(context.Background(), query.Record{"_id": hexID, "authorId": hexID})
	require.NoError(t, err)
	assert.Equal(t, query.Record{"_id": hexID, "authorId": hexID}, got)
	assert.Equal(t, []any{bson.M{"_id": oid, "authorId": oid}}, coll.inserted)
}

func TestService_CreateMany(t *testing.T) {
	t.Run("empty batch", func(t *testing.T) {
		coll := &fakeCollection{}
		got, err := newTestService(coll).CreateMany(context.Background(), nil)
		require.NoError(t, err)
		assert.Equal(t, []query.Record{}, got)
		assert.Empty(t, coll.inserted)
	})

	t.Run("assigns ids in order", func(t *testing.T) {
		n := 0
		next := func() any {
			n++
			return []string{"", "g-1", "g-2"}[n]
		}
		got, err := newTestService(&fakeCollection{}, WithIDGenerator(next)).CreateMany(context.Background(), []query.Record{
			{"title": "a"},
			{"_id": "own", "title": "b"},
			{"title": "c"},
		})
		require.NoError(t, err)
		assert.Equal(t, []query.Record{
			{"_id": "g-1", "title": "a"},
			{"_id": "own", "title": "b"},
			{"_id": "g-2", "title": "c"},
		}, got)
	})

	t.Run("failure removes the written prefix", func(t *testing.T) {
		coll := &fakeCollection{insertManyErr: mongo.BulkWriteException{
			WriteErrors: []mongo.BulkWriteError{{WriteError: mongo.WriteError{Index: 2, Code: 11000, Message: "duplicate key"}}},
		}}
		_, err := newTestService(coll).CreateMany(context.Background(), []query.Record{
			{"_id": "a"}, {"_id": "b"}, {"_id": "a"},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "insert into posts")
		assert.Equal(t, []any{bson.M{"_id": bson.M{"$in": bson.A{"a", "b"}}}}, coll.deleted)
	})

	t.Run("failure on the first document removes nothing", func(t *testing.T) {
		coll := &fakeCollection{insertManyErr: mongo.BulkWriteException{
			WriteErrors: []mongo.BulkWriteError{{WriteError: mongo.WriteError{Index: 0, Code: 11000}}},
		}}
		_, err := newTestService(coll).CreateMany(context.Background(), []query.Record{{"_id": "a"}})
		require.Error(t, err)
		assert.Empty(t, coll.deleted)
	})
}

func TestService_UpdateOne(t *testing.T) {
	t.Run("sets everything but the id", func(t *testing.T) {
		coll := &fakeCollection{one: bson.M{"_id": "p1", "title": "new"}}
		got, err := newTestService(coll).UpdateOne(context.Background(), "p1", query.Record{"_id": "zzz", "title": "new"}, query.Filter{})
		require.NoError(t, err)
		assert.Equal(t, query.Record{"_id": "p1", "title": "new"}, got)
		assert.Equal(t, []any{bson.M{"$set": bson.M{"title": "new"}}}, coll.updates)
		assert.Equal(t, bson.M{"_id": bson.M{"$eq": "p1"}}, coll.filters[0])
	})

	t.Run("nothing to set returns the current document", func(t *testing.T) {
		coll := &fakeCollection{one: bson.M{"_id": "p1"}}
		got, err := newTestService(coll).UpdateOne(context.Background(), "p1", query.Record{"_id": "p1"}, query.Filter{})
		require.NoError(t, err)
		assert.Equal(t, query.Record{"_id": "p1"}, got)
		assert.Empty(t, coll.updates)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := newTestService(&fakeCollection{}).UpdateOne(context.Background(), "p9", query.Record{"title": "x"}, adminFilter)
		assert.True(t, query.IsNotFound(err))
	})
}

func TestService_UpdateMany(t *testing.T) {
	coll := &fakeCollection{count: 4}
	svc := newTestService(coll)

	n, err := svc.UpdateMany(context.Background(), query.Record{"admin": false}, adminFilter)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Equal(t, []any{bson.M{"$set": bson.M{"admin": false}}}, coll.updates)

	// Without fields to set, the matching documents are only counted.
	n, err = svc.UpdateMany(context.Background(), query.Record{}, adminFilter)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.Len(t, coll.updates, 1)
}

func TestService_Delete(t *testing.T) {
	coll := &fakeCollection{one: bson.M{"_id": "p2", "title": "bye"}, count: 2}
	svc := newTestService(coll)

	got, err := svc.DeleteOne(context.Background(), "p2", query.Filter{})
	require.NoError(t, err)
	assert.Equal(t, query.Record{"_id": "p2", "title": "bye"}, got)

	n, err := svc.DeleteMany(context.Background(), adminFilter)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, []any{bson.M{"admin": bson.M{"$eq": true}}}, coll.deleted)

	_, err = newTestService(&fakeCollection{}).DeleteOne(context.Background(), "p9", query.Filter{})
	assert.True(t, query.IsNotFound(err))
}

func TestService_BackendErrorsAreWrapped(t *testing.T) {
	log, hook := logtest.NewNullLogger()
	svc := NewService(&fakeCollection{err: assert.AnError}, WithLogger(log), WithName("posts"))

	_, err := svc.Query(context.Background(), query.Query{})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "aggregate posts")

	_, err = svc.Count(context.Background(), query.Filter{})
	assert.ErrorIs(t, err, assert.AnError)

	_, err = svc.FindByID(context.Background(), "x", query.Filter{})
	assert.ErrorIs(t, err, assert.AnError)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, "posts", hook.LastEntry().Data["collection"])
}
