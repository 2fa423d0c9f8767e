package document

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/roach88/querykit/internal/query"
)

// DefaultIDField is the MongoDB primary key.
const DefaultIDField = "_id"

// Collection is the part of *mongo.Collection the Service uses.
type Collection interface {
	Aggregate(ctx context.Context, pipeline interface{}, opts ...*options.AggregateOptions) (*mongo.Cursor, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	InsertOne(ctx context.Context, document interface{}, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) *mongo.SingleResult
	UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
	FindOneAndDelete(ctx context.Context, filter interface{}, opts ...*options.FindOneAndDeleteOptions) *mongo.SingleResult
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

var _ Collection = (*mongo.Collection)(nil)

// Connect opens a client for uri and checks the primary is reachable.
func Connect(ctx context.Context, uri string, timeout time.Duration) (*mongo.Client, error) {
	opts := options.Client().ApplyURI(uri)
	if timeout > 0 {
		opts.SetConnectTimeout(timeout)
		opts.SetServerSelectionTimeout(timeout)
	}
	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to MongoDB")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, errors.Wrap(err, "failed to ping MongoDB")
	}
	return client, nil
}

// Service answers queries against one collection.
type Service struct {
	coll    Collection
	name    string
	idField string
	builder *FilterQueryBuilder
	log     logrus.FieldLogger
	newID   func() any
}

// Option configures a Service.
type Option func(*serviceConfig)

type serviceConfig struct {
	name           string
	idField        string
	objectIDFields []string
	log            logrus.FieldLogger
	newID          func() any
}

// WithIDField sets the document key field. It defaults to _id.
func WithIDField(field string) Option {
	return func(c *serviceConfig) { c.idField = field }
}

// WithObjectIDFields lists further fields, such as foreign keys, whose hex
// string values are coerced to ObjectIDs in filters and writes.
func WithObjectIDFields(fields ...string) Option {
	return func(c *serviceConfig) { c.objectIDFields = append(c.objectIDFields, fields...) }
}

// WithLogger sets the logger pipelines are reported to.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *serviceConfig) { c.log = log }
}

// WithName sets the collection name used in logs and errors.
func WithName(name string) Option {
	return func(c *serviceConfig) { c.name = name }
}

// WithIDGenerator replaces the ObjectID generator used by CreateOne.
func WithIDGenerator(next func() any) Option {
	return func(c *serviceConfig) { c.newID = next }
}

// NewService creates a Service over coll.
func NewService(coll Collection, opts ...Option) *Service {
	cfg := serviceConfig{
		name:    "collection",
		idField: DefaultIDField,
		log:     logrus.StandardLogger(),
		newID:   func() any { return primitive.NewObjectID() },
	}
	if c, ok := coll.(*mongo.Collection); ok {
		cfg.name = c.Name()
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Service{
		coll:    coll,
		name:    cfg.name,
		idField: cfg.idField,
		builder: NewFilterQueryBuilder(cfg.idField, cfg.objectIDFields...),
		log: cfg.log.WithFields(logrus.Fields{
			"component":  "document",
			"collection": cfg.name,
		}),
		newID: cfg.newID,
	}
}

func (s *Service) run(ctx context.Context, pipeline mongo.Pipeline) ([]bson.M, error) {
	s.log.WithField("stages", len(pipeline)).Debug("running pipeline")
	if pipeline == nil {
		pipeline = mongo.Pipeline{}
	}
	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		s.log.WithError(err).Warn("aggregate failed")
		return nil, errors.Wrapf(err, "aggregate %s", s.name)
	}
	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, errors.Wrapf(err, "decode %s", s.name)
	}
	return docs, nil
}

func records(docs []bson.M) []query.Record {
	out := make([]query.Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, toRecord(d))
	}
	return out
}

// Query returns the documents matching q.
func (s *Service) Query(ctx context.Context, q query.Query) ([]query.Record, error) {
	pipeline, err := s.builder.BuildQuery(q)
	if err != nil {
		return nil, err
	}
	docs, err := s.run(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	return records(docs), nil
}

// Count returns the number of documents matching f.
func (s *Service) Count(ctx context.Context, f query.Filter) (int64, error) {
	filter, err := s.builder.BuildFilter(f)
	if err != nil {
		return 0, err
	}
	n, err := s.coll.CountDocuments(ctx, filter)
	if err != nil {
		s.log.WithError(err).Warn("count failed")
		return 0, errors.Wrapf(err, "count %s", s.name)
	}
	return n, nil
}

// Aggregate computes agg over the documents matching f.
func (s *Service) Aggregate(ctx context.Context, f query.Filter, agg query.AggregateQuery) ([]query.AggregateResponse, error) {
	pipeline, err := s.builder.BuildAggregateQuery(agg, f)
	if err != nil {
		return nil, err
	}
	docs, err := s.run(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	return ConvertAggregateRows(docs, agg)
}

func (s *Service) idFilter(id any, f query.Filter) (bson.M, error) {
	return s.builder.BuildFilter(query.MergeFilter(query.IDFilter(s.idField, id), f))
}

// decodeOne reads a single result; a missing document is (nil, nil).
func (s *Service) decodeOne(res *mongo.SingleResult, action string) (query.Record, error) {
	var doc bson.M
	if err := res.Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		s.log.WithError(err).Warn(action + " failed")
		return nil, errors.Wrapf(err, "%s %s", action, s.name)
	}
	return toRecord(doc), nil
}

// FindByID returns the document with id that also matches f, or nil.
func (s *Service) FindByID(ctx context.Context, id any, f query.Filter) (query.Record, error) {
	filter, err := s.idFilter(id, f)
	if err != nil {
		return nil, err
	}
	return s.decodeOne(s.coll.FindOne(ctx, filter), "find")
}

// GetByID is FindByID failing with NOT_FOUND when nothing matches.
func (s *Service) GetByID(ctx context.Context, id any, f query.Filter) (query.Record, error) {
	rec, err := s.FindByID(ctx, id, f)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, query.NewNotFoundError(id)
	}
	return rec, nil
}

// document prepares rec for writing: id values are coerced to ObjectIDs.
func (s *Service) document(rec query.Record) bson.M {
	doc := make(bson.M, len(rec))
	for k, v := range rec {
		if s.builder.where.comparisons.IDFields[k] {
			v = coerceID(v)
		}
		doc[k] = v
	}
	return doc
}

func (s *Service) prepareInsert(rec query.Record) bson.M {
	doc := s.document(rec)
	if id, ok := doc[s.idField]; !ok || id == nil {
		doc[s.idField] = s.newID()
	}
	return doc
}

// CreateOne inserts rec, assigning an ObjectID when it has no id.
func (s *Service) CreateOne(ctx context.Context, rec query.Record) (query.Record, error) {
	doc := s.prepareInsert(rec)
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		s.log.WithError(err).Warn("insert failed")
		return nil, errors.Wrapf(err, "insert into %s", s.name)
	}
	return toRecord(doc), nil
}

// CreateMany inserts recs in order. When an insert fails, the documents of
// the batch already written are removed again.
func (s *Service) CreateMany(ctx context.Context, recs []query.Record) ([]query.Record, error) {
	if len(recs) == 0 {
		return []query.Record{}, nil
	}
	docs := make([]interface{}, len(recs))
	out := make([]query.Record, len(recs))
	for i, rec := range recs {
		doc := s.prepareInsert(rec)
		docs[i] = doc
		out[i] = toRecord(doc)
	}

	if _, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(true)); err != nil {
		s.log.WithError(err).Warn("insert many failed")
		if n := insertedBefore(err); n > 0 {
			ids := make(bson.A, n)
			for i := range ids {
				ids[i] = docs[i].(bson.M)[s.idField]
			}
			if _, cleanupErr := s.coll.DeleteMany(ctx, bson.M{s.idField: bson.M{"$in": ids}}); cleanupErr != nil {
				s.log.WithError(cleanupErr).Error("failed to remove partially inserted batch")
			}
		}
		return nil, errors.Wrapf(err, "insert into %s", s.name)
	}
	return out, nil
}

// insertedBefore returns how many documents of an ordered insert were
// written before err stopped it.
func insertedBefore(err error) int {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || len(bwe.WriteErrors) == 0 {
		return 0
	}
	return bwe.WriteErrors[0].Index
}

// setDocument builds the $set update, leaving the id untouched. It is nil
// when nothing would change.
func (s *Service) setDocument(update query.Record) bson.M {
	set := s.document(update)
	delete(set, s.idField)
	if len(set) == 0 {
		return nil
	}
	return bson.M{"$set": set}
}

// UpdateOne sets update on the document with id matching f and returns the
// updated document.
func (s *Service) UpdateOne(ctx context.Context, id any, update query.Record, f query.Filter) (query.Record, error) {
	filter, err := s.idFilter(id, f)
	if err != nil {
		return nil, err
	}
	var rec query.Record
	if set := s.setDocument(update); set != nil {
		opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
		rec, err = s.decodeOne(s.coll.FindOneAndUpdate(ctx, filter, set, opts), "update")
	} else {
		rec, err = s.decodeOne(s.coll.FindOne(ctx, filter), "find")
	}
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, query.NewNotFoundError(id)
	}
	return rec, nil
}

// UpdateMany sets update on every document matching f and returns how many
// matched.
func (s *Service) UpdateMany(ctx context.Context, update query.Record, f query.Filter) (int64, error) {
	set := s.setDocument(update)
	if set == nil {
		return s.Count(ctx, f)
	}
	filter, err := s.builder.BuildFilter(f)
	if err != nil {
		return 0, err
	}
	res, err := s.coll.UpdateMany(ctx, filter, set)
	if err != nil {
		s.log.WithError(err).Warn("update many failed")
		return 0, errors.Wrapf(err, "update %s", s.name)
	}
	return res.MatchedCount, nil
}

// DeleteOne removes the document with id matching f and returns it.
func (s *Service) DeleteOne(ctx context.Context, id any, f query.Filter) (query.Record, error) {
	filter, err := s.idFilter(id, f)
	if err != nil {
		return nil, err
	}
	rec, err := s.decodeOne(s.coll.FindOneAndDelete(ctx, filter), "delete")
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, query.NewNotFoundError(id)
	}
	return rec, nil
}

// DeleteMany removes every document matching f.
func (s *Service) DeleteMany(ctx context.Context, f query.Filter) (int64, error) {
	filter, err := s.builder.BuildFilter(f)
	if err != nil {
		return 0, err
	}
	res, err := s.coll.DeleteMany(ctx, filter)
	if err != nil {
		s.log.WithError(err).Warn("delete many failed")
		return 0, errors.Wrapf(err, "delete from %s", s.name)
	}
	return res.DeletedCount, nil
}
