package service

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/roach88/querykit/internal/memory"
	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/schema"
)

// RelationService loads related records for a batch of parents with one
// backend call per operation. Results are keyed by the parent's local key
// value; parents whose key is null are left out.
type RelationService struct {
	related QueryService
	log     logrus.FieldLogger
}

// NewRelationService creates a RelationService reading from the service of
// the related entity.
func NewRelationService(related QueryService, log logrus.FieldLogger) *RelationService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RelationService{
		related: related,
		log:     log.WithField("component", "relations"),
	}
}

// parentKeys collects the distinct non-null local keys of parents in order.
// The returned index maps a normalized key back to the parent's own value.
func parentKeys(rel schema.Relation, parents []query.Record) ([]any, map[any]any) {
	var keys []any
	index := map[any]any{}
	for _, p := range parents {
		v := p[rel.LocalKey]
		if v == nil {
			continue
		}
		k := relationKey(v)
		if _, seen := index[k]; seen {
			continue
		}
		index[k] = v
		keys = append(keys, v)
	}
	return keys, index
}

// relationKey normalizes a key value so that keys read from different
// backends compare equal: integers widen to int64 and other non-string
// scalars are formatted.
func relationKey(v any) any {
	switch t := v.(type) {
	case string:
		return t
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return cast.ToInt64(t)
	case float32, float64:
		f := cast.ToFloat64(t)
		if f == float64(int64(f)) {
			return int64(f)
		}
		return f
	case []byte:
		return string(t)
	}
	return fmt.Sprint(v)
}

func keysFilter(rel schema.Relation, keys []any, f query.Filter) query.Filter {
	return query.MergeFilter(f, query.IDFilter(rel.ForeignKey, keys...))
}

// QueryRelations returns the related records of every parent. The filter
// and ordering of q run in the backend; ordering and paging are then
// applied per parent.
func (s *RelationService) QueryRelations(ctx context.Context, rel schema.Relation, parents []query.Record, q query.Query) (map[any][]query.Record, error) {
	keys, index := parentKeys(rel, parents)
	out := make(map[any][]query.Record, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	for _, k := range keys {
		out[k] = []query.Record{}
	}

	s.log.WithFields(logrus.Fields{"relation": rel.Name, "parents": len(keys)}).Debug("querying relations")
	records, err := s.related.Query(ctx, query.Query{
		Filter:  keysFilter(rel, keys, q.Filter),
		Sorting: q.Sorting,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "query relation %s", rel.Name)
	}

	for _, r := range records {
		parent, ok := index[relationKey(r[rel.ForeignKey])]
		if !ok {
			continue
		}
		out[parent] = append(out[parent], r)
	}
	for k, group := range out {
		sorted := memory.SortBuilder{}.Sort(group, q.Sorting)
		out[k] = memory.PagingBuilder{}.Apply(sorted, q.Paging)
	}
	return out, nil
}

// AggregateRelations aggregates the related records of every parent. The
// foreign key is added to the grouping for the backend call and removed
// again unless agg groups by it itself. A parent without related records
// gets the result of aggregating nothing.
func (s *RelationService) AggregateRelations(ctx context.Context, rel schema.Relation, parents []query.Record, f query.Filter, agg query.AggregateQuery) (map[any][]query.AggregateResponse, error) {
	if err := agg.Check(); err != nil {
		return nil, err
	}
	keys, index := parentKeys(rel, parents)
	out := make(map[any][]query.AggregateResponse, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	grouped := agg
	keepKey := false
	for _, g := range agg.GroupBy {
		if g == rel.ForeignKey {
			keepKey = true
		}
	}
	if !keepKey {
		grouped.GroupBy = append(append([]string{}, agg.GroupBy...), rel.ForeignKey)
	}

	s.log.WithFields(logrus.Fields{"relation": rel.Name, "parents": len(keys)}).Debug("aggregating relations")
	rows, err := s.related.Aggregate(ctx, keysFilter(rel, keys, f), grouped)
	if err != nil {
		return nil, errors.Wrapf(err, "aggregate relation %s", rel.Name)
	}

	for _, row := range rows {
		key, _ := row.Get(query.FuncGroupBy, rel.ForeignKey)
		parent, ok := index[relationKey(key)]
		if !ok {
			continue
		}
		if !keepKey {
			delete(row.GroupBy, rel.ForeignKey)
			if len(row.GroupBy) == 0 {
				row.GroupBy = nil
			}
		}
		out[parent] = append(out[parent], row)
	}

	for _, k := range keys {
		if _, ok := out[k]; ok {
			continue
		}
		empty, err := memory.AggregateBuilder{}.Aggregate(nil, agg)
		if err != nil {
			return nil, err
		}
		out[k] = empty
	}
	return out, nil
}

// CountRelations counts the related records of every parent.
func (s *RelationService) CountRelations(ctx context.Context, rel schema.Relation, parents []query.Record, f query.Filter) (map[any]int64, error) {
	keys, index := parentKeys(rel, parents)
	out := make(map[any]int64, len(keys))
	for _, k := range keys {
		out[k] = 0
	}
	if len(keys) == 0 {
		return out, nil
	}

	rows, err := s.related.Aggregate(ctx, keysFilter(rel, keys, f), query.AggregateQuery{
		Count:   []string{rel.ForeignKey},
		GroupBy: []string{rel.ForeignKey},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "count relation %s", rel.Name)
	}
	for _, row := range rows {
		key, _ := row.Get(query.FuncGroupBy, rel.ForeignKey)
		parent, ok := index[relationKey(key)]
		if !ok {
			continue
		}
		n, _ := row.Get(query.FuncCount, rel.ForeignKey)
		count, err := cast.ToInt64E(n)
		if err != nil {
			return nil, errors.Wrapf(err, "count relation %s", rel.Name)
		}
		out[parent] = count
	}
	return out, nil
}

// FindRelation returns the record a to-one relation of parent points at,
// or nil when the key is null or nothing matches f.
func (s *RelationService) FindRelation(ctx context.Context, rel schema.Relation, parent query.Record, f query.Filter) (query.Record, error) {
	key := parent[rel.LocalKey]
	if key == nil {
		return nil, nil
	}
	records, err := s.related.Query(ctx, query.Query{
		Filter: keysFilter(rel, []any{key}, f),
		Paging: query.Limit(1, 0),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "find relation %s", rel.Name)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}
