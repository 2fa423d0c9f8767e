package document

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/roach88/querykit/internal/query"
)

// nullRankPrefix names the temporary fields that carry null placement.
const nullRankPrefix = "__nullRank"

// SortBuilder compiles sort fields into pipeline stages.
type SortBuilder struct{}

// Sort returns the plain $sort document. Nulls take MongoDB's native
// placement: lowest ascending, highest descending.
func (SortBuilder) Sort(sorting []query.SortField) bson.D {
	d := make(bson.D, 0, len(sorting))
	for _, s := range sorting {
		d = append(d, bson.E{Key: s.Field, Value: direction(s)})
	}
	return d
}

// Stages returns the stages ordering documents by sorting and then by
// tiebreak, with nulls placed as each sort field requests. Every key gets a
// temporary rank field that sorts nulls before or after the values, and the
// rank fields are projected away again. tiebreak may be empty.
func (SortBuilder) Stages(sorting []query.SortField, tiebreak string) mongo.Pipeline {
	if len(sorting) == 0 && tiebreak == "" {
		return nil
	}

	ranks := bson.D{}
	order := bson.D{}
	unset := bson.D{}
	seenTiebreak := false
	for i, s := range sorting {
		rank := fmt.Sprintf("%s%d", nullRankPrefix, i)
		nullRank, valueRank := 1, 0
		if s.NullsFirst() {
			nullRank, valueRank = 0, 1
		}
		ranks = append(ranks, bson.E{Key: rank, Value: bson.M{
			"$cond": bson.A{isNull(s.Field), nullRank, valueRank},
		}})
		order = append(order, bson.E{Key: rank, Value: 1}, bson.E{Key: s.Field, Value: direction(s)})
		unset = append(unset, bson.E{Key: rank, Value: 0})
		if s.Field == tiebreak {
			seenTiebreak = true
		}
	}
	if tiebreak != "" && !seenTiebreak {
		order = append(order, bson.E{Key: tiebreak, Value: 1})
	}

	if len(ranks) == 0 {
		return mongo.Pipeline{{{Key: "$sort", Value: order}}}
	}
	return mongo.Pipeline{
		{{Key: "$addFields", Value: ranks}},
		{{Key: "$sort", Value: order}},
		{{Key: "$project", Value: unset}},
	}
}

func direction(s query.SortField) int {
	if s.Descending() {
		return -1
	}
	return 1
}

// isNull is an expression true when path is missing or null.
func isNull(path string) bson.M {
	return bson.M{"$in": bson.A{bson.M{"$type": "$" + path}, bson.A{"missing", "null"}}}
}

// PagingBuilder compiles a result window into pipeline stages.
type PagingBuilder struct{}

// Stages returns $skip and $limit stages. Negative offsets are ignored and
// a non-positive limit selects nothing.
func (PagingBuilder) Stages(p query.Paging) mongo.Pipeline {
	var stages mongo.Pipeline
	if p.Offset > 0 {
		stages = append(stages, bson.D{{Key: "$skip", Value: int64(p.Offset)}})
	}
	if p.Limit != nil {
		if *p.Limit <= 0 {
			// $limit must be positive.
			stages = append(stages, bson.D{{Key: "$match", Value: bson.M{"$expr": false}}})
		} else {
			stages = append(stages, bson.D{{Key: "$limit", Value: int64(*p.Limit)}})
		}
	}
	return stages
}

// FindOptions renders q's ordering and window as find options, using the
// plain $sort document. Use the pipeline stages when null placement or an
// empty window matters.
func FindOptions(q query.Query) *options.FindOptions {
	opts := options.Find()
	if len(q.Sorting) > 0 {
		opts.SetSort(SortBuilder{}.Sort(q.Sorting))
	}
	if q.Paging.Offset > 0 {
		opts.SetSkip(int64(q.Paging.Offset))
	}
	// A zero limit means "no limit" to find, so only positive limits are
	// carried over.
	if q.Paging.Limit != nil && *q.Paging.Limit > 0 {
		opts.SetLimit(int64(*q.Paging.Limit))
	}
	return opts
}
