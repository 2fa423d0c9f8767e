package document

import (
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/roach88/querykit/internal/query"
)

// summedPrefix names the temporary counters that tell an empty sum from a
// zero one.
const summedPrefix = "__summed_"

// AggregateBuilder compiles an AggregateQuery into $group stages.
type AggregateBuilder struct{}

// Stages returns the stages computing q. Output documents carry the group
// keys under _id and one field per selection named by the alias contract.
// Groups are ordered by their keys ascending with nulls last.
func (AggregateBuilder) Stages(q query.AggregateQuery) (mongo.Pipeline, error) {
	if err := q.Check(); err != nil {
		return nil, err
	}

	var id any
	if len(q.GroupBy) > 0 {
		keys := make(bson.D, 0, len(q.GroupBy))
		for _, f := range q.GroupBy {
			keys = append(keys, bson.E{Key: f, Value: "$" + f})
		}
		id = keys
	}

	group := bson.D{{Key: "_id", Value: id}}
	fixSums := bson.D{}
	dropCounters := bson.D{}
	for _, sel := range q.Selections() {
		path := "$" + sel.Field
		switch sel.Func {
		case query.FuncCount:
			group = append(group, bson.E{Key: sel.Alias, Value: bson.M{
				"$sum": bson.M{"$cond": bson.A{isNull(sel.Field), 0, 1}},
			}})
		case query.FuncSum:
			counter := summedPrefix + sel.Field
			group = append(group,
				bson.E{Key: sel.Alias, Value: bson.M{"$sum": path}},
				bson.E{Key: counter, Value: bson.M{
					"$sum": bson.M{"$cond": bson.A{bson.M{"$isNumber": path}, 1, 0}},
				}},
			)
			// $sum yields 0 for no numbers; report null like the other backends.
			fixSums = append(fixSums, bson.E{Key: sel.Alias, Value: bson.M{
				"$cond": bson.A{bson.M{"$eq": bson.A{"$" + counter, 0}}, nil, "$" + sel.Alias},
			}})
			dropCounters = append(dropCounters, bson.E{Key: counter, Value: 0})
		default:
			group = append(group, bson.E{Key: sel.Alias, Value: bson.M{"$" + string(sel.Func): path}})
		}
	}

	stages := mongo.Pipeline{{{Key: "$group", Value: group}}}
	if len(fixSums) > 0 {
		stages = append(stages,
			bson.D{{Key: "$addFields", Value: fixSums}},
			bson.D{{Key: "$project", Value: dropCounters}},
		)
	}
	if len(q.GroupBy) > 0 {
		sorting := make([]query.SortField, len(q.GroupBy))
		for i, f := range q.GroupBy {
			sorting[i] = query.SortField{Field: "_id." + f, Direction: query.ASC}
		}
		stages = append(stages, SortBuilder{}.Stages(sorting, "")...)
	}
	return stages, nil
}

// ConvertAggregateRows normalizes $group output: the keys under _id become
// groupBy columns, then every row goes through the alias contract. Without
// group-by fields an empty result still yields one row, with zero counts and
// null for every other function.
func ConvertAggregateRows(rows []bson.M, q query.AggregateQuery) ([]query.AggregateResponse, error) {
	if len(rows) == 0 && len(q.GroupBy) == 0 {
		row := map[string]any{}
		for _, sel := range q.Selections() {
			if sel.Func == query.FuncCount {
				row[sel.Alias] = int64(0)
			} else {
				row[sel.Alias] = nil
			}
		}
		resp, err := query.ConvertToAggregateResponse(row)
		if err != nil {
			return nil, err
		}
		return []query.AggregateResponse{resp}, nil
	}

	flat := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out := make(map[string]any, len(row))
		for k, v := range row {
			if k == "_id" {
				continue
			}
			out[k] = fromBSON(v)
		}
		if keys, ok := fromBSON(row["_id"]).(map[string]any); ok {
			for _, f := range q.GroupBy {
				out[query.AggregateAlias(query.FuncGroupBy, f)] = keys[f]
			}
		} else {
			for _, f := range q.GroupBy {
				out[query.AggregateAlias(query.FuncGroupBy, f)] = nil
			}
		}
		flat = append(flat, out)
	}
	return query.ConvertToAggregateResponses(flat)
}
