package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/roach88/querykit/internal/query"
)

func TestAggregateBuilder_Stages(t *testing.T) {
	t.Run("empty aggregate", func(t *testing.T) {
		_, err := AggregateBuilder{}.Stages(query.AggregateQuery{})
		require.Error(t, err)
		assert.True(t, query.IsEmptyAggregate(err))
	})

	t.Run("count and max without groups", func(t *testing.T) {
		got, err := AggregateBuilder{}.Stages(query.AggregateQuery{Count: []string{"id"}, Max: []string{"age"}})
		require.NoError(t, err)
		assert.Equal(t, mongo.Pipeline{
			{{Key: "$group", Value: bson.D{
				{Key: "_id", Value: nil},
				{Key: "count_id", Value: bson.M{"$sum": bson.M{"$cond": bson.A{isNull("id"), 0, 1}}}},
				{Key: "max_age", Value: bson.M{"$max": "$age"}},
			}}},
		}, got)
	})

	t.Run("grouped sum", func(t *testing.T) {
		got, err := AggregateBuilder{}.Stages(query.AggregateQuery{Sum: []string{"score"}, GroupBy: []string{"authorId"}})
		require.NoError(t, err)
		want := mongo.Pipeline{
			{{Key: "$group", Value: bson.D{
				{Key: "_id", Value: bson.D{{Key: "authorId", Value: "$authorId"}}},
				{Key: "sum_score", Value: bson.M{"$sum": "$score"}},
				{Key: "__summed_score", Value: bson.M{"$sum": bson.M{"$cond": bson.A{bson.M{"$isNumber": "$score"}, 1, 0}}}},
			}}},
			{{Key: "$addFields", Value: bson.D{
				{Key: "sum_score", Value: bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$__summed_score", 0}}, nil, "$sum_score"}}},
			}}},
			{{Key: "$project", Value: bson.D{{Key: "__summed_score", Value: 0}}}},
		}
		want = append(want, SortBuilder{}.Stages([]query.SortField{{Field: "_id.authorId", Direction: query.ASC}}, "")...)
		assert.Equal(t, want, got)
	})
}

func TestConvertAggregateRows(t *testing.T) {
	t.Run("grouped rows", func(t *testing.T) {
		q := query.AggregateQuery{Count: []string{"id"}, Sum: []string{"score"}, GroupBy: []string{"authorId"}}
		rows := []bson.M{
			{"_id": bson.M{"authorId": "u1"}, "count_id": int32(2), "sum_score": int32(17)},
			{"_id": bson.M{"authorId": nil}, "count_id": int32(1), "sum_score": nil},
		}

		got, err := ConvertAggregateRows(rows, q)
		require.NoError(t, err)
		assert.Equal(t, []query.AggregateResponse{
			{
				Count:   map[string]any{"id": int64(2)},
				Sum:     map[string]any{"score": int64(17)},
				GroupBy: map[string]any{"authorId": "u1"},
			},
			{
				Count:   map[string]any{"id": int64(1)},
				Sum:     map[string]any{"score": nil},
				GroupBy: map[string]any{"authorId": nil},
			},
		}, got)
	})

	t.Run("empty input without groups yields one row", func(t *testing.T) {
		q := query.AggregateQuery{Count: []string{"id"}, Avg: []string{"age"}}
		got, err := ConvertAggregateRows(nil, q)
		require.NoError(t, err)
		assert.Equal(t, []query.AggregateResponse{{
			Count: map[string]any{"id": int64(0)},
			Avg:   map[string]any{"age": nil},
		}}, got)
	})

	t.Run("empty input with groups yields nothing", func(t *testing.T) {
		q := query.AggregateQuery{Count: []string{"id"}, GroupBy: []string{"authorId"}}
		got, err := ConvertAggregateRows(nil, q)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("unknown column", func(t *testing.T) {
		q := query.AggregateQuery{Count: []string{"id"}}
		_, err := ConvertAggregateRows([]bson.M{{"_id": nil, "median_age": 3}}, q)
		require.Error(t, err)
		assert.True(t, query.IsUnknownAggregateColumn(err))
	})
}
