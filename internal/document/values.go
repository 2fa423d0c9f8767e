package document

import (
	"reflect"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/querykit/internal/query"
)

// coerceID converts 24-digit hex strings to ObjectIDs. Lists, ranges and
// range maps are converted element by element; other values are returned
// unchanged.
func coerceID(v any) any {
	switch t := v.(type) {
	case string:
		if oid, err := primitive.ObjectIDFromHex(t); err == nil {
			return oid
		}
		return t
	case query.Range:
		return query.Range{Lower: coerceID(t.Lower), Upper: coerceID(t.Upper)}
	case *query.Range:
		if t == nil {
			return t
		}
		return query.Range{Lower: coerceID(t.Lower), Upper: coerceID(t.Upper)}
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = coerceID(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = coerceID(item)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = coerceID(item)
		}
		return out
	}
	return v
}

// listValues flattens an in/notIn operand into a bson array.
func listValues(v any) (bson.A, bool) {
	if v == nil {
		return nil, false
	}
	if list, ok := v.([]any); ok {
		return bson.A(list), true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make(bson.A, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// fromBSON converts a decoded bson value into plain Go values: documents
// become maps, arrays become slices, ObjectIDs become hex strings, dates
// become UTC times and 32-bit integers widen to int64.
func fromBSON(v any) any {
	switch t := v.(type) {
	case bson.M:
		return toRecord(t)
	case map[string]any:
		return toRecord(t)
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = fromBSON(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = fromBSON(item)
		}
		return out
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.Null, primitive.Undefined:
		return nil
	case int32:
		return int64(t)
	case time.Time:
		return t.UTC()
	}
	return v
}

// toRecord converts a decoded document into a record.
func toRecord(doc map[string]any) query.Record {
	rec := make(query.Record, len(doc))
	for k, v := range doc {
		rec[k] = fromBSON(v)
	}
	return rec
}
