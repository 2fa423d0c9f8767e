// Package document compiles querykit queries into MongoDB filter documents
// and aggregation pipelines, and runs them through the official driver.
//
// Nested filters address embedded documents with dotted paths. Values of id
// fields are coerced to ObjectIDs when they are 24-digit hex strings, and
// ObjectIDs read back are returned as hex strings, so callers never handle
// driver types.
package document

import (
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/roach88/querykit/internal/query"
)

// ComparisonBuilder compiles a single field comparison into a filter
// document.
type ComparisonBuilder struct {
	// IDFields lists the paths whose values are coerced to ObjectIDs.
	IDFields map[string]bool
}

// Build compiles `field op value`.
func (b ComparisonBuilder) Build(field string, op query.Operator, value any) (bson.M, error) {
	if b.IDFields[field] && !op.IsLike() {
		value = coerceID(value)
	}

	switch op {
	case query.OpEq:
		return bson.M{field: bson.M{"$eq": value}}, nil
	case query.OpNeq:
		return bson.M{field: bson.M{"$ne": value}}, nil

	case query.OpGt, query.OpGte, query.OpLt, query.OpLte:
		if value == nil {
			return matchNone(field), nil
		}
		return bson.M{field: bson.M{"$" + string(op): value}}, nil

	case query.OpLike, query.OpNotLike, query.OpILike, query.OpNotILike:
		pattern, ok := value.(string)
		if !ok {
			return nil, query.NewInvalidFilterError(field, "%s on %s expects a string pattern, got %T", op, field, value)
		}
		re := LikeRegex(pattern, op == query.OpILike || op == query.OpNotILike)
		if op == query.OpNotLike || op == query.OpNotILike {
			// Non-string values never match a pattern, negated or not.
			return bson.M{field: bson.M{"$type": "string", "$not": re}}, nil
		}
		return bson.M{field: re}, nil

	case query.OpIn, query.OpNotIn:
		list, ok := listValues(value)
		if !ok {
			return nil, query.NewInvalidFilterError(field, "%s on %s expects a list, got %T", op, field, value)
		}
		if op == query.OpNotIn {
			return bson.M{field: bson.M{"$nin": list}}, nil
		}
		return bson.M{field: bson.M{"$in": list}}, nil

	case query.OpIs, query.OpIsNot:
		switch value.(type) {
		case nil, bool:
		default:
			return nil, query.NewInvalidFilterError(field, "%s on %s expects null, true or false, got %v", op, field, value)
		}
		if op == query.OpIsNot {
			return bson.M{field: bson.M{"$ne": value}}, nil
		}
		return bson.M{field: bson.M{"$eq": value}}, nil

	case query.OpBetween, query.OpNotBetween:
		rng, ok := query.AsRange(value)
		if !ok {
			return nil, query.NewMalformedBetweenError(field, value)
		}
		if op == query.OpNotBetween {
			return bson.M{"$or": bson.A{
				bson.M{field: bson.M{"$lt": rng.Lower}},
				bson.M{field: bson.M{"$gt": rng.Upper}},
			}}, nil
		}
		return bson.M{field: bson.M{"$gte": rng.Lower, "$lte": rng.Upper}}, nil
	}

	return nil, query.NewUnknownOperatorError(string(op))
}

// matchNone is a condition no document satisfies.
func matchNone(field string) bson.M {
	return bson.M{field: bson.M{"$in": bson.A{}}}
}

// LikeRegex translates a like pattern into an anchored regular expression.
// Only % is a wildcard. The s option lets % match across newlines.
func LikeRegex(pattern string, caseInsensitive bool) primitive.Regex {
	parts := strings.Split(pattern, "%")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	options := "s"
	if caseInsensitive {
		options = "is"
	}
	return primitive.Regex{Pattern: "^" + strings.Join(parts, ".*") + "$", Options: options}
}
