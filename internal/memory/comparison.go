// Package memory evaluates queries against in-memory records. Its semantics
// are the reference every other backend is checked against.
package memory

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/querykit/internal/query"
)

// Predicate reports whether a record satisfies a compiled filter.
type Predicate func(query.Record) bool

func matchAll(query.Record) bool { return true }

// ComparisonBuilder compiles a single field comparison into a Predicate.
type ComparisonBuilder struct{}

// Build compiles `field op value`. Like patterns are compiled once here,
// not per record.
func (ComparisonBuilder) Build(field string, op query.Operator, value any) (Predicate, error) {
	get := func(r query.Record) any { return r[field] }

	switch op {
	case query.OpEq:
		return func(r query.Record) bool { return valuesEqual(get(r), value) }, nil
	case query.OpNeq:
		return func(r query.Record) bool { return !valuesEqual(get(r), value) }, nil

	case query.OpGt, query.OpGte, query.OpLt, query.OpLte:
		accept := orderAcceptor(op)
		return func(r query.Record) bool {
			v := get(r)
			if v == nil || value == nil {
				return false
			}
			cmp, ok := compareValues(v, value)
			return ok && accept(cmp)
		}, nil

	case query.OpLike, query.OpNotLike, query.OpILike, query.OpNotILike:
		pattern, ok := value.(string)
		if !ok {
			return nil, query.NewInvalidFilterError(field, "%s on '%s' expects a string pattern, got %T", op, field, value)
		}
		re, err := LikeRegexp(pattern, op == query.OpILike || op == query.OpNotILike)
		if err != nil {
			return nil, err
		}
		negate := op == query.OpNotLike || op == query.OpNotILike
		return func(r query.Record) bool {
			s, ok := get(r).(string)
			if !ok {
				return false
			}
			return re.MatchString(norm.NFC.String(s)) != negate
		}, nil

	case query.OpIn, query.OpNotIn:
		list, ok := listValues(value)
		if !ok {
			return nil, query.NewInvalidFilterError(field, "%s on '%s' expects a list, got %T", op, field, value)
		}
		negate := op == query.OpNotIn
		return func(r query.Record) bool {
			v := get(r)
			for _, item := range list {
				if valuesEqual(v, item) {
					return !negate
				}
			}
			return negate
		}, nil

	case query.OpIs:
		return func(r query.Record) bool { return valuesEqual(get(r), value) }, nil
	case query.OpIsNot:
		return func(r query.Record) bool { return !valuesEqual(get(r), value) }, nil

	case query.OpBetween, query.OpNotBetween:
		rng, ok := query.AsRange(value)
		if !ok {
			return nil, query.NewMalformedBetweenError(field, value)
		}
		negate := op == query.OpNotBetween
		return func(r query.Record) bool {
			v := get(r)
			if v == nil {
				return false
			}
			lo, okLo := compareValues(v, rng.Lower)
			hi, okHi := compareValues(v, rng.Upper)
			if !okLo || !okHi {
				return false
			}
			inside := lo >= 0 && hi <= 0
			return inside != negate
		}, nil
	}

	return nil, query.NewUnknownOperatorError(string(op))
}

func orderAcceptor(op query.Operator) func(int) bool {
	switch op {
	case query.OpGt:
		return func(c int) bool { return c > 0 }
	case query.OpGte:
		return func(c int) bool { return c >= 0 }
	case query.OpLt:
		return func(c int) bool { return c < 0 }
	}
	return func(c int) bool { return c <= 0 }
}

// LikeRegexp translates a like pattern into an anchored regular expression.
// Only % is a wildcard; every other character matches itself. The pattern is
// NFC-normalized so composed and decomposed text compare equal.
func LikeRegexp(pattern string, caseInsensitive bool) (*regexp.Regexp, error) {
	parts := strings.Split(norm.NFC.String(pattern), "%")
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	expr := "^" + strings.Join(parts, ".*") + "$"
	flags := "(?s)"
	if caseInsensitive {
		flags = "(?is)"
	}
	return regexp.Compile(flags + expr)
}
