package querysql

import (
	"fmt"
	"reflect"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/querykit/internal/query"
)

// likeEscape is declared on every LIKE so '_' and the escape character
// itself are matched literally; only '%' is a wildcard.
const likeEscape = ` ESCAPE '\'`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `_`, `\_`)

// ComparisonBuilder compiles one operator applied to one column.
type ComparisonBuilder struct {
	Dialect Dialect
}

// Build compiles `column op value`. column must already be quoted.
func (b ComparisonBuilder) Build(column string, op query.Operator, value any) (sq.Sqlizer, error) {
	switch op {
	case query.OpEq:
		return sq.Eq{column: value}, nil
	case query.OpNeq:
		return sq.NotEq{column: value}, nil

	case query.OpGt, query.OpGte, query.OpLt, query.OpLte:
		if value == nil {
			// ordering against null is never true
			return sq.Or{}, nil
		}
		switch op {
		case query.OpGt:
			return sq.Gt{column: value}, nil
		case query.OpGte:
			return sq.GtOrEq{column: value}, nil
		case query.OpLt:
			return sq.Lt{column: value}, nil
		default:
			return sq.LtOrEq{column: value}, nil
		}

	case query.OpLike, query.OpNotLike, query.OpILike, query.OpNotILike:
		pattern, ok := value.(string)
		if !ok {
			return nil, query.NewInvalidFilterError(column, "%s on %s expects a string pattern, got %T", op, column, value)
		}
		return b.like(column, op, likeEscaper.Replace(pattern)), nil

	case query.OpIn, query.OpNotIn:
		if !isList(value) {
			return nil, query.NewInvalidFilterError(column, "%s on %s expects a list, got %T", op, column, value)
		}
		if op == query.OpIn {
			return sq.Eq{column: value}, nil
		}
		return sq.NotEq{column: value}, nil

	case query.OpIs, query.OpIsNot:
		lit, err := isLiteral(column, op, value)
		if err != nil {
			return nil, err
		}
		kw := "IS"
		if op == query.OpIsNot {
			kw = "IS NOT"
		}
		return sq.Expr(fmt.Sprintf("%s %s %s", column, kw, lit)), nil

	case query.OpBetween, query.OpNotBetween:
		rng, ok := query.AsRange(value)
		if !ok {
			return nil, query.NewMalformedBetweenError(column, value)
		}
		kw := "BETWEEN"
		if op == query.OpNotBetween {
			kw = "NOT BETWEEN"
		}
		return sq.Expr(fmt.Sprintf("%s %s ? AND ?", column, kw), rng.Lower, rng.Upper), nil
	}

	return nil, query.NewUnknownOperatorError(string(op))
}

func (b ComparisonBuilder) like(column string, op query.Operator, pattern string) sq.Sqlizer {
	negate := op == query.OpNotLike || op == query.OpNotILike
	kw := "LIKE"
	if negate {
		kw = "NOT LIKE"
	}

	if op == query.OpILike || op == query.OpNotILike {
		if b.Dialect == Postgres {
			kw = "ILIKE"
			if negate {
				kw = "NOT ILIKE"
			}
			return sq.Expr(fmt.Sprintf("%s %s ?%s", column, kw, likeEscape), pattern)
		}
		return sq.Expr(fmt.Sprintf("LOWER(%s) %s LOWER(?)%s", column, kw, likeEscape), pattern)
	}
	return sq.Expr(fmt.Sprintf("%s %s ?%s", column, kw, likeEscape), pattern)
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// isLiteral renders the right-hand side of IS / IS NOT. Only null and
// booleans are accepted, so nothing user-supplied reaches the SQL text.
func isLiteral(column string, op query.Operator, v any) (string, error) {
	switch v {
	case nil:
		return "NULL", nil
	case true:
		return "TRUE", nil
	case false:
		return "FALSE", nil
	}
	return "", query.NewInvalidFilterError(column, "%s on %s expects null, true or false, got %v", op, column, v)
}
