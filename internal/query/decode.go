package query

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

const (
	keyAnd = "and"
	keyOr  = "or"
)

// DecodeFilter builds a Filter from its map form.
//
// The map form uses "and" and "or" for groups. Every other key is a field;
// its value is a Comparison when all of its keys are operator names and a
// nested Filter otherwise:
//
//	{"age": {"gte": 18}, "author": {"name": {"eq": "ann"}}}
func DecodeFilter(m map[string]any) (Filter, error) {
	var f Filter
	for key, raw := range m {
		switch key {
		case keyAnd, keyOr:
			group, err := decodeGroup(key, raw)
			if err != nil {
				return Filter{}, err
			}
			if key == keyAnd {
				f.And = group
			} else {
				f.Or = group
			}
		default:
			ff, err := decodeFieldFilter(key, raw)
			if err != nil {
				return Filter{}, err
			}
			if f.Fields == nil {
				f.Fields = make(map[string]FieldFilter)
			}
			f.Fields[key] = ff
		}
	}
	return f, nil
}

// DecodeQuery builds a Query from its map form: an optional "filter" in the
// form DecodeFilter accepts, a "sorting" list of {field, direction, nulls}
// objects and a "paging" object with "limit" and "offset".
func DecodeQuery(m map[string]any) (Query, error) {
	var q Query
	for key, raw := range m {
		switch key {
		case "filter":
			fm, ok := asStringMap(raw)
			if !ok {
				return Query{}, NewInvalidFilterError(key, "'filter' expects a filter object, got %T", raw)
			}
			f, err := DecodeFilter(fm)
			if err != nil {
				return Query{}, err
			}
			q.Filter = f
		case "sorting":
			sorting, err := decodeSorting(raw)
			if err != nil {
				return Query{}, err
			}
			q.Sorting = sorting
		case "paging":
			p, err := decodePaging(raw)
			if err != nil {
				return Query{}, err
			}
			q.Paging = p
		default:
			return Query{}, NewInvalidFilterError(key, "unknown query key '%s'", key)
		}
	}
	return q, nil
}

func decodeSorting(raw any) ([]SortField, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, NewInvalidFilterError("sorting", "'sorting' expects a list, got %T", raw)
	}
	out := make([]SortField, 0, len(items))
	for _, item := range items {
		m, ok := asStringMap(item)
		if !ok {
			return nil, NewInvalidFilterError("sorting", "'sorting' entries must be objects, got %T", item)
		}
		field, err := cast.ToStringE(m["field"])
		if err != nil || field == "" {
			return nil, NewInvalidFilterError("sorting", "'sorting' entries need a field name")
		}
		out = append(out, SortField{
			Field:     field,
			Direction: Direction(strings.ToUpper(cast.ToString(m["direction"]))),
			Nulls:     NullsPlacement(strings.ToUpper(cast.ToString(m["nulls"]))),
		})
	}
	return out, nil
}

func decodePaging(raw any) (Paging, error) {
	m, ok := asStringMap(raw)
	if !ok {
		return Paging{}, NewInvalidFilterError("paging", "'paging' expects an object, got %T", raw)
	}
	var p Paging
	if v, ok := m["limit"]; ok && v != nil {
		limit, err := cast.ToIntE(normalizeValue(v))
		if err != nil {
			return Paging{}, NewInvalidFilterError("paging", "'limit' must be an integer, got %v", v)
		}
		p.Limit = &limit
	}
	if v, ok := m["offset"]; ok && v != nil {
		offset, err := cast.ToIntE(normalizeValue(v))
		if err != nil {
			return Paging{}, NewInvalidFilterError("paging", "'offset' must be an integer, got %v", v)
		}
		p.Offset = offset
	}
	return p, nil
}

func decodeGroup(key string, raw any) ([]Filter, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, NewInvalidFilterError(key, "'%s' expects a list of filters, got %T", key, raw)
	}
	group := make([]Filter, 0, len(items))
	for _, item := range items {
		m, ok := asStringMap(item)
		if !ok {
			return nil, NewInvalidFilterError(key, "'%s' entries must be filter objects, got %T", key, item)
		}
		sub, err := DecodeFilter(m)
		if err != nil {
			return nil, err
		}
		group = append(group, sub)
	}
	return group, nil
}

func decodeFieldFilter(field string, raw any) (FieldFilter, error) {
	m, ok := asStringMap(raw)
	if !ok {
		return nil, NewInvalidFilterError(field, "field '%s' expects an operator object, got %T", field, raw)
	}
	if isComparisonMap(m) {
		cmp := make(Comparison, len(m))
		for name, v := range m {
			op := Operator(name)
			v = normalizeValue(v)
			if op.IsRange() {
				if r, ok := AsRange(v); ok {
					v = r
				}
			}
			cmp[op] = v
		}
		return cmp, nil
	}
	nested, err := DecodeFilter(m)
	if err != nil {
		return nil, err
	}
	return &nested, nil
}

// isComparisonMap reports whether every key of m is an operator name.
// An empty object is treated as an empty comparison.
func isComparisonMap(m map[string]any) bool {
	for k := range m {
		if !IsOperator(k) {
			return false
		}
	}
	return true
}

func asStringMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			s, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[s] = val
		}
		return out, true
	}
	return nil, false
}

// normalizeValue turns json.Number into int64 or float64 and walks lists and
// maps so backends never see driver-unfriendly number strings.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case json.Number:
		if !strings.ContainsAny(val.String(), ".eE") {
			if i, err := val.Int64(); err == nil {
				return i
			}
		}
		if fl, err := val.Float64(); err == nil {
			return fl
		}
		return val.String()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeValue(item)
		}
		return out
	}
	return v
}

// Map renders f back into its map form.
func (f Filter) Map() map[string]any {
	m := make(map[string]any, len(f.Fields)+2)
	if len(f.And) > 0 {
		m[keyAnd] = groupMaps(f.And)
	}
	if len(f.Or) > 0 {
		m[keyOr] = groupMaps(f.Or)
	}
	for name, ff := range f.Fields {
		switch v := ff.(type) {
		case Comparison:
			cmp := make(map[string]any, len(v))
			for op, operand := range v {
				if r, ok := operand.(Range); ok {
					operand = map[string]any{"lower": r.Lower, "upper": r.Upper}
				}
				cmp[string(op)] = operand
			}
			m[name] = cmp
		default:
			if nested, ok := NestedFilter(ff); ok {
				m[name] = nested.Map()
			}
		}
	}
	return m
}

func groupMaps(group []Filter) []any {
	out := make([]any, len(group))
	for i, sub := range group {
		out[i] = sub.Map()
	}
	return out
}

// MarshalJSON encodes f in its map form.
func (f Filter) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Map())
}

// UnmarshalJSON decodes the map form. Numbers are decoded as int64 when
// integral and float64 otherwise.
func (f *Filter) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}
	decoded, err := DecodeFilter(m)
	if err != nil {
		return err
	}
	*f = decoded
	return nil
}

// MarshalYAML encodes f in its map form.
func (f Filter) MarshalYAML() (any, error) {
	return f.Map(), nil
}

// UnmarshalYAML decodes the map form from a YAML node.
func (f *Filter) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]any
	if err := node.Decode(&m); err != nil {
		return err
	}
	decoded, err := DecodeFilter(m)
	if err != nil {
		return err
	}
	*f = decoded
	return nil
}
