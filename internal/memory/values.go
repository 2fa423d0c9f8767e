package memory

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// isNumber reports whether v holds a Go numeric kind or a json.Number.
func isNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, json.Number:
		return true
	}
	return false
}

// compareValues orders a against b. ok is false when the two values have no
// common ordering (different kinds, or kinds without an order).
func compareValues(a, b any) (cmp int, ok bool) {
	switch {
	case isNumber(a) && isNumber(b):
		fa, errA := cast.ToFloat64E(a)
		fb, errB := cast.ToFloat64E(b)
		if errA != nil || errB != nil {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}

	switch av := a.(type) {
	case string:
		if bv, isStr := b.(string); isStr {
			return strings.Compare(av, bv), true
		}
	case time.Time:
		if bv, isTime := b.(time.Time); isTime {
			switch {
			case av.Before(bv):
				return -1, true
			case av.After(bv):
				return 1, true
			}
			return 0, true
		}
	case bool:
		if bv, isBool := b.(bool); isBool {
			switch {
			case av == bv:
				return 0, true
			case !av:
				return -1, true
			}
			return 1, true
		}
	}
	return 0, false
}

// valuesEqual compares record values the way the eq operator does: numbers
// by value regardless of Go type, everything else structurally.
func valuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if cmp, ok := compareValues(a, b); ok {
		return cmp == 0
	}
	return reflect.DeepEqual(a, b)
}

// listValues flattens an in/notIn operand into a slice.
func listValues(v any) ([]any, bool) {
	if v == nil {
		return nil, false
	}
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// sortKey renders a value for the last-resort ordering of incomparable values.
func sortKey(v any) string {
	return fmt.Sprintf("%T:%v", v, v)
}
