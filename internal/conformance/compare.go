package conformance

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/spf13/cast"

	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/schema"
)

// Normalize maps backend values onto one representation so outcomes from
// different drivers compare equal: every number becomes a float64, byte
// slices become strings and times become RFC 3339 strings. Maps and lists
// are normalized recursively.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil, bool, string:
		return val
	case []byte:
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Normalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Normalize(item)
		}
		return out
	}
	if f, err := cast.ToFloat64E(v); err == nil {
		return f
	}
	return v
}

func normalizeRows(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = Normalize(row).(map[string]any)
	}
	return out
}

// project keeps the declared fields of e, so embedded relations and driver
// specific extras do not take part in comparisons. Missing fields are nil.
func project(e *schema.Entity, rec query.Record) map[string]any {
	out := make(map[string]any, len(e.Fields))
	for _, name := range e.FieldNames() {
		out[name] = Normalize(rec[name])
	}
	return out
}

// Equal reports whether two outcomes agree, ignoring the backend name.
func (o *Outcome) Equal(other *Outcome) bool {
	a, b := *o, *other
	a.Backend, b.Backend = "", ""
	return reflect.DeepEqual(a, b)
}

// describe renders the comparable part of an outcome for failure messages.
func (o *Outcome) describe() string {
	switch {
	case o.ErrCode != "":
		return "error " + o.ErrCode
	case o.Count != nil:
		return fmt.Sprintf("count %d", *o.Count)
	case o.Rows != nil:
		return "rows " + jsonText(o.Rows)
	}
	return "records " + jsonText(o.Records)
}

func jsonText(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// checkExpect returns one message per unmet expectation.
func checkExpect(exp Expect, o *Outcome) []string {
	var errs []string
	if exp.Error != "" {
		if o.ErrCode != exp.Error {
			errs = append(errs, fmt.Sprintf("expected error %s, got %s", exp.Error, o.describe()))
		}
		return errs
	}
	if o.ErrCode != "" {
		return []string{"unexpected error " + o.ErrCode}
	}

	if exp.IDs != nil {
		want := Normalize(exp.IDs)
		got := Normalize(o.IDs)
		if !reflect.DeepEqual(want, got) {
			errs = append(errs, fmt.Sprintf("expected ids %s, got %s", jsonText(want), jsonText(got)))
		}
	}
	if exp.Count != nil {
		if o.Count == nil || *o.Count != *exp.Count {
			errs = append(errs, fmt.Sprintf("expected count %d, got %s", *exp.Count, o.describe()))
		}
	}
	if exp.Rows != nil {
		want := normalizeRows(exp.Rows)
		if !reflect.DeepEqual(want, o.Rows) {
			errs = append(errs, fmt.Sprintf("expected rows %s, got %s", jsonText(want), jsonText(o.Rows)))
		}
	}
	return errs
}
