package store

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/roach88/querykit/internal/query"
	"github.com/roach88/querykit/internal/schema"
)

// marshalValue converts a record value to a bindable column value. Maps and
// slices held by "any" fields are stored as JSON TEXT.
func marshalValue(field schema.Field, v any) (any, error) {
	if v == nil || field.Type != schema.TypeAny {
		return v, nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
	default:
		return v, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, errors.Wrapf(err, "marshal %s", field.Name)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// marshalRecord applies marshalValue to every declared field of rec.
func marshalRecord(e *schema.Entity, rec query.Record) (query.Record, error) {
	out := make(query.Record, len(rec))
	for k, v := range rec {
		f, ok := e.Field(k)
		if !ok {
			out[k] = v
			continue
		}
		mv, err := marshalValue(f, v)
		if err != nil {
			return nil, err
		}
		out[k] = mv
	}
	return out, nil
}

// unmarshalRow converts a scanned row into a record: []byte becomes string,
// JSON TEXT in "any" fields is decoded, and numbers in JSON keep integer
// precision.
func unmarshalRow(e *schema.Entity, row map[string]any) query.Record {
	rec := make(query.Record, len(row))
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		if f, ok := e.Field(k); ok && f.Type == schema.TypeAny {
			v = unmarshalJSONText(v)
		}
		rec[k] = v
	}
	return rec
}

func unmarshalJSONText(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return v
	}
	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return v
	}
	return normalizeJSON(decoded)
}

func normalizeJSON(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		return cast.ToFloat64(t.String())
	case map[string]any:
		for k, item := range t {
			t[k] = normalizeJSON(item)
		}
	case []any:
		for i, item := range t {
			t[i] = normalizeJSON(item)
		}
	}
	return v
}
