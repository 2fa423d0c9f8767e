package query

// QueryFieldMap maps field names of one model onto another, for example DTO
// fields onto entity fields.
type QueryFieldMap map[string]string

// Invert returns the reverse mapping.
func (m QueryFieldMap) Invert() QueryFieldMap {
	out := make(QueryFieldMap, len(m))
	for from, to := range m {
		out[to] = from
	}
	return out
}

func (m QueryFieldMap) lookup(field string) (string, error) {
	to, ok := m[field]
	if !ok {
		return "", NewUnmappedFieldError(field)
	}
	return to, nil
}

// TransformFilter renames every field of f through fieldMap. Nested filter
// values are moved under the mapped name unchanged. The first field without
// a mapping fails the whole transform. When several fields map onto the same
// name, the later ones move into And so every condition still applies.
func TransformFilter(f Filter, fieldMap QueryFieldMap) (Filter, error) {
	var out Filter
	var err error
	if out.And, err = transformGroup(f.And, fieldMap); err != nil {
		return Filter{}, err
	}
	if out.Or, err = transformGroup(f.Or, fieldMap); err != nil {
		return Filter{}, err
	}
	for _, name := range f.FieldKeys() {
		mapped, err := fieldMap.lookup(name)
		if err != nil {
			return Filter{}, err
		}
		if out.Fields == nil {
			out.Fields = make(map[string]FieldFilter, len(f.Fields))
		}
		if _, taken := out.Fields[mapped]; taken {
			out.And = append(out.And, Filter{Fields: map[string]FieldFilter{mapped: f.Fields[name]}})
			continue
		}
		out.Fields[mapped] = f.Fields[name]
	}
	return out, nil
}

func transformGroup(group []Filter, fieldMap QueryFieldMap) ([]Filter, error) {
	if group == nil {
		return nil, nil
	}
	out := make([]Filter, len(group))
	for i, sub := range group {
		t, err := TransformFilter(sub, fieldMap)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// TransformSort renames sort fields, keeping direction and null placement.
func TransformSort(sorting []SortField, fieldMap QueryFieldMap) ([]SortField, error) {
	if sorting == nil {
		return nil, nil
	}
	out := make([]SortField, len(sorting))
	for i, s := range sorting {
		mapped, err := fieldMap.lookup(s.Field)
		if err != nil {
			return nil, err
		}
		s.Field = mapped
		out[i] = s
	}
	return out, nil
}

// TransformQuery renames the filter and sort fields of q. Paging is kept.
func TransformQuery(q Query, fieldMap QueryFieldMap) (Query, error) {
	f, err := TransformFilter(q.Filter, fieldMap)
	if err != nil {
		return Query{}, err
	}
	sorting, err := TransformSort(q.Sorting, fieldMap)
	if err != nil {
		return Query{}, err
	}
	return Query{Filter: f, Sorting: sorting, Paging: q.Paging}, nil
}

// TransformAggregateQuery renames every field listed in q.
func TransformAggregateQuery(q AggregateQuery, fieldMap QueryFieldMap) (AggregateQuery, error) {
	var out AggregateQuery
	lists := []struct {
		src []string
		dst *[]string
	}{
		{q.Count, &out.Count},
		{q.Sum, &out.Sum},
		{q.Avg, &out.Avg},
		{q.Max, &out.Max},
		{q.Min, &out.Min},
		{q.GroupBy, &out.GroupBy},
	}
	for _, l := range lists {
		if l.src == nil {
			continue
		}
		mapped := make([]string, len(l.src))
		for i, field := range l.src {
			to, err := fieldMap.lookup(field)
			if err != nil {
				return AggregateQuery{}, err
			}
			mapped[i] = to
		}
		*l.dst = mapped
	}
	return out, nil
}

// TransformAggregateResponse renames the field keys of every function map in r.
func TransformAggregateResponse(r AggregateResponse, fieldMap QueryFieldMap) (AggregateResponse, error) {
	var out AggregateResponse
	for _, fn := range append([]AggregateFunc{FuncGroupBy}, AggregateFuncs...) {
		src := r.slot(fn)
		for field, v := range *src {
			to, err := fieldMap.lookup(field)
			if err != nil {
				return AggregateResponse{}, err
			}
			out.Set(fn, to, v)
		}
	}
	return out, nil
}

// TransformRecord renames the keys of rec. Keys without a mapping are dropped.
func TransformRecord(rec Record, fieldMap QueryFieldMap) Record {
	if rec == nil {
		return nil
	}
	out := make(Record, len(rec))
	for k, v := range rec {
		if to, ok := fieldMap[k]; ok {
			out[to] = v
		}
	}
	return out
}
