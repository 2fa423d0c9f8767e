package document

import (
	"go.mongodb.org/mongo-driver/bson"

	"github.com/roach88/querykit/internal/query"
)

// WhereBuilder compiles a Filter tree into a filter document.
type WhereBuilder struct {
	comparisons ComparisonBuilder
}

// NewWhereBuilder creates a WhereBuilder coercing the values of idFields to
// ObjectIDs.
func NewWhereBuilder(idFields ...string) *WhereBuilder {
	ids := make(map[string]bool, len(idFields))
	for _, f := range idFields {
		ids[f] = true
	}
	return &WhereBuilder{comparisons: ComparisonBuilder{IDFields: ids}}
}

// Build compiles f. The empty filter compiles to the empty document, which
// matches everything.
func (b *WhereBuilder) Build(f query.Filter) (bson.M, error) {
	return b.build("", f)
}

func (b *WhereBuilder) build(prefix string, f query.Filter) (bson.M, error) {
	var parts []bson.M

	if len(f.And) > 0 {
		group, err := b.buildGroup(prefix, f.And)
		if err != nil {
			return nil, err
		}
		parts = append(parts, allOf(group))
	}
	if len(f.Or) > 0 {
		group, err := b.buildGroup(prefix, f.Or)
		if err != nil {
			return nil, err
		}
		parts = append(parts, anyOf(group))
	}
	for _, name := range f.FieldKeys() {
		p, err := b.buildField(prefix+name, f.Fields[name])
		if err != nil {
			return nil, err
		}
		parts = append(parts, p)
	}

	return allOf(parts), nil
}

func (b *WhereBuilder) buildGroup(prefix string, group []query.Filter) ([]bson.M, error) {
	docs := make([]bson.M, 0, len(group))
	for _, sub := range group {
		d, err := b.build(prefix, sub)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, nil
}

func (b *WhereBuilder) buildField(path string, ff query.FieldFilter) (bson.M, error) {
	if cmp, ok := ff.(query.Comparison); ok {
		ops := cmp.Operators()
		docs := make([]bson.M, 0, len(ops))
		for _, op := range ops {
			d, err := b.comparisons.Build(path, op, cmp[op])
			if err != nil {
				return nil, err
			}
			docs = append(docs, d)
		}
		if len(docs) == 0 {
			return bson.M{}, nil
		}
		return anyOf(docs), nil
	}

	nested, ok := query.NestedFilter(ff)
	if !ok {
		return nil, query.NewInvalidFilterError(path, "unsupported filter for %s: %T", path, ff)
	}
	return b.build(path+".", nested)
}

// allOf ANDs docs, dropping the ones that match everything.
func allOf(docs []bson.M) bson.M {
	var kept bson.A
	for _, d := range docs {
		if len(d) > 0 {
			kept = append(kept, d)
		}
	}
	switch len(kept) {
	case 0:
		return bson.M{}
	case 1:
		return kept[0].(bson.M)
	}
	return bson.M{"$and": kept}
}

// anyOf ORs docs. One that matches everything makes the whole group match
// everything.
func anyOf(docs []bson.M) bson.M {
	if len(docs) == 1 {
		return docs[0]
	}
	alts := make(bson.A, 0, len(docs))
	for _, d := range docs {
		if len(d) == 0 {
			return bson.M{}
		}
		alts = append(alts, d)
	}
	return bson.M{"$or": alts}
}
