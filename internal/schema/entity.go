// Package schema describes the entities queries run against: their fields,
// the type of each field, the column it is stored in, and the relations that
// nested filters may traverse.
//
// Descriptors are declared in CUE and compiled once into an immutable
// Registry. The Registry also owns the operator applicability table, which
// decides which comparison operators a field type accepts.
package schema

import (
	"fmt"
	"sort"

	"github.com/roach88/querykit/internal/query"
)

// FieldType is the declared type of an entity field.
type FieldType string

const (
	TypeID     FieldType = "id"
	TypeString FieldType = "string"
	TypeBool   FieldType = "bool"
	TypeNumber FieldType = "number"
	TypeTime   FieldType = "time"
	TypeAny    FieldType = "any"
)

// Field describes one queryable field.
type Field struct {
	Name   string    `json:"name"`
	Type   FieldType `json:"type"`
	Column string    `json:"column,omitempty"`
}

// ColumnName returns the storage column, defaulting to the field name.
func (f Field) ColumnName() string {
	if f.Column != "" {
		return f.Column
	}
	return f.Name
}

// Relation links an entity to another one. Nested filters on the relation
// name traverse it.
//
// LocalKey is a field on the owning entity and ForeignKey a field on the
// related entity. Many distinguishes to-many from to-one relations.
type Relation struct {
	Name       string `json:"name"`
	Entity     string `json:"entity"`
	LocalKey   string `json:"localKey"`
	ForeignKey string `json:"foreignKey"`
	Many       bool   `json:"many,omitempty"`
}

// Entity describes a queryable record type.
type Entity struct {
	Name      string              `json:"name"`
	Table     string              `json:"table"`
	IDField   string              `json:"id"`
	Fields    map[string]Field    `json:"fields"`
	Relations map[string]Relation `json:"relations,omitempty"`
}

// TableName returns the storage table or collection name.
func (e *Entity) TableName() string {
	if e.Table != "" {
		return e.Table
	}
	return e.Name
}

// Field looks up a field by name.
func (e *Entity) Field(name string) (Field, bool) {
	f, ok := e.Fields[name]
	return f, ok
}

// Relation looks up a relation by name.
func (e *Entity) Relation(name string) (Relation, bool) {
	r, ok := e.Relations[name]
	return r, ok
}

// Column returns the storage column for a field name. Unknown names are
// returned unchanged.
func (e *Entity) Column(name string) string {
	if f, ok := e.Fields[name]; ok {
		return f.ColumnName()
	}
	return name
}

// ColumnMap maps every field and relation name to its storage name.
// Relations map to themselves so nested filters survive the transform.
func (e *Entity) ColumnMap() query.QueryFieldMap {
	m := make(query.QueryFieldMap, len(e.Fields)+len(e.Relations))
	for name, f := range e.Fields {
		m[name] = f.ColumnName()
	}
	for name := range e.Relations {
		m[name] = name
	}
	return m
}

// FieldNames returns the declared field names sorted ascending.
func (e *Entity) FieldNames() []string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsIDField reports whether name is declared with the id type.
func (e *Entity) IsIDField(name string) bool {
	f, ok := e.Fields[name]
	return ok && f.Type == TypeID
}

// Registry is the immutable set of entity descriptors plus the operator
// applicability table. Build it once with NewRegistry; it is safe for
// concurrent reads afterwards.
type Registry struct {
	entities  map[string]*Entity
	operators map[FieldType]map[query.Operator]struct{}
}

var orderable = []query.Operator{
	query.OpEq, query.OpNeq,
	query.OpGt, query.OpGte, query.OpLt, query.OpLte,
	query.OpIn, query.OpNotIn,
	query.OpIs, query.OpIsNot,
	query.OpBetween, query.OpNotBetween,
}

// DefaultApplicability is the operator table used by NewRegistry.
func DefaultApplicability() map[FieldType][]query.Operator {
	return map[FieldType][]query.Operator{
		TypeBool:   {query.OpEq, query.OpNeq, query.OpIs, query.OpIsNot, query.OpIn, query.OpNotIn},
		TypeString: query.Operators,
		TypeID: {
			query.OpEq, query.OpNeq, query.OpIn, query.OpNotIn, query.OpIs, query.OpIsNot,
			query.OpGt, query.OpGte, query.OpLt, query.OpLte,
		},
		TypeNumber: orderable,
		TypeTime:   orderable,
		TypeAny:    query.Operators,
	}
}

// NewRegistry validates the descriptors and freezes them into a Registry.
// Every entity needs a declared id field, and every relation must point at
// a known entity through declared keys.
func NewRegistry(entities ...Entity) (*Registry, error) {
	r := &Registry{
		entities:  make(map[string]*Entity, len(entities)),
		operators: make(map[FieldType]map[query.Operator]struct{}),
	}
	for t, ops := range DefaultApplicability() {
		set := make(map[query.Operator]struct{}, len(ops))
		for _, op := range ops {
			set[op] = struct{}{}
		}
		r.operators[t] = set
	}

	for i := range entities {
		e := entities[i]
		if e.Name == "" {
			return nil, fmt.Errorf("entity %d: name is required", i)
		}
		if _, dup := r.entities[e.Name]; dup {
			return nil, fmt.Errorf("entity %s: declared twice", e.Name)
		}
		if e.IDField == "" {
			e.IDField = "id"
		}
		fields := make(map[string]Field, len(e.Fields))
		for name, f := range e.Fields {
			f.Name = name
			if _, ok := r.operators[f.Type]; !ok {
				return nil, fmt.Errorf("entity %s: field %s has unknown type %q", e.Name, name, f.Type)
			}
			fields[name] = f
		}
		e.Fields = fields
		relations := make(map[string]Relation, len(e.Relations))
		for name, rel := range e.Relations {
			rel.Name = name
			relations[name] = rel
		}
		e.Relations = relations
		if _, ok := e.Fields[e.IDField]; !ok {
			return nil, fmt.Errorf("entity %s: id field %q is not declared", e.Name, e.IDField)
		}
		r.entities[e.Name] = &e
	}

	for _, e := range r.entities {
		for name, rel := range e.Relations {
			target, ok := r.entities[rel.Entity]
			if !ok {
				return nil, fmt.Errorf("entity %s: relation %s targets unknown entity %q", e.Name, name, rel.Entity)
			}
			if _, ok := e.Fields[rel.LocalKey]; !ok {
				return nil, fmt.Errorf("entity %s: relation %s local key %q is not declared", e.Name, name, rel.LocalKey)
			}
			if _, ok := target.Fields[rel.ForeignKey]; !ok {
				return nil, fmt.Errorf("entity %s: relation %s foreign key %q is not declared on %s", e.Name, name, rel.ForeignKey, target.Name)
			}
		}
	}

	return r, nil
}

// MustRegistry is NewRegistry for static descriptors; it panics on error.
func MustRegistry(entities ...Entity) *Registry {
	r, err := NewRegistry(entities...)
	if err != nil {
		panic(err)
	}
	return r
}

// Entity looks up a descriptor by name.
func (r *Registry) Entity(name string) (*Entity, bool) {
	e, ok := r.entities[name]
	return e, ok
}

// EntityNames returns every registered entity name sorted ascending.
func (r *Registry) EntityNames() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Allows reports whether op may be applied to fields of type t.
func (r *Registry) Allows(t FieldType, op query.Operator) bool {
	_, ok := r.operators[t][op]
	return ok
}

// OperatorsFor returns the operators allowed on t in canonical order.
func (r *Registry) OperatorsFor(t FieldType) []query.Operator {
	var ops []query.Operator
	for _, op := range query.Operators {
		if r.Allows(t, op) {
			ops = append(ops, op)
		}
	}
	return ops
}
