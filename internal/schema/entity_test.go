package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/querykit/internal/query"
)

func TestNewRegistry_Errors(t *testing.T) {
	tests := []struct {
		name     string
		entities []Entity
		wantErr  string
	}{
		{
			name:     "missing name",
			entities: []Entity{{Fields: map[string]Field{"id": {Type: TypeID}}}},
			wantErr:  "name is required",
		},
		{
			name:     "missing id field",
			entities: []Entity{{Name: "A", Fields: map[string]Field{"x": {Type: TypeString}}}},
			wantErr:  `id field "id" is not declared`,
		},
		{
			name:     "unknown type",
			entities: []Entity{{Name: "A", Fields: map[string]Field{"id": {Type: "uuid"}}}},
			wantErr:  `unknown type "uuid"`,
		},
		{
			name: "duplicate entity",
			entities: []Entity{
				{Name: "A", Fields: map[string]Field{"id": {Type: TypeID}}},
				{Name: "A", Fields: map[string]Field{"id": {Type: TypeID}}},
			},
			wantErr: "declared twice",
		},
		{
			name: "relation to unknown entity",
			entities: []Entity{{
				Name:      "A",
				Fields:    map[string]Field{"id": {Type: TypeID}},
				Relations: map[string]Relation{"b": {Entity: "B", LocalKey: "id", ForeignKey: "aId"}},
			}},
			wantErr: `unknown entity "B"`,
		},
		{
			name: "relation foreign key undeclared",
			entities: []Entity{
				{
					Name:      "A",
					Fields:    map[string]Field{"id": {Type: TypeID}},
					Relations: map[string]Relation{"b": {Entity: "B", LocalKey: "id", ForeignKey: "aId"}},
				},
				{Name: "B", Fields: map[string]Field{"id": {Type: TypeID}}},
			},
			wantErr: `foreign key "aId" is not declared on B`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.entities...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewRegistry_CopiesDescriptors(t *testing.T) {
	fields := map[string]Field{"id": {Type: TypeID}}
	r := MustRegistry(Entity{Name: "A", Fields: fields})

	fields["extra"] = Field{Type: TypeString}
	a, _ := r.Entity("A")
	assert.Len(t, a.Fields, 1)
	assert.Equal(t, "id", a.Fields["id"].Name)
}

func TestRegistry_Applicability(t *testing.T) {
	r := MustRegistry(Entity{Name: "A", Fields: map[string]Field{"id": {Type: TypeID}}})

	tests := []struct {
		typ     FieldType
		op      query.Operator
		allowed bool
	}{
		{TypeBool, query.OpIs, true},
		{TypeBool, query.OpGt, false},
		{TypeBool, query.OpLike, false},
		{TypeString, query.OpILike, true},
		{TypeString, query.OpBetween, true},
		{TypeID, query.OpIn, true},
		{TypeID, query.OpLike, false},
		{TypeNumber, query.OpBetween, true},
		{TypeNumber, query.OpLike, false},
		{TypeTime, query.OpLte, true},
		{TypeTime, query.OpNotILike, false},
		{TypeAny, query.OpNotILike, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ)+"/"+string(tt.op), func(t *testing.T) {
			assert.Equal(t, tt.allowed, r.Allows(tt.typ, tt.op))
		})
	}

	assert.Equal(t, []query.Operator{
		query.OpEq, query.OpNeq, query.OpIn, query.OpNotIn, query.OpIs, query.OpIsNot,
	}, r.OperatorsFor(TypeBool))
}

func TestEntity_ColumnMap(t *testing.T) {
	r, err := CompileSource(blogSchema)
	require.NoError(t, err)
	user, _ := r.Entity("User")

	assert.Equal(t, query.QueryFieldMap{
		"id":    "id",
		"name":  "name",
		"email": "email_address",
		"age":   "age",
		"posts": "posts",
	}, user.ColumnMap())
	assert.True(t, user.IsIDField("id"))
	assert.False(t, user.IsIDField("name"))
	assert.Equal(t, "unknown", user.Column("unknown"))
	assert.Equal(t, []string{"age", "email", "id", "name"}, user.FieldNames())
}
