package schema

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"
)

// CompileError represents a descriptor compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CompileEntity parses a CUE value into an Entity.
//
// The value is the entity struct itself, e.g.:
//
//	entity: User: {
//		table: "users"
//		id:    "id"
//		fields: {
//			id:    {type: "id"}
//			email: {type: "string", column: "email_address"}
//		}
//		relations: {
//			posts: {entity: "Post", localKey: "id", foreignKey: "authorId", many: true}
//		}
//	}
func CompileEntity(v cue.Value) (*Entity, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	e := &Entity{
		Fields:    map[string]Field{},
		Relations: map[string]Relation{},
	}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		e.Name = labels[len(labels)-1].String()
	}

	var err error
	if e.Table, err = optionalString(v, "table"); err != nil {
		return nil, err
	}
	if e.IDField, err = optionalString(v, "id"); err != nil {
		return nil, err
	}

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return nil, &CompileError{Field: "fields", Message: "fields are required", Pos: v.Pos()}
	}
	iter, err := fieldsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		fv := iter.Value()
		typ, err := optionalString(fv, "type")
		if err != nil {
			return nil, err
		}
		if typ == "" {
			return nil, &CompileError{Field: "type", Message: fmt.Sprintf("field %s: type is required", name), Pos: fv.Pos()}
		}
		column, err := optionalString(fv, "column")
		if err != nil {
			return nil, err
		}
		e.Fields[name] = Field{Name: name, Type: FieldType(typ), Column: column}
	}

	relVal := v.LookupPath(cue.ParsePath("relations"))
	if relVal.Exists() {
		iter, err := relVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			rel, err := compileRelation(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			e.Relations[rel.Name] = rel
		}
	}

	return e, nil
}

func compileRelation(name string, v cue.Value) (Relation, error) {
	rel := Relation{Name: name}
	var err error
	for _, f := range []struct {
		key string
		dst *string
	}{
		{"entity", &rel.Entity},
		{"localKey", &rel.LocalKey},
		{"foreignKey", &rel.ForeignKey},
	} {
		if *f.dst, err = optionalString(v, f.key); err != nil {
			return Relation{}, err
		}
		if *f.dst == "" {
			return Relation{}, &CompileError{
				Field:   "relations",
				Message: fmt.Sprintf("relation %s: %s is required", name, f.key),
				Pos:     v.Pos(),
			}
		}
	}

	manyVal := v.LookupPath(cue.ParsePath("many"))
	if manyVal.Exists() {
		if rel.Many, err = manyVal.Bool(); err != nil {
			return Relation{}, formatCUEError(err)
		}
	}
	return rel, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	sv := v.LookupPath(cue.ParsePath(path))
	if !sv.Exists() {
		return "", nil
	}
	s, err := sv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// CompileValue compiles every entity under the "entity" path of v.
func CompileValue(v cue.Value) ([]Entity, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	entitiesVal := v.LookupPath(cue.ParsePath("entity"))
	if !entitiesVal.Exists() {
		return nil, &CompileError{Field: "entity", Message: "no entities declared", Pos: v.Pos()}
	}
	iter, err := entitiesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var entities []Entity
	for iter.Next() {
		e, err := CompileEntity(iter.Value())
		if err != nil {
			return nil, err
		}
		entities = append(entities, *e)
	}
	return entities, nil
}

// CompileSource compiles CUE source text into a Registry.
func CompileSource(src string) (*Registry, error) {
	ctx := cuecontext.New()
	entities, err := CompileValue(ctx.CompileString(src))
	if err != nil {
		return nil, err
	}
	return NewRegistry(entities...)
}

// LoadDir loads every .cue file of dir as one CUE instance and compiles it
// into a Registry.
func LoadDir(dir string) (*Registry, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("schema directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.cue"))
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no CUE files found in %s", dir)
	}

	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances loaded from %s", dir)
	}
	if err := instances[0].Err; err != nil {
		return nil, fmt.Errorf("loading CUE files: %w", err)
	}

	ctx := cuecontext.New()
	value := ctx.BuildInstance(instances[0])
	entities, err := CompileValue(value)
	if err != nil {
		return nil, err
	}
	return NewRegistry(entities...)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
