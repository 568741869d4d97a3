// Package codec converts model.Objects to and from the flat field maps the
// backing store keeps in hash records. A registry of schemas keyed by the
// object's kind tag picks the representation; children are never embedded in
// a parent's record because the store cannot nest collections inside a hash.
package codec

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spacefleet/spaceship/internal/model"
)

// ErrInvalidObject marks a record whose kind tag is unrecognized or whose
// fields cannot be decoded.
var ErrInvalidObject = errors.New("codec: invalid object")

const (
	fieldName = "name"
	fieldKind = "kind"
	fieldMass = "mass_kg"
)

// Schema encodes and decodes one object kind.
type Schema interface {
	Dump(obj *model.Object) (map[string]string, error)
	Load(fields map[string]string) (*model.Object, error)
}

// Registry maps kind tags to schemas.
type Registry struct {
	schemas map[model.Kind]Schema
}

// NewRegistry returns a registry preloaded with the built-in simple and
// container schemas.
func NewRegistry() *Registry {
	r := &Registry{schemas: make(map[model.Kind]Schema)}
	r.Register(model.KindSimple, baseSchema{kind: model.KindSimple})
	r.Register(model.KindContainer, baseSchema{kind: model.KindContainer})
	return r
}

// Register adds or replaces the schema for a kind.
func (r *Registry) Register(kind model.Kind, s Schema) {
	r.schemas[kind] = s
}

// Marshal encodes an object's own fields (children excluded).
func (r *Registry) Marshal(obj *model.Object) (map[string]string, error) {
	if err := obj.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidObject, err)
	}
	schema, ok := r.schemas[obj.Kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidObject, obj.Kind)
	}
	return schema.Dump(obj)
}

// Unmarshal decodes a field map by its kind tag. An empty map, a missing or
// unknown kind, or malformed fields yield ErrInvalidObject.
func (r *Registry) Unmarshal(fields map[string]string) (*model.Object, error) {
	kind, ok := fields[fieldKind]
	if !ok {
		return nil, fmt.Errorf("%w: record has no kind tag", ErrInvalidObject)
	}
	schema, ok := r.schemas[model.Kind(kind)]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidObject, kind)
	}
	return schema.Load(fields)
}

// baseSchema handles the two built-in kinds; both serialize to the same
// three fields.
type baseSchema struct {
	kind model.Kind
}

func (s baseSchema) Dump(obj *model.Object) (map[string]string, error) {
	return map[string]string{
		fieldName: obj.Name,
		fieldKind: string(obj.Kind),
		fieldMass: strconv.FormatFloat(obj.MassKg, 'f', -1, 64),
	}, nil
}

func (s baseSchema) Load(fields map[string]string) (*model.Object, error) {
	name, ok := fields[fieldName]
	if !ok || name == "" {
		return nil, fmt.Errorf("%w: record has no name", ErrInvalidObject)
	}
	mass, err := strconv.ParseFloat(fields[fieldMass], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad mass for %q: %v", ErrInvalidObject, name, err)
	}
	obj := &model.Object{Name: name, MassKg: mass, Kind: s.kind}
	if s.kind == model.KindContainer {
		obj.Children = make(map[string]*model.Object)
	}
	return obj, nil
}
