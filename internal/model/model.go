// Package model defines the core domain types shared across the spaceship
// subsystems: cargo objects, velocities and compass directions.
package model

import (
	"errors"
	"fmt"
	"strings"
)

// Direction is one of the eight compass points used to track motion in space.
type Direction uint8

const (
	North Direction = iota + 1
	NorthEast
	East
	SouthEast
	South
	SouthWest
	West
	NorthWest
)

var directionNames = map[Direction]string{
	North:     "N",
	NorthEast: "NE",
	East:      "E",
	SouthEast: "SE",
	South:     "S",
	SouthWest: "SW",
	West:      "W",
	NorthWest: "NW",
}

func (d Direction) String() string {
	if name, ok := directionNames[d]; ok {
		return name
	}
	return fmt.Sprintf("Direction(%d)", uint8(d))
}

// Valid reports whether d is one of the eight compass points.
func (d Direction) Valid() bool {
	_, ok := directionNames[d]
	return ok
}

// ParseDirection converts a compass point name ("N", "NE", ...) to a Direction.
func ParseDirection(s string) (Direction, error) {
	for d, name := range directionNames {
		if strings.EqualFold(s, name) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// Velocity is a speed in km/h along a compass direction.
type Velocity struct {
	SpeedKmh  float64
	Direction Direction
}

// Kind discriminates the serialization schema of a stored object.
type Kind string

const (
	// KindSimple is a plain object with a name and a mass.
	KindSimple Kind = "simple"
	// KindContainer is an object that holds named child objects. Its MassKg
	// already includes the mass of every child.
	KindContainer Kind = "container"
)

// Object is a storable cargo entity. Containers carry their children in
// Children; for simple objects Children is nil.
type Object struct {
	Name     string
	MassKg   float64
	Kind     Kind
	Children map[string]*Object
}

// NewSimple builds a simple object.
func NewSimple(name string, massKg float64) *Object {
	return &Object{Name: name, MassKg: massKg, Kind: KindSimple}
}

// NewContainer builds a container object. massKg must already include the
// mass of the given children.
func NewContainer(name string, massKg float64, children ...*Object) *Object {
	c := &Object{Name: name, MassKg: massKg, Kind: KindContainer, Children: make(map[string]*Object)}
	for _, child := range children {
		c.Children[child.Name] = child
	}
	return c
}

// Validate checks the structural invariants of an object tree.
func (o *Object) Validate() error {
	if o == nil {
		return errors.New("nil object")
	}
	if o.Name == "" {
		return errors.New("object has no name")
	}
	if o.MassKg < 0 {
		return fmt.Errorf("object %q has negative mass %f", o.Name, o.MassKg)
	}
	switch o.Kind {
	case KindSimple:
		if len(o.Children) > 0 {
			return fmt.Errorf("simple object %q has children", o.Name)
		}
	case KindContainer:
		for name, child := range o.Children {
			if child == nil {
				return fmt.Errorf("container %q has nil child %q", o.Name, name)
			}
			if err := child.Validate(); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("object %q has unknown kind %q", o.Name, o.Kind)
	}
	return nil
}

// ChildNames returns the names of direct children, or nil for simple objects.
func (o *Object) ChildNames() []string {
	if len(o.Children) == 0 {
		return nil
	}
	names := make([]string, 0, len(o.Children))
	for name := range o.Children {
		names = append(names, name)
	}
	return names
}
