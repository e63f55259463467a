// Package gtype implements the canonical type algebra: payload kind, unit
// and cardinality, plus unit-adapter discovery between them.
//
// The package name avoids the reserved word "type"; it otherwise mirrors
// the donor codebase's habit of a small, dependency-free leaf package
// (see cgra.Side in the reference CGRA topology package) holding one
// closed enumeration and its name table.
package gtype

import "fmt"

// Payload is the scalar shape carried by a single lane of a value.
type Payload int

const (
	Float Payload = iota
	Int
	Color
	Vec2
	Vec3
	Vec4
	Phase
	Enum
	Object
)

var payloadNames = [...]string{
	Float: "float", Int: "int", Color: "color",
	Vec2: "vec2", Vec3: "vec3", Vec4: "vec4",
	Phase: "phase", Enum: "enum", Object: "object",
}

func (p Payload) String() string {
	if int(p) < len(payloadNames) {
		return payloadNames[p]
	}
	return fmt.Sprintf("payload(%d)", int(p))
}

// Arity is the number of float64 lanes a single value of this payload
// occupies in a value or state slot.
func (p Payload) Arity() int {
	switch p {
	case Vec2:
		return 2
	case Vec3:
		return 3
	case Vec4, Color:
		return 4
	default:
		return 1
	}
}

// Unit constrains how a payload's numbers are interpreted. The empty Unit
// means "no unit declared" and is only adaptable to itself.
type Unit string

const (
	UnitNone    Unit = ""
	UnitScalar  Unit = "scalar"
	UnitNorm01  Unit = "norm01"
	UnitPhase01 Unit = "phase01"
	UnitRadians Unit = "radians"
	UnitDegrees Unit = "degrees"
)

// Cardinality is how many values-per-frame a port carries.
type Cardinality int

const (
	// Signal carries exactly one value per frame.
	Signal Cardinality = iota
	// Field carries one value per lane, bound to an instance domain.
	Field
	// Event is present only on the frame it fires.
	Event
	// Static is a compile-time constant, e.g. a domain handle.
	Static
	// Elastic is only legal as a declared port cardinality (never a
	// resolved one): the frontend resolves it to Field if any of the
	// port's elastic-compatible peers resolve to Field, else Signal.
	Elastic
)

func (c Cardinality) String() string {
	switch c {
	case Signal:
		return "signal"
	case Field:
		return "field"
	case Event:
		return "event"
	case Static:
		return "static"
	case Elastic:
		return "elastic"
	default:
		return fmt.Sprintf("cardinality(%d)", int(c))
	}
}

// Type is the canonical type of a port or expression: payload, an
// optional unit, and a cardinality.
type Type struct {
	Payload     Payload
	Unit        Unit
	Cardinality Cardinality
	// Name disambiguates Enum/Object payloads (e.g. Enum:"BlendMode").
	Name string
}

// Equal reports whether a and b are the same type in every respect.
func (a Type) Equal(b Type) bool {
	return a.Payload == b.Payload && a.Unit == b.Unit &&
		a.Cardinality == b.Cardinality && a.Name == b.Name
}

func (t Type) String() string {
	u := string(t.Unit)
	if u == "" {
		u = "-"
	}
	n := t.Name
	if n != "" {
		n = ":" + n
	}
	return fmt.Sprintf("%s%s<%s>/%s", t.Payload, n, u, t.Cardinality)
}
