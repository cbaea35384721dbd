package timebox

import (
	"reflect"
)

// Named is implemented by values whose identity is a declared name rather
// than their Go type. Dynamically-typed records use it to take part in
// exact type matching.
type Named interface {
	TypeName() string
}

// Type is a runtime type descriptor compared by exact identity. There is
// no covariant widening: a *Dog does not match Dog, and an embedding
// struct does not match the embedded one.
//
// The zero Type matches nothing.
type Type struct {
	rt   reflect.Type
	name string
}

// TypeOf returns the descriptor for the Go type T.
func TypeOf[T any]() Type {
	return Type{rt: reflect.TypeFor[T]()}
}

// NamedType returns the descriptor for values whose TypeName() is name.
func NamedType(name string) Type {
	return Type{name: name}
}

// TypeOfValue computes the descriptor of a provided value.
func TypeOfValue(v any) Type {
	if n, ok := v.(Named); ok {
		return Type{name: n.TypeName()}
	}
	return Type{rt: reflect.TypeOf(v)}
}

// IsZero reports whether t is the zero descriptor.
func (t Type) IsZero() bool {
	return t.rt == nil && t.name == ""
}

// String returns a human-readable name for logs.
func (t Type) String() string {
	if t.name != "" {
		return t.name
	}
	if t.rt == nil {
		return "<none>"
	}
	return t.rt.String()
}
