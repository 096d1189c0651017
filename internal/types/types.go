// Package types implements the structural type language of §3:
//
//	unit | bool | int | float | array<T,n> | tuple<T...> | struct(id) |
//	enum(id) | signal<T> | event<T> | abstract(T...->T) | any | var(n)
//
// any and var are internal-only positions, never written by a user
// program; they exist to let the type checker represent "not yet
// known" and "intentionally unconstrained" slots.
package types

import (
	"fmt"
	"strings"
)

// Kind tags the shape of a Type.
type Kind int

const (
	Unit Kind = iota
	Bool
	Int
	Float
	Array
	Tuple
	Struct
	Enum
	Signal
	Event
	Abstract
	Any
	Var
)

// ID identifies a struct/enum typedef; kept as a plain int rather than
// importing symtab to avoid a dependency cycle. The HIR builder hands
// these out from its own typedef counter, so they are not related to
// symtab.ID numbering.
type ID int64

// Type is a structural type value. Only the fields relevant to Kind are
// populated; the rest are zero. This mirrors the teacher's itype, which
// is a single flat struct (cat, name, str, field lists) rather than a
// Go interface hierarchy per case — one allocation per type, easy to
// deep-copy across a sub-node call boundary (§4.4's "local reduced graph
// cloning" duplicates whole Type values along with the graph).
type Type struct {
	Kind Kind

	// Array: element type and length.
	Elem *Type
	Len  int

	// Tuple: element types in order.
	Elems []Type

	// Struct / Enum: the interned typedef id.
	DefID ID
	Name  string // surface name, for diagnostics

	// Signal / Event: the carried element type.
	Carried *Type

	// Abstract: parameter types and result type.
	Params []Type
	Result *Type

	// Var: a unification placeholder, identified by a small integer.
	VarID int
}

func Unsized(k Kind) *Type { return &Type{Kind: k} }

func NewArray(elem *Type, n int) *Type { return &Type{Kind: Array, Elem: elem, Len: n} }

func NewTuple(elems []Type) *Type { return &Type{Kind: Tuple, Elems: elems} }

func NewStruct(id ID, name string) *Type { return &Type{Kind: Struct, DefID: id, Name: name} }

func NewEnum(id ID, name string) *Type { return &Type{Kind: Enum, DefID: id, Name: name} }

func NewSignal(carried *Type) *Type { return &Type{Kind: Signal, Carried: carried} }

func NewEvent(carried *Type) *Type { return &Type{Kind: Event, Carried: carried} }

func NewAbstract(params []Type, result *Type) *Type {
	return &Type{Kind: Abstract, Params: params, Result: result}
}

func NewVar(id int) *Type { return &Type{Kind: Var, VarID: id} }

// Base strips a signal/event wrapper, returning the carried pointwise
// type and whether a stream wrapper was present at all.
func (t *Type) Base() (*Type, bool) {
	if t == nil {
		return nil, false
	}
	switch t.Kind {
	case Signal, Event:
		return t.Carried, true
	default:
		return t, false
	}
}

// IsStream reports whether t is signal<_> or event<_>.
func (t *Type) IsStream() bool {
	return t != nil && (t.Kind == Signal || t.Kind == Event)
}

// Equal implements the structural (pointwise) equality used throughout
// the type checker: two types are equal when their shapes and nested
// types recursively match. Var and Any never compare equal to anything
// but themselves by identity of VarID/Kind, since they must never
// survive into a fully type-checked program (§4.3).
func Equal(a, b *Type) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case Unit, Bool, Int, Float, Any:
		return true
	case Array:
		return a.Len == b.Len && Equal(a.Elem, b.Elem)
	case Tuple:
		if len(a.Elems) != len(b.Elems) {
			return false
		}
		for i := range a.Elems {
			if !Equal(&a.Elems[i], &b.Elems[i]) {
				return false
			}
		}
		return true
	case Struct, Enum:
		return a.DefID == b.DefID
	case Signal, Event:
		return Equal(a.Carried, b.Carried)
	case Abstract:
		if len(a.Params) != len(b.Params) || !Equal(a.Result, b.Result) {
			return false
		}
		for i := range a.Params {
			if !Equal(&a.Params[i], &b.Params[i]) {
				return false
			}
		}
		return true
	case Var:
		return a.VarID == b.VarID
	default:
		return false
	}
}

// String renders a type the way diagnostics report it.
func (t *Type) String() string {
	if t == nil {
		return "<untyped>"
	}
	switch t.Kind {
	case Unit:
		return "unit"
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case Array:
		return fmt.Sprintf("array<%s;%d>", t.Elem, t.Len)
	case Tuple:
		parts := make([]string, len(t.Elems))
		for i := range t.Elems {
			parts[i] = t.Elems[i].String()
		}
		return fmt.Sprintf("tuple<%s>", strings.Join(parts, ","))
	case Struct:
		return fmt.Sprintf("struct(%s)", t.Name)
	case Enum:
		return fmt.Sprintf("enum(%s)", t.Name)
	case Signal:
		return fmt.Sprintf("signal<%s>", t.Carried)
	case Event:
		return fmt.Sprintf("event<%s>", t.Carried)
	case Abstract:
		parts := make([]string, len(t.Params))
		for i := range t.Params {
			parts[i] = t.Params[i].String()
		}
		return fmt.Sprintf("(%s)->%s", strings.Join(parts, ","), t.Result)
	case Any:
		return "any"
	case Var:
		return fmt.Sprintf("var(%d)", t.VarID)
	default:
		return "?"
	}
}

// LiftResult decides whether applying a pointwise operator over stream
// arguments yields signal or event, per §4.3's stream-lifting rule:
// signal when every stream argument is signal, event otherwise. argTypes
// must contain at least one stream type; non-stream (plain) arguments do
// not participate in the decision.
func LiftResult(argTypes []*Type) Kind {
	sawStream := false
	allSignal := true
	for _, a := range argTypes {
		base, isStream := a.Base()
		_ = base
		if !isStream {
			continue
		}
		sawStream = true
		if a.Kind != Signal {
			allSignal = false
		}
	}
	if !sawStream {
		return Signal
	}
	if allSignal {
		return Signal
	}
	return Event
}
