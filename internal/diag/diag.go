// Package diag holds the compiler's diagnostic taxonomy and the shared,
// append-only error sink passed by reference to every pass.
package diag

import (
	"fmt"
	"go/token"
	"sort"
	"sync"
)

// Location reuses go/token's position type: the teacher already depends
// on go/token for exactly this purpose, and the parser boundary (out of
// scope here) produces positions in the same shape.
type Location = token.Position

// Kind enumerates the fixed error taxonomy of §7.
type Kind int

const (
	// Name errors.
	UnknownIdentifier Kind = iota
	UnknownNode
	UnknownStruct
	UnknownEnum
	UnknownField
	UnknownArrayType
	RedefinedIdentifier
	WrongKind

	// Shape errors.
	ArityMismatch
	ComponentMultipleOutputs
	MissingField
	ExpectInput
	ExpectArray
	IncompatibleLength
	IncompatibleTypes
	IncompatibleMatchStatements
	MissingMatchStatement
	UntypedReference

	// Flow errors.
	NotCausal
	UnusedSignal
	RecursiveNode

	// Contract errors.
	InvalidResultReference

	// Driver errors.
	UnsupportedVersion
)

func (k Kind) String() string {
	switch k {
	case UnknownIdentifier:
		return "UnknownIdentifier"
	case UnknownNode:
		return "UnknownNode"
	case UnknownStruct:
		return "UnknownStruct"
	case UnknownEnum:
		return "UnknownEnum"
	case UnknownField:
		return "UnknownField"
	case UnknownArrayType:
		return "UnknownArrayType"
	case RedefinedIdentifier:
		return "RedefinedIdentifier"
	case WrongKind:
		return "WrongKind"
	case ArityMismatch:
		return "ArityMismatch"
	case ComponentMultipleOutputs:
		return "ComponentMultipleOutputs"
	case MissingField:
		return "MissingField"
	case ExpectInput:
		return "ExpectInput"
	case ExpectArray:
		return "ExpectArray"
	case IncompatibleLength:
		return "IncompatibleLength"
	case IncompatibleTypes:
		return "IncompatibleTypes"
	case IncompatibleMatchStatements:
		return "IncompatibleMatchStatements"
	case MissingMatchStatement:
		return "MissingMatchStatement"
	case UntypedReference:
		return "UntypedReference"
	case NotCausal:
		return "NotCausal"
	case UnusedSignal:
		return "UnusedSignal"
	case RecursiveNode:
		return "RecursiveNode"
	case InvalidResultReference:
		return "InvalidResultReference"
	case UnsupportedVersion:
		return "UnsupportedVersion"
	default:
		return "UnknownKind"
	}
}

// Error is one accumulated diagnostic.
type Error struct {
	Kind    Kind
	Message string
	Loc     Location
	Idents  []string // offending identifier(s) or type names
}

func (e *Error) Error() string {
	if len(e.Idents) == 0 {
		return fmt.Sprintf("%s: %s: %s", e.Loc, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s (%v)", e.Loc, e.Kind, e.Message, e.Idents)
}

// TerminationError is the sentinel propagated up a local call chain when a
// sub-tree's processing must stop early; it carries no information of its
// own, the real diagnostic having already been appended to the sink.
var TerminationError = fmt.Errorf("termination")

// Sink is the shared, append-only diagnostic sink. One Sink is threaded
// through every pass of a compilation; passes never swallow it between
// pass boundaries.
type Sink struct {
	mu   sync.Mutex
	errs []Error
}

// NewSink returns an empty sink.
func NewSink() *Sink { return &Sink{} }

// Add appends one diagnostic.
func (s *Sink) Add(kind Kind, loc Location, msg string, idents ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, Error{Kind: kind, Message: msg, Loc: loc, Idents: idents})
}

// HasErrors reports whether any diagnostic has accumulated so far.
func (s *Sink) HasErrors() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.errs) > 0
}

// Errors returns all accumulated diagnostics sorted by source position,
// matching the teacher-adjacent walker's deterministic-output convention.
func (s *Sink) Errors() []Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Error, len(s.errs))
	copy(out, s.errs)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Loc.Line != out[j].Loc.Line {
			return out[i].Loc.Line < out[j].Loc.Line
		}
		return out[i].Loc.Column < out[j].Loc.Column
	})
	return out
}
