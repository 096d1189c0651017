// Package symtab implements the compiler's single mutable symbol table
// (§4.1): name interning to stable IDs, scope stacking, and per-ID
// metadata (kind, type, scope, source location, kind-specific data).
//
// Vocabulary follows the teacher's own scope/symbol model: a global
// "universe" scope seeded by an initialize-style function, a stack of
// local scopes pushed/popped around node and lambda bodies, and a flat
// symbol record per id rather than a class hierarchy — see
// breadchris-yaegi/interp/interp.go's initUniverse and scope.sym map.
package symtab

import (
	"fmt"
	"sync"

	"github.com/flowlang/flowc/internal/diag"
	"github.com/flowlang/flowc/internal/types"
)

// ID is a stable, never-reused identifier for one interned name (or, for
// fresh anonymous positions, for no name at all).
type ID int64

// Kind is the symbol's kind tag (§3).
type Kind int

const (
	KindSignal Kind = iota
	KindNodeInput
	KindNodeOutput
	KindLocal
	KindFunction
	KindNode
	KindStruct
	KindEnum
	KindEnumElement
	KindStructField
	KindArrayType
	KindService
	KindFlow
	KindFunctionResult
	KindGeneric
)

func (k Kind) String() string {
	names := [...]string{
		"signal", "node-input", "node-output", "local", "function", "node",
		"struct", "enum", "enum-element", "struct-field", "array-type",
		"service", "flow", "function-result", "generic-identifier",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown-kind"
}

// ScopeKind tags the kind of scope a binding was declared in.
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopeNodeLocal
	ScopeMatchArmLocal
	ScopeLambdaLocal
	ScopeForallLocal
)

// StructData is kind-specific data for a struct symbol.
type StructData struct{ Fields []ID } // ordered field ids

// EnumData is kind-specific data for an enum symbol.
type EnumData struct{ Elements []ID } // ordered element ids

// NodeData is kind-specific data for a node (component) symbol.
type NodeData struct {
	Inputs      []ID // ordered input ids
	Outputs     []ID // ordered output ids (more than one before unitary projection)
	IsComponent bool
}

// Symbol is the per-ID record §4.1 describes.
type Symbol struct {
	ID    ID
	Name  string
	Kind  Kind
	Scope ScopeKind
	Loc   diag.Location
	Type  *types.Type // set by the HIR builder for declared inputs, fields, functions and annotated signals; by the type checker otherwise
	Data  interface{} // StructData / EnumData / NodeData, by Kind
}

// scope is one entry in the scope stack: a name->id map plus a types
// field that mirrors the teacher's scope.types. No table operation
// reads or fills types.
type scope struct {
	global bool
	sym    map[string]ID
	types  []*types.Type
}

func newScope(global bool) *scope { return &scope{global: global, sym: map[string]ID{}} }

// Table is the single mutable store for one compilation unit.
type Table struct {
	mu      sync.RWMutex
	sink    *diag.Sink
	symbols map[ID]*Symbol
	nextID  ID
	stack   []*scope // stack[0] is always the global scope

	// nodeContexts remembers, per node symbol, the set of bindings that
	// were live in its body scope the last time it was analyzed, so a
	// later pass can restore_context without re-walking the AST.
	nodeContexts map[ID]map[string]ID
}

// NewTable creates a table with the global scope pushed and builtin
// operator symbols pre-populated (initialize, §4.1).
func NewTable(sink *diag.Sink) *Table {
	t := &Table{
		sink:         sink,
		symbols:      map[ID]*Symbol{},
		nodeContexts: map[ID]map[string]ID{},
	}
	t.stack = []*scope{newScope(true)}
	t.initialize()
	return t
}

// initialize pre-populates built-in operator symbols in global scope:
// arithmetic, comparison, logical, print, if-then-else, bracket access.
func (t *Table) initialize() {
	intT := types.Unsized(types.Int)
	floatT := types.Unsized(types.Float)
	boolT := types.Unsized(types.Bool)
	anyT := types.Unsized(types.Any)

	binArith := func(elem *types.Type) *types.Type {
		return types.NewAbstract([]types.Type{*elem, *elem}, elem)
	}
	binCmp := func(elem *types.Type) *types.Type {
		return types.NewAbstract([]types.Type{*elem, *elem}, boolT)
	}

	builtins := map[string]*types.Type{
		"+":      binArith(intT),
		"-":      binArith(intT),
		"*":      binArith(intT),
		"/":      binArith(intT),
		"+.":     binArith(floatT),
		"-.":     binArith(floatT),
		"*.":     binArith(floatT),
		"/.":     binArith(floatT),
		"=":      binCmp(anyT),
		"<>":     binCmp(anyT),
		"<":      binCmp(intT),
		"<=":     binCmp(intT),
		">":      binCmp(intT),
		">=":     binCmp(intT),
		"&&":     types.NewAbstract([]types.Type{*boolT, *boolT}, boolT),
		"||":     types.NewAbstract([]types.Type{*boolT, *boolT}, boolT),
		"not":    types.NewAbstract([]types.Type{*boolT}, boolT),
		"print":  types.NewAbstract([]types.Type{*anyT}, types.Unsized(types.Unit)),
		"if":     types.NewAbstract([]types.Type{*boolT, *anyT, *anyT}, anyT),
		"bracket": types.NewAbstract([]types.Type{*anyT, *intT}, anyT),
	}
	for name, ty := range builtins {
		id := t.allocID()
		t.symbols[id] = &Symbol{ID: id, Name: name, Kind: KindFunction, Scope: ScopeGlobal, Type: ty}
		t.stack[0].sym[name] = id
	}
}

func (t *Table) allocID() ID {
	t.nextID++
	return t.nextID
}

// GetFreshID produces a new ID not tied to any name, for anonymous
// positions (import slots, service statements).
func (t *Table) GetFreshID() ID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.allocID()
}

func (t *Table) top() *scope { return t.stack[len(t.stack)-1] }

// Local pushes a new, empty local scope.
func (t *Table) Local() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stack = append(t.stack, newScope(false))
}

// Global pops the innermost scope unconditionally: bindings added since
// the matching Local() are discarded. Calling Global() with nothing but
// the universe scope left on the stack is a programmer error.
func (t *Table) Global() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.stack) <= 1 {
		panic("symtab: Global() called without a matching Local()")
	}
	t.stack = t.stack[:len(t.stack)-1]
}

// insert is the shared implementation behind every insert_<kind> entry
// point named in §4.1.
func (t *Table) insert(kind Kind, name string, scopeKind ScopeKind, data interface{}, isFresh bool, loc diag.Location) (ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.top()
	if existing, ok := cur.sym[name]; ok {
		if isFresh {
			t.sink.Add(diag.RedefinedIdentifier, loc, "identifier already defined in this scope", name)
			return existing, diag.TerminationError
		}
		// Rebind: used while seeding typedefs in the declaration phase.
		sym := t.symbols[existing]
		sym.Kind = kind
		sym.Data = data
		sym.Loc = loc
		return existing, nil
	}

	id := t.allocID()
	t.symbols[id] = &Symbol{ID: id, Name: name, Kind: kind, Scope: scopeKind, Loc: loc, Data: data}
	cur.sym[name] = id
	return id, nil
}

func (t *Table) InsertSignal(name string, scopeKind ScopeKind, isFresh bool, loc diag.Location) (ID, error) {
	return t.insert(KindSignal, name, scopeKind, nil, isFresh, loc)
}

func (t *Table) InsertNodeInput(name string, scopeKind ScopeKind, isFresh bool, loc diag.Location) (ID, error) {
	return t.insert(KindNodeInput, name, scopeKind, nil, isFresh, loc)
}

func (t *Table) InsertNodeOutput(name string, scopeKind ScopeKind, isFresh bool, loc diag.Location) (ID, error) {
	return t.insert(KindNodeOutput, name, scopeKind, nil, isFresh, loc)
}

func (t *Table) InsertLocal(name string, scopeKind ScopeKind, isFresh bool, loc diag.Location) (ID, error) {
	return t.insert(KindLocal, name, scopeKind, nil, isFresh, loc)
}

func (t *Table) InsertFunction(name string, isFresh bool, loc diag.Location) (ID, error) {
	return t.insert(KindFunction, name, ScopeGlobal, nil, isFresh, loc)
}

func (t *Table) InsertNode(name string, isFresh bool, loc diag.Location) (ID, error) {
	return t.insert(KindNode, name, ScopeGlobal, &NodeData{}, isFresh, loc)
}

func (t *Table) InsertStruct(name string, isFresh bool, loc diag.Location) (ID, error) {
	return t.insert(KindStruct, name, ScopeGlobal, &StructData{}, isFresh, loc)
}

func (t *Table) InsertEnum(name string, isFresh bool, loc diag.Location) (ID, error) {
	return t.insert(KindEnum, name, ScopeGlobal, &EnumData{}, isFresh, loc)
}

func (t *Table) InsertEnumElement(name string, isFresh bool, loc diag.Location) (ID, error) {
	return t.insert(KindEnumElement, name, ScopeGlobal, nil, isFresh, loc)
}

func (t *Table) InsertStructField(name string, isFresh bool, loc diag.Location) (ID, error) {
	return t.insert(KindStructField, name, ScopeGlobal, nil, isFresh, loc)
}

func (t *Table) InsertService(name string, isFresh bool, loc diag.Location) (ID, error) {
	return t.insert(KindService, name, ScopeGlobal, nil, isFresh, loc)
}

func (t *Table) InsertFlow(name string, isFresh bool, loc diag.Location) (ID, error) {
	return t.insert(KindFlow, name, ScopeGlobal, nil, isFresh, loc)
}

// lookup walks the scope stack from innermost to global, falling back to
// global lookup when unresolved in the current chain (§4.1).
func (t *Table) lookup(name string) (ID, bool) {
	for i := len(t.stack) - 1; i >= 0; i-- {
		if id, ok := t.stack[i].sym[name]; ok {
			return id, true
		}
	}
	return 0, false
}

// get is the shared implementation behind every get_<kind>_id entry
// point.
func (t *Table) get(kind Kind, unknownKind diag.Kind, name string, mustBeLocal bool, loc diag.Location) (ID, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var id ID
	var ok bool
	if mustBeLocal {
		id, ok = t.top().sym[name]
	} else {
		id, ok = t.lookup(name)
	}
	if !ok {
		t.sink.Add(unknownKind, loc, "identifier not found", name)
		return 0, diag.TerminationError
	}
	sym := t.symbols[id]
	if sym.Kind != kind {
		t.sink.Add(diag.WrongKind, loc, fmt.Sprintf("expected %s, found %s", kind, sym.Kind), name)
		return 0, diag.TerminationError
	}
	return id, nil
}

func (t *Table) GetIdentifierID(name string, mustBeLocal bool, loc diag.Location) (ID, error) {
	// An "identifier" position accepts any of the value-carrying kinds;
	// resolution prefers the most specific binding found, whatever its
	// kind, and callers that need a particular kind use the kind-typed
	// lookups below instead.
	t.mu.RLock()
	var id ID
	var ok bool
	if mustBeLocal {
		id, ok = t.top().sym[name]
	} else {
		id, ok = t.lookup(name)
	}
	t.mu.RUnlock()
	if !ok {
		t.sink.Add(diag.UnknownIdentifier, loc, "identifier not found", name)
		return 0, diag.TerminationError
	}
	return id, nil
}

func (t *Table) GetNodeID(name string, loc diag.Location) (ID, error) {
	return t.get(KindNode, diag.UnknownNode, name, false, loc)
}

func (t *Table) GetStructID(name string, loc diag.Location) (ID, error) {
	return t.get(KindStruct, diag.UnknownStruct, name, false, loc)
}

func (t *Table) GetEnumID(name string, loc diag.Location) (ID, error) {
	return t.get(KindEnum, diag.UnknownEnum, name, false, loc)
}

func (t *Table) GetFunctionID(name string, loc diag.Location) (ID, error) {
	return t.get(KindFunction, diag.UnknownIdentifier, name, false, loc)
}

// GetFieldID resolves a struct field name against the struct's ordered
// field list.
func (t *Table) GetFieldID(structID ID, fieldName string, loc diag.Location) (ID, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sym, ok := t.symbols[structID]
	if !ok {
		t.sink.Add(diag.UnknownStruct, loc, "struct not found")
		return 0, diag.TerminationError
	}
	data, _ := sym.Data.(*StructData)
	if data == nil {
		t.sink.Add(diag.WrongKind, loc, "not a struct")
		return 0, diag.TerminationError
	}
	for _, fid := range data.Fields {
		if fsym := t.symbols[fid]; fsym != nil && fsym.Name == fieldName {
			return fid, nil
		}
	}
	t.sink.Add(diag.UnknownField, loc, "field not found", fieldName)
	return 0, diag.TerminationError
}

// Symbol returns the symbol record for id, or nil if unknown.
func (t *Table) Symbol(id ID) *Symbol {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.symbols[id]
}

// SetType stores the resolved type of id.
func (t *Table) SetType(id ID, ty *types.Type) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sym, ok := t.symbols[id]; ok {
		sym.Type = ty
	}
}

// GetType retrieves the resolved type of id, if any.
func (t *Table) GetType(id ID) (*types.Type, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	sym, ok := t.symbols[id]
	if !ok || sym.Type == nil {
		return nil, false
	}
	return sym.Type, true
}

// SetData replaces the kind-specific data of id. The HIR builder's
// declaration phase calls it; the unitary-node builder does not, and
// leaves a node's input/output records as the HIR builder wrote them.
func (t *Table) SetData(id ID, data interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if sym, ok := t.symbols[id]; ok {
		sym.Data = data
	}
}

// SaveNodeContext remembers the current local-scope bindings under
// nodeID's name, for a later RestoreContext call.
func (t *Table) SaveNodeContext(nodeID ID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot := map[string]ID{}
	for name, id := range t.top().sym {
		snapshot[name] = id
	}
	t.nodeContexts[nodeID] = snapshot
}

// RestoreContext re-pushes the input and output/local bindings of a
// previously analyzed node into a fresh local scope, used when re-entering
// a node's body for later passes (§4.1).
func (t *Table) RestoreContext(nodeID ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	snapshot, ok := t.nodeContexts[nodeID]
	if !ok {
		return fmt.Errorf("symtab: no saved context for node %d", nodeID)
	}
	sc := newScope(false)
	for name, id := range snapshot {
		sc.sym[name] = id
	}
	t.stack = append(t.stack, sc)
	return nil
}
