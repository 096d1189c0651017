package hir

import (
	"sort"

	"github.com/flowlang/flowc/internal/ast"
	"github.com/flowlang/flowc/internal/diag"
	"github.com/flowlang/flowc/internal/symtab"
	"github.com/flowlang/flowc/internal/types"
)

// Builder lifts a parsed ast.File into HIR against a shared symbol
// table and error sink, in the two-phase shape §4.2 requires: a
// declaration phase that registers every top-level name before any
// body is lowered (enabling mutually referential definitions in one
// file), then a body phase that recursively lowers syntax.
type Builder struct {
	table *symtab.Table
	sink  *diag.Sink

	typeDefIDs map[string]types.ID
	nextTypeID types.ID

	nodeIDs map[string]symtab.ID
	funcIDs map[string]symtab.ID
}

// NewBuilder constructs a Builder sharing the given table and sink.
func NewBuilder(table *symtab.Table, sink *diag.Sink) *Builder {
	return &Builder{
		table:      table,
		sink:       sink,
		typeDefIDs: map[string]types.ID{},
		nodeIDs:    map[string]symtab.ID{},
		funcIDs:    map[string]symtab.ID{},
	}
}

// Build runs both phases over f and returns the lifted HIR file. Errors
// accumulate in the shared sink; Build returns what it could lift so
// sibling sub-trees still contribute diagnostics in one pass.
func (b *Builder) Build(f *ast.File) *File {
	out := &File{}

	// --- Declaration phase (store) ---
	for i := range f.Types {
		b.storeTypeDef(&f.Types[i], out)
	}
	for i := range f.Functions {
		b.storeFunction(&f.Functions[i])
	}
	for i := range f.Nodes {
		b.storeNode(&f.Nodes[i])
	}
	for i := range f.Interface.Services {
		b.table.InsertService(f.Interface.Services[i].Name, true, f.Interface.Services[i].Pos)
	}
	for i := range f.Interface.Imports {
		b.table.InsertFlow(f.Interface.Imports[i].Name, true, f.Interface.Imports[i].Pos)
	}
	for i := range f.Interface.Exports {
		b.table.InsertFlow(f.Interface.Exports[i].Name, true, f.Interface.Exports[i].Pos)
	}

	// --- Body phase ---
	for i := range f.Functions {
		if fn := b.lowerFunction(&f.Functions[i]); fn != nil {
			out.Functions = append(out.Functions, fn)
		}
	}
	for i := range f.Nodes {
		if n := b.lowerNode(&f.Nodes[i]); n != nil {
			out.Nodes = append(out.Nodes, n)
		}
	}
	return out
}

func (b *Builder) resolveTypeRef(tr ast.TypeRef) *types.Type {
	switch tr.Kind {
	case "unit":
		return types.Unsized(types.Unit)
	case "bool":
		return types.Unsized(types.Bool)
	case "int":
		return types.Unsized(types.Int)
	case "float":
		return types.Unsized(types.Float)
	case "array":
		return types.NewArray(b.resolveTypeRef(*tr.Elem), tr.Len)
	case "tuple":
		elems := make([]types.Type, len(tr.Elems))
		for i, e := range tr.Elems {
			elems[i] = *b.resolveTypeRef(e)
		}
		return types.NewTuple(elems)
	case "signal":
		return types.NewSignal(b.resolveTypeRef(*tr.Elem))
	case "event":
		return types.NewEvent(b.resolveTypeRef(*tr.Elem))
	case "abstract":
		params := make([]types.Type, len(tr.Params))
		for i, p := range tr.Params {
			params[i] = *b.resolveTypeRef(p)
		}
		return types.NewAbstract(params, b.resolveTypeRef(*tr.Result))
	case "named":
		if id, ok := b.typeDefIDs[tr.Name]; ok {
			// Disambiguated at use site by the type checker, which knows
			// whether the named def is a struct or an enum; storeTypeDef
			// seeds the symbol kind so GetType-style consumers can tell.
			return &types.Type{Kind: types.Struct, DefID: id, Name: tr.Name}
		}
		// TypeRef carries no position of its own at the boundary; the
		// caller that resolved this reference already has one and will
		// have reported structural errors against it.
		b.sink.Add(diag.UnknownStruct, diag.Location{}, "unknown named type", tr.Name)
		return types.Unsized(types.Any)
	default:
		return types.Unsized(types.Any)
	}
}

func (b *Builder) storeTypeDef(td *ast.TypeDef, out *File) {
	switch td.Kind {
	case ast.TypeDefStruct:
		id, err := b.table.InsertStruct(td.Name, true, td.Pos)
		if err != nil {
			return
		}
		defID := b.nextTypeIDFor(td.Name)
		var fieldIDs []symtab.ID
		for i := range td.Fields {
			fid, ferr := b.table.InsertStructField(td.Fields[i].Name, true, td.Fields[i].Pos)
			if ferr == nil {
				b.table.SetType(fid, b.resolveTypeRef(td.Fields[i].Type))
				fieldIDs = append(fieldIDs, fid)
			}
		}
		b.table.SetData(id, &symtab.StructData{Fields: fieldIDs})
		out.TypeDefs = append(out.TypeDefs, &TypeDef{ID: defID, Kind: td.Kind, Name: td.Name, Type: types.NewStruct(defID, td.Name)})
	case ast.TypeDefEnum:
		id, err := b.table.InsertEnum(td.Name, true, td.Pos)
		if err != nil {
			return
		}
		defID := b.nextTypeIDFor(td.Name)
		var elemIDs []symtab.ID
		for _, elName := range td.Elements {
			eid, eerr := b.table.InsertEnumElement(elName, true, td.Pos)
			if eerr == nil {
				elemIDs = append(elemIDs, eid)
			}
		}
		b.table.SetData(id, &symtab.EnumData{Elements: elemIDs})
		out.TypeDefs = append(out.TypeDefs, &TypeDef{ID: defID, Kind: td.Kind, Name: td.Name, Type: types.NewEnum(defID, td.Name)})
	case ast.TypeDefArrayAlias:
		defID := b.nextTypeIDFor(td.Name)
		elemTy := b.resolveTypeRef(td.ElemType)
		out.TypeDefs = append(out.TypeDefs, &TypeDef{ID: defID, Kind: td.Kind, Name: td.Name, Type: types.NewArray(elemTy, td.Len)})
	}
}

func (b *Builder) nextTypeIDFor(name string) types.ID {
	b.nextTypeID++
	b.typeDefIDs[name] = b.nextTypeID
	return b.nextTypeID
}

func (b *Builder) storeFunction(fn *ast.Function) {
	id, err := b.table.InsertFunction(fn.Name, true, fn.Pos)
	if err != nil {
		return
	}
	b.funcIDs[fn.Name] = id
	b.table.Local()
	var inputIDs []symtab.ID
	for i := range fn.Inputs {
		iid, ierr := b.table.InsertLocal(fn.Inputs[i].Name, symtab.ScopeNodeLocal, true, fn.Inputs[i].Pos)
		if ierr == nil {
			b.table.SetType(iid, b.resolveTypeRef(fn.Inputs[i].Type))
			inputIDs = append(inputIDs, iid)
		}
	}
	result := b.resolveTypeRef(fn.Result)
	b.table.SetType(id, types.NewAbstract(typesOf(b.table, inputIDs), result))
	b.table.SaveNodeContext(id)
	b.table.Global()
	_ = inputIDs
}

func typesOf(t *symtab.Table, ids []symtab.ID) []types.Type {
	out := make([]types.Type, len(ids))
	for i, id := range ids {
		if ty, ok := t.GetType(id); ok {
			out[i] = *ty
		}
	}
	return out
}

func (b *Builder) storeNode(n *ast.Node) {
	id, err := b.table.InsertNode(n.Name, true, n.Pos)
	if err != nil {
		return
	}
	b.nodeIDs[n.Name] = id
	b.table.Local()
	var inputIDs []symtab.ID
	for i := range n.Inputs {
		iid, ierr := b.table.InsertNodeInput(n.Inputs[i].Name, symtab.ScopeNodeLocal, true, n.Inputs[i].Pos)
		if ierr == nil {
			base := b.resolveTypeRef(n.Inputs[i].Type)
			b.table.SetType(iid, types.NewSignal(base))
			inputIDs = append(inputIDs, iid)
		}
	}
	// Outputs are discovered while storing equations: any `out` equation's
	// defined signal becomes an output.
	var outputIDs []symtab.ID
	if n.Import == nil {
		for i := range n.Equations {
			outputIDs = append(outputIDs, b.storeEquationSignals(&n.Equations[i])...)
		}
	}
	b.table.SetData(id, &symtab.NodeData{Inputs: inputIDs, Outputs: outputIDs, IsComponent: n.IsComponent})
	b.table.SaveNodeContext(id)
	b.table.Global()
}

// storeEquationSignals registers every signal an equation defines
// (out-marked outputs become node outputs, others become locals) and
// returns the subset that are outputs, in declaration order. A
// declared type annotation is resolved and stamped onto the defined
// signal(s) here, during the declaration phase — before any equation
// body is lowered — precisely so a self-referencing `fby` delayed
// branch (the ordinary way to express recurrence: `s = c fby e(s)`)
// finds its own signal already typed instead of tripping an
// UntypedReference on itself.
func (b *Builder) storeEquationSignals(eq *ast.Equation) []symtab.ID {
	var declTy *types.Type
	if eq.Type != nil {
		declTy = b.resolveTypeRef(*eq.Type)
	}

	var outs []symtab.ID
	var register func(p *ast.Pattern, isOut bool, ty *types.Type)
	register = func(p *ast.Pattern, isOut bool, ty *types.Type) {
		if p == nil {
			return
		}
		switch p.Kind {
		case ast.PatternIdent:
			var id symtab.ID
			var err error
			if isOut {
				id, err = b.table.InsertNodeOutput(p.Name, symtab.ScopeNodeLocal, true, eq.Pos)
			} else {
				id, err = b.table.InsertLocal(p.Name, symtab.ScopeNodeLocal, true, eq.Pos)
			}
			if err != nil {
				return
			}
			if ty != nil {
				// The surface annotation names the carried pointwise type
				// (`out s: int`, same convention as an input's `x: int`);
				// every node-scope signal is represented internally as
				// signal<T>, so wrap it here exactly as storeNode does for
				// inputs.
				b.table.SetType(id, types.NewSignal(ty))
			}
			if isOut {
				outs = append(outs, id)
			}
		case ast.PatternTuple:
			for i := range p.Elems {
				var elemTy *types.Type
				if ty != nil && ty.Kind == types.Tuple && i < len(ty.Elems) {
					elemTy = &ty.Elems[i]
				}
				register(&p.Elems[i], isOut, elemTy)
			}
		}
	}
	switch eq.Kind {
	case ast.EquationPlain:
		register(&eq.Pattern, eq.IsOut, declTy)
	case ast.EquationMatch, ast.EquationMatchWhen:
		register(&eq.Pattern, eq.IsOut, declTy)
	}
	return outs
}

// --- Body phase ---

func (b *Builder) lowerFunction(fn *ast.Function) *Function {
	id, ok := b.funcIDs[fn.Name]
	if !ok {
		return nil
	}
	if err := b.table.RestoreContext(id); err != nil {
		b.sink.Add(diag.UntypedReference, fn.Pos, err.Error())
		return nil
	}
	defer b.table.Global()

	var inputIDs []symtab.ID
	for i := range fn.Inputs {
		iid, _ := b.table.GetIdentifierID(fn.Inputs[i].Name, true, fn.Inputs[i].Pos)
		inputIDs = append(inputIDs, iid)
	}

	var lets []LetStmt
	for i := range fn.Lets {
		pat := b.lowerBindingPattern(&fn.Lets[i].Pattern)
		expr := b.lowerExpr(&fn.Lets[i].Expr)
		lets = append(lets, LetStmt{Pattern: pat, Expr: expr})
	}
	ret := b.lowerExpr(&fn.Return)

	var contract []*ContractTerm
	for i := range fn.Contract {
		contract = append(contract, b.lowerContractTerm(&fn.Contract[i], id))
	}

	return &Function{
		ID:       id,
		Name:     fn.Name,
		Inputs:   inputIDs,
		Result:   b.resolveTypeRef(fn.Result),
		Contract: contract,
		Lets:     lets,
		Return:   ret,
		Loc:      fn.Pos,
	}
}

func (b *Builder) lowerNode(n *ast.Node) *NodeDef {
	id, ok := b.nodeIDs[n.Name]
	if !ok {
		return nil
	}
	if n.Import != nil {
		return &NodeDef{ID: id, Name: n.Name, IsComponent: n.IsComponent, Import: &NodeImport{Path: n.Import.Path}, Loc: n.Pos}
	}

	if err := b.table.RestoreContext(id); err != nil {
		b.sink.Add(diag.UntypedReference, n.Pos, err.Error())
		return nil
	}
	defer b.table.Global()

	var inputIDs []symtab.ID
	for i := range n.Inputs {
		iid, _ := b.table.GetIdentifierID(n.Inputs[i].Name, true, n.Inputs[i].Pos)
		inputIDs = append(inputIDs, iid)
	}

	def := &NodeDef{ID: id, Name: n.Name, IsComponent: n.IsComponent, Inputs: inputIDs, DefinedBy: map[symtab.ID]*Equation{}, Loc: n.Pos}

	for i := range n.Equations {
		for _, eq := range b.lowerEquation(&n.Equations[i]) {
			def.Equations = append(def.Equations, eq)
			for _, s := range eq.Defines {
				def.DefinedBy[s] = eq
				if sym := b.table.Symbol(s); sym != nil && sym.Kind == symtab.KindNodeOutput {
					def.Outputs = append(def.Outputs, s)
				}
			}
		}
	}
	return def
}

// lowerEquation lowers one surface equation into one or more HIR
// equations (plain case: exactly one). Match/match-when equations
// desugar to a single HIR equation whose expression is an ExprMatch,
// per §4.2 and §9: the defined-signal tuple is returned in a canonical
// (sorted-by-first-appearance) order by every arm, including a
// synthesized default arm.
func (b *Builder) lowerEquation(eq *ast.Equation) []*Equation {
	switch eq.Kind {
	case ast.EquationPlain:
		pat := b.lowerBindingPattern(&eq.Pattern)
		expr := b.lowerExpr(eq.Expr)
		return []*Equation{{Defines: pat.BoundIdents(), Pattern: nonTuplePattern(pat), Expr: expr, Loc: eq.Pos}}
	case ast.EquationMatch:
		pat := b.lowerBindingPattern(&eq.Pattern)
		scrut := b.lowerExpr(eq.Scrut)
		arms := b.lowerMatchArms(eq.Arms)
		match := &Expr{Kind: ast.ExprMatch, Pos: eq.Pos, Scrutinee: scrut, Arms: arms}
		return []*Equation{{Defines: pat.BoundIdents(), Pattern: nonTuplePattern(pat), Expr: match, Loc: eq.Pos}}
	case ast.EquationMatchWhen:
		return []*Equation{b.lowerMatchWhen(eq)}
	}
	return nil
}

// nonTuplePattern returns nil for a single-identifier pattern (the
// common case), keeping Equation.Pattern populated only when it carries
// real structure worth re-destructuring (a tuple of several defined
// signals).
func nonTuplePattern(p *Pattern) *Pattern {
	if p != nil && p.Kind == ast.PatternIdent {
		return nil
	}
	return p
}

func (b *Builder) lowerMatchArms(arms []ast.MatchArm) []MatchArm {
	var out []MatchArm
	for i := range arms {
		b.table.Local()
		pat := b.lowerBindingPattern(&arms[i].Pattern)
		var guard *Expr
		if arms[i].Guard != nil {
			guard = b.lowerExpr(arms[i].Guard)
		}
		body := b.lowerExpr(&arms[i].Body)
		b.table.Global()
		out = append(out, MatchArm{Pattern: pat, Guard: guard, Body: body})
	}
	return out
}

// lowerMatchWhen desugars a match-when equation per §9: computes the set
// of event identifiers referenced across arm patterns (in first-seen
// order across arms; the names one arm mentions are taken in lexical
// order, since the surface pattern's field map keeps no order), builds
// a tuple expression over them, and produces a match whose arms are
// tuple patterns with wildcards for un-mentioned events, plus a
// synthesized default arm built by synthesizeDefaultBody.
func (b *Builder) lowerMatchWhen(eq *ast.Equation) *Equation {
	// Collect event identifiers in first-seen order across all arms.
	seen := map[string]bool{}
	var eventNames []string
	for i := range eq.Arms {
		collectEventNames(&eq.Arms[i].Pattern, seen, &eventNames)
	}

	eventExprs := make([]*Expr, len(eventNames))
	for i, name := range eventNames {
		id, _ := b.table.GetIdentifierID(name, false, eq.Pos)
		eventExprs[i] = &Expr{Kind: ast.ExprIdent, ID: id, Pos: eq.Pos}
	}
	tupleScrut := &Expr{Kind: ast.ExprTuple, Pos: eq.Pos, Children: eventExprs}

	var arms []MatchArm
	for i := range eq.Arms {
		b.table.Local()
		tuplePat := b.buildEventTuplePattern(&eq.Arms[i].Pattern, eventNames, eq.Pos)
		var guard *Expr
		if eq.Arms[i].Guard != nil {
			guard = b.lowerExpr(eq.Arms[i].Guard)
		}
		body := b.lowerExpr(&eq.Arms[i].Body)
		b.table.Global()
		arms = append(arms, MatchArm{Pattern: tuplePat, Guard: guard, Body: body})
	}

	// Synthesized default arm: wildcard tuple pattern; body is a
	// followed-by read of the previous value of every defined signal.
	defPat := &Pattern{Kind: ast.PatternTuple, Pos: eq.Pos}
	for range eventNames {
		defPat.Elems = append(defPat.Elems, &Pattern{Kind: ast.PatternWildcard, Pos: eq.Pos})
	}

	pat := b.lowerBindingPattern(&eq.Pattern)
	defBody := b.synthesizeDefaultBody(pat, eq.Pos)
	arms = append(arms, MatchArm{Pattern: defPat, Body: defBody})

	match := &Expr{Kind: ast.ExprMatch, Pos: eq.Pos, Scrutinee: tupleScrut, Arms: arms}
	return &Equation{Defines: pat.BoundIdents(), Pattern: nonTuplePattern(pat), Expr: match, Loc: eq.Pos}
}

// synthesizeDefaultBody builds the default-arm body: for a single
// defined signal this is `defined fby defined` (read-previous); for a
// tuple of defined signals, a tuple of such reads. Every defined
// signal gets this same read-previous form, event-typed ones included;
// no absence value is produced for an event.
func (b *Builder) synthesizeDefaultBody(pat *Pattern, pos diag.Location) *Expr {
	ids := pat.BoundIdents()
	if len(ids) == 1 {
		ref := &Expr{Kind: ast.ExprIdent, ID: ids[0], Pos: pos}
		return &Expr{Kind: ast.ExprFby, Pos: pos, Children: []*Expr{ref, ref}}
	}
	children := make([]*Expr, len(ids))
	for i, id := range ids {
		ref := &Expr{Kind: ast.ExprIdent, ID: id, Pos: pos}
		children[i] = &Expr{Kind: ast.ExprFby, Pos: pos, Children: []*Expr{ref, ref}}
	}
	return &Expr{Kind: ast.ExprTuple, Pos: pos, Children: children}
}

// collectEventNames walks a pattern for every when-pattern event
// identifier it mentions, appending newly-seen names to *order.
// Surface event patterns are represented at the boundary as a struct
// pattern tagged by the identifier being matched against an event
// occurrence; we approximate by treating every PatternIdent inside a
// match-when arm's top-level tuple/struct slot list as a candidate name
// and rely on the arm's declared event set (StructName == "__event")
// convention from the parser.
func collectEventNames(p *ast.Pattern, seen map[string]bool, order *[]string) {
	if p == nil {
		return
	}
	switch p.Kind {
	case ast.PatternStruct:
		if p.StructName == "__event" {
			for _, name := range sortedFieldNames(p.Fields) {
				if !seen[name] {
					seen[name] = true
					*order = append(*order, name)
				}
			}
		}
		for _, sub := range p.Fields {
			collectEventNames(&sub, seen, order)
		}
	case ast.PatternTuple:
		for i := range p.Elems {
			collectEventNames(&p.Elems[i], seen, order)
		}
	}
}

func sortedFieldNames(m map[string]ast.Pattern) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// buildEventTuplePattern projects one match-when arm's event pattern
// onto the canonical event-name tuple, substituting a wildcard for any
// event not mentioned by this arm.
func (b *Builder) buildEventTuplePattern(armPat *ast.Pattern, eventNames []string, pos diag.Location) *Pattern {
	var mentioned map[string]ast.Pattern
	if armPat != nil && armPat.Kind == ast.PatternStruct && armPat.StructName == "__event" {
		mentioned = armPat.Fields
	}
	out := &Pattern{Kind: ast.PatternTuple, Pos: pos}
	for _, name := range eventNames {
		if sub, ok := mentioned[name]; ok {
			out.Elems = append(out.Elems, b.lowerBindingPattern(&sub))
		} else {
			out.Elems = append(out.Elems, &Pattern{Kind: ast.PatternWildcard, Pos: pos})
		}
	}
	return out
}

// lowerBindingPattern lowers a pattern, binding any identifiers it
// introduces into the current (already-pushed) local scope, and
// validating struct patterns against the struct's declared fields
// (§4.2: UnknownField / MissingField without a `..` catch-all).
func (b *Builder) lowerBindingPattern(p *ast.Pattern) *Pattern {
	if p == nil {
		return nil
	}
	switch p.Kind {
	case ast.PatternWildcard:
		return &Pattern{Kind: p.Kind, Pos: p.Pos}
	case ast.PatternConst:
		return &Pattern{Kind: p.Kind, Pos: p.Pos, Lit: p.Lit}
	case ast.PatternIdent:
		id, err := b.table.InsertLocal(p.Name, symtab.ScopeMatchArmLocal, true, p.Pos)
		if err != nil {
			id, _ = b.table.GetIdentifierID(p.Name, true, p.Pos)
		}
		return &Pattern{Kind: p.Kind, Pos: p.Pos, ID: id}
	case ast.PatternStruct:
		structID, err := b.table.GetStructID(p.StructName, p.Pos)
		out := &Pattern{Kind: p.Kind, Pos: p.Pos, StructID: b.typeDefIDFor(p.StructName, structID), Fields: map[string]*Pattern{}, HasRest: p.HasRest}
		var declared map[string]bool
		if err == nil {
			if data, ok := b.table.Symbol(structID).Data.(*symtab.StructData); ok {
				declared = map[string]bool{}
				for _, fid := range data.Fields {
					fsym := b.table.Symbol(fid)
					if fsym == nil {
						continue
					}
					declared[fsym.Name] = true
					if _, present := p.Fields[fsym.Name]; !present && !p.HasRest {
						b.sink.Add(diag.MissingField, p.Pos, "missing field in struct pattern", fsym.Name)
					}
				}
			}
		}
		for _, name := range sortedFieldNames(p.Fields) {
			if declared != nil && !declared[name] {
				b.sink.Add(diag.UnknownField, p.Pos, "unknown field in struct pattern", name)
			}
		}
		for name, sub := range p.Fields {
			out.Fields[name] = b.lowerBindingPattern(copyPattern(sub))
		}
		return out
	case ast.PatternEnum:
		out := &Pattern{Kind: p.Kind, Pos: p.Pos}
		if p.Payload != nil {
			out.Payload = b.lowerBindingPattern(p.Payload)
		}
		return out
	case ast.PatternTuple:
		out := &Pattern{Kind: p.Kind, Pos: p.Pos}
		for i := range p.Elems {
			out.Elems = append(out.Elems, b.lowerBindingPattern(&p.Elems[i]))
		}
		return out
	}
	return &Pattern{Kind: ast.PatternWildcard, Pos: p.Pos}
}

func copyPattern(p ast.Pattern) *ast.Pattern { return &p }

func (b *Builder) lowerExpr(e *ast.Expr) *Expr {
	if e == nil {
		return nil
	}
	switch e.Kind {
	case ast.ExprConst:
		return &Expr{Kind: e.Kind, Pos: e.Pos, Lit: e.Lit}
	case ast.ExprIdent:
		id, err := b.table.GetIdentifierID(e.Ident, false, e.Pos)
		if err != nil {
			if fid, ferr := b.table.GetFunctionID(e.Ident, e.Pos); ferr == nil {
				id = fid
			}
		}
		return &Expr{Kind: e.Kind, Pos: e.Pos, ID: id}
	case ast.ExprUnaryOp, ast.ExprBinaryOp:
		return &Expr{Kind: e.Kind, Pos: e.Pos, Op: e.Op, Children: b.lowerExprList(e.Children)}
	case ast.ExprIf:
		return &Expr{Kind: e.Kind, Pos: e.Pos, Children: b.lowerExprList(e.Children)}
	case ast.ExprFby:
		return &Expr{Kind: e.Kind, Pos: e.Pos, Children: b.lowerExprList(e.Children)}
	case ast.ExprStruct:
		structID, _ := b.table.GetStructID(e.StructName, e.Pos)
		return &Expr{Kind: e.Kind, Pos: e.Pos, StructID: b.typeDefIDFor(e.StructName, structID), FieldNames: e.FieldNames, Children: b.lowerExprList(e.Children)}
	case ast.ExprTuple, ast.ExprArray:
		return &Expr{Kind: e.Kind, Pos: e.Pos, Children: b.lowerExprList(e.Children)}
	case ast.ExprField:
		return &Expr{Kind: e.Kind, Pos: e.Pos, FieldName: e.FieldName, Children: b.lowerExprList(e.Children)}
	case ast.ExprTupleIndex:
		return &Expr{Kind: e.Kind, Pos: e.Pos, Index: e.Index, Children: b.lowerExprList(e.Children)}
	case ast.ExprMap, ast.ExprFold, ast.ExprSort, ast.ExprZip:
		return &Expr{Kind: e.Kind, Pos: e.Pos, Children: b.lowerExprList(e.Children)}
	case ast.ExprMatch:
		return &Expr{Kind: e.Kind, Pos: e.Pos, Scrutinee: b.lowerExprInNewScope(e.Scrutinee), Arms: b.lowerMatchArms(e.Arms)}
	case ast.ExprWhen:
		b.table.Local()
		pat := b.lowerBindingPattern(e.EventPat)
		scrut := b.lowerExpr(e.Scrutinee)
		body := b.lowerExpr(e.Body)
		b.table.Global()
		return &Expr{Kind: e.Kind, Pos: e.Pos, EventPat: pat, Scrutinee: scrut, Body: body}
	case ast.ExprEmit:
		return &Expr{Kind: e.Kind, Pos: e.Pos, Children: b.lowerExprList(e.Children)}
	case ast.ExprCall:
		calleeID, _ := b.table.GetNodeID(e.Callee, e.Pos)
		return &Expr{Kind: e.Kind, Pos: e.Pos, CalleeID: calleeID, Output: e.Output, Children: b.lowerExprList(e.Children)}
	case ast.ExprFuncApp:
		fnID, err := b.table.GetFunctionID(e.Op, e.Pos)
		expr := &Expr{Kind: e.Kind, Pos: e.Pos, Op: e.Op, Children: b.lowerExprList(e.Children)}
		if err == nil {
			expr.CalleeID = fnID
		}
		return expr
	case ast.ExprLambda:
		b.table.Local()
		var params []symtab.ID
		for i := range e.Params {
			pid, perr := b.table.InsertLocal(e.Params[i].Name, symtab.ScopeLambdaLocal, true, e.Params[i].Pos)
			if perr == nil {
				b.table.SetType(pid, b.resolveTypeRef(e.Params[i].Type))
				params = append(params, pid)
			}
		}
		body := b.lowerExpr(e.Body)
		b.table.Global()
		return &Expr{Kind: e.Kind, Pos: e.Pos, Params: params, Body: body}
	}
	return nil
}

func (b *Builder) lowerExprInNewScope(e *ast.Expr) *Expr { return b.lowerExpr(e) }

func (b *Builder) lowerExprList(in []ast.Expr) []*Expr {
	out := make([]*Expr, len(in))
	for i := range in {
		out[i] = b.lowerExpr(&in[i])
	}
	return out
}

func (b *Builder) typeDefIDFor(name string, _ symtab.ID) types.ID {
	if id, ok := b.typeDefIDs[name]; ok {
		return id
	}
	return 0
}

// lowerContractTerm desugars event-implication `when pat = e? => t` to
// `forall pat, present(e,pat)=e => t` structurally, per §9 ("Implementers
// must perform this expansion structurally during HIR lifting; no
// runtime equivalent exists").
func (b *Builder) lowerContractTerm(t *ast.ContractTerm, fnID symtab.ID) *ContractTerm {
	if t == nil {
		return nil
	}
	switch t.Kind {
	case ast.ContractEventImplies:
		b.table.Local()
		pat := b.lowerBindingPattern(t.EventPat)
		eventExpr := b.lowerExpr(t.EventExpr)
		present := &ContractTerm{Kind: ast.ContractEquals, Pos: t.Pos,
			Left:  &ContractTerm{Kind: ast.ContractIdent, Pos: t.Pos, ID: pat.ID},
			Right: &ContractTerm{Kind: ast.ContractIdent, Pos: t.Pos, EventExpr: eventExpr}}
		then := b.lowerContractTerm(t.Then, fnID)
		b.table.Global()
		return &ContractTerm{Kind: ast.ContractForall, Pos: t.Pos, VarID: pat.ID, Body: &ContractTerm{Kind: ast.ContractImplies, Pos: t.Pos, Left: present, Right: then}}
	case ast.ContractForall:
		b.table.Local()
		vid, err := b.table.InsertLocal(t.VarName, symtab.ScopeForallLocal, true, t.Pos)
		if err != nil {
			vid, _ = b.table.GetIdentifierID(t.VarName, true, t.Pos)
		}
		b.table.SetType(vid, b.resolveTypeRef(t.VarType))
		body := b.lowerContractTerm(t.Body, fnID)
		b.table.Global()
		return &ContractTerm{Kind: t.Kind, Pos: t.Pos, VarID: vid, Body: body}
	case ast.ContractImplies:
		return &ContractTerm{Kind: t.Kind, Pos: t.Pos, Left: b.lowerContractTerm(t.Left, fnID), Right: b.lowerContractTerm(t.Right, fnID)}
	case ast.ContractEquals:
		return &ContractTerm{Kind: t.Kind, Pos: t.Pos, Left: b.lowerContractTerm(t.Left, fnID), Right: b.lowerContractTerm(t.Right, fnID)}
	case ast.ContractEnumIs:
		return &ContractTerm{Kind: t.Kind, Pos: t.Pos, EnumID: b.typeDefIDFor(t.EnumName, 0)}
	case ast.ContractResult:
		id, _ := b.table.GetIdentifierID("result", true, t.Pos)
		return &ContractTerm{Kind: t.Kind, Pos: t.Pos, ID: id}
	case ast.ContractUnary:
		return &ContractTerm{Kind: t.Kind, Pos: t.Pos, Op: t.Op, Left: b.lowerContractTerm(t.Left, fnID)}
	case ast.ContractBinary:
		return &ContractTerm{Kind: t.Kind, Pos: t.Pos, Op: t.Op, Left: b.lowerContractTerm(t.Left, fnID), Right: b.lowerContractTerm(t.Right, fnID)}
	case ast.ContractConst:
		return &ContractTerm{Kind: t.Kind, Pos: t.Pos, Lit: t.Lit}
	case ast.ContractIdent:
		id, _ := b.table.GetIdentifierID(t.Ident, false, t.Pos)
		return &ContractTerm{Kind: t.Kind, Pos: t.Pos, ID: id}
	}
	return nil
}
