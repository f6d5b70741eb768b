// Package resolver binds identifier uses to declarations.
//
// It reports three error classes, all accumulated across the program:
// Undefined (use of a name with no prior declaration), Redefinition
// (duplicate declaration in the same scope), and Circular (declarations
// whose bodies reference each other). Names that fail to resolve are
// poisoned so later stages can suppress cascading diagnostics for
// subtrees that mention them.
package resolver

import (
	"fmt"
	"sort"

	"github.com/quanta-labs/qprove/internal/ast"
	"github.com/quanta-labs/qprove/internal/diag"
)

// SymbolKind classifies a declared name.
type SymbolKind int

const (
	KindBuiltin SymbolKind = iota
	KindConstant
	KindScalar
	KindOperator
	KindMatrix
	KindState
	KindDensity
	KindUnitary
	KindHamiltonian
	KindFunction
	KindMeasurement
)

func (k SymbolKind) String() string {
	switch k {
	case KindBuiltin:
		return "builtin"
	case KindConstant:
		return "constant"
	case KindScalar:
		return "symbol"
	case KindOperator:
		return "operator"
	case KindMatrix:
		return "matrix"
	case KindState:
		return "state"
	case KindDensity:
		return "density"
	case KindUnitary:
		return "unitary"
	case KindHamiltonian:
		return "Hamiltonian"
	case KindFunction:
		return "function"
	case KindMeasurement:
		return "measurement"
	default:
		return "unknown"
	}
}

// Symbol is one declared name. Symbols are read-only after resolution.
type Symbol struct {
	Name   string
	Kind   SymbolKind
	Decl   diag.Span
	Params []string
	Dim    int // operator dimension hint, 0 when unknown
	Index  int // statement index of the declaration, -1 for builtins
}

// SymbolTable maps names to symbols.
type SymbolTable struct {
	syms map[string]*Symbol
}

// Builtins predeclared in the universe scope: the three Pauli matrices,
// the identity matrix, the imaginary unit, and pi.
var builtinNames = []struct {
	name string
	kind SymbolKind
}{
	{"sigma_x", KindBuiltin},
	{"sigma_y", KindBuiltin},
	{"sigma_z", KindBuiltin},
	{"I", KindBuiltin},
	{"i", KindBuiltin},
	{"pi", KindBuiltin},
}

func newSymbolTable() *SymbolTable {
	t := &SymbolTable{syms: make(map[string]*Symbol)}
	for _, b := range builtinNames {
		t.syms[b.name] = &Symbol{Name: b.name, Kind: b.kind, Index: -1}
	}
	return t
}

// Lookup returns the symbol for a name.
func (t *SymbolTable) Lookup(name string) (*Symbol, bool) {
	s, ok := t.syms[name]
	return s, ok
}

// Names returns all declared names in a stable order.
func (t *SymbolTable) Names() []string {
	names := make([]string, 0, len(t.syms))
	for n := range t.syms {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IsBuiltinMatrix reports whether a name is one of the predeclared 2x2
// operator constants.
func IsBuiltinMatrix(name string) bool {
	switch name {
	case "sigma_x", "sigma_y", "sigma_z", "I":
		return true
	}
	return false
}

// Resolved is the output of name resolution.
type Resolved struct {
	Program  *ast.Program
	Table    *SymbolTable
	Poisoned map[string]bool
}

// Resolve binds every identifier in the program and accumulates name
// errors instead of stopping at the first one.
func Resolve(prog *ast.Program) (*Resolved, []*diag.Diagnostic) {
	r := &resolver{
		table:    newSymbolTable(),
		poisoned: make(map[string]bool),
		declIdx:  make(map[string]int),
		deps:     make(map[string][]string),
	}
	r.collectDeclarations(prog)
	r.detectCycles()
	r.checkUses(prog)

	return &Resolved{Program: prog, Table: r.table, Poisoned: r.poisoned}, r.diags
}

type resolver struct {
	table    *SymbolTable
	diags    []*diag.Diagnostic
	poisoned map[string]bool
	declIdx  map[string]int      // name -> statement index
	deps     map[string][]string // decl name -> referenced decl names
	circular map[string]bool
}

func (r *resolver) errorf(span diag.Span, rule, format string, args ...any) {
	r.diags = append(r.diags, &diag.Diagnostic{
		Stage:    diag.StageResolve,
		Rule:     rule,
		Severity: diag.SeverityError,
		Message:  fmt.Sprintf(format, args...),
		Span:     span,
	})
}

func (r *resolver) declare(idx int, name string, kind SymbolKind, span diag.Span, params []string, dim int) {
	if prev, exists := r.table.syms[name]; exists {
		if prev.Index == -1 {
			r.errorf(span, "redefinition", "cannot redeclare builtin %q", name)
		} else {
			r.errorf(span, "redefinition", "%q is already declared as a %s at %s", name, prev.Kind, prev.Decl)
		}
		r.poisoned[name] = true
		return
	}
	r.table.syms[name] = &Symbol{Name: name, Kind: kind, Decl: span, Params: params, Dim: dim, Index: idx}
	r.declIdx[name] = idx
}

func (r *resolver) collectDeclarations(prog *ast.Program) {
	for idx, stmt := range prog.Stmts {
		switch s := stmt.(type) {
		case *ast.ConstDecl:
			r.declare(idx, s.Name, KindConstant, s.Sp, nil, 0)
			r.deps[s.Name] = identNames(s.Value, nil)
		case *ast.SymbolDecl:
			r.declare(idx, s.Name, KindScalar, s.Sp, nil, 0)
		case *ast.OperatorDecl:
			r.declare(idx, s.Name, KindOperator, s.Sp, nil, s.Dim)
		case *ast.MatrixDecl:
			r.declare(idx, s.Name, KindMatrix, s.Sp, nil, 0)
			r.deps[s.Name] = identNames(s.Value, nil)
		case *ast.StateDecl:
			r.declare(idx, s.Name, KindState, s.Sp, nil, 0)
			r.deps[s.Name] = identNames(s.Value, nil)
		case *ast.DensityDecl:
			r.declare(idx, s.Name, KindDensity, s.Sp, nil, 0)
			r.deps[s.Name] = identNames(s.Value, nil)
		case *ast.UnitaryDecl:
			r.declare(idx, s.Name, KindUnitary, s.Sp, nil, 0)
			r.deps[s.Name] = identNames(s.Value, nil)
		case *ast.HamiltonianDef:
			r.declare(idx, s.Name, KindHamiltonian, s.Sp, s.Params, 0)
			r.deps[s.Name] = identNames(s.Body, s.Params)
		case *ast.FunctionDef:
			r.declare(idx, s.Name, KindFunction, s.Sp, s.Params, 0)
			r.deps[s.Name] = identNames(s.Body, s.Params)
		case *ast.MeasurementDef:
			r.declare(idx, s.Name, KindMeasurement, s.Sp, nil, 0)
			var refs []string
			for _, op := range s.Operators {
				refs = append(refs, identNames(op, nil)...)
			}
			r.deps[s.Name] = refs
		}
	}
}

// detectCycles runs a depth-first search over the declaration-dependency
// graph and reports every declaration that participates in a cycle.
func (r *resolver) detectCycles() {
	r.circular = make(map[string]bool)
	state := make(map[string]int) // 0 unvisited, 1 on stack, 2 done
	var stack []string

	var visit func(name string)
	visit = func(name string) {
		state[name] = 1
		stack = append(stack, name)
		for _, dep := range r.deps[name] {
			if _, declared := r.declIdx[dep]; !declared {
				continue
			}
			switch state[dep] {
			case 0:
				visit(dep)
			case 1:
				// found a cycle: everything from dep to the stack top
				for j := len(stack) - 1; j >= 0; j-- {
					r.circular[stack[j]] = true
					if stack[j] == dep {
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = 2
	}

	names := make([]string, 0, len(r.deps))
	for n := range r.deps {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if state[n] == 0 {
			visit(n)
		}
	}

	circNames := make([]string, 0, len(r.circular))
	for n := range r.circular {
		circNames = append(circNames, n)
	}
	sort.Strings(circNames)
	for _, n := range circNames {
		sym := r.table.syms[n]
		r.errorf(sym.Decl, "circular", "declaration of %q is part of a reference cycle", n)
		r.poisoned[n] = true
	}
}

// checkUses verifies that every identifier use refers to a declaration
// that precedes it. Forward references inside a cycle are already
// reported as Circular and are not double-reported here.
func (r *resolver) checkUses(prog *ast.Program) {
	for idx, stmt := range prog.Stmts {
		switch s := stmt.(type) {
		case *ast.ConstDecl:
			r.checkExpr(idx, s.Value, nil)
		case *ast.MatrixDecl:
			r.checkExpr(idx, s.Value, nil)
		case *ast.StateDecl:
			r.checkExpr(idx, s.Value, nil)
		case *ast.DensityDecl:
			r.checkExpr(idx, s.Value, nil)
		case *ast.UnitaryDecl:
			r.checkExpr(idx, s.Value, nil)
		case *ast.HamiltonianDef:
			r.checkExpr(idx, s.Body, s.Params)
		case *ast.FunctionDef:
			r.checkExpr(idx, s.Body, s.Params)
		case *ast.MeasurementDef:
			for _, op := range s.Operators {
				r.checkExpr(idx, op, nil)
			}
		case *ast.AssumeStmt:
			if s.Assumption.Kind == ast.AssumeRelation {
				r.checkExpr(idx, s.Assumption.LHS, nil)
				r.checkExpr(idx, s.Assumption.RHS, nil)
			} else {
				r.checkName(idx, s.Assumption.Symbol, s.Sp)
			}
		case *ast.ProveStmt:
			if s.Goal.Kind == ast.GoalIdentity {
				r.checkExpr(idx, s.Goal.LHS, nil)
				r.checkExpr(idx, s.Goal.RHS, nil)
			} else {
				r.checkExpr(idx, s.Goal.Arg, nil)
			}
		}
	}
}

func (r *resolver) checkExpr(stmtIdx int, e ast.Expr, bound []string) {
	for _, id := range collectIdents(e, bound) {
		r.checkIdent(stmtIdx, id)
	}
}

func (r *resolver) checkIdent(stmtIdx int, id *ast.Ident) {
	sym, ok := r.table.Lookup(id.Name)
	if !ok {
		r.errorf(id.Sp, "undefined", "undefined name %q", id.Name)
		r.poisoned[id.Name] = true
		return
	}
	if sym.Index > stmtIdx && !r.circular[id.Name] {
		r.errorf(id.Sp, "undefined", "%q is used before its declaration at %s", id.Name, sym.Decl)
		r.poisoned[id.Name] = true
	}
}

func (r *resolver) checkName(stmtIdx int, name string, span diag.Span) {
	r.checkIdent(stmtIdx, &ast.Ident{Name: name, Sp: span})
}

// identNames extracts the referenced names from an expression, skipping
// bound parameters.
func identNames(e ast.Expr, bound []string) []string {
	ids := collectIdents(e, bound)
	names := make([]string, 0, len(ids))
	seen := make(map[string]bool)
	for _, id := range ids {
		if !seen[id.Name] {
			seen[id.Name] = true
			names = append(names, id.Name)
		}
	}
	return names
}

func collectIdents(e ast.Expr, bound []string) []*ast.Ident {
	boundSet := make(map[string]bool, len(bound))
	for _, b := range bound {
		boundSet[b] = true
	}
	var ids []*ast.Ident
	var walk func(ast.Expr)
	walk = func(e ast.Expr) {
		switch n := e.(type) {
		case *ast.Ident:
			if !boundSet[n.Name] {
				ids = append(ids, n)
			}
		case *ast.Number:
		case *ast.Matrix:
			for _, row := range n.Rows {
				for _, el := range row {
					walk(el)
				}
			}
		case *ast.Vector:
			for _, el := range n.Elems {
				walk(el)
			}
		case *ast.BracketPair:
			walk(n.Left)
			walk(n.Right)
		case *ast.Binary:
			walk(n.X)
			walk(n.Y)
		case *ast.Neg:
			walk(n.X)
		case *ast.Dagger:
			walk(n.X)
		case *ast.Transpose:
			walk(n.X)
		case *ast.Trace:
			walk(n.X)
		case *ast.Tensor:
			walk(n.X)
			walk(n.Y)
		case *ast.Commutator:
			walk(n.X)
			walk(n.Y)
		case *ast.AntiCommutator:
			walk(n.X)
			walk(n.Y)
		case *ast.Call:
			// the call target is resolved as a name use as well,
			// unless it is a builtin function
			if !isBuiltinFunc(n.Name) {
				ids = append(ids, &ast.Ident{Name: n.Name, Sp: n.Sp})
			}
			for _, a := range n.Args {
				walk(a)
			}
		case *ast.Sum:
			for _, t := range n.Terms {
				walk(t)
			}
		case *ast.Product:
			for _, f := range n.Factors {
				walk(f)
			}
		}
	}
	walk(e)
	return ids
}

func isBuiltinFunc(name string) bool {
	switch name {
	case "expm", "sqrt", "sin", "cos", "exp", "log", "det", "eig":
		return true
	}
	return false
}
