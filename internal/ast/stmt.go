package ast

import (
	"strings"

	"github.com/quanta-labs/qprove/internal/diag"
)

// Program is a parsed DSL source file.
type Program struct {
	Stmts []Stmt
}

// Stmt is a top-level statement.
type Stmt interface {
	isStmt()
	Span() diag.Span
	String() string
}

// ConstDecl declares a named scalar constant: const omega = 1.0;
type ConstDecl struct {
	Name  string
	Value Expr
	Sp    diag.Span
}

func (*ConstDecl) isStmt()           {}
func (s *ConstDecl) Span() diag.Span { return s.Sp }
func (s *ConstDecl) String() string  { return "const " + s.Name + " = " + s.Value.String() + ";" }

// SymbolDecl declares a free scalar parameter: symbol g;
type SymbolDecl struct {
	Name string
	Sp   diag.Span
}

func (*SymbolDecl) isStmt()           {}
func (s *SymbolDecl) Span() diag.Span { return s.Sp }
func (s *SymbolDecl) String() string  { return "symbol " + s.Name + ";" }

// OperatorDecl declares a free symbolic operator: operator A; or, with a
// concrete dimension, operator A(4);. Dim zero means unknown.
type OperatorDecl struct {
	Name string
	Dim  int
	Sp   diag.Span
}

func (*OperatorDecl) isStmt()           {}
func (s *OperatorDecl) Span() diag.Span { return s.Sp }
func (s *OperatorDecl) String() string  { return "operator " + s.Name + ";" }

// MatrixDecl declares a concrete matrix: matrix sigma = [[0,1],[1,0]];
type MatrixDecl struct {
	Name  string
	Value Expr
	Sp    diag.Span
}

func (*MatrixDecl) isStmt()           {}
func (s *MatrixDecl) Span() diag.Span { return s.Sp }
func (s *MatrixDecl) String() string  { return "matrix " + s.Name + " = " + s.Value.String() + ";" }

// StateDecl declares a ket vector: state psi = [1, 0];
type StateDecl struct {
	Name  string
	Value Expr
	Sp    diag.Span
}

func (*StateDecl) isStmt()           {}
func (s *StateDecl) Span() diag.Span { return s.Sp }
func (s *StateDecl) String() string  { return "state " + s.Name + " = " + s.Value.String() + ";" }

// DensityDecl declares a density matrix: density rho = [[...]];
type DensityDecl struct {
	Name  string
	Value Expr
	Sp    diag.Span
}

func (*DensityDecl) isStmt()           {}
func (s *DensityDecl) Span() diag.Span { return s.Sp }
func (s *DensityDecl) String() string  { return "density " + s.Name + " = " + s.Value.String() + ";" }

// UnitaryDecl declares a unitary operator: unitary U = [[...]];
type UnitaryDecl struct {
	Name  string
	Value Expr
	Sp    diag.Span
}

func (*UnitaryDecl) isStmt()           {}
func (s *UnitaryDecl) Span() diag.Span { return s.Sp }
func (s *UnitaryDecl) String() string  { return "unitary " + s.Name + " = " + s.Value.String() + ";" }

// HamiltonianDef defines a Hamiltonian, optionally parameterized:
// Hamiltonian H(omega) = omega * sigma_z;
type HamiltonianDef struct {
	Name   string
	Params []string
	Body   Expr
	Sp     diag.Span
}

func (*HamiltonianDef) isStmt()           {}
func (s *HamiltonianDef) Span() diag.Span { return s.Sp }
func (s *HamiltonianDef) String() string {
	var b strings.Builder
	b.WriteString("Hamiltonian ")
	b.WriteString(s.Name)
	if len(s.Params) > 0 {
		b.WriteByte('(')
		b.WriteString(strings.Join(s.Params, ", "))
		b.WriteByte(')')
	}
	b.WriteString(" = ")
	b.WriteString(s.Body.String())
	b.WriteByte(';')
	return b.String()
}

// FunctionDef defines a user function: func f(x) = sin(x) * x;
type FunctionDef struct {
	Name   string
	Params []string
	Body   Expr
	Sp     diag.Span
}

func (*FunctionDef) isStmt()           {}
func (s *FunctionDef) Span() diag.Span { return s.Sp }
func (s *FunctionDef) String() string {
	return "func " + s.Name + "(" + strings.Join(s.Params, ", ") + ") = " + s.Body.String() + ";"
}

// MeasKind distinguishes projective measurements from general POVMs.
type MeasKind int

const (
	MeasProjective MeasKind = iota
	MeasPOVM
)

func (k MeasKind) String() string {
	if k == MeasPOVM {
		return "povm"
	}
	return "projective"
}

// MeasurementDef declares a measurement:
// measurement M = projective([[1,0],[0,0]], [[0,0],[0,1]]);
type MeasurementDef struct {
	Name      string
	Kind      MeasKind
	Operators []Expr
	Sp        diag.Span
}

func (*MeasurementDef) isStmt()           {}
func (s *MeasurementDef) Span() diag.Span { return s.Sp }
func (s *MeasurementDef) String() string {
	parts := make([]string, len(s.Operators))
	for i, op := range s.Operators {
		parts[i] = op.String()
	}
	return "measurement " + s.Name + " = " + s.Kind.String() + "(" + strings.Join(parts, ", ") + ");"
}

// PropertyKind enumerates provable/assumable structural properties.
type PropertyKind int

const (
	PropReal PropertyKind = iota
	PropComplexScalar
	PropHermitian
	PropUnitary
	PropPSD
	PropPositive
	PropTraceOne
)

func (k PropertyKind) String() string {
	switch k {
	case PropReal:
		return "real"
	case PropComplexScalar:
		return "complex"
	case PropHermitian:
		return "hermitian"
	case PropUnitary:
		return "unitary"
	case PropPSD:
		return "psd"
	case PropPositive:
		return "positive"
	case PropTraceOne:
		return "trace_one"
	default:
		return "unknown"
	}
}

// PropertyKindFromName maps a DSL keyword to a PropertyKind.
func PropertyKindFromName(name string) (PropertyKind, bool) {
	switch name {
	case "real":
		return PropReal, true
	case "complex":
		return PropComplexScalar, true
	case "hermitian":
		return PropHermitian, true
	case "unitary":
		return PropUnitary, true
	case "psd":
		return PropPSD, true
	case "positive":
		return PropPositive, true
	case "trace_one":
		return PropTraceOne, true
	}
	return 0, false
}

// AssumptionKind distinguishes a declared property fact from a declared
// relational fact.
type AssumptionKind int

const (
	AssumeProperty AssumptionKind = iota
	AssumeRelation
)

// Assumption is a declared fact, scoped to the statements that follow it.
type Assumption struct {
	Kind     AssumptionKind
	Symbol   string       // AssumeProperty
	Property PropertyKind // AssumeProperty
	LHS      Expr         // AssumeRelation
	RHS      Expr         // AssumeRelation
	Sp       diag.Span
}

func (a Assumption) String() string {
	if a.Kind == AssumeRelation {
		return a.LHS.String() + " == " + a.RHS.String()
	}
	return a.Symbol + " is " + a.Property.String()
}

// AssumeStmt records an assumption: assume A is hermitian; assume A*B == B*A;
type AssumeStmt struct {
	Assumption Assumption
	Sp         diag.Span
}

func (*AssumeStmt) isStmt()           {}
func (s *AssumeStmt) Span() diag.Span { return s.Sp }
func (s *AssumeStmt) String() string  { return "assume " + s.Assumption.String() + ";" }

// GoalKind distinguishes identity goals from property goals.
type GoalKind int

const (
	GoalIdentity GoalKind = iota
	GoalProperty
)

// ProofGoal is the target of a prove statement.
type ProofGoal struct {
	Kind     GoalKind
	LHS      Expr         // GoalIdentity
	RHS      Expr         // GoalIdentity
	Property PropertyKind // GoalProperty
	Arg      Expr         // GoalProperty
}

func (g ProofGoal) String() string {
	if g.Kind == GoalProperty {
		return g.Property.String() + "(" + g.Arg.String() + ")"
	}
	return g.LHS.String() + " == " + g.RHS.String()
}

// ProveStmt requests a proof: prove [sigma_x, sigma_y] == 2*i*sigma_z;
type ProveStmt struct {
	Goal ProofGoal
	Sp   diag.Span
}

func (*ProveStmt) isStmt()           {}
func (s *ProveStmt) Span() diag.Span { return s.Sp }
func (s *ProveStmt) String() string  { return "prove " + s.Goal.String() + ";" }
