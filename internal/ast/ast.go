// Package ast defines the spanned syntax tree for the quantum DSL.
//
// Expression nodes form a finite acyclic tree. Nodes are treated as
// immutable after construction: the parser, type checker, and rewrite
// engine always build new nodes instead of mutating existing ones, so
// subtrees may be safely shared between expressions.
//
// String renders every node in a deterministic textual form that the
// expression parser can read back. This serialization is the canonical
// total order used by the rewrite engine and the encoding recorded in
// proof certificates.
package ast

import (
	"strings"

	"github.com/quanta-labs/qprove/internal/diag"
)

// Expr is an expression node in the DSL.
type Expr interface {
	isExpr()
	Span() diag.Span
	String() string
}

// Number is a complex scalar literal.
type Number struct {
	Value complex128
	Sp    diag.Span
}

func (*Number) isExpr()           {}
func (e *Number) Span() diag.Span { return e.Sp }
func (e *Number) String() string  { return FormatComplex(e.Value) }

// Ident is a reference to a declared or predeclared name.
type Ident struct {
	Name string
	Sp   diag.Span
}

func (*Ident) isExpr()           {}
func (e *Ident) Span() diag.Span { return e.Sp }
func (e *Ident) String() string  { return e.Name }

// Matrix is a 2D matrix literal.
type Matrix struct {
	Rows [][]Expr
	Sp   diag.Span
}

func (*Matrix) isExpr()           {}
func (e *Matrix) Span() diag.Span { return e.Sp }
func (e *Matrix) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, row := range e.Rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('[')
		for j, el := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(el.String())
		}
		b.WriteByte(']')
	}
	b.WriteByte(']')
	return b.String()
}

// Vector is a 1D vector (ket) literal.
type Vector struct {
	Elems []Expr
	Sp    diag.Span
}

func (*Vector) isExpr()           {}
func (e *Vector) Span() diag.Span { return e.Sp }
func (e *Vector) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, el := range e.Elems {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(el.String())
	}
	b.WriteByte(']')
	return b.String()
}

// BracketPair is a two-element bracket expression such as [A, B].
// The parser cannot tell a 2-vector from a commutator; the type checker
// resolves the pair to a Commutator when both elements are square
// operators of equal dimension, and to a Vector otherwise.
type BracketPair struct {
	Left  Expr
	Right Expr
	Sp    diag.Span
}

func (*BracketPair) isExpr()           {}
func (e *BracketPair) Span() diag.Span { return e.Sp }
func (e *BracketPair) String() string {
	return "[" + e.Left.String() + ", " + e.Right.String() + "]"
}

// BinOp enumerates binary operators.
type BinOp int

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpPow
)

func (op BinOp) String() string {
	switch op {
	case OpAdd:
		return "+"
	case OpSub:
		return "-"
	case OpMul:
		return "*"
	case OpDiv:
		return "/"
	case OpPow:
		return "^"
	default:
		return "?"
	}
}

// Binary is a binary expression.
type Binary struct {
	Op BinOp
	X  Expr
	Y  Expr
	Sp diag.Span
}

func (*Binary) isExpr()           {}
func (e *Binary) Span() diag.Span { return e.Sp }
func (e *Binary) String() string {
	return "(" + e.X.String() + " " + e.Op.String() + " " + e.Y.String() + ")"
}

// Neg is unary negation.
type Neg struct {
	X  Expr
	Sp diag.Span
}

func (*Neg) isExpr()           {}
func (e *Neg) Span() diag.Span { return e.Sp }
func (e *Neg) String() string  { return "(-" + e.X.String() + ")" }

// Dagger is the Hermitian adjoint.
type Dagger struct {
	X  Expr
	Sp diag.Span
}

func (*Dagger) isExpr()           {}
func (e *Dagger) Span() diag.Span { return e.Sp }
func (e *Dagger) String() string  { return "dagger(" + e.X.String() + ")" }

// Transpose is the plain (non-conjugating) transpose.
type Transpose struct {
	X  Expr
	Sp diag.Span
}

func (*Transpose) isExpr()           {}
func (e *Transpose) Span() diag.Span { return e.Sp }
func (e *Transpose) String() string  { return "transpose(" + e.X.String() + ")" }

// Trace is the matrix trace.
type Trace struct {
	X  Expr
	Sp diag.Span
}

func (*Trace) isExpr()           {}
func (e *Trace) Span() diag.Span { return e.Sp }
func (e *Trace) String() string  { return "trace(" + e.X.String() + ")" }

// Tensor is the Kronecker (tensor) product.
type Tensor struct {
	X  Expr
	Y  Expr
	Sp diag.Span
}

func (*Tensor) isExpr()           {}
func (e *Tensor) Span() diag.Span { return e.Sp }
func (e *Tensor) String() string {
	return "tensor(" + e.X.String() + ", " + e.Y.String() + ")"
}

// Commutator is [A, B] = AB - BA.
type Commutator struct {
	X  Expr
	Y  Expr
	Sp diag.Span
}

func (*Commutator) isExpr()           {}
func (e *Commutator) Span() diag.Span { return e.Sp }
func (e *Commutator) String() string {
	return "commutator(" + e.X.String() + ", " + e.Y.String() + ")"
}

// AntiCommutator is {A, B} = AB + BA.
type AntiCommutator struct {
	X  Expr
	Y  Expr
	Sp diag.Span
}

func (*AntiCommutator) isExpr()           {}
func (e *AntiCommutator) Span() diag.Span { return e.Sp }
func (e *AntiCommutator) String() string {
	return "anticommutator(" + e.X.String() + ", " + e.Y.String() + ")"
}

// Call applies a named builtin (expm, sqrt, sin, cos, exp, log, det, eig)
// or a user-defined function.
type Call struct {
	Name string
	Args []Expr
	Sp   diag.Span
}

func (*Call) isExpr()           {}
func (e *Call) Span() diag.Span { return e.Sp }
func (e *Call) String() string {
	var b strings.Builder
	b.WriteString(e.Name)
	b.WriteByte('(')
	for i, a := range e.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Sum is the n-ary associative form of addition produced by the
// canonicalizer. The parser never emits it.
type Sum struct {
	Terms []Expr
	Sp    diag.Span
}

func (*Sum) isExpr()           {}
func (e *Sum) Span() diag.Span { return e.Sp }
func (e *Sum) String() string {
	if len(e.Terms) == 0 {
		return "0"
	}
	var b strings.Builder
	b.WriteByte('(')
	for i, t := range e.Terms {
		if i > 0 {
			b.WriteString(" + ")
		}
		b.WriteString(t.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Product is the n-ary associative form of multiplication produced by
// the canonicalizer. Factor order is significant: only scalar factors
// commute.
type Product struct {
	Factors []Expr
	Sp      diag.Span
}

func (*Product) isExpr()           {}
func (e *Product) Span() diag.Span { return e.Sp }
func (e *Product) String() string {
	if len(e.Factors) == 0 {
		return "1"
	}
	var b strings.Builder
	b.WriteByte('(')
	for i, f := range e.Factors {
		if i > 0 {
			b.WriteString(" * ")
		}
		b.WriteString(f.String())
	}
	b.WriteByte(')')
	return b.String()
}

// Equal reports structural equality of two expressions, compared through
// their deterministic serializations.
func Equal(a, b Expr) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.String() == b.String()
}
