// Package typechecker infers and validates the shape of every expression
// in a resolved program.
//
// It also resolves the one piece of grammar ambiguity the parser leaves
// behind: a two-element bracket pair `[a, b]` becomes a commutator when
// both elements are square operators of equal dimension, and a column
// vector otherwise. Errors are accumulated per statement so a single
// mismatch does not hide the rest, and subtrees mentioning a name the
// resolver failed to bind are skipped silently.
package typechecker

import (
	"fmt"

	"github.com/quanta-labs/qprove/internal/ast"
	"github.com/quanta-labs/qprove/internal/diag"
	"github.com/quanta-labs/qprove/internal/resolver"
)

// Typed is the output of type checking. The program it carries has had
// every BracketPair rewritten into its resolved form.
type Typed struct {
	Program *ast.Program
	Table   *resolver.SymbolTable
	Shapes  map[ast.Expr]Shape
}

// ShapeOf returns the inferred shape for a node, or an unknown shape if
// the node was never checked (e.g. inside a poisoned subtree).
func (t *Typed) ShapeOf(e ast.Expr) Shape {
	return t.Shapes[e]
}

// Check infers shapes for the whole program, returning the typed tree
// and every shape error found.
func Check(res *resolver.Resolved) (*Typed, []*diag.Diagnostic) {
	c := &checker{
		table:    res.Table,
		poisoned: res.Poisoned,
		shapes:   make(map[ast.Expr]Shape),
		declared: make(map[string]Shape),
	}
	c.predeclare()
	for _, stmt := range res.Program.Stmts {
		c.checkStmt(stmt)
	}
	return &Typed{Program: res.Program, Table: res.Table, Shapes: c.shapes}, c.diags
}

type checker struct {
	table    *resolver.SymbolTable
	poisoned map[string]bool
	shapes   map[ast.Expr]Shape
	declared map[string]Shape // shape of each declared name
	params   map[string]Shape // in-scope parameters, nil outside bodies
	diags    []*diag.Diagnostic
}

func (c *checker) predeclare() {
	c.declared["sigma_x"] = OperatorOf(2)
	c.declared["sigma_y"] = OperatorOf(2)
	c.declared["sigma_z"] = OperatorOf(2)
	c.declared["I"] = OperatorOf(0) // identity adapts to context
	c.declared["i"] = Scalar(NumComplex)
	c.declared["pi"] = Scalar(NumReal)
}

func (c *checker) errorf(span diag.Span, expected, found Shape, format string, args ...any) {
	c.errorHint(span, expected, found, "", format, args...)
}

func (c *checker) errorHint(span diag.Span, expected, found Shape, hint, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if expected.Kind != ShapeUnknown || found.Kind != ShapeUnknown {
		msg = fmt.Sprintf("%s (expected %s, found %s)", msg, expected, found)
	}
	c.diags = append(c.diags, &diag.Diagnostic{
		Stage:    diag.StageTypecheck,
		Rule:     "shape-mismatch",
		Severity: diag.SeverityError,
		Message:  msg,
		Hint:     hint,
		Span:     span,
	})
}

func (c *checker) checkStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.ConstDecl:
		s.Value, c.declared[s.Name] = c.checkExpr(s.Value)
	case *ast.SymbolDecl:
		c.declared[s.Name] = Scalar(NumComplex)
	case *ast.OperatorDecl:
		c.declared[s.Name] = OperatorOf(s.Dim)
	case *ast.MatrixDecl:
		var sh Shape
		s.Value, sh = c.checkExpr(s.Value)
		c.declared[s.Name] = sh
	case *ast.StateDecl:
		var sh Shape
		s.Value, sh = c.checkExpr(s.Value)
		if sh.Kind != ShapeUnknown && sh.Kind != ShapeVector {
			c.errorf(s.Value.Span(), VectorOf(0), sh, "state %q must be a column vector", s.Name)
		}
		c.declared[s.Name] = sh
	case *ast.DensityDecl:
		var sh Shape
		s.Value, sh = c.checkExpr(s.Value)
		if sh.IsMatrixLike() && sh.IsSquare() {
			c.declared[s.Name] = DensityOf(sh.Dim())
		} else {
			if sh.Kind != ShapeUnknown {
				c.errorf(s.Value.Span(), DensityOf(0), sh, "density %q must be a square matrix", s.Name)
			}
			c.declared[s.Name] = sh
		}
	case *ast.UnitaryDecl:
		var sh Shape
		s.Value, sh = c.checkExpr(s.Value)
		if sh.IsMatrixLike() && sh.IsSquare() {
			c.declared[s.Name] = UnitaryOf(sh.Dim())
		} else {
			if sh.Kind != ShapeUnknown {
				c.errorf(s.Value.Span(), UnitaryOf(0), sh, "unitary %q must be a square matrix", s.Name)
			}
			c.declared[s.Name] = sh
		}
	case *ast.HamiltonianDef:
		sh := c.checkBody(s.Params, &s.Body)
		if sh.IsMatrixLike() && !sh.IsSquare() {
			c.errorf(s.Body.Span(), OperatorOf(0), sh, "Hamiltonian %q must be square", s.Name)
		}
		c.declared[s.Name] = sh
	case *ast.FunctionDef:
		c.declared[s.Name] = c.checkBody(s.Params, &s.Body)
	case *ast.MeasurementDef:
		dim := 0
		for idx, op := range s.Operators {
			var sh Shape
			s.Operators[idx], sh = c.checkExpr(op)
			if sh.Kind == ShapeUnknown {
				continue
			}
			if !sh.IsSquare() {
				c.errorf(op.Span(), OperatorOf(0), sh, "measurement operator %d of %q must be square", idx+1, s.Name)
				continue
			}
			if dim == 0 {
				dim = sh.Dim()
			} else if sh.Dim() != 0 && sh.Dim() != dim {
				c.errorf(op.Span(), OperatorOf(dim), sh, "measurement operators of %q must share one dimension", s.Name)
			}
		}
		c.declared[s.Name] = MeasurementOf(len(s.Operators), dim)
	case *ast.AssumeStmt:
		if s.Assumption.Kind == ast.AssumeRelation {
			var ls, rs Shape
			s.Assumption.LHS, ls = c.checkExpr(s.Assumption.LHS)
			s.Assumption.RHS, rs = c.checkExpr(s.Assumption.RHS)
			c.requireComparable(s.Sp, ls, rs, "assumed relation")
		}
	case *ast.ProveStmt:
		if s.Goal.Kind == ast.GoalIdentity {
			var ls, rs Shape
			s.Goal.LHS, ls = c.checkExpr(s.Goal.LHS)
			s.Goal.RHS, rs = c.checkExpr(s.Goal.RHS)
			c.requireComparable(s.Sp, ls, rs, "proof goal")
		} else {
			var sh Shape
			s.Goal.Arg, sh = c.checkExpr(s.Goal.Arg)
			c.checkPropertyArg(s, sh)
		}
	}
}

// checkBody checks a parameterized body with the parameters bound as
// complex scalars.
func (c *checker) checkBody(params []string, body *ast.Expr) Shape {
	saved := c.params
	c.params = make(map[string]Shape, len(params))
	for _, p := range params {
		c.params[p] = Scalar(NumComplex)
	}
	var sh Shape
	*body, sh = c.checkExpr(*body)
	c.params = saved
	return sh
}

func (c *checker) requireComparable(span diag.Span, a, b Shape, what string) {
	if a.Kind == ShapeUnknown || b.Kind == ShapeUnknown {
		return
	}
	if a.IsScalar() != b.IsScalar() {
		// comparing a scalar with the zero literal standing in for the
		// zero operator is allowed; rewrite rules treat 0 uniformly
		if isZeroShape(a) || isZeroShape(b) {
			return
		}
		c.errorf(span, a, b, "both sides of a %s must have the same shape", what)
		return
	}
	if a.IsMatrixLike() && b.IsMatrixLike() && !sameDims(a, b) {
		c.errorf(span, a, b, "both sides of a %s must have the same dimensions", what)
	}
}

func isZeroShape(s Shape) bool {
	return s.Kind == ShapeScalar && s.Num != NumUnknown
}

func (c *checker) checkPropertyArg(s *ast.ProveStmt, sh Shape) {
	if sh.Kind == ShapeUnknown {
		return
	}
	switch s.Goal.Property {
	case ast.PropReal, ast.PropComplexScalar, ast.PropPositive:
		if !sh.IsScalar() {
			c.errorf(s.Sp, Scalar(NumUnknown), sh, "property %s applies to scalar expressions", s.Goal.Property)
		}
	default:
		if !sh.IsSquare() {
			c.errorf(s.Sp, OperatorOf(0), sh, "property %s applies to square operators", s.Goal.Property)
		}
	}
}

// checkExpr infers the shape of an expression. It returns the (possibly
// rewritten) expression so bracket pairs can be replaced in the tree.
func (c *checker) checkExpr(e ast.Expr) (ast.Expr, Shape) {
	expr, sh := c.infer(e)
	if sh.Kind != ShapeUnknown {
		c.shapes[expr] = sh
	}
	return expr, sh
}

func (c *checker) infer(e ast.Expr) (ast.Expr, Shape) {
	switch n := e.(type) {
	case *ast.Number:
		num := NumReal
		if imag(n.Value) != 0 {
			num = NumComplex
		}
		return n, Scalar(num)

	case *ast.Ident:
		if c.params != nil {
			if sh, ok := c.params[n.Name]; ok {
				return n, sh
			}
		}
		if c.poisoned[n.Name] {
			return n, Shape{}
		}
		if sh, ok := c.declared[n.Name]; ok {
			return n, sh
		}
		return n, Shape{}

	case *ast.Matrix:
		return c.inferMatrix(n)

	case *ast.Vector:
		for idx, el := range n.Elems {
			var sh Shape
			n.Elems[idx], sh = c.checkExpr(el)
			if sh.Kind != ShapeUnknown && !sh.IsScalar() {
				c.errorf(el.Span(), Scalar(NumUnknown), sh, "vector elements must be scalars")
			}
		}
		return n, VectorOf(len(n.Elems))

	case *ast.BracketPair:
		return c.inferBracketPair(n)

	case *ast.Binary:
		return c.inferBinary(n)

	case *ast.Neg:
		var sh Shape
		n.X, sh = c.checkExpr(n.X)
		return n, sh

	case *ast.Dagger:
		var sh Shape
		n.X, sh = c.checkExpr(n.X)
		return n, adjointShape(sh)

	case *ast.Transpose:
		var sh Shape
		n.X, sh = c.checkExpr(n.X)
		return n, adjointShape(sh)

	case *ast.Trace:
		var sh Shape
		n.X, sh = c.checkExpr(n.X)
		if sh.Kind == ShapeUnknown {
			return n, Scalar(NumComplex)
		}
		if !sh.IsSquare() {
			hint := ""
			if sh.Kind == ShapeMatrix {
				hint = "trace is only defined for square matrices"
			}
			c.errorHint(n.Sp, OperatorOf(0), sh, hint, "trace requires a square operand")
			return n, Shape{}
		}
		return n, Scalar(NumComplex)

	case *ast.Tensor:
		var xs, ys Shape
		n.X, xs = c.checkExpr(n.X)
		n.Y, ys = c.checkExpr(n.Y)
		if xs.Kind == ShapeUnknown || ys.Kind == ShapeUnknown {
			return n, Shape{}
		}
		if xs.IsScalar() || ys.IsScalar() {
			c.errorf(n.Sp, MatrixOf(0, 0), pickScalar(xs, ys), "tensor product requires matrix or vector operands")
			return n, Shape{}
		}
		return n, MatrixOf(xs.Rows*ys.Rows, xs.Cols*ys.Cols)

	case *ast.Commutator:
		return c.inferBracketOp(n, n.Sp, &n.X, &n.Y, "commutator")

	case *ast.AntiCommutator:
		return c.inferBracketOp(n, n.Sp, &n.X, &n.Y, "anticommutator")

	case *ast.Call:
		return c.inferCall(n)

	default:
		return e, Shape{}
	}
}

func pickScalar(a, b Shape) Shape {
	if a.IsScalar() {
		return a
	}
	return b
}

func adjointShape(sh Shape) Shape {
	switch sh.Kind {
	case ShapeMatrix:
		return MatrixOf(sh.Cols, sh.Rows)
	case ShapeVector:
		return MatrixOf(1, sh.Rows)
	default:
		// scalars conjugate, square kinds keep their shape
		return sh
	}
}

func (c *checker) inferMatrix(n *ast.Matrix) (ast.Expr, Shape) {
	rows := len(n.Rows)
	cols := 0
	for ri, row := range n.Rows {
		if ri == 0 {
			cols = len(row)
		} else if len(row) != cols {
			c.errorf(n.Sp, MatrixOf(rows, cols), MatrixOf(rows, len(row)),
				"matrix rows must all have the same length")
		}
		for ci, el := range row {
			var sh Shape
			n.Rows[ri][ci], sh = c.checkExpr(el)
			if sh.Kind != ShapeUnknown && !sh.IsScalar() {
				c.errorf(el.Span(), Scalar(NumUnknown), sh, "matrix entries must be scalars")
			}
		}
	}
	return n, MatrixOf(rows, cols)
}

// inferBracketPair disambiguates `[a, b]`: a commutator when both sides
// are square operators of one dimension, otherwise a two-element vector.
func (c *checker) inferBracketPair(n *ast.BracketPair) (ast.Expr, Shape) {
	left, ls := c.checkExpr(n.Left)
	right, rs := c.checkExpr(n.Right)

	if ls.IsSquare() && rs.IsSquare() {
		if ls.Dim() != 0 && rs.Dim() != 0 && ls.Dim() != rs.Dim() {
			c.errorf(n.Sp, ls, rs, "commutator operands must have the same dimension")
			return n, Shape{}
		}
		comm := &ast.Commutator{X: left, Y: right, Sp: n.Sp}
		sh := squareJoin(ls, rs)
		c.shapes[comm] = sh
		return comm, sh
	}

	if (ls.Kind == ShapeUnknown && rs.IsSquare()) || (rs.Kind == ShapeUnknown && ls.IsSquare()) {
		// one side failed earlier; keep the ambiguity unresolved quietly
		return n, Shape{}
	}

	vec := &ast.Vector{Elems: []ast.Expr{left, right}, Sp: n.Sp}
	for _, el := range vec.Elems {
		sh := c.shapes[el]
		if sh.Kind != ShapeUnknown && !sh.IsScalar() {
			c.errorf(el.Span(), Scalar(NumUnknown), sh, "vector elements must be scalars")
		}
	}
	sh := VectorOf(2)
	c.shapes[vec] = sh
	return vec, sh
}

// squareJoin merges two square shapes, preferring a concrete dimension.
func squareJoin(a, b Shape) Shape {
	dim := a.Dim()
	if dim == 0 {
		dim = b.Dim()
	}
	return OperatorOf(dim)
}

func (c *checker) inferBracketOp(e ast.Expr, sp diag.Span, x, y *ast.Expr, what string) (ast.Expr, Shape) {
	var xs, ys Shape
	*x, xs = c.checkExpr(*x)
	*y, ys = c.checkExpr(*y)
	if xs.Kind == ShapeUnknown || ys.Kind == ShapeUnknown {
		return e, Shape{}
	}
	if !xs.IsSquare() || !ys.IsSquare() {
		bad := xs
		if xs.IsSquare() {
			bad = ys
		}
		c.errorf(sp, OperatorOf(0), bad, "%s requires two square operands", what)
		return e, Shape{}
	}
	if xs.Dim() != 0 && ys.Dim() != 0 && xs.Dim() != ys.Dim() {
		c.errorf(sp, xs, ys, "%s operands must have the same dimension", what)
		return e, Shape{}
	}
	return e, squareJoin(xs, ys)
}

func (c *checker) inferBinary(n *ast.Binary) (ast.Expr, Shape) {
	var xs, ys Shape
	n.X, xs = c.checkExpr(n.X)
	n.Y, ys = c.checkExpr(n.Y)
	if xs.Kind == ShapeUnknown || ys.Kind == ShapeUnknown {
		return n, Shape{}
	}

	switch n.Op {
	case ast.OpAdd, ast.OpSub:
		if xs.IsScalar() && ys.IsScalar() {
			return n, Scalar(joinNum(xs.Num, ys.Num))
		}
		if xs.IsMatrixLike() && ys.IsMatrixLike() {
			if !sameDims(xs, ys) {
				hint := ""
				if xs.Rows == ys.Cols && xs.Cols == ys.Rows && xs.Rows != xs.Cols {
					hint = "transposing one operand would make the dimensions agree"
				}
				c.errorHint(n.Sp, xs, ys, hint, "operands of %s must have identical shape", n.Op)
				return n, Shape{}
			}
			return n, elementwiseJoin(xs, ys)
		}
		c.errorf(n.Sp, xs, ys, "cannot mix scalar and matrix operands in %s", n.Op)
		return n, Shape{}

	case ast.OpMul:
		if xs.IsScalar() && ys.IsScalar() {
			return n, Scalar(joinNum(xs.Num, ys.Num))
		}
		if xs.IsScalar() {
			return n, ys
		}
		if ys.IsScalar() {
			return n, xs
		}
		// matrix-matrix: inner dimensions must agree
		if xs.Cols != 0 && ys.Rows != 0 && xs.Cols != ys.Rows {
			hint := ""
			if xs.Cols == ys.Cols || xs.Rows == ys.Rows {
				hint = "transposing one operand would make the inner dimensions agree"
			}
			c.errorHint(n.Sp, MatrixOf(xs.Rows, ys.Rows), ys, hint,
				"inner dimensions of a matrix product must agree")
			return n, Shape{}
		}
		return n, productShape(xs, ys)

	case ast.OpDiv:
		if !ys.IsScalar() {
			c.errorf(n.Sp, Scalar(NumUnknown), ys, "division requires a scalar divisor")
			return n, Shape{}
		}
		if xs.IsScalar() {
			return n, Scalar(joinNum(xs.Num, ys.Num))
		}
		return n, xs

	case ast.OpPow:
		if !ys.IsScalar() {
			c.errorf(n.Sp, Scalar(NumUnknown), ys, "exponent must be a scalar")
			return n, Shape{}
		}
		if xs.IsScalar() {
			return n, Scalar(joinNum(xs.Num, ys.Num))
		}
		if !xs.IsSquare() {
			c.errorf(n.Sp, OperatorOf(0), xs, "matrix power requires a square base")
			return n, Shape{}
		}
		return n, xs

	default:
		return n, Shape{}
	}
}

// elementwiseJoin keeps the operator kinds only when both sides share
// them; mixing kinds degrades to a plain matrix of the same dimensions.
func elementwiseJoin(a, b Shape) Shape {
	if a.Kind == b.Kind {
		out := a
		if out.Rows == 0 {
			out.Rows, out.Cols = b.Rows, b.Cols
		}
		if out.Kind == ShapeDensity || out.Kind == ShapeUnitary {
			// sums of densities or unitaries are not densities/unitaries
			out.Kind = ShapeMatrix
		}
		return out
	}
	rows, cols := a.Rows, a.Cols
	if rows == 0 {
		rows, cols = b.Rows, b.Cols
	}
	if a.Kind == ShapeVector || b.Kind == ShapeVector {
		return VectorOf(rows)
	}
	return MatrixOf(rows, cols)
}

func productShape(a, b Shape) Shape {
	if a.IsSquare() && b.IsSquare() {
		dim := a.Dim()
		if dim == 0 {
			dim = b.Dim()
		}
		if a.Kind == ShapeUnitary && b.Kind == ShapeUnitary {
			return UnitaryOf(dim)
		}
		return MatrixOf(dim, dim)
	}
	rows := a.Rows
	cols := b.Cols
	if b.Kind == ShapeVector && cols == 1 {
		return VectorOf(rows)
	}
	return MatrixOf(rows, cols)
}

func (c *checker) inferCall(n *ast.Call) (ast.Expr, Shape) {
	argShapes := make([]Shape, len(n.Args))
	for idx, a := range n.Args {
		n.Args[idx], argShapes[idx] = c.checkExpr(a)
	}

	switch n.Name {
	case "expm":
		if len(argShapes) == 1 {
			sh := argShapes[0]
			if sh.Kind == ShapeUnknown {
				return n, Shape{}
			}
			if !sh.IsSquare() {
				c.errorf(n.Sp, OperatorOf(0), sh, "expm requires a square operand")
				return n, Shape{}
			}
			return n, MatrixOf(sh.Dim(), sh.Dim())
		}
	case "det":
		if len(argShapes) == 1 {
			sh := argShapes[0]
			if sh.Kind == ShapeUnknown {
				return n, Shape{}
			}
			if !sh.IsSquare() {
				c.errorf(n.Sp, OperatorOf(0), sh, "det requires a square operand")
				return n, Shape{}
			}
			return n, Scalar(NumComplex)
		}
	case "eig":
		if len(argShapes) == 1 {
			sh := argShapes[0]
			if sh.Kind == ShapeUnknown {
				return n, Shape{}
			}
			if !sh.IsSquare() {
				c.errorf(n.Sp, OperatorOf(0), sh, "eig requires a square operand")
				return n, Shape{}
			}
			return n, VectorOf(sh.Dim())
		}
	case "sqrt", "sin", "cos", "exp", "log":
		if len(argShapes) == 1 {
			sh := argShapes[0]
			if sh.Kind == ShapeUnknown {
				return n, Shape{}
			}
			if !sh.IsScalar() {
				c.errorf(n.Sp, Scalar(NumUnknown), sh, "%s requires a scalar operand", n.Name)
				return n, Shape{}
			}
			return n, Scalar(sh.Num)
		}
	}

	// user-defined function or Hamiltonian application
	if sym, ok := c.table.Lookup(n.Name); ok {
		if len(sym.Params) != len(n.Args) {
			c.errorf(n.Sp, Shape{}, Shape{}, "%q takes %d argument(s), got %d",
				n.Name, len(sym.Params), len(n.Args))
			return n, Shape{}
		}
		for idx, sh := range argShapes {
			if sh.Kind != ShapeUnknown && !sh.IsScalar() {
				c.errorf(n.Args[idx].Span(), Scalar(NumUnknown), sh,
					"argument %d of %q must be a scalar", idx+1, n.Name)
			}
		}
		return n, c.declared[n.Name]
	}
	return n, Shape{}
}
