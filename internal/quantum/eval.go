package quantum

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/quanta-labs/qprove/internal/ast"
)

// Value is the result of numerically evaluating an expression: either a
// complex scalar or a matrix.
type Value struct {
	Mat    *Matrix
	Scalar complex128
}

// IsScalar reports whether the value is a scalar.
func (v Value) IsScalar() bool { return v.Mat == nil }

// ScalarValue wraps a complex scalar.
func ScalarValue(s complex128) Value { return Value{Scalar: s} }

// MatValue wraps a matrix.
func MatValue(m *Matrix) Value { return Value{Mat: m} }

// Env supplies concrete values for free names during evaluation.
type Env map[string]Value

// builtinEnv holds the predeclared constants every evaluation sees.
func builtinEnv() Env {
	return Env{
		"sigma_x": MatValue(PauliX()),
		"sigma_y": MatValue(PauliY()),
		"sigma_z": MatValue(PauliZ()),
		"i":       ScalarValue(complex(0, 1)),
		"pi":      ScalarValue(complex(math.Pi, 0)),
	}
}

// Eval numerically evaluates an expression under an environment. Every
// free name must be bound either by env or by a predeclared constant;
// the identity matrix adapts its dimension from context and so is bound
// lazily.
func Eval(e ast.Expr, env Env) (Value, error) {
	ev := &evaluator{env: env, builtins: builtinEnv()}
	return ev.eval(e)
}

type evaluator struct {
	env      Env
	builtins Env
}

func (ev *evaluator) lookup(name string) (Value, bool) {
	if v, ok := ev.env[name]; ok {
		return v, true
	}
	v, ok := ev.builtins[name]
	return v, ok
}

// identityDim guesses the dimension a bare `I` should take from the
// other operand of a binary node.
func identityFor(other Value) Value {
	if other.Mat != nil && other.Mat.IsSquare() {
		return MatValue(Identity(other.Mat.Rows))
	}
	return MatValue(Identity(2))
}

func (ev *evaluator) eval(e ast.Expr) (Value, error) {
	switch n := e.(type) {
	case *ast.Number:
		return ScalarValue(n.Value), nil

	case *ast.Ident:
		if v, ok := ev.lookup(n.Name); ok {
			return v, nil
		}
		if n.Name == "I" {
			// bare identity with no context defaults to one qubit
			return MatValue(Identity(2)), nil
		}
		return Value{}, fmt.Errorf("no value bound for %q", n.Name)

	case *ast.Matrix:
		rows := make([][]complex128, len(n.Rows))
		for ri, row := range n.Rows {
			rows[ri] = make([]complex128, len(row))
			for ci, el := range row {
				v, err := ev.eval(el)
				if err != nil {
					return Value{}, err
				}
				if !v.IsScalar() {
					return Value{}, fmt.Errorf("matrix entry (%d,%d) is not a scalar", ri+1, ci+1)
				}
				rows[ri][ci] = v.Scalar
			}
		}
		m, err := FromRows(rows)
		if err != nil {
			return Value{}, err
		}
		return MatValue(m), nil

	case *ast.Vector:
		col := NewMatrix(len(n.Elems), 1)
		for idx, el := range n.Elems {
			v, err := ev.eval(el)
			if err != nil {
				return Value{}, err
			}
			if !v.IsScalar() {
				return Value{}, fmt.Errorf("vector element %d is not a scalar", idx+1)
			}
			col.Data[idx] = v.Scalar
		}
		return MatValue(col), nil

	case *ast.Binary:
		return ev.evalBinary(n)

	case *ast.Neg:
		v, err := ev.eval(n.X)
		if err != nil {
			return Value{}, err
		}
		if v.IsScalar() {
			return ScalarValue(-v.Scalar), nil
		}
		return MatValue(Scale(-1, v.Mat)), nil

	case *ast.Dagger:
		v, err := ev.eval(n.X)
		if err != nil {
			return Value{}, err
		}
		if v.IsScalar() {
			return ScalarValue(cmplx.Conj(v.Scalar)), nil
		}
		return MatValue(v.Mat.Dagger()), nil

	case *ast.Transpose:
		v, err := ev.eval(n.X)
		if err != nil {
			return Value{}, err
		}
		if v.IsScalar() {
			return v, nil
		}
		return MatValue(v.Mat.Transpose()), nil

	case *ast.Trace:
		v, err := ev.eval(n.X)
		if err != nil {
			return Value{}, err
		}
		if v.IsScalar() {
			return v, nil
		}
		tr, err := v.Mat.Trace()
		if err != nil {
			return Value{}, err
		}
		return ScalarValue(tr), nil

	case *ast.Tensor:
		x, err := ev.eval(n.X)
		if err != nil {
			return Value{}, err
		}
		y, err := ev.eval(n.Y)
		if err != nil {
			return Value{}, err
		}
		if x.IsScalar() || y.IsScalar() {
			return Value{}, fmt.Errorf("tensor product of scalar operands")
		}
		return MatValue(Tensor(x.Mat, y.Mat)), nil

	case *ast.Commutator:
		return ev.evalPair(n.X, n.Y, Commutator)

	case *ast.AntiCommutator:
		return ev.evalPair(n.X, n.Y, AntiCommutator)

	case *ast.BracketPair:
		// unresolved bracket pairs evaluate as commutators when both
		// sides are matrices, vectors otherwise
		x, err := ev.eval(n.Left)
		if err != nil {
			return Value{}, err
		}
		y, err := ev.eval(n.Right)
		if err != nil {
			return Value{}, err
		}
		if !x.IsScalar() && !y.IsScalar() {
			m, err := Commutator(x.Mat, y.Mat)
			if err != nil {
				return Value{}, err
			}
			return MatValue(m), nil
		}
		if x.IsScalar() && y.IsScalar() {
			col := NewMatrix(2, 1)
			col.Data[0], col.Data[1] = x.Scalar, y.Scalar
			return MatValue(col), nil
		}
		return Value{}, fmt.Errorf("mixed scalar/matrix bracket pair")

	case *ast.Call:
		return ev.evalCall(n)

	case *ast.Sum:
		if len(n.Terms) == 0 {
			return ScalarValue(0), nil
		}
		acc, err := ev.eval(n.Terms[0])
		if err != nil {
			return Value{}, err
		}
		for _, t := range n.Terms[1:] {
			v, err := ev.eval(t)
			if err != nil {
				return Value{}, err
			}
			acc, err = addValues(acc, v)
			if err != nil {
				return Value{}, err
			}
		}
		return acc, nil

	case *ast.Product:
		if len(n.Factors) == 0 {
			return ScalarValue(1), nil
		}
		acc, err := ev.eval(n.Factors[0])
		if err != nil {
			return Value{}, err
		}
		for _, f := range n.Factors[1:] {
			v, err := ev.eval(f)
			if err != nil {
				return Value{}, err
			}
			acc, err = mulValues(acc, v)
			if err != nil {
				return Value{}, err
			}
		}
		return acc, nil

	default:
		return Value{}, fmt.Errorf("cannot evaluate %T", e)
	}
}

func (ev *evaluator) evalPair(x, y ast.Expr, op func(a, b *Matrix) (*Matrix, error)) (Value, error) {
	xv, err := ev.eval(x)
	if err != nil {
		return Value{}, err
	}
	yv, err := ev.eval(y)
	if err != nil {
		return Value{}, err
	}
	if xv.IsScalar() || yv.IsScalar() {
		// scalars commute: [s, A] = 0, {s, A} = 2sA
		return Value{}, fmt.Errorf("bracket of scalar operands")
	}
	m, err := op(xv.Mat, yv.Mat)
	if err != nil {
		return Value{}, err
	}
	return MatValue(m), nil
}

func (ev *evaluator) evalBinary(n *ast.Binary) (Value, error) {
	x, err := ev.eval(n.X)
	if err != nil {
		return Value{}, err
	}
	y, err := ev.eval(n.Y)
	if err != nil {
		return Value{}, err
	}
	// a bare identity picks up its dimension from the other operand
	if id, ok := n.X.(*ast.Ident); ok && id.Name == "I" {
		if _, bound := ev.lookup("I"); !bound && !y.IsScalar() {
			x = identityFor(y)
		}
	}
	if id, ok := n.Y.(*ast.Ident); ok && id.Name == "I" {
		if _, bound := ev.lookup("I"); !bound && !x.IsScalar() {
			y = identityFor(x)
		}
	}

	switch n.Op {
	case ast.OpAdd:
		return addValues(x, y)
	case ast.OpSub:
		return addValues(x, negValue(y))
	case ast.OpMul:
		return mulValues(x, y)
	case ast.OpDiv:
		if !y.IsScalar() {
			return Value{}, fmt.Errorf("division by a matrix")
		}
		if y.Scalar == 0 {
			return Value{}, fmt.Errorf("division by zero")
		}
		return mulValues(ScalarValue(1/y.Scalar), x)
	case ast.OpPow:
		if !y.IsScalar() {
			return Value{}, fmt.Errorf("matrix exponent")
		}
		if x.IsScalar() {
			return ScalarValue(cmplx.Pow(x.Scalar, y.Scalar)), nil
		}
		k := int(real(y.Scalar))
		if imag(y.Scalar) != 0 || float64(k) != real(y.Scalar) || k < 0 {
			return Value{}, fmt.Errorf("matrix power requires a non-negative integer exponent")
		}
		m, err := Pow(x.Mat, k)
		if err != nil {
			return Value{}, err
		}
		return MatValue(m), nil
	default:
		return Value{}, fmt.Errorf("unknown operator %v", n.Op)
	}
}

func (ev *evaluator) evalCall(n *ast.Call) (Value, error) {
	args := make([]Value, len(n.Args))
	for idx, a := range n.Args {
		v, err := ev.eval(a)
		if err != nil {
			return Value{}, err
		}
		args[idx] = v
	}
	scalar1 := func(f func(complex128) complex128) (Value, error) {
		if len(args) != 1 || !args[0].IsScalar() {
			return Value{}, fmt.Errorf("%s requires one scalar argument", n.Name)
		}
		return ScalarValue(f(args[0].Scalar)), nil
	}
	switch n.Name {
	case "sqrt":
		return scalar1(cmplx.Sqrt)
	case "sin":
		return scalar1(cmplx.Sin)
	case "cos":
		return scalar1(cmplx.Cos)
	case "exp":
		return scalar1(cmplx.Exp)
	case "log":
		return scalar1(cmplx.Log)
	case "expm":
		if len(args) != 1 || args[0].IsScalar() {
			return Value{}, fmt.Errorf("expm requires one matrix argument")
		}
		m, err := Expm(args[0].Mat)
		if err != nil {
			return Value{}, err
		}
		return MatValue(m), nil
	}
	return Value{}, fmt.Errorf("no value bound for call %q", n.Name)
}

func negValue(v Value) Value {
	if v.IsScalar() {
		return ScalarValue(-v.Scalar)
	}
	return MatValue(Scale(-1, v.Mat))
}

func addValues(a, b Value) (Value, error) {
	switch {
	case a.IsScalar() && b.IsScalar():
		return ScalarValue(a.Scalar + b.Scalar), nil
	case !a.IsScalar() && !b.IsScalar():
		m, err := Add(a.Mat, b.Mat)
		if err != nil {
			return Value{}, err
		}
		return MatValue(m), nil
	case a.IsScalar() && a.Scalar == 0:
		return b, nil
	case b.IsScalar() && b.Scalar == 0:
		return a, nil
	default:
		return Value{}, fmt.Errorf("adding scalar and matrix")
	}
}

func mulValues(a, b Value) (Value, error) {
	switch {
	case a.IsScalar() && b.IsScalar():
		return ScalarValue(a.Scalar * b.Scalar), nil
	case a.IsScalar():
		return MatValue(Scale(a.Scalar, b.Mat)), nil
	case b.IsScalar():
		return MatValue(Scale(b.Scalar, a.Mat)), nil
	default:
		m, err := Mul(a.Mat, b.Mat)
		if err != nil {
			return Value{}, err
		}
		return MatValue(m), nil
	}
}
