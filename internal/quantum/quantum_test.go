package quantum

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quanta-labs/qprove/internal/parser"
)

const eps = 1e-9

func must(t *testing.T) func(*Matrix, error) *Matrix {
	t.Helper()
	return func(m *Matrix, err error) *Matrix {
		require.NoError(t, err)
		return m
	}
}

func mustF(t *testing.T) func(float64, error) float64 {
	t.Helper()
	return func(v float64, err error) float64 {
		require.NoError(t, err)
		return v
	}
}

func mustVals(t *testing.T) func([]float64, error) []float64 {
	t.Helper()
	return func(v []float64, err error) []float64 {
		require.NoError(t, err)
		return v
	}
}

func approxEqual(t *testing.T, a, b *Matrix) {
	t.Helper()
	require.Equal(t, a.Rows, b.Rows)
	require.Equal(t, a.Cols, b.Cols)
	diff := must(t)(Sub(a, b))
	assert.InDelta(t, 0, diff.MaxAbs(), eps)
}

func trace(t *testing.T, m *Matrix) complex128 {
	t.Helper()
	tr, err := m.Trace()
	require.NoError(t, err)
	return tr
}

func TestPauliAlgebra(t *testing.T) {
	t.Parallel()

	t.Run("squares are the identity", func(t *testing.T) {
		for _, p := range []*Matrix{PauliX(), PauliY(), PauliZ()} {
			approxEqual(t, Identity(2), must(t)(Mul(p, p)))
		}
	})

	t.Run("commutator of x and y is 2i z", func(t *testing.T) {
		want := Scale(complex(0, 2), PauliZ())
		approxEqual(t, want, must(t)(Commutator(PauliX(), PauliY())))
	})

	t.Run("distinct paulis anticommute", func(t *testing.T) {
		zero := NewMatrix(2, 2)
		approxEqual(t, zero, must(t)(AntiCommutator(PauliX(), PauliZ())))
	})

	t.Run("paulis are traceless", func(t *testing.T) {
		for _, p := range []*Matrix{PauliX(), PauliY(), PauliZ()} {
			assert.InDelta(t, 0, cmplx.Abs(trace(t, p)), eps)
		}
	})
}

func TestMatrixOps(t *testing.T) {
	t.Parallel()

	t.Run("dagger conjugates and transposes", func(t *testing.T) {
		m := must(t)(FromRows([][]complex128{
			{complex(1, 2), complex(3, 4)},
			{complex(5, 6), complex(7, 8)},
		}))
		d := m.Dagger()
		assert.Equal(t, complex(1, -2), d.At(0, 0))
		assert.Equal(t, complex(5, -6), d.At(0, 1))
	})

	t.Run("tensor has product dimensions", func(t *testing.T) {
		k := Tensor(PauliX(), Identity(2))
		assert.Equal(t, 4, k.Rows)
		assert.Equal(t, 4, k.Cols)
		// trace multiplies under tensor
		assert.InDelta(t, 0, cmplx.Abs(trace(t, k)), eps)
	})

	t.Run("pow is repeated multiplication", func(t *testing.T) {
		approxEqual(t, Identity(2), must(t)(Pow(PauliX(), 4)))
		approxEqual(t, PauliX(), must(t)(Pow(PauliX(), 5)))
	})

	t.Run("expm of zero is the identity", func(t *testing.T) {
		approxEqual(t, Identity(2), must(t)(Expm(NewMatrix(2, 2))))
	})

	t.Run("expm of i pi sigma_z", func(t *testing.T) {
		// exp(i*pi*sigma_z) = -I
		a := Scale(complex(0, math.Pi), PauliZ())
		approxEqual(t, Scale(-1, Identity(2)), must(t)(Expm(a)))
	})

	t.Run("mismatched dimensions error", func(t *testing.T) {
		_, err := Add(Identity(2), Identity(3))
		assert.Error(t, err)
		_, err = Mul(NewMatrix(2, 3), NewMatrix(2, 3))
		assert.Error(t, err)
	})
}

func TestHermitianEigenvalues(t *testing.T) {
	t.Parallel()

	t.Run("pauli z has eigenvalues -1 and 1", func(t *testing.T) {
		vals := mustVals(t)(HermitianEigenvalues(PauliZ()))
		require.Len(t, vals, 2)
		assert.InDelta(t, -1, vals[0], 1e-7)
		assert.InDelta(t, 1, vals[1], 1e-7)
	})

	t.Run("pauli y has eigenvalues -1 and 1", func(t *testing.T) {
		// complex entries exercise the real-symmetric embedding
		vals := mustVals(t)(HermitianEigenvalues(PauliY()))
		require.Len(t, vals, 2)
		assert.InDelta(t, -1, vals[0], 1e-7)
		assert.InDelta(t, 1, vals[1], 1e-7)
	})

	t.Run("psd sample has nonnegative minimum", func(t *testing.T) {
		s := NewSampler(7)
		for trial := 0; trial < 5; trial++ {
			m := s.PSD(3)
			assert.GreaterOrEqual(t, mustF(t)(MinEigenvalue(m)), -1e-7)
		}
	})
}

func TestChoiAndTracePreserving(t *testing.T) {
	t.Parallel()

	t.Run("unitary channel is CPTP", func(t *testing.T) {
		kraus := []*Matrix{PauliX()}
		choi := must(t)(Choi(kraus))
		assert.GreaterOrEqual(t, mustF(t)(MinEigenvalue(choi)), -1e-7)
		assert.InDelta(t, 0, mustF(t)(TracePreserving(kraus)), eps)
	})

	t.Run("lossy channel is not trace preserving", func(t *testing.T) {
		half := Scale(0.5, Identity(2))
		assert.Greater(t, mustF(t)(TracePreserving([]*Matrix{half})), 0.1)
	})
}

func TestSamplerStructure(t *testing.T) {
	t.Parallel()
	s := NewSampler(42)

	t.Run("hermitian sample equals its dagger", func(t *testing.T) {
		m := s.Hermitian(3)
		approxEqual(t, m, m.Dagger())
	})

	t.Run("unitary sample inverts by dagger", func(t *testing.T) {
		u := s.Unitary(3)
		approxEqual(t, Identity(3), must(t)(Mul(u.Dagger(), u)))
	})

	t.Run("density sample has unit trace", func(t *testing.T) {
		rho := s.Density(2)
		assert.InDelta(t, 1, real(trace(t, rho)), eps)
		assert.GreaterOrEqual(t, mustF(t)(MinEigenvalue(rho)), -1e-7)
	})

	t.Run("same seed reproduces the sequence", func(t *testing.T) {
		a := NewSampler(9).Complex()
		b := NewSampler(9).Complex()
		assert.Equal(t, a, b)
	})
}

func evalExpr(t *testing.T, src string, env Env) Value {
	t.Helper()
	e, err := parser.ParseExpr(src)
	require.NoError(t, err)
	v, err := Eval(e, env)
	require.NoError(t, err)
	return v
}

func TestEval(t *testing.T) {
	t.Parallel()

	t.Run("scalar arithmetic", func(t *testing.T) {
		v := evalExpr(t, "(1 + 2) * 4 / 2", nil)
		require.True(t, v.IsScalar())
		assert.InDelta(t, 6, real(v.Scalar), eps)
	})

	t.Run("imaginary unit", func(t *testing.T) {
		v := evalExpr(t, "i * i", nil)
		require.True(t, v.IsScalar())
		assert.InDelta(t, -1, real(v.Scalar), eps)
	})

	t.Run("pauli product", func(t *testing.T) {
		v := evalExpr(t, "sigma_x * sigma_y", nil)
		require.False(t, v.IsScalar())
		want := Scale(complex(0, 1), PauliZ())
		approxEqual(t, want, v.Mat)
	})

	t.Run("identity adapts to context", func(t *testing.T) {
		v := evalExpr(t, "tensor(sigma_x, sigma_x) + I", nil)
		require.False(t, v.IsScalar())
		assert.Equal(t, 4, v.Mat.Rows)
	})

	t.Run("environment binds free names", func(t *testing.T) {
		env := Env{"A": MatValue(PauliZ())}
		v := evalExpr(t, "trace(A * A)", env)
		require.True(t, v.IsScalar())
		assert.InDelta(t, 2, real(v.Scalar), eps)
	})

	t.Run("unbound name errors", func(t *testing.T) {
		e, err := parser.ParseExpr("Q * 2")
		require.NoError(t, err)
		_, err = Eval(e, nil)
		assert.Error(t, err)
	})

	t.Run("division by zero errors", func(t *testing.T) {
		e, err := parser.ParseExpr("1 / (2 - 2)")
		require.NoError(t, err)
		_, err = Eval(e, nil)
		assert.Error(t, err)
	})

	t.Run("dagger postfix", func(t *testing.T) {
		v := evalExpr(t, "sigma_y' * sigma_y", nil)
		approxEqual(t, Identity(2), v.Mat)
	})
}
