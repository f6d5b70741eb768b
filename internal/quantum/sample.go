package quantum

import (
	"math"
	"math/rand"

	"github.com/quanta-labs/qprove/internal/ast"
)

// Sampler draws seeded, reproducible concrete values for free symbols.
// The same seed always produces the same sequence, so numeric
// certificates and counterexamples can be replayed.
type Sampler struct {
	rng *rand.Rand
}

// NewSampler returns a sampler seeded deterministically.
func NewSampler(seed int64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

func (s *Sampler) randFloat() float64 {
	// uniform in [-2, 2), away from degenerate huge values
	return 4*s.rng.Float64() - 2
}

// Complex draws a complex scalar.
func (s *Sampler) Complex() complex128 {
	return complex(s.randFloat(), s.randFloat())
}

// Real draws a real scalar.
func (s *Sampler) Real() complex128 {
	return complex(s.randFloat(), 0)
}

// Positive draws a strictly positive real scalar.
func (s *Sampler) Positive() complex128 {
	return complex(math.Abs(s.randFloat())+0.1, 0)
}

// GeneralMatrix draws a dense complex matrix with no structure.
func (s *Sampler) GeneralMatrix(dim int) *Matrix {
	m := NewMatrix(dim, dim)
	for k := range m.Data {
		m.Data[k] = s.Complex()
	}
	return m
}

// Hermitian draws a random Hermitian matrix as (R+R†)/2.
func (s *Sampler) Hermitian(dim int) *Matrix {
	r := s.GeneralMatrix(dim)
	sum, _ := Add(r, r.Dagger())
	return Scale(0.5, sum)
}

// PSD draws a random positive semi-definite matrix as R†R.
func (s *Sampler) PSD(dim int) *Matrix {
	r := s.GeneralMatrix(dim)
	m, _ := Mul(r.Dagger(), r)
	return m
}

// Density draws a random density matrix: PSD normalized to unit trace.
func (s *Sampler) Density(dim int) *Matrix {
	m := s.PSD(dim)
	tr, _ := m.Trace()
	return Scale(1/tr, m)
}

// Unitary draws a random unitary by Gram-Schmidt orthonormalization of
// a random complex matrix. The rejection loop retries on the measure-zero
// chance of a rank-deficient draw.
func (s *Sampler) Unitary(dim int) *Matrix {
	for {
		m := s.GeneralMatrix(dim)
		u, ok := gramSchmidt(m)
		if ok {
			return u
		}
	}
}

// gramSchmidt orthonormalizes the columns of m. It reports false when a
// column collapses to (numerically) zero.
func gramSchmidt(m *Matrix) (*Matrix, bool) {
	n := m.Rows
	cols := make([][]complex128, n)
	for c := 0; c < n; c++ {
		col := make([]complex128, n)
		for r := 0; r < n; r++ {
			col[r] = m.At(r, c)
		}
		for p := 0; p < c; p++ {
			var dot complex128
			for r := 0; r < n; r++ {
				dot += conj(cols[p][r]) * col[r]
			}
			for r := 0; r < n; r++ {
				col[r] -= dot * cols[p][r]
			}
		}
		var norm float64
		for r := 0; r < n; r++ {
			norm += real(col[r])*real(col[r]) + imag(col[r])*imag(col[r])
		}
		norm = math.Sqrt(norm)
		if norm < 1e-9 {
			return nil, false
		}
		for r := 0; r < n; r++ {
			col[r] /= complex(norm, 0)
		}
		cols[c] = col
	}
	out := NewMatrix(n, n)
	for c := 0; c < n; c++ {
		for r := 0; r < n; r++ {
			out.Set(r, c, cols[c][r])
		}
	}
	return out, true
}

// SymbolProperty narrows how a free symbol is sampled.
type SymbolProperty int

const (
	SampleComplex SymbolProperty = iota
	SampleReal
	SamplePositive
	SampleHermitian
	SampleUnitary
	SamplePSD
	SampleDensity
	SampleGeneral
)

// PropertyFor maps a declared assumption property to a sampling mode.
func PropertyFor(p ast.PropertyKind) SymbolProperty {
	switch p {
	case ast.PropReal:
		return SampleReal
	case ast.PropPositive:
		return SamplePositive
	case ast.PropHermitian:
		return SampleHermitian
	case ast.PropUnitary:
		return SampleUnitary
	case ast.PropPSD:
		return SamplePSD
	case ast.PropTraceOne:
		return SampleDensity
	default:
		return SampleComplex
	}
}

// Draw produces a value for a symbol, respecting its narrowing and the
// requested matrix dimension. Scalar modes ignore dim.
func (s *Sampler) Draw(prop SymbolProperty, scalar bool, dim int) Value {
	if scalar {
		switch prop {
		case SampleReal:
			return ScalarValue(s.Real())
		case SamplePositive:
			return ScalarValue(s.Positive())
		default:
			return ScalarValue(s.Complex())
		}
	}
	if dim <= 0 {
		dim = 2
	}
	switch prop {
	case SampleHermitian:
		return MatValue(s.Hermitian(dim))
	case SampleUnitary:
		return MatValue(s.Unitary(dim))
	case SamplePSD:
		return MatValue(s.PSD(dim))
	case SampleDensity:
		return MatValue(s.Density(dim))
	default:
		return MatValue(s.GeneralMatrix(dim))
	}
}
