// Package quantum provides the small dense complex-matrix kernel used by
// numeric validation, counterexample search, and sampled property
// certification. Matrices are row-major and sized for the few-qubit
// operators the language works with, not for large-scale linear algebra.
package quantum

import (
	"fmt"
	"math"
	"math/cmplx"
)

// Matrix is a dense row-major complex matrix.
type Matrix struct {
	Rows, Cols int
	Data       []complex128
}

// NewMatrix returns a zero matrix of the given size.
func NewMatrix(rows, cols int) *Matrix {
	return &Matrix{Rows: rows, Cols: cols, Data: make([]complex128, rows*cols)}
}

// FromRows builds a matrix from row slices. All rows must have the same
// length.
func FromRows(rows [][]complex128) (*Matrix, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("matrix literal has no rows")
	}
	cols := len(rows[0])
	m := NewMatrix(len(rows), cols)
	for ri, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("row %d has %d entries, want %d", ri+1, len(row), cols)
		}
		copy(m.Data[ri*cols:(ri+1)*cols], row)
	}
	return m, nil
}

// Identity returns the n-dimensional identity matrix.
func Identity(n int) *Matrix {
	m := NewMatrix(n, n)
	for k := 0; k < n; k++ {
		m.Data[k*n+k] = 1
	}
	return m
}

// The three Pauli matrices.
func PauliX() *Matrix { return &Matrix{Rows: 2, Cols: 2, Data: []complex128{0, 1, 1, 0}} }

func PauliY() *Matrix {
	return &Matrix{Rows: 2, Cols: 2, Data: []complex128{0, complex(0, -1), complex(0, 1), 0}}
}

func PauliZ() *Matrix { return &Matrix{Rows: 2, Cols: 2, Data: []complex128{1, 0, 0, -1}} }

// At returns the (r,c) entry.
func (m *Matrix) At(r, c int) complex128 { return m.Data[r*m.Cols+c] }

// Set writes the (r,c) entry.
func (m *Matrix) Set(r, c int, v complex128) { m.Data[r*m.Cols+c] = v }

// Clone returns a deep copy.
func (m *Matrix) Clone() *Matrix {
	out := NewMatrix(m.Rows, m.Cols)
	copy(out.Data, m.Data)
	return out
}

// IsSquare reports whether the matrix is square.
func (m *Matrix) IsSquare() bool { return m.Rows == m.Cols }

// Add returns a+b.
func Add(a, b *Matrix) (*Matrix, error) {
	if a.Rows != b.Rows || a.Cols != b.Cols {
		return nil, fmt.Errorf("shape mismatch: %dx%d + %dx%d", a.Rows, a.Cols, b.Rows, b.Cols)
	}
	out := NewMatrix(a.Rows, a.Cols)
	for k := range a.Data {
		out.Data[k] = a.Data[k] + b.Data[k]
	}
	return out, nil
}

// Sub returns a-b.
func Sub(a, b *Matrix) (*Matrix, error) {
	if a.Rows != b.Rows || a.Cols != b.Cols {
		return nil, fmt.Errorf("shape mismatch: %dx%d - %dx%d", a.Rows, a.Cols, b.Rows, b.Cols)
	}
	out := NewMatrix(a.Rows, a.Cols)
	for k := range a.Data {
		out.Data[k] = a.Data[k] - b.Data[k]
	}
	return out, nil
}

// Scale returns s*a.
func Scale(s complex128, a *Matrix) *Matrix {
	out := NewMatrix(a.Rows, a.Cols)
	for k := range a.Data {
		out.Data[k] = s * a.Data[k]
	}
	return out
}

// Mul returns the matrix product a*b.
func Mul(a, b *Matrix) (*Matrix, error) {
	if a.Cols != b.Rows {
		return nil, fmt.Errorf("inner dimensions disagree: %dx%d * %dx%d", a.Rows, a.Cols, b.Rows, b.Cols)
	}
	out := NewMatrix(a.Rows, b.Cols)
	for r := 0; r < a.Rows; r++ {
		for k := 0; k < a.Cols; k++ {
			av := a.Data[r*a.Cols+k]
			if av == 0 {
				continue
			}
			for c := 0; c < b.Cols; c++ {
				out.Data[r*b.Cols+c] += av * b.Data[k*b.Cols+c]
			}
		}
	}
	return out, nil
}

// Dagger returns the conjugate transpose.
func (m *Matrix) Dagger() *Matrix {
	out := NewMatrix(m.Cols, m.Rows)
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			out.Data[c*m.Rows+r] = cmplx.Conj(m.Data[r*m.Cols+c])
		}
	}
	return out
}

// Transpose returns the plain transpose.
func (m *Matrix) Transpose() *Matrix {
	out := NewMatrix(m.Cols, m.Rows)
	for r := 0; r < m.Rows; r++ {
		for c := 0; c < m.Cols; c++ {
			out.Data[c*m.Rows+r] = m.Data[r*m.Cols+c]
		}
	}
	return out
}

// Tensor returns the Kronecker product a⊗b.
func Tensor(a, b *Matrix) *Matrix {
	out := NewMatrix(a.Rows*b.Rows, a.Cols*b.Cols)
	for ar := 0; ar < a.Rows; ar++ {
		for ac := 0; ac < a.Cols; ac++ {
			av := a.Data[ar*a.Cols+ac]
			for br := 0; br < b.Rows; br++ {
				for bc := 0; bc < b.Cols; bc++ {
					out.Data[(ar*b.Rows+br)*out.Cols+(ac*b.Cols+bc)] = av * b.Data[br*b.Cols+bc]
				}
			}
		}
	}
	return out
}

// Trace returns the trace of a square matrix.
func (m *Matrix) Trace() (complex128, error) {
	if !m.IsSquare() {
		return 0, fmt.Errorf("trace of non-square %dx%d matrix", m.Rows, m.Cols)
	}
	var tr complex128
	for k := 0; k < m.Rows; k++ {
		tr += m.Data[k*m.Cols+k]
	}
	return tr, nil
}

// FrobNorm returns the Frobenius norm.
func (m *Matrix) FrobNorm() float64 {
	var sum float64
	for _, v := range m.Data {
		sum += real(v)*real(v) + imag(v)*imag(v)
	}
	return math.Sqrt(sum)
}

// MaxAbs returns the largest entry magnitude, a cheap stand-in for the
// operator norm when comparing against a tolerance.
func (m *Matrix) MaxAbs() float64 {
	var max float64
	for _, v := range m.Data {
		if a := cmplx.Abs(v); a > max {
			max = a
		}
	}
	return max
}

// Commutator returns ab-ba.
func Commutator(a, b *Matrix) (*Matrix, error) {
	ab, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	ba, err := Mul(b, a)
	if err != nil {
		return nil, err
	}
	return Sub(ab, ba)
}

// AntiCommutator returns ab+ba.
func AntiCommutator(a, b *Matrix) (*Matrix, error) {
	ab, err := Mul(a, b)
	if err != nil {
		return nil, err
	}
	ba, err := Mul(b, a)
	if err != nil {
		return nil, err
	}
	return Add(ab, ba)
}

// Pow returns m raised to a non-negative integer power.
func Pow(m *Matrix, n int) (*Matrix, error) {
	if !m.IsSquare() {
		return nil, fmt.Errorf("power of non-square %dx%d matrix", m.Rows, m.Cols)
	}
	if n < 0 {
		return nil, fmt.Errorf("negative matrix power %d", n)
	}
	out := Identity(m.Rows)
	base := m.Clone()
	for n > 0 {
		if n&1 == 1 {
			var err error
			out, err = Mul(out, base)
			if err != nil {
				return nil, err
			}
		}
		n >>= 1
		if n > 0 {
			var err error
			base, err = Mul(base, base)
			if err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// Expm returns the matrix exponential via scaling-and-squaring on a
// truncated Taylor series, accurate enough for the small operators the
// validator evaluates.
func Expm(m *Matrix) (*Matrix, error) {
	if !m.IsSquare() {
		return nil, fmt.Errorf("expm of non-square %dx%d matrix", m.Rows, m.Cols)
	}
	norm := m.FrobNorm()
	squarings := 0
	scaled := m.Clone()
	for norm > 0.5 {
		norm /= 2
		squarings++
	}
	if squarings > 0 {
		scaled = Scale(complex(1/math.Pow(2, float64(squarings)), 0), m)
	}

	out := Identity(m.Rows)
	term := Identity(m.Rows)
	for k := 1; k <= 18; k++ {
		next, err := Mul(term, scaled)
		if err != nil {
			return nil, err
		}
		term = Scale(complex(1/float64(k), 0), next)
		out, err = Add(out, term)
		if err != nil {
			return nil, err
		}
	}
	for s := 0; s < squarings; s++ {
		var err error
		out, err = Mul(out, out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
