package quantum

import (
	"fmt"
	"math"
)

// HermitianEigenvalues returns the eigenvalues of a Hermitian matrix in
// ascending order. The complex n×n problem is embedded into the real
// symmetric 2n×2n matrix [[A, -B], [B, A]] for H = A + iB, whose spectrum
// is that of H with every eigenvalue doubled; the duplicates are dropped
// by taking every second value of the sorted result.
func HermitianEigenvalues(m *Matrix) ([]float64, error) {
	if !m.IsSquare() {
		return nil, fmt.Errorf("eigenvalues of non-square %dx%d matrix", m.Rows, m.Cols)
	}
	n := m.Rows
	big := make([][]float64, 2*n)
	for r := range big {
		big[r] = make([]float64, 2*n)
	}
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			a := real(m.At(r, c))
			b := imag(m.At(r, c))
			big[r][c] = a
			big[r+n][c+n] = a
			big[r][c+n] = -b
			big[r+n][c] = b
		}
	}
	all := jacobiEigenvalues(big)
	out := make([]float64, n)
	for k := 0; k < n; k++ {
		out[k] = all[2*k]
	}
	return out, nil
}

// MinEigenvalue returns the smallest eigenvalue of a Hermitian matrix,
// the quantity the PSD check compares against its tolerance.
func MinEigenvalue(m *Matrix) (float64, error) {
	ev, err := HermitianEigenvalues(m)
	if err != nil {
		return 0, err
	}
	return ev[0], nil
}

// jacobiEigenvalues diagonalizes a real symmetric matrix with cyclic
// Jacobi rotations and returns the eigenvalues in ascending order.
func jacobiEigenvalues(a [][]float64) []float64 {
	n := len(a)
	for sweep := 0; sweep < 64; sweep++ {
		var off float64
		for r := 0; r < n; r++ {
			for c := r + 1; c < n; c++ {
				off += a[r][c] * a[r][c]
			}
		}
		if off < 1e-24 {
			break
		}
		for p := 0; p < n-1; p++ {
			for q := p + 1; q < n; q++ {
				if math.Abs(a[p][q]) < 1e-18 {
					continue
				}
				theta := (a[q][q] - a[p][p]) / (2 * a[p][q])
				t := math.Copysign(1, theta) / (math.Abs(theta) + math.Sqrt(theta*theta+1))
				cs := 1 / math.Sqrt(t*t+1)
				sn := t * cs
				for k := 0; k < n; k++ {
					akp := a[k][p]
					akq := a[k][q]
					a[k][p] = cs*akp - sn*akq
					a[k][q] = sn*akp + cs*akq
				}
				for k := 0; k < n; k++ {
					apk := a[p][k]
					aqk := a[q][k]
					a[p][k] = cs*apk - sn*aqk
					a[q][k] = sn*apk + cs*aqk
				}
			}
		}
	}
	ev := make([]float64, n)
	for k := 0; k < n; k++ {
		ev[k] = a[k][k]
	}
	sortFloats(ev)
	return ev
}

func sortFloats(v []float64) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j] < v[j-1]; j-- {
			v[j], v[j-1] = v[j-1], v[j]
		}
	}
}

// Choi returns the Choi matrix of the channel represented by a list of
// Kraus operators: sum_k (K_k ⊗ I) |Ω⟩⟨Ω| (K_k ⊗ I)† expanded entrywise.
// The channel is CPTP exactly when the Choi matrix is PSD and its
// partial trace over the output is the identity.
func Choi(kraus []*Matrix) (*Matrix, error) {
	if len(kraus) == 0 {
		return nil, fmt.Errorf("channel has no Kraus operators")
	}
	d := kraus[0].Rows
	for idx, k := range kraus {
		if !k.IsSquare() || k.Rows != d {
			return nil, fmt.Errorf("Kraus operator %d is %dx%d, want %dx%d", idx+1, k.Rows, k.Cols, d, d)
		}
	}
	choi := NewMatrix(d*d, d*d)
	for _, k := range kraus {
		// vec(K) vec(K)† with vec taken row-major
		vec := make([]complex128, d*d)
		copy(vec, k.Data)
		for r := 0; r < d*d; r++ {
			for c := 0; c < d*d; c++ {
				choi.Data[r*d*d+c] += vec[r] * conj(vec[c])
			}
		}
	}
	return choi, nil
}

// TracePreserving reports the deviation of sum_k K_k† K_k from the
// identity, the trace-preservation defect of a Kraus channel.
func TracePreserving(kraus []*Matrix) (float64, error) {
	if len(kraus) == 0 {
		return 0, fmt.Errorf("channel has no Kraus operators")
	}
	d := kraus[0].Rows
	sum := NewMatrix(d, d)
	for _, k := range kraus {
		kk, err := Mul(k.Dagger(), k)
		if err != nil {
			return 0, err
		}
		sum, err = Add(sum, kk)
		if err != nil {
			return 0, err
		}
	}
	diff, err := Sub(sum, Identity(d))
	if err != nil {
		return 0, err
	}
	return diff.FrobNorm(), nil
}

func conj(v complex128) complex128 { return complex(real(v), -imag(v)) }
