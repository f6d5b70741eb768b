package prover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quanta-labs/qprove/internal/ast"
	"github.com/quanta-labs/qprove/internal/parser"
)

func expr(t *testing.T, src string) ast.Expr {
	t.Helper()
	e, err := parser.ParseExpr(src)
	require.NoError(t, err)
	return e
}

func TestCanonicalizeEquivalences(t *testing.T) {
	t.Parallel()
	canon := NewCanonicalizer()
	tests := []struct {
		name string
		a, b string
	}{
		{"sum commutes", "A + B", "B + A"},
		{"scalar coefficients merge", "2*A + 3*A", "5*A"},
		{"cancellation to zero", "A - A", "0"},
		{"neg is times minus one", "-A", "0 - A"},
		{"scalars commute past matrices", "A * 2 * B", "2 * A * B"},
		{"identity is absorbed", "A * I", "A"},
		{"identity alone is one", "I", "1"},
		{"pauli square collapses", "sigma_x * sigma_x", "I"},
		{"double dagger collapses", "dagger(dagger(A))", "A"},
		{"pauli dagger collapses", "dagger(sigma_y)", "sigma_y"},
		{"trace of zero", "trace(A - A)", "0"},
		{"commutator with itself", "commutator(A, A)", "0"},
		{"distribution", "A * (B + C)", "A*B + A*C"},
		{"pow expands", "A^2", "A * A"},
		{"nested sums flatten", "(A + B) + C", "A + (B + C)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, canon.Key(expr(t, tt.a)), canon.Key(expr(t, tt.b)),
				"%s and %s must share a canonical form", tt.a, tt.b)
		})
	}
}

func TestCanonicalizeDistinguishes(t *testing.T) {
	t.Parallel()
	canon := NewCanonicalizer()
	tests := []struct {
		name string
		a, b string
	}{
		{"matrix product order matters", "A * B", "B * A"},
		{"dagger is not identity", "dagger(A)", "A"},
		{"different paulis", "sigma_x", "sigma_y"},
		{"coefficient differs", "2*A", "3*A"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, canon.Key(expr(t, tt.a)), canon.Key(expr(t, tt.b)))
		})
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	t.Parallel()
	canon := NewCanonicalizer()
	sources := []string{
		"A + B * C - 2 * A",
		"dagger(A * B)",
		"commutator(sigma_x, sigma_y) + anticommutator(A, B)",
		"trace(A * B * C)",
		"tensor(A, B + C)",
		"(A + B) * (A - B)",
	}
	for _, src := range sources {
		t.Run(src, func(t *testing.T) {
			once := canon.Canonicalize(expr(t, src))
			twice := canon.Canonicalize(once)
			assert.Equal(t, once.String(), twice.String())
		})
	}
}

func TestCanonicalizeScalarMarking(t *testing.T) {
	t.Parallel()

	canon := NewCanonicalizer()
	// unmarked, s is treated as a matrix and cannot move
	k1 := canon.Key(expr(t, "A * s"))
	k2 := canon.Key(expr(t, "s * A"))
	assert.NotEqual(t, k1, k2)

	canon.MarkScalar("s")
	k1 = canon.Key(expr(t, "A * s"))
	k2 = canon.Key(expr(t, "s * A"))
	assert.Equal(t, k1, k2, "marked scalars commute freely")
}

func TestCanonicalizeImaginaryUnit(t *testing.T) {
	t.Parallel()
	canon := NewCanonicalizer()
	assert.Equal(t, canon.Key(expr(t, "i * i")), canon.Key(expr(t, "-1")))
	assert.Equal(t, canon.Key(expr(t, "i * i * A")), canon.Key(expr(t, "-A")))
}

func TestTriviallyEqual(t *testing.T) {
	t.Parallel()
	canon := NewCanonicalizer()
	assert.True(t, canon.TriviallyEqual(expr(t, "A + B"), expr(t, "B + A")))
	assert.False(t, canon.TriviallyEqual(expr(t, "A * B"), expr(t, "B * A")))
}

func TestCanonicalFormIsParseable(t *testing.T) {
	t.Parallel()
	canon := NewCanonicalizer()
	// certificates re-parse canonical forms during replay, so String
	// must round-trip through the parser
	sources := []string{"A - A", "2*A + B*C", "dagger(A*B) * sigma_x", "trace(A)*B"}
	for _, src := range sources {
		t.Run(src, func(t *testing.T) {
			c := canon.Canonicalize(expr(t, src))
			back, err := parser.ParseExpr(c.String())
			require.NoError(t, err)
			assert.Equal(t, canon.Key(c), canon.Key(back))
		})
	}
}
