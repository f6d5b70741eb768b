package prover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quanta-labs/qprove/internal/assume"
	"github.com/quanta-labs/qprove/internal/ast"
)

// applyNamed runs one named rule at every position and returns the
// canonical keys of the results.
func applyNamed(t *testing.T, reg *Registry, canon *Canonicalizer, name, src string) []string {
	t.Helper()
	rule, ok := reg.Lookup(name)
	require.True(t, ok, "rule %s must be registered", name)
	var keys []string
	for _, out := range rewriteEverywhere(canon.Canonicalize(expr(t, src)), rule) {
		keys = append(keys, canon.Key(out))
	}
	return keys
}

func TestBuiltinRuleApplications(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	canon := NewCanonicalizer()

	tests := []struct {
		rule string
		src  string
		want string
	}{
		{"adjoint-product", "dagger(A * B)", "dagger(B) * dagger(A)"},
		{"adjoint-sum", "dagger(A + B)", "dagger(A) + dagger(B)"},
		{"commutator-expand", "commutator(A, B)", "A*B - B*A"},
		{"anticommutator-expand", "anticommutator(A, B)", "A*B + B*A"},
		{"trace-linear", "trace(A + B)", "trace(A) + trace(B)"},
		{"trace-transpose", "trace(transpose(A))", "trace(A)"},
		{"pauli-commutator", "commutator(sigma_x, sigma_y)", "2 * i * sigma_z"},
		{"pauli-anticommutator", "anticommutator(sigma_x, sigma_y)", "0"},
		{"pauli-product", "sigma_y * sigma_z", "i * sigma_x"},
	}
	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			keys := applyNamed(t, reg, canon, tt.rule, tt.src)
			assert.Contains(t, keys, canon.Key(expr(t, tt.want)),
				"%s applied to %s must yield %s", tt.rule, tt.src, tt.want)
		})
	}
}

func TestRuleAppliesInsideSubtrees(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	canon := NewCanonicalizer()

	// the commutator sits under a trace; rewriteEverywhere must reach it
	keys := applyNamed(t, reg, canon, "commutator-expand", "trace(commutator(A, B))")
	assert.Contains(t, keys, canon.Key(expr(t, "trace(A*B - B*A)")))
}

func TestCommutatorAntisymIsDirected(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	canon := NewCanonicalizer()
	rule, ok := reg.Lookup("commutator-antisym")
	require.True(t, ok)

	// only the lexicographically larger first slot rewrites, so the
	// rule cannot oscillate
	bigFirst := rewriteEverywhere(canon.Canonicalize(expr(t, "commutator(B, A)")), rule)
	assert.NotEmpty(t, bigFirst)
	smallFirst := rewriteEverywhere(canon.Canonicalize(expr(t, "commutator(A, B)")), rule)
	assert.Empty(t, smallFirst)
}

func TestRegistryReplacesByName(t *testing.T) {
	t.Parallel()
	reg := NewRegistry()
	before := len(reg.Rules())
	reg.Add(Rule{Name: "adjoint-involution", Apply: func(ast.Expr) []ast.Expr { return nil }})
	assert.Len(t, reg.Rules(), before, "same-name registration replaces, not appends")
}

func TestAssumptionRules(t *testing.T) {
	t.Parallel()

	t.Run("relation becomes bidirectional rewrites", func(t *testing.T) {
		canon := NewCanonicalizer()
		reg := NewRegistry()
		actx := assume.NewContext()
		require.NoError(t, actx.Add(ast.Assumption{
			Kind: ast.AssumeRelation,
			LHS:  expr(t, "A * B"),
			RHS:  expr(t, "B * A"),
		}))
		actx.Freeze()
		before := len(reg.Rules())
		reg.AddAssumptionRules(actx, canon)
		assert.Greater(t, len(reg.Rules()), before)

		found := false
		for _, rule := range reg.Rules() {
			for _, out := range rewriteEverywhere(canon.Canonicalize(expr(t, "A * B")), rule) {
				if canon.Key(out) == canon.Key(expr(t, "B * A")) {
					found = true
				}
			}
		}
		assert.True(t, found, "assumed relation must rewrite forward")
	})

	t.Run("hermitian fact collapses dagger", func(t *testing.T) {
		canon := NewCanonicalizer()
		reg := NewRegistry()
		actx := assume.NewContext()
		require.NoError(t, actx.Add(ast.Assumption{
			Kind: ast.AssumeProperty, Symbol: "H", Property: ast.PropHermitian,
		}))
		actx.Freeze()
		reg.AddAssumptionRules(actx, canon)

		keys := applyNamed(t, reg, canon, "hermitian(H)", "dagger(H)")
		assert.Contains(t, keys, canon.Key(expr(t, "H")))
	})

	t.Run("unitary fact cancels adjacent pair", func(t *testing.T) {
		canon := NewCanonicalizer()
		reg := NewRegistry()
		actx := assume.NewContext()
		require.NoError(t, actx.Add(ast.Assumption{
			Kind: ast.AssumeProperty, Symbol: "U", Property: ast.PropUnitary,
		}))
		actx.Freeze()
		reg.AddAssumptionRules(actx, canon)

		keys := applyNamed(t, reg, canon, "unitary(U)", "dagger(U) * U * A")
		assert.Contains(t, keys, canon.Key(expr(t, "A")))
	})
}
