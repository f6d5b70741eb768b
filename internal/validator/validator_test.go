package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quanta-labs/qprove/internal/assume"
	"github.com/quanta-labs/qprove/internal/ast"
	"github.com/quanta-labs/qprove/internal/diag"
	"github.com/quanta-labs/qprove/internal/parser"
	"github.com/quanta-labs/qprove/internal/resolver"
	"github.com/quanta-labs/qprove/internal/typechecker"
)

func validate(t *testing.T, src string, ctx *assume.Context, opts Options) (*Validated, []*diag.Diagnostic) {
	t.Helper()
	prog, diags := parser.Parse("test.qth", src)
	require.Empty(t, diags, "test source must parse cleanly")
	res, nameDiags := resolver.Resolve(prog)
	require.Empty(t, nameDiags, "test source must resolve cleanly")
	typed, typeDiags := typechecker.Check(res)
	require.Empty(t, typeDiags, "test source must type-check cleanly")
	return Validate(typed, ctx, opts)
}

func rules(diags []*diag.Diagnostic) []string {
	out := make([]string, 0, len(diags))
	for _, d := range diags {
		out = append(out, d.Rule)
	}
	return out
}

func TestValidateCleanDeclarations(t *testing.T) {
	t.Parallel()
	val, diags := validate(t, `
state psi = [1, 0];
density rho = [[1, 0], [0, 0]];
unitary U = sigma_x;
matrix H = sigma_z;
`, nil, DefaultOptions())
	assert.Empty(t, diags)

	// concrete declaration values accumulate for later stages
	_, ok := val.Env["rho"]
	assert.True(t, ok)
	_, ok = val.Env["U"]
	assert.True(t, ok)
}

func TestValidateViolations(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		src  string
		rule string
	}{
		{"unnormalized state", "state psi = [1, 1];", "state-norm"},
		{"non-hermitian density", "density rho = [[0, 1], [0, 0]];", "hermitian"},
		{"density trace", "density rho = [[1, 0], [0, 1]];", "trace-one"},
		{"non-unitary", "unitary U = [[1, 0], [0, 2]];", "unitary"},
		{"non-hermitian hamiltonian", "Hamiltonian H = [[0, 1], [0, 0]];", "hermitian"},
		{"incomplete povm", "measurement M = povm([[0.5, 0], [0, 0.5]]);", "povm-complete"},
		{"non-projector projective", "measurement M = projective([[0.5, 0], [0, 0.5]], [[0.5, 0], [0, 0.5]]);", "projector-idempotent"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, diags := validate(t, tt.src, nil, DefaultOptions())
			assert.Contains(t, rules(diags), tt.rule)
			for _, d := range diags {
				assert.Equal(t, diag.SeverityWarning, d.Severity, "non-strict runs warn")
			}
		})
	}
}

func TestValidateDisabledRule(t *testing.T) {
	t.Parallel()
	opts := DefaultOptions()
	opts.Disabled = map[string]bool{"state-norm": true}
	_, diags := validate(t, "state psi = [1, 1];", nil, opts)
	assert.NotContains(t, rules(diags), "state-norm")

	// other rules still fire
	_, diags = validate(t, "unitary U = [[1, 0], [0, 2]];", nil, opts)
	assert.Contains(t, rules(diags), "unitary")
}

func TestValidateStrictPromotion(t *testing.T) {
	t.Parallel()
	opts := Options{Tolerance: DefaultTolerance, Strict: true, Threshold: diag.SeverityWarning}
	_, diags := validate(t, "state psi = [1, 1];", nil, opts)
	require.NotEmpty(t, diags)
	assert.Equal(t, diag.SeverityError, diags[0].Severity)
}

func TestValidateTrustedByAssumption(t *testing.T) {
	t.Parallel()
	ctx := assume.NewContext()
	require.NoError(t, ctx.Add(ast.Assumption{
		Kind: ast.AssumeProperty, Symbol: "rho", Property: ast.PropHermitian,
	}))
	ctx.Freeze()

	// the value is not Hermitian, but the declared assumption wins and
	// the skip is recorded
	_, diags := validate(t, "density rho = [[0, 1], [0, 0]];", ctx, DefaultOptions())
	got := rules(diags)
	assert.Contains(t, got, "trusted-by-assumption")
	assert.NotContains(t, got, "hermitian")
}

func TestValidateSkipsSymbolicDeclarations(t *testing.T) {
	t.Parallel()
	// w is free, so the Hamiltonian has no concrete value to check
	_, diags := validate(t, "symbol w;\nHamiltonian H = w * sigma_z;", nil, DefaultOptions())
	assert.Empty(t, diags)
}

func TestValidateParameterizedHamiltonianSkipped(t *testing.T) {
	t.Parallel()
	_, diags := validate(t, "Hamiltonian H(w) = w * sigma_z;", nil, DefaultOptions())
	assert.Empty(t, diags)
}
