package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quanta-labs/qprove/internal/parser"
)

func resolve(t *testing.T, src string) (*Resolved, []string) {
	t.Helper()
	prog, diags := parser.Parse("test.qth", src)
	require.Empty(t, diags, "test source must parse cleanly")
	res, nameDiags := Resolve(prog)
	rules := make([]string, 0, len(nameDiags))
	for _, d := range nameDiags {
		rules = append(rules, d.Rule)
	}
	return res, rules
}

func TestResolveCleanProgram(t *testing.T) {
	t.Parallel()
	res, rules := resolve(t, `
symbol w;
Hamiltonian H(t) = w * sigma_z;
prove H(1) == H(1);
`)
	assert.Empty(t, rules)

	sym, ok := res.Table.Lookup("H")
	require.True(t, ok)
	assert.Equal(t, KindHamiltonian, sym.Kind)
	assert.Equal(t, []string{"t"}, sym.Params)

	sym, ok = res.Table.Lookup("w")
	require.True(t, ok)
	assert.Equal(t, KindScalar, sym.Kind)
}

func TestResolveUndefined(t *testing.T) {
	t.Parallel()
	res, rules := resolve(t, "matrix A = B * sigma_x;")
	assert.Equal(t, []string{"undefined"}, rules)
	assert.True(t, res.Poisoned["B"])
}

func TestResolveUseBeforeDeclaration(t *testing.T) {
	t.Parallel()
	_, rules := resolve(t, `
matrix A = B;
matrix B = sigma_x;
`)
	assert.Equal(t, []string{"undefined"}, rules)
}

func TestResolveRedefinition(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		src  string
	}{
		{"user name twice", "symbol a;\nmatrix a = sigma_x;"},
		{"builtin shadow", "symbol sigma_x;"},
		{"builtin constant shadow", "const pi = 3;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rules := resolve(t, tt.src)
			assert.Equal(t, []string{"redefinition"}, rules)
		})
	}
}

func TestResolveCycleDetection(t *testing.T) {
	t.Parallel()
	res, rules := resolve(t, `
Hamiltonian A = B + sigma_x;
Hamiltonian B = A + sigma_z;
`)
	// both cycle members are reported and poisoned
	assert.Equal(t, []string{"circular", "circular"}, rules)
	assert.True(t, res.Poisoned["A"])
	assert.True(t, res.Poisoned["B"])
}

func TestResolveSelfReferenceIsCircular(t *testing.T) {
	t.Parallel()
	_, rules := resolve(t, "matrix A = A * sigma_x;")
	assert.Equal(t, []string{"circular"}, rules)
}

func TestResolveParamsAreNotDependencies(t *testing.T) {
	t.Parallel()
	// the parameter t shadows nothing and creates no global use
	_, rules := resolve(t, "func f(t) = t * t;")
	assert.Empty(t, rules)
}

func TestResolveBuiltinFunctionsNeedNoDeclaration(t *testing.T) {
	t.Parallel()
	_, rules := resolve(t, "matrix A = expm(sigma_x) + sqrt(2) * sigma_z;")
	assert.Empty(t, rules)
}

func TestSymbolTableNamesSorted(t *testing.T) {
	t.Parallel()
	res, _ := resolve(t, "symbol b;\nsymbol a;")
	names := res.Table.Names()
	assert.Contains(t, names, "a")
	assert.Contains(t, names, "b")
	for i := 1; i < len(names); i++ {
		assert.LessOrEqual(t, names[i-1], names[i])
	}
}
