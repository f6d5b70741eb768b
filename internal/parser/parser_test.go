package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quanta-labs/qprove/internal/ast"
	"github.com/quanta-labs/qprove/internal/diag"
)

func TestParseExprPrecedence(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"product binds tighter than sum", "a + b * c", "(a + (b * c))"},
		{"left associative product", "a * b * c", "((a * b) * c)"},
		{"unary minus", "-a * b", "((-a) * b)"},
		{"power is right associative", "a^b^c", "(a ^ (b ^ c))"},
		{"adjoint binds tightest", "a * b'", "(a * dagger(b))"},
		{"double adjoint", "a''", "dagger(dagger(a))"},
		{"unicode adjoint", "U† * U", "(dagger(U) * U)"},
		{"parens override", "(a + b) * c", "((a + b) * c)"},
		{"division", "a / 2", "(a / 2)"},
		{"call lowering", "dagger(a + b)", "dagger((a + b))"},
		{"trace call", "trace(rho)", "trace(rho)"},
		{"commutator call", "commutator(A, B)", "commutator(A, B)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := ParseExpr(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.String())
		})
	}
}

func TestParseExprErrors(t *testing.T) {
	t.Parallel()
	tests := []string{
		"a +",
		"(a + b",
		"dagger(a, b)",
		"tensor(a)",
		"prove",
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			_, err := ParseExpr(src)
			assert.Error(t, err)
		})
	}
}

func TestParseBracketForms(t *testing.T) {
	t.Parallel()

	e, err := ParseExpr("[A, B]")
	require.NoError(t, err)
	assert.IsType(t, &ast.BracketPair{}, e, "two elements stay ambiguous until type checking")

	e, err = ParseExpr("[a, b, c]")
	require.NoError(t, err)
	assert.IsType(t, &ast.Vector{}, e)

	e, err = ParseExpr("[[0, 1], [1, 0]]")
	require.NoError(t, err)
	m, ok := e.(*ast.Matrix)
	require.True(t, ok)
	assert.Len(t, m.Rows, 2)
	assert.Len(t, m.Rows[0], 2)
}

func TestParseStatements(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		src  string
		want any
	}{
		{"const", "const hbar = 1;", &ast.ConstDecl{}},
		{"symbol", "symbol x;", &ast.SymbolDecl{}},
		{"operator with dimension", "operator A(4);", &ast.OperatorDecl{}},
		{"matrix", "matrix H = [[0, 1], [1, 0]];", &ast.MatrixDecl{}},
		{"state", "state psi = [1, 0];", &ast.StateDecl{}},
		{"density", "density rho = [[1, 0], [0, 0]];", &ast.DensityDecl{}},
		{"unitary", "unitary U = sigma_x;", &ast.UnitaryDecl{}},
		{"hamiltonian", "Hamiltonian H(w) = w * sigma_z;", &ast.HamiltonianDef{}},
		{"func", "func f(x) = x * x;", &ast.FunctionDef{}},
		{"measurement", "measurement M = projective([[1, 0], [0, 0]], [[0, 0], [0, 1]]);", &ast.MeasurementDef{}},
		{"assume property", "assume A is hermitian;", &ast.AssumeStmt{}},
		{"assume relation", "assume A * B == B * A;", &ast.AssumeStmt{}},
		{"prove identity", "prove A == A;", &ast.ProveStmt{}},
		{"prove property", "prove hermitian(sigma_x);", &ast.ProveStmt{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog, diags := Parse("test.qth", tt.src)
			require.Empty(t, diags)
			require.Len(t, prog.Stmts, 1)
			assert.IsType(t, tt.want, prog.Stmts[0])
		})
	}
}

func TestParseOperatorDimensionMustBePositive(t *testing.T) {
	t.Parallel()
	_, diags := Parse("test.qth", "operator A(0);")
	require.NotEmpty(t, diags)
	assert.Contains(t, diags[0].Message, "positive integer")
}

func TestParseRecoversAtStatementBoundary(t *testing.T) {
	t.Parallel()
	src := `symbol a;
operator B(;
symbol c;
prove == c;
symbol d;`
	prog, diags := Parse("test.qth", src)

	// both bad statements reported, both good ones kept
	assert.Len(t, diags, 2)
	assert.Len(t, prog.Stmts, 3)
	for _, d := range diags {
		assert.Equal(t, diag.StageParse, d.Stage)
		assert.Equal(t, diag.SeverityError, d.Severity)
	}
}

func TestParseSpansPointAtSource(t *testing.T) {
	t.Parallel()
	prog, diags := Parse("test.qth", "symbol a;\nsymbol b;")
	require.Empty(t, diags)
	require.Len(t, prog.Stmts, 2)
	assert.Equal(t, 1, prog.Stmts[0].Span().Line)
	assert.Equal(t, 2, prog.Stmts[1].Span().Line)
	assert.Equal(t, "test.qth", prog.Stmts[0].Span().File)
}

func TestParsePropertyGoalNames(t *testing.T) {
	t.Parallel()
	for _, prop := range []string{"real", "complex", "hermitian", "unitary", "psd", "positive", "trace_one"} {
		t.Run(prop, func(t *testing.T) {
			prog, diags := Parse("test.qth", "prove "+prop+"(A);")
			require.Empty(t, diags)
			ps, ok := prog.Stmts[0].(*ast.ProveStmt)
			require.True(t, ok)
			assert.Equal(t, ast.GoalProperty, ps.Goal.Kind)
			assert.Equal(t, prop, ps.Goal.Property.String())
		})
	}
}
