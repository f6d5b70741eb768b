package assume

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quanta-labs/qprove/internal/ast"
)

func propFact(sym string, p ast.PropertyKind) ast.Assumption {
	return ast.Assumption{Kind: ast.AssumeProperty, Symbol: sym, Property: p}
}

func relFact(lhs, rhs string) ast.Assumption {
	return ast.Assumption{
		Kind: ast.AssumeRelation,
		LHS:  &ast.Ident{Name: lhs},
		RHS:  &ast.Ident{Name: rhs},
	}
}

func TestContextProperties(t *testing.T) {
	t.Parallel()
	c := NewContext()
	require.NoError(t, c.Add(propFact("A", ast.PropHermitian)))
	require.NoError(t, c.Add(propFact("A", ast.PropUnitary)))
	require.NoError(t, c.Add(propFact("x", ast.PropReal)))

	assert.True(t, c.HasProperty("A", ast.PropHermitian))
	assert.True(t, c.HasProperty("A", ast.PropUnitary))
	assert.False(t, c.HasProperty("A", ast.PropReal))
	assert.False(t, c.HasProperty("B", ast.PropHermitian))

	assert.Len(t, c.Properties("A"), 2)
	assert.Equal(t, []string{"A", "x"}, c.PropertySymbols())
}

func TestContextFreeze(t *testing.T) {
	t.Parallel()
	c := NewContext()
	require.NoError(t, c.Add(propFact("A", ast.PropHermitian)))

	assert.False(t, c.Frozen())
	c.Freeze()
	assert.True(t, c.Frozen())

	err := c.Add(propFact("B", ast.PropHermitian))
	assert.ErrorIs(t, err, ErrFrozen)

	// freezing twice is harmless
	c.Freeze()
	assert.True(t, c.Frozen())
}

func TestContextRelations(t *testing.T) {
	t.Parallel()
	c := NewContext()
	require.NoError(t, c.Add(relFact("A", "B")))
	require.NoError(t, c.Add(relFact("C", "D")))

	rels := c.Relations()
	require.Len(t, rels, 2)
	assert.Equal(t, "A", rels[0].LHS.String())
	assert.Equal(t, "D", rels[1].RHS.String())
}

func TestDescribeIsStable(t *testing.T) {
	t.Parallel()
	a := NewContext()
	require.NoError(t, a.Add(propFact("x", ast.PropReal)))
	require.NoError(t, a.Add(propFact("A", ast.PropHermitian)))

	b := NewContext()
	require.NoError(t, b.Add(propFact("A", ast.PropHermitian)))
	require.NoError(t, b.Add(propFact("x", ast.PropReal)))

	assert.Equal(t, a.Describe(), b.Describe())
	assert.Equal(t, []string{"A is hermitian", "x is real"}, a.Describe())
}

func TestHashIsOrderIndependent(t *testing.T) {
	t.Parallel()
	a := NewContext()
	require.NoError(t, a.Add(propFact("A", ast.PropHermitian)))
	require.NoError(t, a.Add(propFact("B", ast.PropUnitary)))

	b := NewContext()
	require.NoError(t, b.Add(propFact("B", ast.PropUnitary)))
	require.NoError(t, b.Add(propFact("A", ast.PropHermitian)))

	assert.Equal(t, a.Hash(), b.Hash())

	c := NewContext()
	require.NoError(t, c.Add(propFact("A", ast.PropUnitary)))
	assert.NotEqual(t, a.Hash(), c.Hash())
}
