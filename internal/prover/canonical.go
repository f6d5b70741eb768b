// Package prover implements the term-rewriting theorem prover: a
// deterministic canonicalizer over the non-commutative operator algebra,
// a registry of named rewrite rules, bidirectional bounded proof search,
// property proving with numeric fallback, counterexample search, a
// single-flight proof cache, and replayable proof certificates.
package prover

import (
	"math/cmplx"
	"sort"

	"github.com/quanta-labs/qprove/internal/ast"
	"github.com/quanta-labs/qprove/internal/resolver"
)

// Canonicalizer reduces expressions to a deterministic normal form. It
// flattens associative sums and products, distributes products over sums
// into a sum of monomials, folds literal coefficients, merges like terms
// (cancelling those whose coefficients sum to zero), sorts commutative
// operands lexicographically by their serialized form, collapses squared
// Pauli operators and double adjoints, and eliminates additive and
// multiplicative identities. Canonicalization is pure and idempotent.
//
// Factor order inside a monomial is preserved for matrix-like factors;
// only scalar factors are moved and sorted, so non-commutative products
// are never reordered.
type Canonicalizer struct {
	scalars map[string]bool
}

// NewCanonicalizer returns a canonicalizer that treats only the
// predeclared scalar constants as commuting scalars.
func NewCanonicalizer() *Canonicalizer {
	return &Canonicalizer{scalars: map[string]bool{"i": true, "pi": true}}
}

// MarkScalar registers a name as a commuting scalar.
func (c *Canonicalizer) MarkScalar(name string) {
	c.scalars[name] = true
}

// BindTable marks every scalar-kinded declaration in a symbol table.
func (c *Canonicalizer) BindTable(table *resolver.SymbolTable) {
	if table == nil {
		return
	}
	for _, name := range table.Names() {
		sym, _ := table.Lookup(name)
		if sym != nil && (sym.Kind == resolver.KindScalar || sym.Kind == resolver.KindConstant) {
			c.scalars[name] = true
		}
	}
}

// term is one monomial of a canonical sum: a literal coefficient, the
// sorted scalar factors, and the order-preserving matrix factors.
type term struct {
	coeff   complex128
	scalars []ast.Expr
	mats    []ast.Expr
}

// Canonicalize returns the canonical form of an expression.
func (c *Canonicalizer) Canonicalize(e ast.Expr) ast.Expr {
	return rebuildSum(c.terms(e))
}

// Key returns the canonical serialization of an expression, the string
// under which proof search deduplicates states and the cache indexes
// results.
func (c *Canonicalizer) Key(e ast.Expr) string {
	return c.Canonicalize(e).String()
}

// TriviallyEqual reports whether two expressions share one canonical
// form.
func (c *Canonicalizer) TriviallyEqual(a, b ast.Expr) bool {
	return c.Key(a) == c.Key(b)
}

// terms expands an expression into its canonical list of monomials.
func (c *Canonicalizer) terms(e ast.Expr) []term {
	switch n := e.(type) {
	case *ast.Number:
		if n.Value == 0 {
			return nil
		}
		return []term{{coeff: n.Value}}

	case *ast.Ident:
		if c.scalars[n.Name] {
			if n.Name == "i" {
				return []term{{coeff: complex(0, 1)}}
			}
			return []term{{coeff: 1, scalars: []ast.Expr{n}}}
		}
		return []term{{coeff: 1, mats: []ast.Expr{n}}}

	case *ast.Sum:
		var out []term
		for _, t := range n.Terms {
			out = append(out, c.terms(t)...)
		}
		return c.merge(out)

	case *ast.Product:
		out := []term{{coeff: 1}}
		for _, f := range n.Factors {
			out = c.cross(out, c.terms(f))
		}
		return c.merge(out)

	case *ast.Binary:
		return c.binaryTerms(n)

	case *ast.Neg:
		return c.merge(scaleTerms(-1, c.terms(n.X)))

	case *ast.Dagger:
		return c.daggerTerms(n)

	case *ast.Transpose:
		inner := c.Canonicalize(n.X)
		if t, ok := inner.(*ast.Transpose); ok {
			return c.terms(t.X)
		}
		return c.atom(&ast.Transpose{X: inner, Sp: n.Sp})

	case *ast.Trace:
		inner := c.Canonicalize(n.X)
		if num, ok := inner.(*ast.Number); ok && num.Value == 0 {
			return nil
		}
		return c.atom(&ast.Trace{X: inner, Sp: n.Sp})

	case *ast.Tensor:
		return c.atom(&ast.Tensor{X: c.Canonicalize(n.X), Y: c.Canonicalize(n.Y), Sp: n.Sp})

	case *ast.Commutator:
		x := c.Canonicalize(n.X)
		y := c.Canonicalize(n.Y)
		if ast.Equal(x, y) {
			return nil // [A, A] = 0
		}
		return c.atom(&ast.Commutator{X: x, Y: y, Sp: n.Sp})

	case *ast.AntiCommutator:
		return c.atom(&ast.AntiCommutator{X: c.Canonicalize(n.X), Y: c.Canonicalize(n.Y), Sp: n.Sp})

	case *ast.BracketPair:
		return c.atom(&ast.BracketPair{Left: c.Canonicalize(n.Left), Right: c.Canonicalize(n.Right), Sp: n.Sp})

	case *ast.Call:
		args := make([]ast.Expr, len(n.Args))
		for idx, a := range n.Args {
			args[idx] = c.Canonicalize(a)
		}
		return c.atom(&ast.Call{Name: n.Name, Args: args, Sp: n.Sp})

	case *ast.Vector:
		elems := make([]ast.Expr, len(n.Elems))
		for idx, el := range n.Elems {
			elems[idx] = c.Canonicalize(el)
		}
		return c.atom(&ast.Vector{Elems: elems, Sp: n.Sp})

	case *ast.Matrix:
		rows := make([][]ast.Expr, len(n.Rows))
		for ri, row := range n.Rows {
			rows[ri] = make([]ast.Expr, len(row))
			for ci, el := range row {
				rows[ri][ci] = c.Canonicalize(el)
			}
		}
		return c.atom(&ast.Matrix{Rows: rows, Sp: n.Sp})

	default:
		return c.atom(e)
	}
}

// atom wraps an already-canonical node as a single monomial.
func (c *Canonicalizer) atom(e ast.Expr) []term {
	if c.isScalarExpr(e) {
		return []term{{coeff: 1, scalars: []ast.Expr{e}}}
	}
	return []term{{coeff: 1, mats: []ast.Expr{e}}}
}

func (c *Canonicalizer) binaryTerms(n *ast.Binary) []term {
	switch n.Op {
	case ast.OpAdd:
		return c.merge(append(c.terms(n.X), c.terms(n.Y)...))
	case ast.OpSub:
		return c.merge(append(c.terms(n.X), scaleTerms(-1, c.terms(n.Y))...))
	case ast.OpMul:
		return c.merge(c.cross(c.terms(n.X), c.terms(n.Y)))
	case ast.OpDiv:
		div := c.Canonicalize(n.Y)
		if num, ok := div.(*ast.Number); ok && num.Value != 0 {
			return c.merge(scaleTerms(1/num.Value, c.terms(n.X)))
		}
		// symbolic divisor: keep an atomic reciprocal scalar factor
		recip := &ast.Binary{Op: ast.OpDiv, X: &ast.Number{Value: 1}, Y: div, Sp: n.Sp}
		return c.merge(c.cross(c.terms(n.X), []term{{coeff: 1, scalars: []ast.Expr{recip}}}))
	case ast.OpPow:
		return c.powTerms(n)
	default:
		return c.atom(n)
	}
}

// powTerms expands small integer powers of matrix expressions into
// repeated products so Pauli squares and like-term merging can act.
func (c *Canonicalizer) powTerms(n *ast.Binary) []term {
	base := c.Canonicalize(n.X)
	exp := c.Canonicalize(n.Y)
	if num, ok := exp.(*ast.Number); ok && imag(num.Value) == 0 {
		k := int(real(num.Value))
		if float64(k) == real(num.Value) && k >= 0 && k <= 6 && !c.isScalarExpr(base) {
			out := []term{{coeff: 1}}
			for rep := 0; rep < k; rep++ {
				out = c.cross(out, c.terms(base))
			}
			return c.merge(out)
		}
		if bn, ok := base.(*ast.Number); ok {
			return c.terms(&ast.Number{Value: cmplx.Pow(bn.Value, num.Value), Sp: n.Sp})
		}
	}
	p := &ast.Binary{Op: ast.OpPow, X: base, Y: exp, Sp: n.Sp}
	if c.isScalarExpr(base) {
		return []term{{coeff: 1, scalars: []ast.Expr{p}}}
	}
	return []term{{coeff: 1, mats: []ast.Expr{p}}}
}

func (c *Canonicalizer) daggerTerms(n *ast.Dagger) []term {
	inner := c.Canonicalize(n.X)
	switch x := inner.(type) {
	case *ast.Dagger:
		return c.terms(x.X) // double adjoint
	case *ast.Number:
		return c.terms(&ast.Number{Value: cmplx.Conj(x.Value), Sp: n.Sp})
	case *ast.Ident:
		if isHermitianBuiltin(x.Name) {
			return c.terms(x)
		}
	}
	return c.atom(&ast.Dagger{X: inner, Sp: n.Sp})
}

// isHermitianBuiltin reports whether a predeclared operator equals its
// own adjoint.
func isHermitianBuiltin(name string) bool {
	switch name {
	case "sigma_x", "sigma_y", "sigma_z", "I":
		return true
	}
	return false
}

func isPauli(e ast.Expr) (string, bool) {
	id, ok := e.(*ast.Ident)
	if !ok {
		return "", false
	}
	switch id.Name {
	case "sigma_x", "sigma_y", "sigma_z":
		return id.Name, true
	}
	return "", false
}

// isScalarExpr reports whether an expression is scalar-valued and so
// commutes with everything.
func (c *Canonicalizer) isScalarExpr(e ast.Expr) bool {
	switch n := e.(type) {
	case *ast.Number:
		return true
	case *ast.Ident:
		return c.scalars[n.Name]
	case *ast.Trace:
		return true
	case *ast.Neg:
		return c.isScalarExpr(n.X)
	case *ast.Dagger:
		return c.isScalarExpr(n.X)
	case *ast.Binary:
		if n.Op == ast.OpDiv || n.Op == ast.OpPow {
			return c.isScalarExpr(n.X)
		}
		return c.isScalarExpr(n.X) && c.isScalarExpr(n.Y)
	case *ast.Sum:
		for _, t := range n.Terms {
			if !c.isScalarExpr(t) {
				return false
			}
		}
		return true
	case *ast.Product:
		for _, f := range n.Factors {
			if !c.isScalarExpr(f) {
				return false
			}
		}
		return true
	case *ast.Call:
		switch n.Name {
		case "sqrt", "sin", "cos", "exp", "log", "det":
			return true
		}
		return false
	default:
		return false
	}
}

func scaleTerms(s complex128, ts []term) []term {
	out := make([]term, 0, len(ts))
	for _, t := range ts {
		t.coeff *= s
		out = append(out, t)
	}
	return out
}

// cross multiplies two canonical sums, distributing into a sum of
// monomials.
func (c *Canonicalizer) cross(a, b []term) []term {
	out := make([]term, 0, len(a)*len(b))
	for _, x := range a {
		for _, y := range b {
			t := term{
				coeff:   x.coeff * y.coeff,
				scalars: append(append([]ast.Expr{}, x.scalars...), y.scalars...),
				mats:    append(append([]ast.Expr{}, x.mats...), y.mats...),
			}
			out = append(out, c.normalizeTerm(t))
		}
	}
	return out
}

// normalizeTerm sorts the scalar factors and simplifies the matrix
// factor sequence: identity factors are dropped and adjacent equal Pauli
// factors collapse to the identity.
func (c *Canonicalizer) normalizeTerm(t term) term {
	sort.Slice(t.scalars, func(i, j int) bool {
		return t.scalars[i].String() < t.scalars[j].String()
	})

	mats := make([]ast.Expr, 0, len(t.mats))
	for _, f := range t.mats {
		if id, ok := f.(*ast.Ident); ok && id.Name == "I" {
			continue
		}
		mats = append(mats, f)
	}
	// collapse adjacent equal Paulis until stable
	for {
		collapsed := false
		for k := 0; k+1 < len(mats); k++ {
			pa, aok := isPauli(mats[k])
			pb, bok := isPauli(mats[k+1])
			if aok && bok && pa == pb {
				mats = append(mats[:k], mats[k+2:]...)
				collapsed = true
				break
			}
		}
		if !collapsed {
			break
		}
	}
	t.mats = mats
	return t
}

// merge combines like terms, drops zero coefficients, and sorts the
// result into the canonical term order.
func (c *Canonicalizer) merge(ts []term) []term {
	type slot struct {
		t   term
		pos int
	}
	index := make(map[string]int)
	var slots []slot
	for _, t := range ts {
		t = c.normalizeTerm(t)
		if t.coeff == 0 {
			continue
		}
		key := termKey(t)
		if at, ok := index[key]; ok {
			slots[at].t.coeff += t.coeff
		} else {
			index[key] = len(slots)
			slots = append(slots, slot{t: t})
		}
	}
	out := make([]term, 0, len(slots))
	for _, s := range slots {
		if s.t.coeff != 0 {
			out = append(out, s.t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return termKey(out[i]) < termKey(out[j]) })
	return out
}

// termKey is the coefficient-free serialization a term is merged under.
func termKey(t term) string {
	key := ""
	for _, s := range t.scalars {
		key += s.String() + "*"
	}
	for _, m := range t.mats {
		key += m.String() + "*"
	}
	return key
}

// rebuildTerm renders a monomial back into expression form.
func rebuildTerm(t term) ast.Expr {
	factors := make([]ast.Expr, 0, 2+len(t.scalars)+len(t.mats))
	if t.coeff != 1 || (len(t.scalars) == 0 && len(t.mats) == 0) {
		factors = append(factors, &ast.Number{Value: t.coeff})
	}
	factors = append(factors, t.scalars...)
	factors = append(factors, t.mats...)
	if len(factors) == 1 {
		return factors[0]
	}
	return &ast.Product{Factors: factors}
}

// rebuildSum renders a canonical term list back into expression form.
func rebuildSum(ts []term) ast.Expr {
	switch len(ts) {
	case 0:
		return &ast.Number{Value: 0}
	case 1:
		return rebuildTerm(ts[0])
	default:
		terms := make([]ast.Expr, len(ts))
		for idx, t := range ts {
			terms[idx] = rebuildTerm(t)
		}
		return &ast.Sum{Terms: terms}
	}
}
