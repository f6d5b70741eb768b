package prover

import (
	"fmt"

	"github.com/quanta-labs/qprove/internal/assume"
	"github.com/quanta-labs/qprove/internal/ast"
)

// CatalogueVersion identifies the built-in rule set. It participates in
// certificate hashes: a certificate generated under one catalogue does
// not verify under another.
const CatalogueVersion = "2026.2"

// Rule is a named, pure rewrite. Apply matches at the root of the node
// it is given and returns every one-step rewrite, or nil when the rule
// does not apply there. Rules never mutate their input.
type Rule struct {
	Name  string
	Doc   string
	Apply func(ast.Expr) []ast.Expr
}

// Registry holds the rule catalogue. The built-in rules are fixed for a
// given CatalogueVersion; assumption-derived rules are appended per
// prover instance.
type Registry struct {
	rules  []Rule
	byName map[string]Rule
}

// NewRegistry returns a registry preloaded with the built-in catalogue.
func NewRegistry() *Registry {
	r := &Registry{byName: make(map[string]Rule)}
	for _, rule := range builtinRules() {
		r.Add(rule)
	}
	return r
}

// Add registers a rule, replacing any previous rule of the same name.
func (r *Registry) Add(rule Rule) {
	if _, exists := r.byName[rule.Name]; !exists {
		r.rules = append(r.rules, rule)
	} else {
		for idx := range r.rules {
			if r.rules[idx].Name == rule.Name {
				r.rules[idx] = rule
				break
			}
		}
	}
	r.byName[rule.Name] = rule
}

// Lookup finds a rule by name.
func (r *Registry) Lookup(name string) (Rule, bool) {
	rule, ok := r.byName[name]
	return rule, ok
}

// Rules returns the catalogue in registration order.
func (r *Registry) Rules() []Rule { return r.rules }

// AddAssumptionRules derives rewrite rules from relational assumptions:
// each assumed identity becomes a bidirectional pair of rules, and each
// Hermitian or unitary property fact becomes the corresponding adjoint
// simplification.
func (r *Registry) AddAssumptionRules(ctx *assume.Context, canon *Canonicalizer) {
	if ctx == nil {
		return
	}
	for _, rel := range ctx.Relations() {
		lhs := canon.Canonicalize(rel.LHS)
		rhs := canon.Canonicalize(rel.RHS)
		r.Add(substitutionRule(fmt.Sprintf("assume(%s => %s)", lhs, rhs), lhs, rhs))
		r.Add(substitutionRule(fmt.Sprintf("assume(%s => %s)", rhs, lhs), rhs, lhs))
	}
	for _, rel := range hermitianFacts(ctx) {
		r.Add(rel)
	}
}

// hermitianFacts builds dagger(X) -> X rules for every symbol assumed
// Hermitian and U†U -> I collapses for every symbol assumed unitary.
func hermitianFacts(ctx *assume.Context) []Rule {
	var rules []Rule
	for _, sym := range ctx.PropertySymbols() {
		if ctx.HasProperty(sym, ast.PropHermitian) {
			name := sym
			rules = append(rules, Rule{
				Name: fmt.Sprintf("hermitian(%s)", name),
				Doc:  fmt.Sprintf("%s is Hermitian, so its adjoint is itself", name),
				Apply: func(e ast.Expr) []ast.Expr {
					d, ok := e.(*ast.Dagger)
					if !ok {
						return nil
					}
					id, ok := d.X.(*ast.Ident)
					if !ok || id.Name != name {
						return nil
					}
					return []ast.Expr{id}
				},
			})
		}
		if ctx.HasProperty(sym, ast.PropUnitary) {
			name := sym
			rules = append(rules, Rule{
				Name: fmt.Sprintf("unitary(%s)", name),
				Doc:  fmt.Sprintf("%s is unitary, so adjacent %s†%s cancels", name, name, name),
				Apply: func(e ast.Expr) []ast.Expr {
					return cancelUnitaryPair(e, name)
				},
			})
		}
	}
	return rules
}

// cancelUnitaryPair drops an adjacent U†U or UU† pair from a product.
func cancelUnitaryPair(e ast.Expr, name string) []ast.Expr {
	p, ok := e.(*ast.Product)
	if !ok {
		return nil
	}
	matches := func(a, b ast.Expr) bool {
		if d, ok := a.(*ast.Dagger); ok {
			if id, ok := d.X.(*ast.Ident); ok && id.Name == name {
				if id2, ok := b.(*ast.Ident); ok && id2.Name == name {
					return true
				}
			}
		}
		if id, ok := a.(*ast.Ident); ok && id.Name == name {
			if d, ok := b.(*ast.Dagger); ok {
				if id2, ok := d.X.(*ast.Ident); ok && id2.Name == name {
					return true
				}
			}
		}
		return false
	}
	var out []ast.Expr
	for k := 0; k+1 < len(p.Factors); k++ {
		if matches(p.Factors[k], p.Factors[k+1]) {
			rest := make([]ast.Expr, 0, len(p.Factors)-2)
			rest = append(rest, p.Factors[:k]...)
			rest = append(rest, p.Factors[k+2:]...)
			out = append(out, productOf(rest))
		}
	}
	return out
}

// substitutionRule rewrites any subtree equal to from into to.
func substitutionRule(name string, from, to ast.Expr) Rule {
	return Rule{
		Name: name,
		Doc:  "assumed identity",
		Apply: func(e ast.Expr) []ast.Expr {
			if ast.Equal(e, from) {
				return []ast.Expr{to}
			}
			return nil
		},
	}
}

func builtinRules() []Rule {
	return []Rule{
		{
			Name: "adjoint-involution",
			Doc:  "(A†)† = A",
			Apply: func(e ast.Expr) []ast.Expr {
				if d, ok := e.(*ast.Dagger); ok {
					if inner, ok := d.X.(*ast.Dagger); ok {
						return []ast.Expr{inner.X}
					}
				}
				return nil
			},
		},
		{
			Name: "adjoint-sum",
			Doc:  "(A + B)† = A† + B†",
			Apply: func(e ast.Expr) []ast.Expr {
				d, ok := e.(*ast.Dagger)
				if !ok {
					return nil
				}
				s, ok := d.X.(*ast.Sum)
				if !ok {
					return nil
				}
				terms := make([]ast.Expr, len(s.Terms))
				for idx, t := range s.Terms {
					terms[idx] = &ast.Dagger{X: t}
				}
				return []ast.Expr{&ast.Sum{Terms: terms}}
			},
		},
		{
			Name: "adjoint-product",
			Doc:  "(AB)† = B†A†",
			Apply: func(e ast.Expr) []ast.Expr {
				d, ok := e.(*ast.Dagger)
				if !ok {
					return nil
				}
				p, ok := d.X.(*ast.Product)
				if !ok {
					return nil
				}
				factors := make([]ast.Expr, len(p.Factors))
				for idx, f := range p.Factors {
					factors[len(p.Factors)-1-idx] = &ast.Dagger{X: f}
				}
				return []ast.Expr{&ast.Product{Factors: factors}}
			},
		},
		{
			Name: "trace-linear",
			Doc:  "Tr(A + B) = Tr(A) + Tr(B)",
			Apply: func(e ast.Expr) []ast.Expr {
				tr, ok := e.(*ast.Trace)
				if !ok {
					return nil
				}
				s, ok := tr.X.(*ast.Sum)
				if !ok {
					return nil
				}
				terms := make([]ast.Expr, len(s.Terms))
				for idx, t := range s.Terms {
					terms[idx] = &ast.Trace{X: t}
				}
				return []ast.Expr{&ast.Sum{Terms: terms}}
			},
		},
		{
			Name:  "trace-scalar",
			Doc:   "Tr(cA) = c Tr(A)",
			Apply: traceScalar,
		},
		{
			Name:  "trace-cyclic",
			Doc:   "Tr(ABC) = Tr(BCA)",
			Apply: traceCyclic,
		},
		{
			Name: "trace-transpose",
			Doc:  "Tr(Aᵀ) = Tr(A)",
			Apply: func(e ast.Expr) []ast.Expr {
				tr, ok := e.(*ast.Trace)
				if !ok {
					return nil
				}
				t, ok := tr.X.(*ast.Transpose)
				if !ok {
					return nil
				}
				return []ast.Expr{&ast.Trace{X: t.X}}
			},
		},
		{
			Name: "commutator-expand",
			Doc:  "[A, B] = AB - BA",
			Apply: func(e ast.Expr) []ast.Expr {
				c, ok := e.(*ast.Commutator)
				if !ok {
					return nil
				}
				return []ast.Expr{&ast.Sum{Terms: []ast.Expr{
					&ast.Product{Factors: []ast.Expr{c.X, c.Y}},
					&ast.Product{Factors: []ast.Expr{&ast.Number{Value: -1}, c.Y, c.X}},
				}}}
			},
		},
		{
			Name:  "commutator-factor",
			Doc:   "AB - BA = [A, B]",
			Apply: commutatorFactor,
		},
		{
			Name: "commutator-antisym",
			Doc:  "[B, A] = -[A, B], normalized toward the lesser first operand",
			Apply: func(e ast.Expr) []ast.Expr {
				c, ok := e.(*ast.Commutator)
				if !ok {
					return nil
				}
				if c.X.String() <= c.Y.String() {
					return nil
				}
				return []ast.Expr{&ast.Product{Factors: []ast.Expr{
					&ast.Number{Value: -1},
					&ast.Commutator{X: c.Y, Y: c.X},
				}}}
			},
		},
		{
			Name:  "commutator-linear",
			Doc:   "[A + B, C] = [A, C] + [B, C] and scalar factors pull out",
			Apply: commutatorLinear,
		},
		{
			Name: "anticommutator-expand",
			Doc:  "{A, B} = AB + BA",
			Apply: func(e ast.Expr) []ast.Expr {
				c, ok := e.(*ast.AntiCommutator)
				if !ok {
					return nil
				}
				return []ast.Expr{&ast.Sum{Terms: []ast.Expr{
					&ast.Product{Factors: []ast.Expr{c.X, c.Y}},
					&ast.Product{Factors: []ast.Expr{c.Y, c.X}},
				}}}
			},
		},
		{
			Name:  "tensor-distribute",
			Doc:   "(A + B) ⊗ C = A⊗C + B⊗C, in either slot",
			Apply: tensorDistribute,
		},
		{
			Name: "tensor-adjoint",
			Doc:  "(A ⊗ B)† = A† ⊗ B†",
			Apply: func(e ast.Expr) []ast.Expr {
				d, ok := e.(*ast.Dagger)
				if !ok {
					return nil
				}
				t, ok := d.X.(*ast.Tensor)
				if !ok {
					return nil
				}
				return []ast.Expr{&ast.Tensor{X: &ast.Dagger{X: t.X}, Y: &ast.Dagger{X: t.Y}}}
			},
		},
		{
			Name: "tensor-assoc",
			Doc:  "(A ⊗ B) ⊗ C = A ⊗ (B ⊗ C), normalized rightward",
			Apply: func(e ast.Expr) []ast.Expr {
				t, ok := e.(*ast.Tensor)
				if !ok {
					return nil
				}
				left, ok := t.X.(*ast.Tensor)
				if !ok {
					return nil
				}
				return []ast.Expr{&ast.Tensor{X: left.X, Y: &ast.Tensor{X: left.Y, Y: t.Y}}}
			},
		},
		{
			Name:  "pauli-product",
			Doc:   "σa σb = i εabc σc for distinct Paulis",
			Apply: pauliProduct,
		},
		{
			Name:  "pauli-commutator",
			Doc:   "[σa, σb] = 2i εabc σc",
			Apply: pauliCommutator,
		},
		{
			Name:  "pauli-anticommutator",
			Doc:   "{σa, σb} = 2 δab I",
			Apply: pauliAntiCommutator,
		},
	}
}

func productOf(factors []ast.Expr) ast.Expr {
	switch len(factors) {
	case 0:
		return &ast.Number{Value: 1}
	case 1:
		return factors[0]
	default:
		return &ast.Product{Factors: factors}
	}
}

func traceScalar(e ast.Expr) []ast.Expr {
	tr, ok := e.(*ast.Trace)
	if !ok {
		return nil
	}
	p, ok := tr.X.(*ast.Product)
	if !ok || len(p.Factors) < 2 {
		return nil
	}
	num, ok := p.Factors[0].(*ast.Number)
	if !ok {
		return nil
	}
	return []ast.Expr{&ast.Product{Factors: []ast.Expr{
		num,
		&ast.Trace{X: productOf(p.Factors[1:])},
	}}}
}

func traceCyclic(e ast.Expr) []ast.Expr {
	tr, ok := e.(*ast.Trace)
	if !ok {
		return nil
	}
	p, ok := tr.X.(*ast.Product)
	if !ok || len(p.Factors) < 2 {
		return nil
	}
	rotated := make([]ast.Expr, 0, len(p.Factors))
	rotated = append(rotated, p.Factors[1:]...)
	rotated = append(rotated, p.Factors[0])
	return []ast.Expr{&ast.Trace{X: &ast.Product{Factors: rotated}}}
}

func commutatorFactor(e ast.Expr) []ast.Expr {
	s, ok := e.(*ast.Sum)
	if !ok || len(s.Terms) != 2 {
		return nil
	}
	// match AB + (-1)BA with A, B single factors
	pos, ok1 := s.Terms[0].(*ast.Product)
	neg, ok2 := s.Terms[1].(*ast.Product)
	if !ok1 || !ok2 {
		return nil
	}
	if len(pos.Factors) != 2 || len(neg.Factors) != 3 {
		// canonical order may put the negated term first
		pos, neg = neg, pos
		if len(neg.Factors) != 2 || len(pos.Factors) != 3 {
			return nil
		}
		pos, neg = neg, pos
	}
	coeff, ok := neg.Factors[0].(*ast.Number)
	if !ok || coeff.Value != -1 {
		return nil
	}
	a, b := pos.Factors[0], pos.Factors[1]
	if ast.Equal(neg.Factors[1], b) && ast.Equal(neg.Factors[2], a) {
		return []ast.Expr{&ast.Commutator{X: a, Y: b}}
	}
	return nil
}

func commutatorLinear(e ast.Expr) []ast.Expr {
	c, ok := e.(*ast.Commutator)
	if !ok {
		return nil
	}
	var out []ast.Expr
	if s, ok := c.X.(*ast.Sum); ok {
		terms := make([]ast.Expr, len(s.Terms))
		for idx, t := range s.Terms {
			terms[idx] = &ast.Commutator{X: t, Y: c.Y}
		}
		out = append(out, &ast.Sum{Terms: terms})
	}
	if s, ok := c.Y.(*ast.Sum); ok {
		terms := make([]ast.Expr, len(s.Terms))
		for idx, t := range s.Terms {
			terms[idx] = &ast.Commutator{X: c.X, Y: t}
		}
		out = append(out, &ast.Sum{Terms: terms})
	}
	// a leading literal coefficient pulls out of either slot
	if p, ok := c.X.(*ast.Product); ok && len(p.Factors) >= 2 {
		if num, ok := p.Factors[0].(*ast.Number); ok {
			out = append(out, &ast.Product{Factors: []ast.Expr{
				num, &ast.Commutator{X: productOf(p.Factors[1:]), Y: c.Y},
			}})
		}
	}
	if p, ok := c.Y.(*ast.Product); ok && len(p.Factors) >= 2 {
		if num, ok := p.Factors[0].(*ast.Number); ok {
			out = append(out, &ast.Product{Factors: []ast.Expr{
				num, &ast.Commutator{X: c.X, Y: productOf(p.Factors[1:])},
			}})
		}
	}
	return out
}

func tensorDistribute(e ast.Expr) []ast.Expr {
	t, ok := e.(*ast.Tensor)
	if !ok {
		return nil
	}
	var out []ast.Expr
	if s, ok := t.X.(*ast.Sum); ok {
		terms := make([]ast.Expr, len(s.Terms))
		for idx, el := range s.Terms {
			terms[idx] = &ast.Tensor{X: el, Y: t.Y}
		}
		out = append(out, &ast.Sum{Terms: terms})
	}
	if s, ok := t.Y.(*ast.Sum); ok {
		terms := make([]ast.Expr, len(s.Terms))
		for idx, el := range s.Terms {
			terms[idx] = &ast.Tensor{X: t.X, Y: el}
		}
		out = append(out, &ast.Sum{Terms: terms})
	}
	return out
}

// pauliTable returns the third Pauli index and the sign of εabc for a
// distinct pair, e.g. x,y -> z,+1.
func pauliTable(a, b string) (string, complex128, bool) {
	switch a + " " + b {
	case "sigma_x sigma_y":
		return "sigma_z", 1, true
	case "sigma_y sigma_x":
		return "sigma_z", -1, true
	case "sigma_y sigma_z":
		return "sigma_x", 1, true
	case "sigma_z sigma_y":
		return "sigma_x", -1, true
	case "sigma_z sigma_x":
		return "sigma_y", 1, true
	case "sigma_x sigma_z":
		return "sigma_y", -1, true
	}
	return "", 0, false
}

func pauliProduct(e ast.Expr) []ast.Expr {
	p, ok := e.(*ast.Product)
	if !ok {
		return nil
	}
	var out []ast.Expr
	for k := 0; k+1 < len(p.Factors); k++ {
		pa, aok := isPauli(p.Factors[k])
		pb, bok := isPauli(p.Factors[k+1])
		if !aok || !bok || pa == pb {
			continue
		}
		third, sign, _ := pauliTable(pa, pb)
		rest := make([]ast.Expr, 0, len(p.Factors))
		rest = append(rest, p.Factors[:k]...)
		rest = append(rest, &ast.Number{Value: sign * complex(0, 1)}, &ast.Ident{Name: third})
		rest = append(rest, p.Factors[k+2:]...)
		out = append(out, &ast.Product{Factors: rest})
	}
	return out
}

func pauliCommutator(e ast.Expr) []ast.Expr {
	c, ok := e.(*ast.Commutator)
	if !ok {
		return nil
	}
	pa, aok := isPauli(c.X)
	pb, bok := isPauli(c.Y)
	if !aok || !bok {
		return nil
	}
	if pa == pb {
		return []ast.Expr{&ast.Number{Value: 0}}
	}
	third, sign, _ := pauliTable(pa, pb)
	return []ast.Expr{&ast.Product{Factors: []ast.Expr{
		&ast.Number{Value: sign * complex(0, 2)},
		&ast.Ident{Name: third},
	}}}
}

func pauliAntiCommutator(e ast.Expr) []ast.Expr {
	c, ok := e.(*ast.AntiCommutator)
	if !ok {
		return nil
	}
	pa, aok := isPauli(c.X)
	pb, bok := isPauli(c.Y)
	if !aok || !bok {
		return nil
	}
	if pa == pb {
		return []ast.Expr{&ast.Product{Factors: []ast.Expr{
			&ast.Number{Value: 2}, &ast.Ident{Name: "I"},
		}}}
	}
	return []ast.Expr{&ast.Number{Value: 0}}
}

// rewriteEverywhere applies a rule at every position of an expression,
// returning one whole rewritten expression per applicable position.
func rewriteEverywhere(e ast.Expr, rule Rule) []ast.Expr {
	var out []ast.Expr
	for _, root := range rule.Apply(e) {
		out = append(out, root)
	}
	for _, sub := range childRewrites(e, rule) {
		out = append(out, sub)
	}
	return out
}

// childRewrites rebuilds e once per rewrite available in any child.
func childRewrites(e ast.Expr, rule Rule) []ast.Expr {
	var out []ast.Expr
	replaceChild := func(build func(ast.Expr) ast.Expr, child ast.Expr) {
		for _, rw := range rewriteEverywhere(child, rule) {
			out = append(out, build(rw))
		}
	}
	switch n := e.(type) {
	case *ast.Sum:
		for idx := range n.Terms {
			idx := idx
			replaceChild(func(rw ast.Expr) ast.Expr {
				terms := append([]ast.Expr{}, n.Terms...)
				terms[idx] = rw
				return &ast.Sum{Terms: terms, Sp: n.Sp}
			}, n.Terms[idx])
		}
	case *ast.Product:
		for idx := range n.Factors {
			idx := idx
			replaceChild(func(rw ast.Expr) ast.Expr {
				factors := append([]ast.Expr{}, n.Factors...)
				factors[idx] = rw
				return &ast.Product{Factors: factors, Sp: n.Sp}
			}, n.Factors[idx])
		}
	case *ast.Binary:
		replaceChild(func(rw ast.Expr) ast.Expr {
			return &ast.Binary{Op: n.Op, X: rw, Y: n.Y, Sp: n.Sp}
		}, n.X)
		replaceChild(func(rw ast.Expr) ast.Expr {
			return &ast.Binary{Op: n.Op, X: n.X, Y: rw, Sp: n.Sp}
		}, n.Y)
	case *ast.Neg:
		replaceChild(func(rw ast.Expr) ast.Expr { return &ast.Neg{X: rw, Sp: n.Sp} }, n.X)
	case *ast.Dagger:
		replaceChild(func(rw ast.Expr) ast.Expr { return &ast.Dagger{X: rw, Sp: n.Sp} }, n.X)
	case *ast.Transpose:
		replaceChild(func(rw ast.Expr) ast.Expr { return &ast.Transpose{X: rw, Sp: n.Sp} }, n.X)
	case *ast.Trace:
		replaceChild(func(rw ast.Expr) ast.Expr { return &ast.Trace{X: rw, Sp: n.Sp} }, n.X)
	case *ast.Tensor:
		replaceChild(func(rw ast.Expr) ast.Expr {
			return &ast.Tensor{X: rw, Y: n.Y, Sp: n.Sp}
		}, n.X)
		replaceChild(func(rw ast.Expr) ast.Expr {
			return &ast.Tensor{X: n.X, Y: rw, Sp: n.Sp}
		}, n.Y)
	case *ast.Commutator:
		replaceChild(func(rw ast.Expr) ast.Expr {
			return &ast.Commutator{X: rw, Y: n.Y, Sp: n.Sp}
		}, n.X)
		replaceChild(func(rw ast.Expr) ast.Expr {
			return &ast.Commutator{X: n.X, Y: rw, Sp: n.Sp}
		}, n.Y)
	case *ast.AntiCommutator:
		replaceChild(func(rw ast.Expr) ast.Expr {
			return &ast.AntiCommutator{X: rw, Y: n.Y, Sp: n.Sp}
		}, n.X)
		replaceChild(func(rw ast.Expr) ast.Expr {
			return &ast.AntiCommutator{X: n.X, Y: rw, Sp: n.Sp}
		}, n.Y)
	case *ast.Call:
		for idx := range n.Args {
			idx := idx
			replaceChild(func(rw ast.Expr) ast.Expr {
				args := append([]ast.Expr{}, n.Args...)
				args[idx] = rw
				return &ast.Call{Name: n.Name, Args: args, Sp: n.Sp}
			}, n.Args[idx])
		}
	}
	return out
}
