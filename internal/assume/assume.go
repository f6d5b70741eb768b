// Package assume accumulates declared facts about symbols and
// expressions. The context is built incrementally while a program is
// processed, frozen before proving begins, and consulted both by the
// numeric validator (to skip checks that are trusted by assumption) and
// by the prover (as axioms and as sampling constraints).
package assume

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"github.com/quanta-labs/qprove/internal/ast"
)

// ErrFrozen is returned when an assumption is added after Freeze.
var ErrFrozen = errors.New("assumption context is frozen")

// Relation is an assumed identity between two expressions.
type Relation struct {
	LHS ast.Expr
	RHS ast.Expr
}

// Context holds the declared property and relational facts.
type Context struct {
	props     map[string]map[ast.PropertyKind]bool
	relations []Relation
	frozen    bool
}

// NewContext returns an empty, unfrozen context.
func NewContext() *Context {
	return &Context{props: make(map[string]map[ast.PropertyKind]bool)}
}

// Add records one assumption. It fails once the context is frozen.
func (c *Context) Add(a ast.Assumption) error {
	if c.frozen {
		return ErrFrozen
	}
	switch a.Kind {
	case ast.AssumeProperty:
		set := c.props[a.Symbol]
		if set == nil {
			set = make(map[ast.PropertyKind]bool)
			c.props[a.Symbol] = set
		}
		set[a.Property] = true
	case ast.AssumeRelation:
		c.relations = append(c.relations, Relation{LHS: a.LHS, RHS: a.RHS})
	default:
		return fmt.Errorf("unknown assumption kind %d", a.Kind)
	}
	return nil
}

// Freeze makes the context immutable. Safe to call more than once.
func (c *Context) Freeze() { c.frozen = true }

// Frozen reports whether the context has been frozen.
func (c *Context) Frozen() bool { return c.frozen }

// HasProperty reports whether a property was declared for a symbol.
func (c *Context) HasProperty(symbol string, p ast.PropertyKind) bool {
	return c.props[symbol][p]
}

// Properties returns the declared properties of a symbol in a stable
// order.
func (c *Context) Properties(symbol string) []ast.PropertyKind {
	set := c.props[symbol]
	out := make([]ast.PropertyKind, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PropertySymbols returns every symbol with at least one declared
// property, sorted.
func (c *Context) PropertySymbols() []string {
	out := make([]string, 0, len(c.props))
	for sym := range c.props {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Relations returns the assumed identities in declaration order.
func (c *Context) Relations() []Relation {
	return c.relations
}

// Describe serializes every assumption to a stable, sorted list of
// strings. The same facts always produce the same list regardless of
// declaration order, so the hash is order-independent.
func (c *Context) Describe() []string {
	var lines []string
	for sym, set := range c.props {
		for p := range set {
			lines = append(lines, fmt.Sprintf("%s is %s", sym, p))
		}
	}
	for _, r := range c.relations {
		lines = append(lines, fmt.Sprintf("%s == %s", r.LHS, r.RHS))
	}
	sort.Strings(lines)
	return lines
}

// Hash returns a hex digest over the serialized assumption set, used as
// part of the proof-cache key and in certificates.
func (c *Context) Hash() string {
	h := sha256.New()
	for _, line := range c.Describe() {
		h.Write([]byte(line))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
