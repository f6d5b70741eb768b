package prover

import (
	"fmt"
	"strings"

	"github.com/quanta-labs/qprove/internal/assume"
	"github.com/quanta-labs/qprove/internal/ast"
	"github.com/quanta-labs/qprove/internal/parser"
)

// ReplayCertificate re-verifies a serialized certificate with no access
// to the prover that produced it. The assumption context is rebuilt from
// the certificate's recorded assumption lines; the steps then replay
// against the built-in catalogue plus the derived assumption rules.
// Numeric certificates only get their hash checked here: re-sampling
// needs a prover bound to the original program.
func ReplayCertificate(cert *Certificate) (bool, string) {
	canon := NewCanonicalizer()
	reg := NewRegistry()
	actx := assume.NewContext()
	for _, line := range cert.Assumptions {
		a, err := parseAssumptionLine(line)
		if err != nil {
			return false, fmt.Sprintf("assumption %q: %v", line, err)
		}
		if a.Kind == ast.AssumeProperty {
			if a.Property == ast.PropReal || a.Property == ast.PropPositive || a.Property == ast.PropComplexScalar {
				canon.MarkScalar(a.Symbol)
			}
		}
		if err := actx.Add(a); err != nil {
			return false, fmt.Sprintf("assumption %q: %v", line, err)
		}
	}
	actx.Freeze()
	reg.AddAssumptionRules(actx, canon)
	return cert.VerifyReason(reg, canon)
}

// parseAssumptionLine inverts ast.Assumption.String: either
// "symbol is property" or "lhs == rhs".
func parseAssumptionLine(line string) (ast.Assumption, error) {
	if lhs, rhs, ok := strings.Cut(line, " == "); ok {
		le, err := parser.ParseExpr(lhs)
		if err != nil {
			return ast.Assumption{}, fmt.Errorf("left side: %w", err)
		}
		re, err := parser.ParseExpr(rhs)
		if err != nil {
			return ast.Assumption{}, fmt.Errorf("right side: %w", err)
		}
		return ast.Assumption{Kind: ast.AssumeRelation, LHS: le, RHS: re}, nil
	}
	sym, propName, ok := strings.Cut(line, " is ")
	if !ok {
		return ast.Assumption{}, fmt.Errorf("unrecognized assumption form")
	}
	prop, ok := ast.PropertyKindFromName(propName)
	if !ok {
		return ast.Assumption{}, fmt.Errorf("unknown property %q", propName)
	}
	return ast.Assumption{Kind: ast.AssumeProperty, Symbol: sym, Property: prop}, nil
}
