package prover

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quanta-labs/qprove/internal/ast"
	"github.com/quanta-labs/qprove/internal/parser"
)

// EngineVersion identifies the prover build. It participates in
// certificate hashes together with CatalogueVersion.
const EngineVersion = "qprove-0.4"

// GoalRecord serializes the goal a certificate certifies. For an
// identity goal LHS and RHS carry the two sides; for a property goal
// Property names the property and LHS carries the expression.
type GoalRecord struct {
	Kind     string `json:"kind"` // "identity" or "property"
	LHS      string `json:"lhs"`
	RHS      string `json:"rhs,omitempty"`
	Property string `json:"property,omitempty"`
}

// NumericEvidence records a sampled, probabilistic property check. It is
// explicitly not a proof: it certifies only that every drawn sample
// passed within tolerance.
type NumericEvidence struct {
	Seed         int64   `json:"seed"`
	Samples      int     `json:"samples"`
	Tolerance    float64 `json:"tolerance"`
	MaxDeviation float64 `json:"max_deviation"`
}

// Certificate is the replayable record of a proof. Its field layout is
// stable: external tooling re-verifies serialized certificates without
// access to this implementation. The hash covers the goal, the trace,
// the assumption set, and the engine and catalogue versions; it changes
// exactly when one of those changes.
type Certificate struct {
	ID               string           `json:"id"`
	Hash             string           `json:"hash"`
	GeneratedAt      time.Time        `json:"generated_at"`
	EngineVersion    string           `json:"engine_version"`
	CatalogueVersion string           `json:"catalogue_version"`
	Goal             GoalRecord       `json:"goal"`
	Assumptions      []string         `json:"assumptions"`
	Steps            []Step           `json:"steps"`
	Numeric          *NumericEvidence `json:"numeric,omitempty"`
}

// newCertificate assembles and hashes a certificate.
func newCertificate(goal GoalRecord, assumptions []string, steps []Step, numeric *NumericEvidence) *Certificate {
	cert := &Certificate{
		ID:               uuid.NewString(),
		GeneratedAt:      time.Now().UTC(),
		EngineVersion:    EngineVersion,
		CatalogueVersion: CatalogueVersion,
		Goal:             goal,
		Assumptions:      assumptions,
		Steps:            steps,
		Numeric:          numeric,
	}
	cert.Hash = cert.computeHash()
	return cert
}

// computeHash digests the canonical content of the certificate. The ID
// and timestamp are deliberately excluded: two certificates for the same
// proof under the same engine hash identically.
func (c *Certificate) computeHash() string {
	h := sha256.New()
	write := func(parts ...string) {
		for _, p := range parts {
			h.Write([]byte(p))
			h.Write([]byte{0})
		}
	}
	write(c.EngineVersion, c.CatalogueVersion)
	write(c.Goal.Kind, c.Goal.LHS, c.Goal.RHS, c.Goal.Property)
	for _, a := range c.Assumptions {
		write(a)
	}
	for _, s := range c.Steps {
		write(s.Rule, s.Before, s.After, s.Side)
	}
	if c.Numeric != nil {
		write(fmt.Sprintf("numeric seed=%d samples=%d tol=%g", c.Numeric.Seed, c.Numeric.Samples, c.Numeric.Tolerance))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Marshal renders the certificate as indented JSON.
func (c *Certificate) Marshal() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// UnmarshalCertificate parses a serialized certificate.
func UnmarshalCertificate(data []byte) (*Certificate, error) {
	var c Certificate
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing certificate: %w", err)
	}
	return &c, nil
}

// Verify independently replays a symbolic certificate against a rule
// registry and canonicalizer: every recorded step must re-derive, the
// steps must chain from the goal's two sides to a common meeting point,
// and the recomputed hash must match. Nothing stored in the certificate
// is trusted. Verification never panics; any defect reports false.
func (c *Certificate) Verify(reg *Registry, canon *Canonicalizer) bool {
	ok, _ := c.verify(reg, canon)
	return ok
}

// VerifyReason is Verify with the first failure explained, for logs.
func (c *Certificate) VerifyReason(reg *Registry, canon *Canonicalizer) (bool, string) {
	return c.verify(reg, canon)
}

func (c *Certificate) verify(reg *Registry, canon *Canonicalizer) (ok bool, reason string) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			reason = fmt.Sprintf("replay panicked: %v", r)
		}
	}()

	if c.Goal.Kind != "identity" && c.Goal.Kind != "property" {
		return false, fmt.Sprintf("unknown goal kind %q", c.Goal.Kind)
	}
	if c.Numeric != nil {
		// numeric evidence is replayed by the prover, which owns the
		// sampler; here only the hash binding can be checked
		if c.Hash != c.computeHash() {
			return false, "hash does not match certificate content"
		}
		return true, ""
	}

	lhs, err := parser.ParseExpr(c.Goal.LHS)
	if err != nil {
		return false, fmt.Sprintf("goal lhs does not parse: %v", err)
	}
	lhsKey := canon.Key(lhs)
	// property certificates proved by reduction to an identity carry the
	// identity's two sides; witness certificates carry no RHS and no steps
	rhsKey := lhsKey
	if c.Goal.RHS != "" {
		rhs, err := parser.ParseExpr(c.Goal.RHS)
		if err != nil {
			return false, fmt.Sprintf("goal rhs does not parse: %v", err)
		}
		rhsKey = canon.Key(rhs)
	} else if c.Goal.Kind == "identity" {
		return false, "identity goal is missing its right-hand side"
	}

	lhsEnd, ok, reason := c.replayChain("lhs", lhsKey, reg, canon)
	if !ok {
		return false, reason
	}
	rhsEnd, ok, reason := c.replayChain("rhs", rhsKey, reg, canon)
	if !ok {
		return false, reason
	}
	if lhsEnd != rhsEnd {
		return false, fmt.Sprintf("traces do not meet: lhs ends at %s, rhs ends at %s", lhsEnd, rhsEnd)
	}
	if c.Hash != c.computeHash() {
		return false, "hash does not match certificate content"
	}
	return true, ""
}

// replayChain replays the steps recorded for one side, returning the
// canonical form the chain ends at.
func (c *Certificate) replayChain(side, start string, reg *Registry, canon *Canonicalizer) (string, bool, string) {
	cur := start
	for idx, s := range c.Steps {
		if s.Side != side {
			continue
		}
		if s.Before != cur {
			return "", false, fmt.Sprintf("step %d: chain break, expected before=%s, recorded %s", idx+1, cur, s.Before)
		}
		after, err := replayStep(s, reg, canon)
		if err != nil {
			return "", false, fmt.Sprintf("step %d: %v", idx+1, err)
		}
		if after != s.After {
			return "", false, fmt.Sprintf("step %d: rule %s does not derive recorded result", idx+1, s.Rule)
		}
		cur = s.After
	}
	return cur, true, ""
}

// replayStep re-applies a recorded rule to the recorded before form and
// reports the canonical result, which must be reachable in one step.
func replayStep(s Step, reg *Registry, canon *Canonicalizer) (string, error) {
	before, err := parser.ParseExpr(s.Before)
	if err != nil {
		return "", fmt.Errorf("before expression does not parse: %w", err)
	}
	if canon.Key(before) != s.Before {
		return "", fmt.Errorf("before expression is not canonical")
	}
	rule, ok := reg.Lookup(s.Rule)
	if !ok {
		return "", fmt.Errorf("unknown rule %q", s.Rule)
	}
	canonical := canon.Canonicalize(before)
	for _, rw := range rewriteEverywhere(canonical, rule) {
		if canon.Key(rw) == s.After {
			return s.After, nil
		}
	}
	return "", fmt.Errorf("rule %q yields no rewrite matching the recorded result", s.Rule)
}

// exprKey renders an expression for certificate storage.
func exprKey(canon *Canonicalizer, e ast.Expr) string {
	return canon.Canonicalize(e).String()
}
