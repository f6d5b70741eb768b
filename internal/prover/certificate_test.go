package prover

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"

	"github.com/quanta-labs/qprove/internal/ast"
)

// provenCert produces a certificate with at least one recorded step.
func provenCert(t *testing.T, p *Prover) *Certificate {
	t.Helper()
	res := proveIdentitySrc(t, p, "commutator(sigma_x, sigma_y)", "2 * i * sigma_z")
	require.Equal(t, StatusProven, res.Status)
	require.NotNil(t, res.Certificate)
	require.NotEmpty(t, res.Certificate.Steps)
	return res.Certificate
}

func TestCertificateFieldLayout(t *testing.T) {
	t.Parallel()
	p := newTestProver(t)
	cert := provenCert(t, p)

	data, err := cert.Marshal()
	require.NoError(t, err)

	// external tooling parses these keys; renaming any of them is a
	// breaking change
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{
		"id", "hash", "generated_at", "engine_version",
		"catalogue_version", "goal", "assumptions", "steps",
	} {
		assert.Contains(t, raw, key)
	}
	assert.NotContains(t, raw, "numeric", "omitted when no numeric evidence exists")

	var goal map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["goal"], &goal))
	assert.Contains(t, goal, "kind")
	assert.Contains(t, goal, "lhs")
	assert.Contains(t, goal, "rhs")

	_, err = uuid.Parse(cert.ID)
	assert.NoError(t, err)
	assert.Equal(t, EngineVersion, cert.EngineVersion)
	assert.Equal(t, CatalogueVersion, cert.CatalogueVersion)
}

func TestCertificateRoundTrip(t *testing.T) {
	t.Parallel()
	p := newTestProver(t)
	cert := provenCert(t, p)

	data, err := cert.Marshal()
	require.NoError(t, err)
	back, err := UnmarshalCertificate(data)
	require.NoError(t, err)

	assert.Equal(t, cert.Hash, back.Hash)
	assert.Equal(t, cert.Goal, back.Goal)
	assert.Equal(t, cert.Steps, back.Steps)
	assert.True(t, back.Verify(p.reg, p.canon))
}

func TestCertificateHashExcludesIDAndTimestamp(t *testing.T) {
	t.Parallel()
	a := provenCert(t, newTestProver(t))
	b := provenCert(t, newTestProver(t))
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.Hash, b.Hash, "identical proofs hash identically")
}

func TestCertificateTamperDetection(t *testing.T) {
	t.Parallel()
	p := newTestProver(t)

	tamper := func(mutate func(*Certificate)) *Certificate {
		cert := provenCert(t, p)
		data, err := cert.Marshal()
		require.NoError(t, err)
		copied, err := UnmarshalCertificate(data)
		require.NoError(t, err)
		mutate(copied)
		return copied
	}

	t.Run("edited step result", func(t *testing.T) {
		cert := tamper(func(c *Certificate) { c.Steps[0].After = "sigma_x" })
		ok, reason := cert.VerifyReason(p.reg, p.canon)
		assert.False(t, ok)
		assert.NotEmpty(t, reason)
	})

	t.Run("edited goal", func(t *testing.T) {
		cert := tamper(func(c *Certificate) { c.Goal.RHS = "sigma_y" })
		assert.False(t, cert.Verify(p.reg, p.canon))
	})

	t.Run("edited hash", func(t *testing.T) {
		cert := tamper(func(c *Certificate) { c.Hash = "0000" })
		ok, reason := cert.VerifyReason(p.reg, p.canon)
		assert.False(t, ok)
		assert.Contains(t, reason, "hash")
	})

	t.Run("smuggled assumption", func(t *testing.T) {
		cert := tamper(func(c *Certificate) {
			c.Assumptions = append(c.Assumptions, "H is hermitian")
		})
		assert.False(t, cert.Verify(p.reg, p.canon))
	})

	t.Run("unknown rule name", func(t *testing.T) {
		cert := tamper(func(c *Certificate) { c.Steps[0].Rule = "no-such-rule" })
		ok, reason := cert.VerifyReason(p.reg, p.canon)
		assert.False(t, ok)
		assert.Contains(t, reason, "no-such-rule")
	})
}

func TestReplayCertificateStandalone(t *testing.T) {
	t.Parallel()

	t.Run("builtin proof", func(t *testing.T) {
		t.Parallel()
		cert := provenCert(t, newTestProver(t))
		data, err := cert.Marshal()
		require.NoError(t, err)
		back, err := UnmarshalCertificate(data)
		require.NoError(t, err)
		ok, reason := ReplayCertificate(back)
		assert.True(t, ok, reason)
	})

	t.Run("assumption-backed proof", func(t *testing.T) {
		t.Parallel()
		p := newTestProver(t)
		require.NoError(t, p.AddAssumption(ast.Assumption{
			Kind: ast.AssumeProperty, Symbol: "H", Property: ast.PropHermitian,
		}))
		res := proveIdentitySrc(t, p, "dagger(H)", "H")
		require.Equal(t, StatusProven, res.Status)

		// the replay rebuilds the assumption rules from the recorded lines
		ok, reason := ReplayCertificate(res.Certificate)
		assert.True(t, ok, reason)

		// stripping the assumption makes the hermitian(H) step unknown
		stripped := *res.Certificate
		stripped.Assumptions = nil
		ok, _ = ReplayCertificate(&stripped)
		assert.False(t, ok)
	})

	t.Run("relation-backed proof", func(t *testing.T) {
		t.Parallel()
		p := newTestProver(t)
		require.NoError(t, p.AddAssumption(ast.Assumption{
			Kind: ast.AssumeRelation,
			LHS:  expr(t, "X"),
			RHS:  expr(t, "Y"),
		}))
		res := proveIdentitySrc(t, p, "commutator(X, Z)", "commutator(Y, Z)")
		require.Equal(t, StatusProven, res.Status)
		ok, reason := ReplayCertificate(res.Certificate)
		assert.True(t, ok, reason)
	})

	t.Run("numeric certificate checks hash only", func(t *testing.T) {
		t.Parallel()
		p := newTestProver(t)
		res, err := p.ProveProperty(context.Background(), ast.PropReal, expr(t, "trace(A * dagger(A))"))
		require.NoError(t, err)
		if res.Outcome != PropertyNumeric {
			t.Skipf("goal settled symbolically")
		}
		ok, reason := ReplayCertificate(res.Certificate)
		assert.True(t, ok, reason)

		tampered := *res.Certificate
		evidence := *tampered.Numeric
		evidence.Samples++
		tampered.Numeric = &evidence
		ok, _ = ReplayCertificate(&tampered)
		assert.False(t, ok)
	})

	t.Run("garbled assumption line", func(t *testing.T) {
		t.Parallel()
		cert := provenCert(t, newTestProver(t))
		copied := *cert
		copied.Assumptions = []string{"not an assumption"}
		ok, reason := ReplayCertificate(&copied)
		assert.False(t, ok)
		assert.Contains(t, reason, "assumption")
	})
}

func TestParseAssumptionLine(t *testing.T) {
	t.Parallel()

	a, err := parseAssumptionLine("H is hermitian")
	require.NoError(t, err)
	assert.Equal(t, ast.AssumeProperty, a.Kind)
	assert.Equal(t, "H", a.Symbol)
	assert.Equal(t, ast.PropHermitian, a.Property)

	a, err = parseAssumptionLine("A * B == B * A")
	require.NoError(t, err)
	assert.Equal(t, ast.AssumeRelation, a.Kind)
	assert.Equal(t, "(A * B)", a.LHS.String())

	_, err = parseAssumptionLine("H is banana")
	assert.Error(t, err)
	_, err = parseAssumptionLine("gibberish")
	assert.Error(t, err)
}
