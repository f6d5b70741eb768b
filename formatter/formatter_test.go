package formatter

import (
	"encoding/json"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quanta-labs/qprove/internal/diag"
	"github.com/quanta-labs/qprove/internal/prover"
	"github.com/quanta-labs/qprove/pipeline"
)

func init() {
	color.NoColor = true
}

func sampleDiagnostic() *diag.Diagnostic {
	return &diag.Diagnostic{
		Stage:    diag.StageTypecheck,
		Rule:     "shape",
		Severity: diag.SeverityError,
		Message:  "cannot multiply 2x2 by 3x3",
		Hint:     "operands of * must have matching inner dimensions",
		Span: diag.Span{
			File: "bell.qth", Line: 2, Column: 14,
			EndLine: 2, EndColumn: 20,
		},
	}
}

func TestFormatDiagnosticsSnippet(t *testing.T) {
	lines := []string{
		"operator A(2);",
		"matrix M = A * tensor(A, A);",
	}
	out := FormatDiagnostics([]*diag.Diagnostic{sampleDiagnostic()}, lines)

	assert.Contains(t, out, "error[typecheck/shape]")
	assert.Contains(t, out, "--> bell.qth:2:14")
	assert.Contains(t, out, "2 | matrix M = A * tensor(A, A);")
	assert.Contains(t, out, "~~~~~~~")
	assert.Contains(t, out, "cannot multiply 2x2 by 3x3")
	assert.Contains(t, out, "hint: operands of * must have matching inner dimensions")
}

func TestFormatDiagnosticsWithoutSource(t *testing.T) {
	d := sampleDiagnostic()
	d.Hint = ""
	out := FormatDiagnostics([]*diag.Diagnostic{d}, nil)

	// no snippet without source, but the header and message still print
	assert.Contains(t, out, "error[typecheck/shape]")
	assert.Contains(t, out, "cannot multiply 2x2 by 3x3")
	assert.NotContains(t, out, "hint:")
	assert.NotContains(t, out, "~")
}

func TestFormatDiagnosticsSeverityWords(t *testing.T) {
	d := sampleDiagnostic()
	d.Severity = diag.SeverityWarning
	assert.Contains(t, FormatDiagnostics([]*diag.Diagnostic{d}, nil), "warning[")

	d.Severity = diag.SeverityInfo
	assert.Contains(t, FormatDiagnostics([]*diag.Diagnostic{d}, nil), "info[")
}

func TestFormatDiagnosticsExpandsTabs(t *testing.T) {
	d := sampleDiagnostic()
	d.Span = diag.Span{File: "t.qth", Line: 1, Column: 2, EndLine: 1, EndColumn: 2}
	out := FormatDiagnostics([]*diag.Diagnostic{d}, []string{"\tx"})
	assert.Contains(t, out, "~")
}

func TestFormatProofs(t *testing.T) {
	res := &pipeline.Result{
		File: "bell.qth",
		Proofs: []pipeline.ProofReport{
			{
				Goal: "commutator(sigma_x, sigma_y) == (2 * i * sigma_z)",
				Span: diag.Span{File: "bell.qth", Line: 3},
				Identity: &prover.IdentityResult{
					Status: prover.StatusProven,
					Steps:  []prover.Step{{Rule: "pauli-commutator"}},
					Rounds: 1,
				},
			},
			{
				Goal: "sigma_x == sigma_y",
				Span: diag.Span{File: "bell.qth", Line: 4},
				Identity: &prover.IdentityResult{
					Status: prover.StatusRefuted,
					Counterexample: &prover.Counterexample{
						Values:      map[string]string{},
						Discrepancy: 2.0,
						Sample:      1,
						Seed:        42,
					},
				},
			},
			{
				Goal: "hermitian(rho)",
				Span: diag.Span{File: "bell.qth", Line: 5},
				Property: &prover.PropertyResult{
					Outcome: prover.PropertyNumeric,
					Evidence: &prover.NumericEvidence{
						Samples: 100, MaxDeviation: 1e-12, Seed: 42,
					},
				},
			},
		},
	}

	out := FormatProofs(res)
	assert.Contains(t, out, "PROVEN")
	assert.Contains(t, out, "bell.qth:3")
	assert.Contains(t, out, "1 rewrite steps, 1 search rounds")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "refuted by counterexample")
	assert.Contains(t, out, "discrepancy 2 at sample 1")
	assert.Contains(t, out, "numeric evidence: 100 samples")
	assert.Contains(t, out, "seed 42")
}

func TestFormatSummary(t *testing.T) {
	results := []*pipeline.Result{
		{
			Diags: []*diag.Diagnostic{sampleDiagnostic()},
			Proofs: []pipeline.ProofReport{
				{Identity: &prover.IdentityResult{Status: prover.StatusProven}},
				{Identity: &prover.IdentityResult{Status: prover.StatusExhausted}},
			},
		},
	}
	assert.Equal(t, "1 proven, 1 failed, 1 diagnostics\n", FormatSummary(results))
	assert.Equal(t, "0 proven, 0 failed, 0 diagnostics\n", FormatSummary(nil))
}

func TestEmitJSON(t *testing.T) {
	res := &pipeline.Result{
		File:  "bell.qth",
		Diags: []*diag.Diagnostic{sampleDiagnostic()},
		Proofs: []pipeline.ProofReport{
			{
				Goal: "sigma_x * sigma_x == I",
				Span: diag.Span{File: "bell.qth", Line: 1},
				Identity: &prover.IdentityResult{
					Status: prover.StatusProven,
				},
			},
		},
	}

	data, err := EmitJSON([]*pipeline.Result{res})
	require.NoError(t, err)

	var reports []FileReport
	require.NoError(t, json.Unmarshal(data, &reports))
	require.Len(t, reports, 1)

	report := reports[0]
	assert.Equal(t, "bell.qth", report.File)
	require.Len(t, report.Diagnostics, 1)
	assert.Equal(t, "typecheck", report.Diagnostics[0].Stage)
	assert.Equal(t, "shape", report.Diagnostics[0].Rule)
	assert.Equal(t, "error", report.Diagnostics[0].Severity)
	assert.Equal(t, 2, report.Diagnostics[0].Line)

	require.Len(t, report.Proofs, 1)
	assert.True(t, report.Proofs[0].Proven)
	assert.Equal(t, "0 rewrite steps", report.Proofs[0].Detail)
	assert.Empty(t, report.Proofs[0].CertificateID)
}
