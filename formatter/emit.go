package formatter

import (
	"encoding/json"
	"fmt"

	"github.com/quanta-labs/qprove/internal/diag"
	"github.com/quanta-labs/qprove/internal/prover"
	"github.com/quanta-labs/qprove/pipeline"
)

// FileReport is the machine-readable shape of one file run.
type FileReport struct {
	File        string             `json:"file"`
	Diagnostics []DiagnosticRecord `json:"diagnostics"`
	Proofs      []ProofRecord      `json:"proofs"`
}

type DiagnosticRecord struct {
	Stage    string `json:"stage"`
	Rule     string `json:"rule"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Hint     string `json:"hint,omitempty"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
}

type ProofRecord struct {
	Goal          string `json:"goal"`
	Line          int    `json:"line"`
	Proven        bool   `json:"proven"`
	Detail        string `json:"detail"`
	CertificateID string `json:"certificate_id,omitempty"`
}

// EmitJSON marshals the run results, keyed by nothing but ordered as run.
func EmitJSON(results []*pipeline.Result) ([]byte, error) {
	reports := make([]FileReport, 0, len(results))
	for _, res := range results {
		reports = append(reports, buildFileReport(res))
	}
	out, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling reports: %w", err)
	}
	return out, nil
}

func buildFileReport(res *pipeline.Result) FileReport {
	report := FileReport{
		File:        res.File,
		Diagnostics: make([]DiagnosticRecord, 0, len(res.Diags)),
		Proofs:      make([]ProofRecord, 0, len(res.Proofs)),
	}
	for _, d := range res.Diags {
		report.Diagnostics = append(report.Diagnostics, diagnosticRecord(d))
	}
	for i := range res.Proofs {
		report.Proofs = append(report.Proofs, proofRecord(&res.Proofs[i]))
	}
	return report
}

func diagnosticRecord(d *diag.Diagnostic) DiagnosticRecord {
	return DiagnosticRecord{
		Stage:    string(d.Stage),
		Rule:     d.Rule,
		Severity: d.Severity.String(),
		Message:  d.Message,
		Hint:     d.Hint,
		Line:     d.Span.Line,
		Column:   d.Span.Column,
	}
}

func proofRecord(r *pipeline.ProofReport) ProofRecord {
	rec := ProofRecord{
		Goal:   r.Goal,
		Line:   r.Span.Line,
		Proven: r.Succeeded(),
		Detail: proofDetail(r),
	}
	if cert := r.Certificate(); cert != nil {
		rec.CertificateID = cert.ID
	}
	return rec
}

func proofDetail(r *pipeline.ProofReport) string {
	switch {
	case r.Identity != nil:
		if r.Identity.Status == prover.StatusProven {
			return fmt.Sprintf("%d rewrite steps", len(r.Identity.Steps))
		}
		return r.Identity.Reason
	case r.Property != nil:
		if r.Property.Outcome != prover.PropertyFailed {
			return r.Property.Outcome.String()
		}
		return r.Property.Reason
	}
	return ""
}
