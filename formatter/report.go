package formatter

import (
	"fmt"
	"strings"

	"github.com/quanta-labs/qprove/internal/prover"
	"github.com/quanta-labs/qprove/pipeline"
)

// FormatProofs renders the per-goal outcome of one file run.
func FormatProofs(res *pipeline.Result) string {
	var builder strings.Builder
	for i := range res.Proofs {
		builder.WriteString(formatProof(&res.Proofs[i]))
	}
	return builder.String()
}

func formatProof(r *pipeline.ProofReport) string {
	var builder strings.Builder
	if r.Succeeded() {
		builder.WriteString(passStyle.Sprint("  PROVEN  "))
	} else {
		builder.WriteString(failStyle.Sprint("  FAILED  "))
	}
	builder.WriteString(fileStyle.Sprintf("%s:%d ", r.Span.File, r.Span.Line))
	builder.WriteString(fmt.Sprintf("%s\n", r.Goal))

	switch {
	case r.Identity != nil:
		builder.WriteString(formatIdentity(r.Identity))
	case r.Property != nil:
		builder.WriteString(formatProperty(r.Property))
	}
	return builder.String()
}

func formatIdentity(id *prover.IdentityResult) string {
	var builder strings.Builder
	switch id.Status {
	case prover.StatusProven:
		builder.WriteString(dimStyle.Sprintf("           %d rewrite steps, %d search rounds\n",
			len(id.Steps), id.Rounds))
	case prover.StatusRefuted:
		builder.WriteString(messageStyle.Sprint("           refuted by counterexample\n"))
		if id.Counterexample != nil {
			for _, line := range strings.Split(id.Counterexample.String(), "\n") {
				builder.WriteString(dimStyle.Sprintf("           %s\n", line))
			}
		}
	default:
		builder.WriteString(dimStyle.Sprintf("           %s\n", id.Reason))
	}
	return builder.String()
}

func formatProperty(pr *prover.PropertyResult) string {
	var builder strings.Builder
	switch pr.Outcome {
	case prover.PropertySymbolic:
		builder.WriteString(dimStyle.Sprint("           established symbolically\n"))
	case prover.PropertyNumeric:
		if ev := pr.Evidence; ev != nil {
			builder.WriteString(dimStyle.Sprintf("           numeric evidence: %d samples, max deviation %.2e (seed %d)\n",
				ev.Samples, ev.MaxDeviation, ev.Seed))
		}
	default:
		builder.WriteString(dimStyle.Sprintf("           %s\n", pr.Reason))
	}
	return builder.String()
}

// FormatSummary renders the closing line of a multi-file run.
func FormatSummary(results []*pipeline.Result) string {
	var proven, failed, diags int
	for _, res := range results {
		diags += len(res.Diags)
		for i := range res.Proofs {
			if res.Proofs[i].Succeeded() {
				proven++
			} else {
				failed++
			}
		}
	}
	line := fmt.Sprintf("%d proven, %d failed, %d diagnostics", proven, failed, diags)
	if failed == 0 {
		return passStyle.Sprint(line) + "\n"
	}
	return failStyle.Sprint(line) + "\n"
}
