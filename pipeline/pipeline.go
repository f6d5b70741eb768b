// Package pipeline wires the front-end stages together: parse, resolve,
// type-check, numerically validate, then run the program's proof goals.
// It is the programmatic entry point the command-line layers sit on.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/quanta-labs/qprove/internal/assume"
	"github.com/quanta-labs/qprove/internal/ast"
	"github.com/quanta-labs/qprove/internal/diag"
	"github.com/quanta-labs/qprove/internal/parser"
	"github.com/quanta-labs/qprove/internal/prover"
	"github.com/quanta-labs/qprove/internal/resolver"
	"github.com/quanta-labs/qprove/internal/typechecker"
	"github.com/quanta-labs/qprove/internal/validator"
)

// ProofReport is the outcome of one prove statement.
type ProofReport struct {
	Goal     string
	Span     diag.Span
	Identity *prover.IdentityResult
	Property *prover.PropertyResult
}

// Certificate returns the report's certificate, if one was generated.
func (r *ProofReport) Certificate() *prover.Certificate {
	if r.Identity != nil {
		return r.Identity.Certificate
	}
	if r.Property != nil {
		return r.Property.Certificate
	}
	return nil
}

// Succeeded reports whether the goal was settled positively: a proven
// identity, a symbolic property proof, or a numeric certificate.
func (r *ProofReport) Succeeded() bool {
	if r.Identity != nil {
		return r.Identity.Status == prover.StatusProven
	}
	if r.Property != nil {
		return r.Property.Outcome != prover.PropertyFailed
	}
	return false
}

// Result is everything one source file produced.
type Result struct {
	File   string
	Lines  []string
	Diags  []*diag.Diagnostic
	Proofs []ProofReport
	// Prover is retained so callers can re-verify certificates against
	// the same rule registry and assumption context.
	Prover *prover.Prover
}

// Pipeline runs sources through the full stage sequence.
type Pipeline struct {
	cfg Config
	log *zap.Logger
}

// New builds a pipeline.
func New(cfg Config, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{cfg: cfg, log: log}
}

// RunSource processes one program. Front-end diagnostics accumulate
// across stages; proof goals run only when parsing, resolution, and
// type checking produced no errors. Independent prove statements within
// the program run concurrently.
func (p *Pipeline) RunSource(ctx context.Context, filename string, src []byte) (*Result, error) {
	res := &Result{File: filename, Lines: strings.Split(string(src), "\n")}

	prog, parseDiags := parser.Parse(filename, string(src))
	res.Diags = append(res.Diags, parseDiags...)

	resolved, nameDiags := resolver.Resolve(prog)
	res.Diags = append(res.Diags, nameDiags...)

	typed, typeDiags := typechecker.Check(resolved)
	res.Diags = append(res.Diags, typeDiags...)

	// assumptions are collected in a single pass and frozen before any
	// proving begins
	actx := assume.NewContext()
	pv := prover.New(p.cfg.proverConfig(), p.log)
	for _, stmt := range prog.Stmts {
		if as, ok := stmt.(*ast.AssumeStmt); ok {
			if err := actx.Add(as.Assumption); err != nil {
				return nil, fmt.Errorf("recording assumption: %w", err)
			}
			if err := pv.AddAssumption(as.Assumption); err != nil {
				return nil, fmt.Errorf("recording assumption: %w", err)
			}
		}
	}
	actx.Freeze()

	validated, valDiags := validator.Validate(typed, actx, p.cfg.validatorOptions())
	res.Diags = append(res.Diags, valDiags...)

	res.Prover = pv
	if diag.HasErrors(parseDiags) || diag.HasErrors(nameDiags) || diag.HasErrors(typeDiags) {
		p.log.Debug("skipping proofs: front end reported errors",
			zap.String("file", filename),
			zap.Int("errors", len(diag.Errors(res.Diags))))
		return res, nil
	}

	if p.cfg.SkipProofs {
		return res, nil
	}

	pv.BindProgram(typed)
	pv.BindEnv(validated.Env)

	var goals []*ast.ProveStmt
	for _, stmt := range prog.Stmts {
		if ps, ok := stmt.(*ast.ProveStmt); ok {
			goals = append(goals, ps)
		}
	}
	res.Proofs = make([]ProofReport, len(goals))

	g, gctx := errgroup.WithContext(ctx)
	for idx, goal := range goals {
		idx, goal := idx, goal
		g.Go(func() error {
			report, err := p.runGoal(gctx, pv, goal)
			if err != nil {
				return err
			}
			res.Proofs[idx] = *report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for idx := range res.Proofs {
		r := &res.Proofs[idx]
		if !r.Succeeded() {
			res.Diags = append(res.Diags, &diag.Diagnostic{
				Stage:    diag.StageProve,
				Rule:     "unproven-goal",
				Severity: diag.SeverityWarning,
				Message:  fmt.Sprintf("could not establish %s: %s", r.Goal, reportReason(r)),
				Span:     r.Span,
			})
		}
	}
	return res, nil
}

func reportReason(r *ProofReport) string {
	if r.Identity != nil {
		return r.Identity.Reason
	}
	if r.Property != nil {
		return r.Property.Reason
	}
	return "no result"
}

func (p *Pipeline) runGoal(ctx context.Context, pv *prover.Prover, stmt *ast.ProveStmt) (*ProofReport, error) {
	if stmt.Goal.Kind == ast.GoalIdentity {
		goal := fmt.Sprintf("%s == %s", stmt.Goal.LHS, stmt.Goal.RHS)
		id, err := pv.ProveIdentity(ctx, stmt.Goal.LHS, stmt.Goal.RHS)
		if err != nil {
			return nil, fmt.Errorf("proving %s: %w", goal, err)
		}
		return &ProofReport{Goal: goal, Span: stmt.Sp, Identity: id}, nil
	}
	goal := fmt.Sprintf("%s(%s)", stmt.Goal.Property, stmt.Goal.Arg)
	pr, err := pv.ProveProperty(ctx, stmt.Goal.Property, stmt.Goal.Arg)
	if err != nil {
		return nil, fmt.Errorf("proving %s: %w", goal, err)
	}
	return &ProofReport{Goal: goal, Span: stmt.Sp, Property: pr}, nil
}

// RunFile processes one file from disk.
func (p *Pipeline) RunFile(ctx context.Context, path string) (*Result, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return p.RunSource(ctx, path, src)
}

// SourceExtension is the file suffix the directory walker picks up.
const SourceExtension = ".qth"

// ProcessFiles expands each path into its program files and runs them
// concurrently, showing a progress bar for directory runs.
func (p *Pipeline) ProcessFiles(ctx context.Context, paths []string) ([]*Result, error) {
	var files []string
	showBar := false
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("accessing %s: %w", path, err)
		}
		if info.IsDir() {
			showBar = true
			err := filepath.Walk(path, func(fp string, fi os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if !fi.IsDir() && strings.HasSuffix(fp, SourceExtension) {
					files = append(files, fp)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("walking %s: %w", path, err)
			}
		} else {
			files = append(files, path)
		}
	}

	var bar *progressbar.ProgressBar
	if showBar && len(files) > 1 {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("proving"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount())
	}

	results := make([]*Result, len(files))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFiles)
	for idx, file := range files {
		idx, file := idx, file
		g.Go(func() error {
			res, err := p.RunFile(gctx, file)
			if err != nil {
				p.log.Error("processing failed", zap.String("file", file), zap.Error(err))
				return err
			}
			mu.Lock()
			results[idx] = res
			if bar != nil {
				_ = bar.Add(1)
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if bar != nil {
		fmt.Println()
	}
	return results, nil
}

const maxConcurrentFiles = 8
