// Package validator runs numeric quantum-constraint checks on the
// declarations of a typed program that carry concrete data: Hermiticity,
// positive semi-definiteness, unit trace, unitarity, state normalization,
// measurement completeness, and channel complete positivity, all within
// a configurable tolerance.
//
// Declarations whose values mention free symbolic parameters are skipped;
// the symbolic prover is the right tool for those. A property already
// declared in the assumption context is trusted instead of re-checked,
// and that skip is recorded as an informational diagnostic so audits can
// see exactly which checks were never run.
package validator

import (
	"fmt"
	"math/cmplx"

	"github.com/quanta-labs/qprove/internal/assume"
	"github.com/quanta-labs/qprove/internal/ast"
	"github.com/quanta-labs/qprove/internal/diag"
	"github.com/quanta-labs/qprove/internal/quantum"
	"github.com/quanta-labs/qprove/internal/typechecker"
)

// DefaultTolerance matches the envelope used by the numeric checks when
// the caller does not configure one.
const DefaultTolerance = 1e-9

// Options configures a validation pass.
type Options struct {
	// Tolerance is the numeric envelope for every check.
	Tolerance float64
	// Strict promotes warnings at or above Threshold to hard errors.
	Strict bool
	// Threshold is the severity at which strict mode promotes.
	Threshold diag.Severity
	// Disabled suppresses checks by rule name.
	Disabled map[string]bool
}

// DefaultOptions returns the non-strict defaults.
func DefaultOptions() Options {
	return Options{Tolerance: DefaultTolerance, Threshold: diag.SeverityWarning}
}

// Validated is the output of a validation pass.
type Validated struct {
	Typed *typechecker.Typed
	// Env holds the concrete values computed for declarations, reusable
	// by counterexample search and property sampling.
	Env quantum.Env
}

// Validate checks every concretely-valued declaration and returns the
// accumulated diagnostics. Only strict-mode promotions and structural
// misuse produce error-severity entries.
func Validate(typed *typechecker.Typed, ctx *assume.Context, opts Options) (*Validated, []*diag.Diagnostic) {
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	v := &validator{typed: typed, ctx: ctx, opts: opts, env: make(quantum.Env)}
	for _, stmt := range typed.Program.Stmts {
		v.checkStmt(stmt)
	}
	return &Validated{Typed: typed, Env: v.env}, v.diags
}

type validator struct {
	typed *typechecker.Typed
	ctx   *assume.Context
	opts  Options
	env   quantum.Env
	diags []*diag.Diagnostic
}

func (v *validator) report(span diag.Span, rule string, sev diag.Severity, format string, args ...any) {
	if v.opts.Disabled[rule] {
		return
	}
	if v.opts.Strict && sev != diag.SeverityError && sev >= v.opts.Threshold {
		sev = diag.SeverityError
	}
	v.diags = append(v.diags, &diag.Diagnostic{
		Stage:    diag.StageValidate,
		Rule:     rule,
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
		Span:     span,
	})
}

// trusted reports whether a property check may be skipped because the
// assumption context already declares it, recording the skip.
func (v *validator) trusted(name string, p ast.PropertyKind, span diag.Span) bool {
	if v.ctx == nil || !v.ctx.HasProperty(name, p) {
		return false
	}
	v.report(span, "trusted-by-assumption", diag.SeverityInfo,
		"%s check for %q skipped: declared by assumption", p, name)
	return true
}

// value evaluates a declaration body against the concrete environment
// built so far. A nil value with no error means the body mentions free
// symbols and the check should be skipped.
func (v *validator) value(e ast.Expr) (quantum.Value, bool) {
	val, err := quantum.Eval(e, v.env)
	if err != nil {
		return quantum.Value{}, false
	}
	return val, true
}

func (v *validator) checkStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.ConstDecl:
		if val, ok := v.value(s.Value); ok {
			v.env[s.Name] = val
		}
	case *ast.MatrixDecl:
		if val, ok := v.value(s.Value); ok {
			v.env[s.Name] = val
		}
	case *ast.StateDecl:
		v.checkState(s)
	case *ast.DensityDecl:
		v.checkDensity(s)
	case *ast.UnitaryDecl:
		v.checkUnitary(s)
	case *ast.HamiltonianDef:
		v.checkHamiltonian(s)
	case *ast.MeasurementDef:
		v.checkMeasurement(s)
	}
}

func (v *validator) checkState(s *ast.StateDecl) {
	val, ok := v.value(s.Value)
	if !ok {
		return
	}
	v.env[s.Name] = val
	if val.IsScalar() || val.Mat.Cols != 1 {
		return // shape errors belong to the type checker
	}
	norm := val.Mat.FrobNorm()
	if dev := norm - 1; dev > v.opts.Tolerance || dev < -v.opts.Tolerance {
		v.report(s.Sp, "state-norm", diag.SeverityWarning,
			"state %q has norm %.6g, want 1 within %.2g", s.Name, norm, v.opts.Tolerance)
	}
}

func (v *validator) checkDensity(s *ast.DensityDecl) {
	val, ok := v.value(s.Value)
	if !ok {
		return
	}
	v.env[s.Name] = val
	if val.IsScalar() || !val.Mat.IsSquare() {
		return
	}
	m := val.Mat
	if !v.trusted(s.Name, ast.PropHermitian, s.Sp) {
		if dev := hermitianDefect(m); dev > v.opts.Tolerance {
			v.report(s.Sp, "hermitian", diag.SeverityWarning,
				"density %q deviates from Hermitian by %.6g", s.Name, dev)
		}
	}
	if !v.trusted(s.Name, ast.PropPSD, s.Sp) {
		if min, err := quantum.MinEigenvalue(m); err == nil && min < -v.opts.Tolerance {
			v.report(s.Sp, "psd", diag.SeverityWarning,
				"density %q has negative eigenvalue %.6g", s.Name, min)
		}
	}
	if !v.trusted(s.Name, ast.PropTraceOne, s.Sp) {
		tr, err := m.Trace()
		if err == nil {
			if dev := cmplx.Abs(tr - 1); dev > v.opts.Tolerance {
				v.report(s.Sp, "trace-one", diag.SeverityWarning,
					"density %q has trace %.6g, want 1 within %.2g", s.Name, cmplx.Abs(tr), v.opts.Tolerance)
			}
		}
	}
}

func (v *validator) checkUnitary(s *ast.UnitaryDecl) {
	val, ok := v.value(s.Value)
	if !ok {
		return
	}
	v.env[s.Name] = val
	if val.IsScalar() || !val.Mat.IsSquare() {
		return
	}
	if v.trusted(s.Name, ast.PropUnitary, s.Sp) {
		return
	}
	if dev := unitaryDefect(val.Mat); dev > v.opts.Tolerance {
		v.report(s.Sp, "unitary", diag.SeverityWarning,
			"unitary %q deviates from U†U = I by %.6g", s.Name, dev)
	}
}

func (v *validator) checkHamiltonian(s *ast.HamiltonianDef) {
	if len(s.Params) > 0 {
		return // parameterized Hamiltonians are checked per-sample by the prover
	}
	val, ok := v.value(s.Body)
	if !ok {
		return
	}
	v.env[s.Name] = val
	if val.IsScalar() || !val.Mat.IsSquare() {
		return
	}
	if v.trusted(s.Name, ast.PropHermitian, s.Sp) {
		return
	}
	if dev := hermitianDefect(val.Mat); dev > v.opts.Tolerance {
		v.report(s.Sp, "hermitian", diag.SeverityWarning,
			"Hamiltonian %q deviates from Hermitian by %.6g", s.Name, dev)
	}
}

func (v *validator) checkMeasurement(s *ast.MeasurementDef) {
	ops := make([]*quantum.Matrix, 0, len(s.Operators))
	dim := 0
	for _, opExpr := range s.Operators {
		val, ok := v.value(opExpr)
		if !ok || val.IsScalar() || !val.Mat.IsSquare() {
			return
		}
		if dim == 0 {
			dim = val.Mat.Rows
		} else if val.Mat.Rows != dim {
			return
		}
		ops = append(ops, val.Mat)
	}
	if len(ops) == 0 {
		return
	}

	// completeness: the elements must sum to the identity
	sum := quantum.NewMatrix(dim, dim)
	for _, m := range ops {
		sum, _ = quantum.Add(sum, m)
	}
	if diff, err := quantum.Sub(sum, quantum.Identity(dim)); err == nil {
		if dev := diff.FrobNorm(); dev > v.opts.Tolerance {
			v.report(s.Sp, "povm-complete", diag.SeverityWarning,
				"measurement %q elements sum to identity with defect %.6g", s.Name, dev)
		}
	}

	for idx, m := range ops {
		if min, err := quantum.MinEigenvalue(m); err == nil && min < -v.opts.Tolerance {
			v.report(s.Sp, "povm-psd", diag.SeverityWarning,
				"measurement %q element %d has negative eigenvalue %.6g", s.Name, idx+1, min)
		}
		if s.Kind == ast.MeasProjective {
			// projectors must be idempotent
			mm, err := quantum.Mul(m, m)
			if err != nil {
				continue
			}
			diff, err := quantum.Sub(mm, m)
			if err != nil {
				continue
			}
			if dev := diff.FrobNorm(); dev > v.opts.Tolerance {
				v.report(s.Sp, "projector-idempotent", diag.SeverityWarning,
					"measurement %q element %d is not a projector (P² deviates by %.6g)", s.Name, idx+1, dev)
			}
		}
	}
}

// CheckChannel validates a Kraus-operator channel: the Choi matrix must
// be PSD and the operators must preserve trace.
func CheckChannel(name string, kraus []*quantum.Matrix, span diag.Span, opts Options) []*diag.Diagnostic {
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	v := &validator{opts: opts}
	choi, err := quantum.Choi(kraus)
	if err != nil {
		v.report(span, "cptp", diag.SeverityError, "channel %q: %v", name, err)
		return v.diags
	}
	if min, err := quantum.MinEigenvalue(choi); err == nil && min < -opts.Tolerance {
		v.report(span, "cptp-cp", diag.SeverityWarning,
			"channel %q Choi matrix has negative eigenvalue %.6g", name, min)
	}
	if dev, err := quantum.TracePreserving(kraus); err == nil && dev > opts.Tolerance {
		v.report(span, "cptp-tp", diag.SeverityWarning,
			"channel %q deviates from trace preservation by %.6g", name, dev)
	}
	return v.diags
}

func hermitianDefect(m *quantum.Matrix) float64 {
	diff, err := quantum.Sub(m, m.Dagger())
	if err != nil {
		return 0
	}
	return diff.FrobNorm()
}

func unitaryDefect(m *quantum.Matrix) float64 {
	uu, err := quantum.Mul(m.Dagger(), m)
	if err != nil {
		return 0
	}
	diff, err := quantum.Sub(uu, quantum.Identity(m.Rows))
	if err != nil {
		return 0
	}
	return diff.FrobNorm()
}
