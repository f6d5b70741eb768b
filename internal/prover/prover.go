package prover

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"sort"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/quanta-labs/qprove/internal/assume"
	"github.com/quanta-labs/qprove/internal/ast"
	"github.com/quanta-labs/qprove/internal/parser"
	"github.com/quanta-labs/qprove/internal/quantum"
	"github.com/quanta-labs/qprove/internal/resolver"
	"github.com/quanta-labs/qprove/internal/typechecker"
)

// ErrInternal marks a broken prover invariant: a rule claimed a rewrite
// whose justification does not hold under replay. It is a defect in the
// engine, not a user-facing outcome.
var ErrInternal = errors.New("prover internal error")

// Config bounds every search a prover runs.
type Config struct {
	// MaxDepth is the bidirectional round limit.
	MaxDepth int
	// MaxSteps caps rule applications per search; 0 means unlimited.
	MaxSteps int64
	// Timeout is the wall-time budget per prove call.
	Timeout time.Duration
	// Samples is the draw budget for counterexample search and numeric
	// property certification.
	Samples int
	// Tolerance is the numeric comparison envelope.
	Tolerance float64
	// Seed feeds the sampler; a fixed seed makes numeric results
	// reproducible.
	Seed int64
}

// DefaultConfig returns the budgets used when the caller does not
// configure its own.
func DefaultConfig() Config {
	return Config{
		MaxDepth:  20,
		MaxSteps:  500000,
		Timeout:   5 * time.Second,
		Samples:   100,
		Tolerance: 1e-9,
		Seed:      42,
	}
}

// IdentityResult is the outcome of ProveIdentity.
type IdentityResult struct {
	Status         Status
	Steps          []Step
	Rounds         int
	Reason         string
	Certificate    *Certificate
	Counterexample *Counterexample
}

// PropertyOutcome distinguishes how a property goal was settled. A
// symbolic proof is exact; a numeric certificate is explicitly
// probabilistic and downstream consumers must not treat it as proof.
type PropertyOutcome int

const (
	PropertySymbolic PropertyOutcome = iota
	PropertyNumeric
	PropertyFailed
)

func (o PropertyOutcome) String() string {
	switch o {
	case PropertySymbolic:
		return "symbolic proof"
	case PropertyNumeric:
		return "numeric certificate"
	case PropertyFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PropertyResult is the outcome of ProveProperty.
type PropertyResult struct {
	Property    ast.PropertyKind
	Outcome     PropertyOutcome
	Reason      string
	Certificate *Certificate
	Evidence    *NumericEvidence
}

// Prover owns a rule registry, an assumption context, and a proof
// cache. It is an explicit context object: independent provers never
// share state, so tests and concurrent requests cannot interfere.
type Prover struct {
	cfg      Config
	log      *zap.Logger
	reg      *Registry
	canon    *Canonicalizer
	assume   *assume.Context
	cache    *proofCache
	symbols  map[string]SymbolInfo
	baseEnv  quantum.Env
	ruleApps atomic.Int64
	frozen   atomic.Bool
}

// New returns a prover with the built-in catalogue and an empty
// assumption context.
func New(cfg Config, log *zap.Logger) *Prover {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultConfig().MaxDepth
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Samples <= 0 {
		cfg.Samples = DefaultConfig().Samples
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultConfig().Tolerance
	}
	return &Prover{
		cfg:     cfg,
		log:     log,
		reg:     NewRegistry(),
		canon:   NewCanonicalizer(),
		assume:  assume.NewContext(),
		cache:   newProofCache(),
		symbols: make(map[string]SymbolInfo),
		baseEnv: make(quantum.Env),
	}
}

// BindProgram teaches the prover which declared names are scalars (so
// the canonicalizer may commute them) and how free symbols should be
// sampled. Call it before the first prove.
func (p *Prover) BindProgram(typed *typechecker.Typed) {
	if typed == nil || typed.Table == nil {
		return
	}
	p.canon.BindTable(typed.Table)
	for _, name := range typed.Table.Names() {
		sym, _ := typed.Table.Lookup(name)
		if sym == nil || sym.Index < 0 {
			continue
		}
		info := SymbolInfo{Prop: quantum.SampleGeneral, Dim: 2}
		switch sym.Kind {
		case resolver.KindScalar, resolver.KindConstant:
			info.Scalar = true
			info.Prop = quantum.SampleComplex
		case resolver.KindOperator, resolver.KindHamiltonian:
			if sym.Dim > 0 {
				info.Dim = sym.Dim
			}
		case resolver.KindUnitary:
			info.Prop = quantum.SampleUnitary
		case resolver.KindDensity:
			info.Prop = quantum.SampleDensity
		}
		p.symbols[name] = info
	}
}

// BindEnv supplies concrete values (typically the validator's evaluated
// declarations) used instead of sampling.
func (p *Prover) BindEnv(env quantum.Env) {
	for k, v := range env {
		p.baseEnv[k] = v
	}
}

// AddAssumption records a fact for later proofs. Assumptions cannot be
// added once proving has begun.
func (p *Prover) AddAssumption(a ast.Assumption) error {
	if p.frozen.Load() {
		return assume.ErrFrozen
	}
	if a.Kind == ast.AssumeProperty {
		if a.Property == ast.PropReal || a.Property == ast.PropPositive || a.Property == ast.PropComplexScalar {
			p.canon.MarkScalar(a.Symbol)
		}
		if info, ok := p.symbols[a.Symbol]; ok {
			info.Prop = quantum.PropertyFor(a.Property)
			p.symbols[a.Symbol] = info
		} else {
			p.symbols[a.Symbol] = SymbolInfo{Prop: quantum.PropertyFor(a.Property), Dim: 2}
		}
	}
	return p.assume.Add(a)
}

// Assumptions exposes the context, read-only once frozen.
func (p *Prover) Assumptions() *assume.Context { return p.assume }

// RuleApplications reports the total number of rule applications across
// every search this prover has run.
func (p *Prover) RuleApplications() int64 { return p.ruleApps.Load() }

// CacheSize reports the number of memoized identity results.
func (p *Prover) CacheSize() int { return p.cache.size() }

// freeze derives rewrite rules from the accumulated assumptions and
// locks the context. The first prove call freezes implicitly.
func (p *Prover) freeze() {
	if p.frozen.CompareAndSwap(false, true) {
		p.assume.Freeze()
		p.reg.AddAssumptionRules(p.assume, p.canon)
	}
}

// ProveIdentity attempts to prove lhs == rhs, refute it with a
// counterexample, or report why neither was possible. Concurrent calls
// with the same canonical goal and assumption set share one underlying
// search.
func (p *Prover) ProveIdentity(ctx context.Context, lhs, rhs ast.Expr) (*IdentityResult, error) {
	p.freeze()
	lhsKey := exprKey(p.canon, lhs)
	rhsKey := exprKey(p.canon, rhs)
	key := cacheKey(lhsKey, rhsKey, p.assume.Hash())

	return p.cache.do(key, func() (*IdentityResult, error) {
		return p.proveIdentityUncached(ctx, lhs, rhs, lhsKey, rhsKey)
	})
}

func (p *Prover) proveIdentityUncached(ctx context.Context, lhs, rhs ast.Expr, lhsKey, rhsKey string) (*IdentityResult, error) {
	searchCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	started := time.Now()
	out := bidirectionalSearch(searchCtx, lhs, rhs, p.reg, p.canon,
		searchConfig{maxDepth: p.cfg.MaxDepth, maxSteps: p.cfg.MaxSteps}, &p.ruleApps)
	p.log.Debug("identity search finished",
		zap.String("lhs", lhsKey),
		zap.String("rhs", rhsKey),
		zap.String("status", out.status.String()),
		zap.Int("rounds", out.rounds),
		zap.Int("explored", out.explored),
		zap.Duration("elapsed", time.Since(started)))

	if out.status == StatusProven {
		goal := GoalRecord{Kind: "identity", LHS: lhsKey, RHS: rhsKey}
		cert := newCertificate(goal, p.assume.Describe(), out.steps, nil)
		if ok, reason := cert.VerifyReason(p.reg, p.canon); !ok {
			// a step that does not replay means a rule lied about its
			// own rewrite; surface it as an engine defect
			p.log.Error("proof trace failed replay", zap.String("reason", reason))
			return nil, fmt.Errorf("%w: %s", ErrInternal, reason)
		}
		return &IdentityResult{
			Status:      StatusProven,
			Steps:       out.steps,
			Rounds:      out.rounds,
			Certificate: cert,
		}, nil
	}

	// not proven: look for a numeric refutation
	cex, err := findCounterexample(searchCtx, lhs, rhs, p.symbols, p.baseEnv, p.cfg)
	if err != nil {
		p.log.Debug("counterexample search unavailable", zap.Error(err))
	} else if cex != nil {
		return &IdentityResult{
			Status:         StatusRefuted,
			Rounds:         out.rounds,
			Reason:         cex.String(),
			Counterexample: cex,
		}, nil
	}

	reason := fmt.Sprintf("search %s after %d rounds (%d states)", out.status, out.rounds, out.explored)
	return &IdentityResult{Status: out.status, Rounds: out.rounds, Reason: reason}, nil
}

// ProveProperty settles a structural property goal: first symbolically,
// by reducing the property to an identity over the rewrite system or to
// a manifest structural witness, then by seeded numeric sampling.
func (p *Prover) ProveProperty(ctx context.Context, prop ast.PropertyKind, expr ast.Expr) (*PropertyResult, error) {
	p.freeze()

	if res, ok, err := p.provePropertySymbolic(ctx, prop, expr); err != nil {
		return nil, err
	} else if ok {
		return res, nil
	}

	return p.provePropertyNumeric(ctx, prop, expr)
}

// provePropertySymbolic attempts an exact proof. The bool reports
// whether the attempt settled the goal.
func (p *Prover) provePropertySymbolic(ctx context.Context, prop ast.PropertyKind, expr ast.Expr) (*PropertyResult, bool, error) {
	identity := func(lhs, rhs ast.Expr) (*PropertyResult, bool, error) {
		res, err := p.ProveIdentity(ctx, lhs, rhs)
		if err != nil {
			return nil, false, err
		}
		if res.Status != StatusProven {
			return nil, false, nil
		}
		// the certificate stores the reduced identity so the trace can
		// be replayed; Property records what the identity establishes
		goal := GoalRecord{
			Kind:     "property",
			Property: prop.String(),
			LHS:      res.Certificate.Goal.LHS,
			RHS:      res.Certificate.Goal.RHS,
		}
		cert := newCertificate(goal, p.assume.Describe(), res.Steps, nil)
		return &PropertyResult{Property: prop, Outcome: PropertySymbolic, Certificate: cert}, true, nil
	}

	switch prop {
	case ast.PropHermitian:
		return identity(expr, &ast.Dagger{X: expr})
	case ast.PropReal:
		// a scalar equal to its own conjugate is real
		return identity(expr, &ast.Dagger{X: expr})
	case ast.PropUnitary:
		return identity(
			&ast.Binary{Op: ast.OpMul, X: &ast.Dagger{X: expr}, Y: expr},
			&ast.Ident{Name: "I"},
		)
	case ast.PropTraceOne:
		return identity(&ast.Trace{X: expr}, &ast.Number{Value: 1})
	case ast.PropPSD:
		if p.psdWitness(expr) {
			goal := GoalRecord{Kind: "property", LHS: exprKey(p.canon, expr), Property: prop.String()}
			cert := newCertificate(goal, p.assume.Describe(), nil, nil)
			return &PropertyResult{Property: prop, Outcome: PropertySymbolic, Certificate: cert}, true, nil
		}
		return nil, false, nil
	case ast.PropComplexScalar:
		// shape-level fact; the type checker already established it
		goal := GoalRecord{Kind: "property", LHS: exprKey(p.canon, expr), Property: prop.String()}
		cert := newCertificate(goal, p.assume.Describe(), nil, nil)
		return &PropertyResult{Property: prop, Outcome: PropertySymbolic, Certificate: cert}, true, nil
	default:
		return nil, false, nil
	}
}

// psdWitness recognizes manifest positive semi-definite structure: the
// expression is assumed PSD, is of the form B†B, or is a non-negative
// combination of such terms.
func (p *Prover) psdWitness(expr ast.Expr) bool {
	canonical := p.canon.Canonicalize(expr)
	var termPSD func(e ast.Expr) bool
	termPSD = func(e ast.Expr) bool {
		switch n := e.(type) {
		case *ast.Ident:
			return p.assume.HasProperty(n.Name, ast.PropPSD) ||
				p.assume.HasProperty(n.Name, ast.PropTraceOne)
		case *ast.Number:
			return real(n.Value) >= 0 && imag(n.Value) == 0
		case *ast.Product:
			// c * B† * B with a non-negative literal coefficient
			factors := n.Factors
			if len(factors) > 0 {
				if num, ok := factors[0].(*ast.Number); ok {
					if real(num.Value) < 0 || imag(num.Value) != 0 {
						return false
					}
					factors = factors[1:]
				}
			}
			if len(factors) == 1 {
				return termPSD(factors[0])
			}
			if len(factors) == 2 {
				if d, ok := factors[0].(*ast.Dagger); ok {
					return ast.Equal(d.X, factors[1])
				}
			}
			return false
		case *ast.Sum:
			for _, t := range n.Terms {
				if !termPSD(t) {
					return false
				}
			}
			return len(n.Terms) > 0
		default:
			return false
		}
	}
	return termPSD(canonical)
}

// provePropertyNumeric draws seeded samples consistent with the declared
// assumptions and runs the validator-grade numeric check at each one.
// Success yields a probabilistic certificate, never a proof.
func (p *Prover) provePropertyNumeric(ctx context.Context, prop ast.PropertyKind, expr ast.Expr) (*PropertyResult, error) {
	return p.numericProperty(ctx, prop, expr, p.cfg)
}

// numericProperty is provePropertyNumeric under an explicit budget, so
// certificate replay can rerun it with the recorded seed and sample
// count.
func (p *Prover) numericProperty(ctx context.Context, prop ast.PropertyKind, expr ast.Expr, cfg Config) (*PropertyResult, error) {
	deadline, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	names := make([]string, 0)
	for n := range freeNames(expr) {
		if _, isBase := p.baseEnv[n]; isBase || isPredeclared(n) {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)

	sampler := quantum.NewSampler(cfg.Seed)
	maxDev := 0.0
	for sample := 1; sample <= cfg.Samples; sample++ {
		if deadline.Err() != nil {
			return &PropertyResult{
				Property: prop,
				Outcome:  PropertyFailed,
				Reason:   fmt.Sprintf("numeric sampling timed out at sample %d", sample),
			}, nil
		}
		env := make(quantum.Env, len(p.baseEnv)+len(names))
		for k, v := range p.baseEnv {
			env[k] = v
		}
		for _, n := range names {
			info, ok := p.symbols[n]
			if !ok {
				info = SymbolInfo{Dim: 2, Prop: quantum.SampleGeneral}
			}
			env[n] = sampler.Draw(p.sampleProp(n, info), info.Scalar, info.Dim)
		}
		val, err := quantum.Eval(expr, env)
		if err != nil {
			return &PropertyResult{
				Property: prop,
				Outcome:  PropertyFailed,
				Reason:   fmt.Sprintf("cannot evaluate numerically: %v", err),
			}, nil
		}
		dev, err := propertyDefect(prop, val)
		if err != nil {
			return &PropertyResult{Property: prop, Outcome: PropertyFailed, Reason: err.Error()}, nil
		}
		if dev > cfg.Tolerance {
			return &PropertyResult{
				Property: prop,
				Outcome:  PropertyFailed,
				Reason:   fmt.Sprintf("sample %d violates %s by %.6g", sample, prop, dev),
			}, nil
		}
		if dev > maxDev {
			maxDev = dev
		}
	}

	evidence := &NumericEvidence{
		Seed:         cfg.Seed,
		Samples:      cfg.Samples,
		Tolerance:    cfg.Tolerance,
		MaxDeviation: maxDev,
	}
	goal := GoalRecord{Kind: "property", LHS: exprKey(p.canon, expr), Property: prop.String()}
	cert := newCertificate(goal, p.assume.Describe(), nil, evidence)
	p.log.Info("property certified numerically",
		zap.String("property", prop.String()),
		zap.Int("samples", cfg.Samples),
		zap.Float64("max_deviation", maxDev))
	return &PropertyResult{
		Property:    prop,
		Outcome:     PropertyNumeric,
		Certificate: cert,
		Evidence:    evidence,
	}, nil
}

// sampleProp narrows a symbol's sampling mode by its declared
// assumptions.
func (p *Prover) sampleProp(name string, info SymbolInfo) quantum.SymbolProperty {
	for _, declared := range p.assume.Properties(name) {
		return quantum.PropertyFor(declared)
	}
	return info.Prop
}

// propertyDefect measures how far a concrete value is from satisfying a
// property; zero means it holds exactly.
func propertyDefect(prop ast.PropertyKind, val quantum.Value) (float64, error) {
	switch prop {
	case ast.PropReal:
		if !val.IsScalar() {
			return 0, fmt.Errorf("real applies to scalars")
		}
		return math.Abs(imag(val.Scalar)), nil
	case ast.PropComplexScalar:
		if !val.IsScalar() {
			return 0, fmt.Errorf("complex applies to scalars")
		}
		return 0, nil
	case ast.PropPositive:
		if !val.IsScalar() {
			return 0, fmt.Errorf("positive applies to scalars")
		}
		if imag(val.Scalar) != 0 || real(val.Scalar) <= 0 {
			return math.Max(math.Abs(imag(val.Scalar)), -real(val.Scalar)+1e-18), nil
		}
		return 0, nil
	case ast.PropHermitian:
		if val.IsScalar() {
			return math.Abs(imag(val.Scalar)), nil
		}
		diff, err := quantum.Sub(val.Mat, val.Mat.Dagger())
		if err != nil {
			return 0, err
		}
		return diff.FrobNorm(), nil
	case ast.PropUnitary:
		if val.IsScalar() {
			return math.Abs(cmplx.Abs(val.Scalar) - 1), nil
		}
		uu, err := quantum.Mul(val.Mat.Dagger(), val.Mat)
		if err != nil {
			return 0, err
		}
		diff, err := quantum.Sub(uu, quantum.Identity(val.Mat.Rows))
		if err != nil {
			return 0, err
		}
		return diff.FrobNorm(), nil
	case ast.PropPSD:
		if val.IsScalar() {
			if imag(val.Scalar) != 0 || real(val.Scalar) < 0 {
				return math.Max(math.Abs(imag(val.Scalar)), -real(val.Scalar)), nil
			}
			return 0, nil
		}
		min, err := quantum.MinEigenvalue(val.Mat)
		if err != nil {
			return 0, err
		}
		if min < 0 {
			return -min, nil
		}
		return 0, nil
	case ast.PropTraceOne:
		if val.IsScalar() {
			return cmplx.Abs(val.Scalar - 1), nil
		}
		tr, err := val.Mat.Trace()
		if err != nil {
			return 0, err
		}
		return cmplx.Abs(tr - 1), nil
	default:
		return 0, fmt.Errorf("unknown property %v", prop)
	}
}

// VerifyProof independently replays a certificate. Symbolic traces are
// replayed step by step; numeric evidence is re-sampled with the
// recorded seed, sample count, and tolerance.
func (p *Prover) VerifyProof(ctx context.Context, cert *Certificate) bool {
	if cert == nil {
		return false
	}
	if cert.Numeric != nil {
		return p.verifyNumeric(ctx, cert)
	}
	ok, reason := cert.VerifyReason(p.reg, p.canon)
	if !ok {
		p.log.Warn("certificate failed verification",
			zap.String("id", cert.ID), zap.String("reason", reason))
	}
	return ok
}

func (p *Prover) verifyNumeric(ctx context.Context, cert *Certificate) bool {
	if cert.Hash != cert.computeHash() {
		return false
	}
	expr, err := parser.ParseExpr(cert.Goal.LHS)
	if err != nil {
		return false
	}
	prop, ok := ast.PropertyKindFromName(cert.Goal.Property)
	if !ok {
		return false
	}
	cfg := p.cfg
	cfg.Seed = cert.Numeric.Seed
	cfg.Samples = cert.Numeric.Samples
	cfg.Tolerance = cert.Numeric.Tolerance
	res, err := p.numericProperty(ctx, prop, expr, cfg)
	if err != nil {
		return false
	}
	return res.Outcome == PropertyNumeric
}
