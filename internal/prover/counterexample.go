package prover

import (
	"context"
	"fmt"
	"math/cmplx"
	"sort"

	"github.com/quanta-labs/qprove/internal/ast"
	"github.com/quanta-labs/qprove/internal/quantum"
)

// Counterexample is a concrete assignment of the free symbols under
// which the two sides of an identity differ by more than the tolerance.
type Counterexample struct {
	// Values renders each sampled symbol in the DSL's own syntax.
	Values map[string]string `json:"values"`
	// Discrepancy is the norm of the difference at this sample.
	Discrepancy float64 `json:"discrepancy"`
	// Sample is the 1-based index of the failing draw, which together
	// with the seed makes the refutation reproducible.
	Sample int   `json:"sample"`
	Seed   int64 `json:"seed"`
}

func (c *Counterexample) String() string {
	names := make([]string, 0, len(c.Values))
	for n := range c.Values {
		names = append(names, n)
	}
	sort.Strings(names)
	s := fmt.Sprintf("discrepancy %.6g at sample %d:", c.Discrepancy, c.Sample)
	for _, n := range names {
		s += fmt.Sprintf(" %s = %s;", n, c.Values[n])
	}
	return s
}

// SymbolInfo tells the sampler how to draw a free symbol.
type SymbolInfo struct {
	Scalar bool
	Dim    int
	Prop   quantum.SymbolProperty
}

// findCounterexample draws seeded concrete values for the free symbols
// of both sides, evaluates numerically, and reports the first sample
// where the sides disagree beyond tolerance. Exhausting the sample
// budget without disagreement proves nothing and returns nil.
func findCounterexample(ctx context.Context, lhs, rhs ast.Expr, infos map[string]SymbolInfo, base quantum.Env, cfg Config) (*Counterexample, error) {
	free := freeNames(lhs)
	for n := range freeNames(rhs) {
		free[n] = true
	}
	names := make([]string, 0, len(free))
	for n := range free {
		if _, isBase := base[n]; isBase {
			continue
		}
		if isPredeclared(n) {
			continue
		}
		names = append(names, n)
	}
	sort.Strings(names)

	sampler := quantum.NewSampler(cfg.Seed)
	for sample := 1; sample <= cfg.Samples; sample++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		env := make(quantum.Env, len(base)+len(names))
		for k, v := range base {
			env[k] = v
		}
		for _, n := range names {
			info, ok := infos[n]
			if !ok {
				info = SymbolInfo{Dim: 2, Prop: quantum.SampleGeneral}
			}
			env[n] = sampler.Draw(info.Prop, info.Scalar, info.Dim)
		}
		lv, err := quantum.Eval(lhs, env)
		if err != nil {
			return nil, fmt.Errorf("evaluating lhs: %w", err)
		}
		rv, err := quantum.Eval(rhs, env)
		if err != nil {
			return nil, fmt.Errorf("evaluating rhs: %w", err)
		}
		dev, err := discrepancy(lv, rv)
		if err != nil {
			return nil, err
		}
		if dev > cfg.Tolerance {
			values := make(map[string]string, len(names))
			for _, n := range names {
				values[n] = renderValue(env[n])
			}
			return &Counterexample{Values: values, Discrepancy: dev, Sample: sample, Seed: cfg.Seed}, nil
		}
	}
	return nil, nil
}

// discrepancy measures how far apart two evaluated values are, promoting
// a scalar to a multiple of the identity when compared with a matrix.
func discrepancy(a, b quantum.Value) (float64, error) {
	switch {
	case a.IsScalar() && b.IsScalar():
		return cmplx.Abs(a.Scalar - b.Scalar), nil
	case !a.IsScalar() && !b.IsScalar():
		diff, err := quantum.Sub(a.Mat, b.Mat)
		if err != nil {
			return 0, err
		}
		return diff.FrobNorm(), nil
	case a.IsScalar():
		return discrepancy(promote(a, b.Mat.Rows), b)
	default:
		return discrepancy(a, promote(b, a.Mat.Rows))
	}
}

func promote(s quantum.Value, dim int) quantum.Value {
	return quantum.MatValue(quantum.Scale(s.Scalar, quantum.Identity(dim)))
}

func renderValue(v quantum.Value) string {
	if v.IsScalar() {
		return ast.FormatComplex(v.Scalar)
	}
	out := "["
	for r := 0; r < v.Mat.Rows; r++ {
		if r > 0 {
			out += ", "
		}
		out += "["
		for c := 0; c < v.Mat.Cols; c++ {
			if c > 0 {
				out += ", "
			}
			out += ast.FormatComplex(v.Mat.At(r, c))
		}
		out += "]"
	}
	return out + "]"
}

// freeNames collects every identifier an expression references.
func freeNames(e ast.Expr) map[string]bool {
	out := make(map[string]bool)
	var walk func(ast.Expr)
	walk = func(e ast.Expr) {
		switch n := e.(type) {
		case *ast.Ident:
			out[n.Name] = true
		case *ast.Matrix:
			for _, row := range n.Rows {
				for _, el := range row {
					walk(el)
				}
			}
		case *ast.Vector:
			for _, el := range n.Elems {
				walk(el)
			}
		case *ast.BracketPair:
			walk(n.Left)
			walk(n.Right)
		case *ast.Binary:
			walk(n.X)
			walk(n.Y)
		case *ast.Neg:
			walk(n.X)
		case *ast.Dagger:
			walk(n.X)
		case *ast.Transpose:
			walk(n.X)
		case *ast.Trace:
			walk(n.X)
		case *ast.Tensor:
			walk(n.X)
			walk(n.Y)
		case *ast.Commutator:
			walk(n.X)
			walk(n.Y)
		case *ast.AntiCommutator:
			walk(n.X)
			walk(n.Y)
		case *ast.Call:
			for _, a := range n.Args {
				walk(a)
			}
		case *ast.Sum:
			for _, t := range n.Terms {
				walk(t)
			}
		case *ast.Product:
			for _, f := range n.Factors {
				walk(f)
			}
		}
	}
	walk(e)
	return out
}

// isPredeclared reports whether a name is bound by the evaluator itself.
func isPredeclared(name string) bool {
	switch name {
	case "sigma_x", "sigma_y", "sigma_z", "I", "i", "pi":
		return true
	}
	return false
}
