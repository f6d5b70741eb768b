package prover

import (
	"context"
	"sync/atomic"

	"github.com/quanta-labs/qprove/internal/ast"
)

// Status is the terminal state of a proof search.
type Status int

const (
	StatusProven Status = iota
	StatusRefuted
	StatusExhausted
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusProven:
		return "proven"
	case StatusRefuted:
		return "refuted"
	case StatusExhausted:
		return "exhausted"
	case StatusTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Step is one replayable link in a proof trace: applying Rule to the
// Before expression canonicalizes to the After expression. Side records
// which root the step was discovered from; steps on the rhs side walk
// from the right root toward the meeting point.
type Step struct {
	Rule   string `json:"rule"`
	Before string `json:"before"`
	After  string `json:"after"`
	Side   string `json:"side"`
}

// searchOutcome is the raw result of one bidirectional search.
type searchOutcome struct {
	status   Status
	steps    []Step
	rounds   int
	explored int
}

// node is one visited canonical form. The frontier graph is stored as an
// arena of these records: Parent indexes into the same arena and is -1
// for a root, so traces are reconstructed without cross-referencing
// pointers.
type node struct {
	expr   ast.Expr
	key    string
	parent int
	rule   string
}

// frontierSide is one of the two search frontiers.
type frontierSide struct {
	name     string
	arena    []node
	seen     map[string]int
	frontier []int
}

func newSide(name string, root ast.Expr, key string) *frontierSide {
	s := &frontierSide{name: name, seen: make(map[string]int)}
	s.arena = append(s.arena, node{expr: root, key: key, parent: -1})
	s.seen[key] = 0
	s.frontier = []int{0}
	return s
}

// expand applies every rule at every position of every frontier member,
// canonicalizes and deduplicates the results, and installs the new
// generation as the next frontier. It returns whether anything new was
// found.
func (s *frontierSide) expand(reg *Registry, canon *Canonicalizer, apps *atomic.Int64) bool {
	var next []int
	for _, idx := range s.frontier {
		cur := s.arena[idx]
		for _, rule := range reg.Rules() {
			for _, rw := range rewriteEverywhere(cur.expr, rule) {
				apps.Add(1)
				cf := canon.Canonicalize(rw)
				key := cf.String()
				if _, dup := s.seen[key]; dup {
					continue
				}
				s.arena = append(s.arena, node{expr: cf, key: key, parent: idx, rule: rule.Name})
				s.seen[key] = len(s.arena) - 1
				next = append(next, len(s.arena)-1)
			}
		}
	}
	s.frontier = next
	return len(next) > 0
}

// pathSteps reconstructs the root-to-node rule sequence for a node.
func (s *frontierSide) pathSteps(idx int) []Step {
	var rev []Step
	for cur := idx; s.arena[cur].parent >= 0; cur = s.arena[cur].parent {
		n := s.arena[cur]
		rev = append(rev, Step{
			Rule:   n.rule,
			Before: s.arena[n.parent].key,
			After:  n.key,
			Side:   s.name,
		})
	}
	steps := make([]Step, len(rev))
	for i := range rev {
		steps[i] = rev[len(rev)-1-i]
	}
	return steps
}

// searchConfig bounds one search.
type searchConfig struct {
	maxDepth int
	maxSteps int64
}

// bidirectionalSearch runs bounded BFS from both roots over the rewrite
// graph until the frontiers intersect, both stop growing, or a budget is
// exceeded. The budget check happens at the start of each round, never
// mid-rule-application.
func bidirectionalSearch(ctx context.Context, lhs, rhs ast.Expr, reg *Registry, canon *Canonicalizer, cfg searchConfig, apps *atomic.Int64) *searchOutcome {
	lk := canon.Canonicalize(lhs)
	rk := canon.Canonicalize(rhs)
	left := newSide("lhs", lk, lk.String())
	right := newSide("rhs", rk, rk.String())

	if lk.String() == rk.String() {
		return &searchOutcome{status: StatusProven}
	}

	start := apps.Load()
	for round := 1; round <= cfg.maxDepth; round++ {
		if ctx.Err() != nil {
			return &searchOutcome{status: StatusTimeout, rounds: round - 1, explored: len(left.arena) + len(right.arena)}
		}
		if cfg.maxSteps > 0 && apps.Load()-start >= cfg.maxSteps {
			return &searchOutcome{status: StatusTimeout, rounds: round - 1, explored: len(left.arena) + len(right.arena)}
		}

		grewL := left.expand(reg, canon, apps)
		if steps, ok := meet(left, right); ok {
			return &searchOutcome{status: StatusProven, steps: steps, rounds: round, explored: len(left.arena) + len(right.arena)}
		}
		grewR := right.expand(reg, canon, apps)
		if steps, ok := meet(left, right); ok {
			return &searchOutcome{status: StatusProven, steps: steps, rounds: round, explored: len(left.arena) + len(right.arena)}
		}

		if !grewL && !grewR {
			return &searchOutcome{status: StatusExhausted, rounds: round, explored: len(left.arena) + len(right.arena)}
		}
	}
	return &searchOutcome{status: StatusTimeout, rounds: cfg.maxDepth, explored: len(left.arena) + len(right.arena)}
}

// meet looks for a canonical form visited from both roots and, when one
// exists, concatenates the two root-to-meeting-point traces. Among
// several meeting points the lexicographically smallest key is chosen so
// the reconstructed trace is deterministic.
func meet(left, right *frontierSide) ([]Step, bool) {
	small, large := left, right
	if len(small.seen) > len(large.seen) {
		small, large = large, small
	}
	best := ""
	found := false
	for key := range small.seen {
		if _, ok := large.seen[key]; !ok {
			continue
		}
		if !found || key < best {
			best = key
			found = true
		}
	}
	if !found {
		return nil, false
	}
	steps := left.pathSteps(left.seen[best])
	steps = append(steps, right.pathSteps(right.seen[best])...)
	return steps, true
}
