package stitcher

import (
	"errors"
	"fmt"
	"sort"

	"pyscope/internal/pathdb"
	"pyscope/internal/stackgraph"
)

// DefaultMaxSteps bounds one query's cross-file expansions. The visited
// guard already guarantees termination; the bound is defense against
// rule-table bugs that inflate the state space.
const DefaultMaxSteps = 10_000

// ErrStepLimit reports a query abandoned after exceeding the step bound.
var ErrStepLimit = errors.New("resolution step limit exceeded")

// Definition is one resolved target of a reference.
type Definition struct {
	Node   stackgraph.NodeID
	Symbol string
	Pos    stackgraph.Position
}

// Resolver stitches partial paths across files until references reach
// definitions. It is read-only over the database and safe for concurrent
// queries.
type Resolver struct {
	db       *pathdb.DB
	maxSteps int
}

func New(db *pathdb.DB, maxSteps int) *Resolver {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Resolver{db: db, maxSteps: maxSteps}
}

type candidate struct {
	def     stackgraph.NodeID
	precSeq []int
}

type rootState struct {
	stack   stackgraph.SymbolStack
	precSeq []int
}

// Resolve answers "what can this reference denote?". The result is
// deduplicated and deterministically ordered: by the precedence of the
// first diverging edge, then by source location. An empty result means
// unresolved, which is an answer, not an error.
func (r *Resolver) Resolve(file string, ref stackgraph.NodeID) ([]Definition, error) {
	entry, err := r.db.Load(file)
	if err != nil {
		return nil, err
	}
	if node, ok := entry.Graph.Node(ref); !ok || node.Kind != stackgraph.KindReference {
		return nil, fmt.Errorf("stitcher: %s is not a reference node", ref)
	}

	var found []candidate
	var worklist []rootState

	for _, p := range entry.RefPaths[ref.Local] {
		if p.Completes {
			found = append(found, candidate{def: p.End, precSeq: p.PrecSeq})
		}
		if p.End.IsRoot() {
			worklist = append(worklist, rootState{stack: p.Leaves, precSeq: p.PrecSeq})
		}
	}

	// Cross-file stitching. Each residual stack at the root is expanded
	// with the best-precedence route that reaches it; a revisit proceeds
	// only when it strictly improves on that route, so downstream results
	// carry the same precedence sequence the merged walker would record.
	// Cyclic imports re-arrive with a prefix-tying sequence and terminate
	// here without error.
	best := map[string][]int{}
	steps := 0
	for len(worklist) > 0 {
		st := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]

		key := st.stack.Key()
		if seq, seen := best[key]; seen && comparePrec(st.precSeq, seq) <= 0 {
			continue
		}
		best[key] = st.precSeq

		top, ok := st.stack.Top()
		if !ok {
			continue
		}
		for _, f := range r.db.Candidates(top) {
			target, err := r.db.Load(f)
			if err != nil {
				// A file that fails to read or parse stays out of the
				// search; other routes may still complete.
				continue
			}
			for _, p := range target.EntryPaths {
				steps++
				if steps > r.maxSteps {
					return nil, fmt.Errorf("%w (after %d expansions)", ErrStepLimit, r.maxSteps)
				}
				remaining, ok := consumeRequires(st.stack, p.Requires)
				if !ok {
					continue
				}
				seq := concatPrec(st.precSeq, p.PrecSeq)
				if p.Completes && remaining.Empty() {
					found = append(found, candidate{def: p.End, precSeq: seq})
				}
				if p.End.IsRoot() {
					next := make(stackgraph.SymbolStack, 0, len(remaining)+len(p.Leaves))
					next = append(next, remaining...)
					next = append(next, p.Leaves...)
					worklist = append(worklist, rootState{stack: next, precSeq: seq})
				}
			}
		}
	}

	return r.collect(found)
}

// consumeRequires matches a fragment's requirements against the concrete
// stack top; on success it returns the stack with that prefix consumed.
func consumeRequires(stack stackgraph.SymbolStack, requires []string) (stackgraph.SymbolStack, bool) {
	if len(requires) > len(stack) {
		return nil, false
	}
	for i, req := range requires {
		if stack[len(stack)-1-i] != req {
			return nil, false
		}
	}
	return stack[:len(stack)-len(requires)], true
}

func concatPrec(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

// collect deduplicates candidates by definition node, keeping the
// best-precedence route to each, then orders the result set.
func (r *Resolver) collect(found []candidate) ([]Definition, error) {
	best := make(map[stackgraph.NodeID][]int)
	for _, c := range found {
		if seq, ok := best[c.def]; !ok || comparePrec(c.precSeq, seq) > 0 {
			best[c.def] = c.precSeq
		}
	}

	defs := make([]Definition, 0, len(best))
	seqs := make(map[stackgraph.NodeID][]int, len(best))
	for id, seq := range best {
		entry, err := r.db.Load(id.File)
		if err != nil {
			return nil, err
		}
		node, ok := entry.Graph.Node(id)
		if !ok {
			return nil, fmt.Errorf("stitcher: dangling definition %s", id)
		}
		defs = append(defs, Definition{Node: id, Symbol: node.Symbol, Pos: node.Pos})
		seqs[id] = seq
	}

	sort.Slice(defs, func(i, j int) bool {
		if c := comparePrec(seqs[defs[i].Node], seqs[defs[j].Node]); c != 0 {
			return c > 0
		}
		return lessByLocation(defs[i], defs[j])
	})
	return defs, nil
}

// comparePrec compares two precedence sequences at the first diverging
// edge: positive when a outranks b. A sequence that is a strict prefix of
// the other ties; location decides then.
func comparePrec(a, b []int) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] > b[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

func lessByLocation(a, b Definition) bool {
	if a.Node.File != b.Node.File {
		return a.Node.File < b.Node.File
	}
	if a.Pos.Line != b.Pos.Line {
		return a.Pos.Line < b.Pos.Line
	}
	if a.Pos.Col != b.Pos.Col {
		return a.Pos.Col < b.Pos.Col
	}
	return a.Node.Local < b.Node.Local
}
