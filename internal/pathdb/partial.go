package pathdb

import (
	"fmt"
	"strings"

	"pyscope/internal/stackgraph"
)

// PartialPath is a path fragment confined to one file subgraph, reduced to
// its net symbol-stack effect. The reduction is canonical: pops always act
// on the top of stack, so any symbol pushed and later popped inside the
// file cancels out, leaving "consume a prefix, then leave a suffix".
type PartialPath struct {
	Start stackgraph.NodeID
	End   stackgraph.NodeID

	// Requires lists the symbols consumed off the incoming stack, in pop
	// order (first element is matched against the top of stack).
	Requires []string

	// Leaves is the net stack pushed by the fragment, bottom to top. It is
	// empty for completing paths.
	Leaves stackgraph.SymbolStack

	// Completes marks a fragment ending at a definition with its local
	// stack fully consumed; the query resolves here if nothing else
	// remains on the concrete stack.
	Completes bool

	// PrecSeq records the precedence of every traversed edge, used to
	// order competing results (shadowing).
	PrecSeq []int
}

// maxFileSteps bounds the in-file search as a defense against rule-table
// bugs producing runaway expansions.
const maxFileSteps = 50_000

type searchState struct {
	node     stackgraph.NodeID
	local    stackgraph.SymbolStack
	requires []string
	precSeq  []int
}

// explore walks one file subgraph depth-first from a seed state, applying
// edge stack operations, and reports every definition reached with an
// empty local stack and every arrival back at the shared root. When
// allowRequires is set, a pop against an empty local stack becomes a
// requirement on the (unknown) incoming stack instead of a dead end.
//
// Higher-precedence edges are explored first and revisited states are
// pruned, so the fragment kept for any reachable state is the
// best-precedence one.
func explore(g *stackgraph.FileGraph, seed searchState, allowRequires bool, emit func(PartialPath)) error {
	visited := map[string]bool{}
	steps := 0

	var walk func(st searchState) error
	walk = func(st searchState) error {
		steps++
		if steps > maxFileSteps {
			return fmt.Errorf("%w: in-file search exceeded %d steps in %s", stackgraph.ErrMalformedStack, maxFileSteps, g.File)
		}
		key := stateKey(st)
		if visited[key] {
			return nil
		}
		visited[key] = true

		if node, ok := g.Node(st.node); ok {
			if node.Kind == stackgraph.KindDefinition && st.local.Empty() {
				emit(PartialPath{
					Start:     seed.node,
					End:       st.node,
					Requires:  st.requires,
					Completes: true,
					PrecSeq:   st.precSeq,
				})
				// Fall through: aliases continue past the definition.
			}
		}

		for _, e := range g.Outgoing(st.node) {
			next, ok, err := applyOp(st, e.Op, allowRequires)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			next.node = e.To
			next.precSeq = appendPrec(st.precSeq, e.Precedence)
			if e.To.IsRoot() {
				emit(PartialPath{
					Start:    seed.node,
					End:      stackgraph.RootID,
					Requires: next.requires,
					Leaves:   next.local,
					PrecSeq:  next.precSeq,
				})
				continue
			}
			if err := walk(next); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(seed)
}

func applyOp(st searchState, op stackgraph.StackOp, allowRequires bool) (searchState, bool, error) {
	switch op.Kind {
	case stackgraph.OpNone:
		return st, true, nil
	case stackgraph.OpPop:
		if !st.local.Empty() {
			local, ok, err := st.local.Apply(op)
			if err != nil || !ok {
				return st, false, err
			}
			return searchState{local: local, requires: st.requires, precSeq: st.precSeq}, true, nil
		}
		if op.Symbol == "" {
			return st, false, fmt.Errorf("%w: pop with empty symbol", stackgraph.ErrMalformedStack)
		}
		if !allowRequires {
			return st, false, nil
		}
		requires := make([]string, len(st.requires)+1)
		copy(requires, st.requires)
		requires[len(st.requires)] = op.Symbol
		return searchState{local: st.local, requires: requires, precSeq: st.precSeq}, true, nil
	case stackgraph.OpPush:
		local, ok, err := st.local.Apply(op)
		if err != nil || !ok {
			return st, false, err
		}
		return searchState{local: local, requires: st.requires, precSeq: st.precSeq}, true, nil
	}
	return st, false, fmt.Errorf("%w: unknown op kind %d", stackgraph.ErrMalformedStack, op.Kind)
}

// stateKey must encode the requires contents, not just their count: two
// branches can reach the same node with equally long but different
// requirements, and pruning the second would lose its continuations.
func stateKey(st searchState) string {
	return fmt.Sprintf("%s|%s|%s", st.node, strings.Join(st.requires, "\x1f"), st.local.Key())
}

func appendPrec(seq []int, p int) []int {
	out := make([]int, len(seq)+1)
	copy(out, seq)
	out[len(seq)] = p
	return out
}

// entryPaths computes the fragments entering a file from the shared root:
// its export chains and whatever re-exports or wildcard imports route back
// out again.
func entryPaths(g *stackgraph.FileGraph) ([]PartialPath, error) {
	var out []PartialPath
	err := explore(g, searchState{node: stackgraph.RootID}, true, func(p PartialPath) {
		out = append(out, p)
	})
	return out, err
}

// referencePaths computes, for one reference node, its in-file
// resolutions and its exits through the root.
func referencePaths(g *stackgraph.FileGraph, ref stackgraph.NodeID) ([]PartialPath, error) {
	node, ok := g.Node(ref)
	if !ok || node.Kind != stackgraph.KindReference {
		return nil, fmt.Errorf("pathdb: %s is not a reference node", ref)
	}
	var out []PartialPath
	err := explore(g, searchState{node: ref, local: stackgraph.NewStack(node.Chain)}, false, func(p PartialPath) {
		out = append(out, p)
	})
	return out, err
}
