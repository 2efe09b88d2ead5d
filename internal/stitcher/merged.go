package stitcher

import (
	"fmt"
	"sort"

	"pyscope/internal/stackgraph"
)

// ResolveMerged resolves a reference against a single merged whole-program
// graph, traversing edges directly instead of stitching precomputed
// partial paths. It exists to state the consistency law: stitched
// resolution must agree with it. Tooling with everything already in
// memory may also prefer it.
func ResolveMerged(graphs map[string]*stackgraph.FileGraph, file string, ref stackgraph.NodeID, maxSteps int) ([]Definition, error) {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	g, ok := graphs[file]
	if !ok {
		return nil, fmt.Errorf("stitcher: unknown file %q", file)
	}
	node, ok := g.Node(ref)
	if !ok || node.Kind != stackgraph.KindReference {
		return nil, fmt.Errorf("stitcher: %s is not a reference node", ref)
	}

	// The merged root adjacency is the union of every file's root edges.
	var rootEdges []stackgraph.Edge
	files := make([]string, 0, len(graphs))
	for f := range graphs {
		files = append(files, f)
	}
	sort.Strings(files)
	for _, f := range files {
		rootEdges = append(rootEdges, graphs[f].RootEdges()...)
	}

	outgoing := func(id stackgraph.NodeID) []stackgraph.Edge {
		if id.IsRoot() {
			return rootEdges
		}
		if fg, ok := graphs[id.File]; ok {
			return fg.Outgoing(id)
		}
		return nil
	}
	nodeAt := func(id stackgraph.NodeID) (stackgraph.Node, bool) {
		if fg, ok := graphs[id.File]; ok {
			return fg.Node(id)
		}
		return stackgraph.Node{}, false
	}

	var found []candidate
	visited := map[string]bool{}
	steps := 0

	type state struct {
		node    stackgraph.NodeID
		stack   stackgraph.SymbolStack
		precSeq []int
	}

	var walk func(st state) error
	walk = func(st state) error {
		steps++
		if steps > maxSteps {
			return fmt.Errorf("%w (after %d expansions)", ErrStepLimit, maxSteps)
		}
		key := st.node.String() + "|" + st.stack.Key()
		if visited[key] {
			return nil
		}
		visited[key] = true

		if n, ok := nodeAt(st.node); ok && n.Kind == stackgraph.KindDefinition && st.stack.Empty() {
			found = append(found, candidate{def: st.node, precSeq: st.precSeq})
		}

		for _, e := range outgoing(st.node) {
			stack, ok, err := st.stack.Apply(e.Op)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			next := state{node: e.To, stack: stack, precSeq: concatPrec(st.precSeq, []int{e.Precedence})}
			if err := walk(next); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(state{node: ref, stack: stackgraph.NewStack(node.Chain)}); err != nil {
		return nil, err
	}

	return collectMerged(graphs, found)
}

func collectMerged(graphs map[string]*stackgraph.FileGraph, found []candidate) ([]Definition, error) {
	best := make(map[stackgraph.NodeID][]int)
	for _, c := range found {
		if seq, ok := best[c.def]; !ok || comparePrec(c.precSeq, seq) > 0 {
			best[c.def] = c.precSeq
		}
	}
	defs := make([]Definition, 0, len(best))
	seqs := make(map[stackgraph.NodeID][]int, len(best))
	for id, seq := range best {
		node, ok := graphs[id.File].Node(id)
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
