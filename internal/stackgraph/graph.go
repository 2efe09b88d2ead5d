package stackgraph

import (
	"fmt"
	"sort"
)

// Diagnostic records a file-local build problem, typically an unsupported
// construct. Diagnostics never invalidate the rest of the subgraph.
type Diagnostic struct {
	Pos  Position
	Kind string // tree-sitter node kind with no construction rule
	Err  error
}

// FileGraph is the subgraph contributed by one file. Nodes live in an
// arena slice, so a local ID is just an index. A FileGraph is immutable
// once Finalize has run; a content change rebuilds it wholesale.
type FileGraph struct {
	File string
	Hash string // content hash of the source snapshot

	nodes     []Node
	edges     map[uint32][]Edge
	rootEdges []Edge // edges leaving the shared root, owned by this file

	ModuleScope NodeID
	ModuleDef   NodeID
	References  []NodeID
	Diagnostics []Diagnostic

	finalized bool
}

func NewFileGraph(file, hash string) *FileGraph {
	g := &FileGraph{
		File:  file,
		Hash:  hash,
		edges: make(map[uint32][]Edge),
	}
	// Local 0 is reserved so that NodeID{File, 0} never collides with an
	// actual node; it keeps the zero NodeID unambiguous as the root.
	g.nodes = append(g.nodes, Node{Kind: KindRoot})
	return g
}

// AddNode appends a node to the arena and returns its handle.
func (g *FileGraph) AddNode(n Node) NodeID {
	g.nodes = append(g.nodes, n)
	id := NodeID{File: g.File, Local: uint32(len(g.nodes) - 1)}
	if n.Kind == KindReference {
		g.References = append(g.References, id)
	}
	return id
}

// AddEdge connects two nodes. Edges whose source is the root are recorded
// as this file's root edges; the whole-graph view of root adjacency is the
// union of every file's root edges.
func (g *FileGraph) AddEdge(e Edge) {
	if e.From.IsRoot() {
		g.rootEdges = append(g.rootEdges, e)
		return
	}
	if e.From.File != g.File {
		panic(fmt.Sprintf("stackgraph: edge source %s outside file %s", e.From, g.File))
	}
	g.edges[e.From.Local] = append(g.edges[e.From.Local], e)
}

// Node returns the node for a handle owned by this file.
func (g *FileGraph) Node(id NodeID) (Node, bool) {
	if id.IsRoot() {
		return Node{Kind: KindRoot}, true
	}
	if id.File != g.File || int(id.Local) >= len(g.nodes) {
		return Node{}, false
	}
	return g.nodes[id.Local], true
}

// Outgoing returns the precedence-ordered edges leaving a node. For the
// root it returns only the root edges owned by this file.
func (g *FileGraph) Outgoing(id NodeID) []Edge {
	if id.IsRoot() {
		return g.rootEdges
	}
	if id.File != g.File {
		return nil
	}
	return g.edges[id.Local]
}

// RootEdges exposes this file's contribution to the root's adjacency.
func (g *FileGraph) RootEdges() []Edge {
	return g.rootEdges
}

// NodeCount reports the number of real nodes (excluding the reserved slot).
func (g *FileGraph) NodeCount() int {
	return len(g.nodes) - 1
}

// Finalize sorts every adjacency list by precedence descending, then by
// target, so iteration order is deterministic. Must be called exactly once
// after construction; the graph is read-only afterwards.
func (g *FileGraph) Finalize() {
	if g.finalized {
		return
	}
	g.finalized = true
	sortEdges(g.rootEdges)
	for _, adj := range g.edges {
		sortEdges(adj)
	}
}

func sortEdges(adj []Edge) {
	sort.SliceStable(adj, func(i, j int) bool {
		if adj[i].Precedence != adj[j].Precedence {
			return adj[i].Precedence > adj[j].Precedence
		}
		if adj[i].To.File != adj[j].To.File {
			return adj[i].To.File < adj[j].To.File
		}
		return adj[i].To.Local < adj[j].To.Local
	})
}

// ReferenceAt finds the reference node covering the given position: same
// line, column within the referenced identifier.
func (g *FileGraph) ReferenceAt(line, col int) (NodeID, bool) {
	for _, id := range g.References {
		n := g.nodes[id.Local]
		if n.Pos.Line != line {
			continue
		}
		if col >= n.Pos.Col && col < n.Pos.Col+len(n.Symbol) {
			return id, true
		}
	}
	return NodeID{}, false
}

// Definitions lists every definition node in the file, in arena order.
func (g *FileGraph) Definitions() []NodeID {
	var out []NodeID
	for i := 1; i < len(g.nodes); i++ {
		if g.nodes[i].Kind == KindDefinition {
			out = append(out, NodeID{File: g.File, Local: uint32(i)})
		}
	}
	return out
}
