package builder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"pyscope/internal/stackgraph"
)

// Builder turns one Python file's syntax tree into a stack-graph subgraph
// by applying the construction rule table in rules.go. Builders are cheap;
// a fresh tree-sitter parser is created per Build call, so a single
// Builder is safe to share across goroutines.
type Builder struct {
	rootPath string
}

func New(rootPath string) *Builder {
	return &Builder{rootPath: rootPath}
}

// Build parses the source and constructs the file's subgraph. Constructs
// with no rule are recorded as diagnostics and skipped; they never fail
// the build. The returned graph is finalized and immutable.
func (b *Builder) Build(file string, source []byte) (*stackgraph.FileGraph, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())
	tree, err := parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", file, err)
	}

	g := stackgraph.NewFileGraph(file, ContentHash(source))
	w := &walker{
		g:        g,
		src:      source,
		file:     file,
		rootPath: b.rootPath,
	}
	w.buildModule(tree.RootNode())
	g.Finalize()
	return g, nil
}

// ContentHash keys subgraph cache entries to a source snapshot.
func ContentHash(source []byte) string {
	sum := sha256.Sum256(source)
	return hex.EncodeToString(sum[:])
}

// walker carries per-file build state through the rule table.
type walker struct {
	g        *stackgraph.FileGraph
	src      []byte
	file     string
	rootPath string
}

// classCtx is set while walking a class body so methods can wire `self`
// and `super` against the owning class.
type classCtx struct {
	members stackgraph.NodeID
	bases   stackgraph.NodeID // zero when the class declares no superclasses
}

// scopeCtx tracks where definitions attach and where references resolve.
// The two differ inside class bodies: members pop from the class scope,
// but expressions there resolve against the enclosing lexical scope.
type scopeCtx struct {
	def   stackgraph.NodeID
	ref   stackgraph.NodeID
	class *classCtx
	// selfName is the receiver parameter name while inside a method body.
	selfName string
}

// buildModule creates the module scope, the module's own definition, and
// the export chain hanging off the shared root, then walks the tree.
func (w *walker) buildModule(root *sitter.Node) {
	pos := w.pos(root)
	modScope := w.g.AddNode(stackgraph.Node{Kind: stackgraph.KindScope, Pos: pos})

	segs := ModulePath(w.file, w.rootPath)
	name := w.file
	if len(segs) > 0 {
		name = segs[len(segs)-1]
	}
	modDef := w.g.AddNode(stackgraph.Node{Kind: stackgraph.KindDefinition, Symbol: name, Pos: pos})

	// Root --pop(seg1)--> ... --pop(segN)--> module definition.
	cur := stackgraph.RootID
	for i, seg := range segs {
		next := modDef
		if i < len(segs)-1 {
			next = w.g.AddNode(stackgraph.Node{Kind: stackgraph.KindPopSymbol, Symbol: seg, Pos: pos})
		}
		w.g.AddEdge(stackgraph.Edge{
			From:       cur,
			To:         next,
			Op:         stackgraph.Pop(seg),
			Precedence: stackgraph.PrecDefinition,
		})
		cur = next
	}
	w.g.AddEdge(stackgraph.Edge{
		From:       modDef,
		To:         modScope,
		Precedence: stackgraph.PrecAlias,
	})

	w.g.ModuleScope = modScope
	w.g.ModuleDef = modDef

	w.walkBlock(root, scopeCtx{def: modScope, ref: modScope})
}

func (w *walker) pos(n *sitter.Node) stackgraph.Position {
	return stackgraph.Position{
		Line: int(n.StartPoint().Row) + 1,
		Col:  int(n.StartPoint().Column),
	}
}

func (w *walker) text(n *sitter.Node) string {
	return n.Content(w.src)
}

func (w *walker) unsupported(n *sitter.Node) {
	w.g.Diagnostics = append(w.g.Diagnostics, stackgraph.Diagnostic{
		Pos:  w.pos(n),
		Kind: n.Type(),
		Err:  stackgraph.ErrUnsupportedConstruct,
	})
}

// addDef binds a name in a scope: scope --pop(name)--> definition.
func (w *walker) addDef(name string, pos stackgraph.Position, scope stackgraph.NodeID) stackgraph.NodeID {
	def := w.g.AddNode(stackgraph.Node{Kind: stackgraph.KindDefinition, Symbol: name, Pos: pos})
	w.g.AddEdge(stackgraph.Edge{
		From:       scope,
		To:         def,
		Op:         stackgraph.Pop(name),
		Precedence: stackgraph.PrecDefinition,
	})
	return def
}

// addRef creates a reference node attached to its lexical scope. The
// chain runs base-first, e.g. a.c.b -> [a c b].
func (w *walker) addRef(chain []string, pos stackgraph.Position, scope stackgraph.NodeID) stackgraph.NodeID {
	ref := w.g.AddNode(stackgraph.Node{
		Kind:   stackgraph.KindReference,
		Symbol: chain[len(chain)-1],
		Chain:  chain,
		Pos:    pos,
	})
	w.g.AddEdge(stackgraph.Edge{
		From:       ref,
		To:         scope,
		Precedence: stackgraph.PrecLexical,
	})
	return ref
}

// pushChain wires from --push(chain[n-1])--> ... --push(chain[0])--> to,
// so after traversal the top of stack is the chain's base symbol.
func (w *walker) pushChain(from stackgraph.NodeID, chain []string, to stackgraph.NodeID, prec int, pos stackgraph.Position) {
	if len(chain) == 0 {
		return
	}
	cur := from
	for i := len(chain) - 1; i > 0; i-- {
		next := w.g.AddNode(stackgraph.Node{Kind: stackgraph.KindPushSymbol, Symbol: chain[i], Pos: pos})
		w.g.AddEdge(stackgraph.Edge{From: cur, To: next, Op: stackgraph.Push(chain[i]), Precedence: prec})
		cur = next
	}
	w.g.AddEdge(stackgraph.Edge{From: cur, To: to, Op: stackgraph.Push(chain[0]), Precedence: prec})
}

// addAlias routes a definition to the value it binds: resolving through
// the definition continues into the value's own resolution.
func (w *walker) addAlias(def stackgraph.NodeID, chain []string, scope stackgraph.NodeID, pos stackgraph.Position) {
	w.pushChain(def, chain, scope, stackgraph.PrecAlias, pos)
}

// jumpToRoot builds a JumpTo node that pushes a dotted module path and
// hands resolution to the shared root, where another file's export chain
// picks it up.
func (w *walker) jumpToRoot(from stackgraph.NodeID, path []string, prec int, pos stackgraph.Position) {
	if len(path) == 0 {
		return
	}
	jump := w.g.AddNode(stackgraph.Node{Kind: stackgraph.KindJumpTo, Pos: pos})
	w.g.AddEdge(stackgraph.Edge{From: from, To: jump, Precedence: prec})
	w.pushChain(jump, path, stackgraph.RootID, prec, pos)
}
