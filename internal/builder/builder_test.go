package builder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyscope/internal/stackgraph"
)

func build(t *testing.T, file, src string) *stackgraph.FileGraph {
	t.Helper()
	g, err := New("").Build(file, []byte(src))
	require.NoError(t, err)
	return g
}

func defSymbols(g *stackgraph.FileGraph) []string {
	var out []string
	for _, id := range g.Definitions() {
		n, _ := g.Node(id)
		out = append(out, n.Symbol)
	}
	return out
}

func TestBuildSimpleAssignments(t *testing.T) {
	g := build(t, "t.py", "x = 1\ny = x\n")

	assert.Empty(t, g.Diagnostics)
	assert.ElementsMatch(t, []string{"t", "x", "y"}, defSymbols(g))

	require.Len(t, g.References, 1)
	ref, _ := g.Node(g.References[0])
	assert.Equal(t, "x", ref.Symbol)
	assert.Equal(t, []string{"x"}, ref.Chain)
	assert.Equal(t, stackgraph.Position{Line: 2, Col: 4}, ref.Pos)

	got, ok := g.ReferenceAt(2, 4)
	require.True(t, ok)
	assert.Equal(t, g.References[0], got)
}

func TestBuildModuleExportChain(t *testing.T) {
	t.Run("single segment", func(t *testing.T) {
		g := build(t, "t.py", "")
		modDef, ok := g.Node(g.ModuleDef)
		require.True(t, ok)
		assert.Equal(t, "t", modDef.Symbol)

		roots := g.RootEdges()
		require.Len(t, roots, 1)
		assert.Equal(t, stackgraph.Pop("t"), roots[0].Op)
		assert.Equal(t, g.ModuleDef, roots[0].To)
	})

	t.Run("nested segments pop one at a time", func(t *testing.T) {
		g := build(t, "pkg/sub/mod.py", "")
		modDef, _ := g.Node(g.ModuleDef)
		assert.Equal(t, "mod", modDef.Symbol)

		roots := g.RootEdges()
		require.Len(t, roots, 1)
		assert.Equal(t, stackgraph.Pop("pkg"), roots[0].Op)

		mid := g.Outgoing(roots[0].To)
		require.Len(t, mid, 1)
		assert.Equal(t, stackgraph.Pop("sub"), mid[0].Op)

		last := g.Outgoing(mid[0].To)
		require.Len(t, last, 1)
		assert.Equal(t, stackgraph.Pop("mod"), last[0].Op)
		assert.Equal(t, g.ModuleDef, last[0].To)
	})

	t.Run("init exports under the package path", func(t *testing.T) {
		g := build(t, "pkg/__init__.py", "")
		roots := g.RootEdges()
		require.Len(t, roots, 1)
		assert.Equal(t, stackgraph.Pop("pkg"), roots[0].Op)
		assert.Equal(t, g.ModuleDef, roots[0].To)
	})
}

func TestBuildAttributeChains(t *testing.T) {
	g := build(t, "t.py", "a.c.b\n")

	require.Len(t, g.References, 3)
	var chains [][]string
	for _, id := range g.References {
		n, _ := g.Node(id)
		chains = append(chains, n.Chain)
	}
	assert.ElementsMatch(t, [][]string{{"a"}, {"a", "c"}, {"a", "c", "b"}}, chains)
}

func TestBuildCallChainsUseMarker(t *testing.T) {
	g := build(t, "t.py", "f(x).y\n")

	var chains [][]string
	for _, id := range g.References {
		n, _ := g.Node(id)
		chains = append(chains, n.Chain)
	}
	assert.Contains(t, chains, []string{"f", stackgraph.CallMarker, "y"})
	assert.Contains(t, chains, []string{"f"})
	assert.Contains(t, chains, []string{"x"})
}

func TestBuildClassBody(t *testing.T) {
	src := `class A:
    def __init__(self):
        self.v = 1
`
	g := build(t, "t.py", src)
	assert.Empty(t, g.Diagnostics)
	assert.ElementsMatch(t, []string{"t", "A", "__init__", "self", "v"}, defSymbols(g))
}

func TestBuildImports(t *testing.T) {
	src := `import pkg.mod
from other import thing as alias
from . import sibling
`
	g := build(t, "pkg2/t.py", src)
	assert.Empty(t, g.Diagnostics)
	// import pkg.mod binds both pkg and mod; the from-imports bind their
	// local names only.
	assert.ElementsMatch(t, []string{"t", "pkg", "mod", "alias", "sibling"}, defSymbols(g))
}

func TestBuildRecordsUnsupportedConstructs(t *testing.T) {
	g := build(t, "t.py", "a.b = 1\n")

	require.Len(t, g.Diagnostics, 1)
	assert.ErrorIs(t, g.Diagnostics[0].Err, stackgraph.ErrUnsupportedConstruct)
	assert.Equal(t, 1, g.Diagnostics[0].Pos.Line)

	// The rest of the file still contributes nodes.
	require.Len(t, g.References, 1)
}

func TestBuildDeterministic(t *testing.T) {
	src := "x = 1\n\ndef f(a, b=x):\n    return a\n"
	g1 := build(t, "t.py", src)
	g2 := build(t, "t.py", src)

	assert.Equal(t, g1.Hash, g2.Hash)
	assert.Equal(t, g1.NodeCount(), g2.NodeCount())
	assert.Equal(t, g1.References, g2.References)
	assert.Equal(t, defSymbols(g1), defSymbols(g2))
}

func TestContentHashChangesWithSource(t *testing.T) {
	assert.NotEqual(t, ContentHash([]byte("x = 1")), ContentHash([]byte("x = 2")))
	assert.Equal(t, ContentHash([]byte("x = 1")), ContentHash([]byte("x = 1")))
}
