package stitcher_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pyscope/internal/config"
	"pyscope/internal/pathdb"
	"pyscope/internal/query"
	"pyscope/internal/stitcher"
)

func newService(t *testing.T, files map[string]string) *query.Service {
	t.Helper()
	var cfg config.Config
	fs := pathdb.MapFS{}
	svc := query.New(&cfg, fs)
	for name, src := range files {
		fs[name] = src
		svc.AddFiles(name)
	}
	return svc
}

type loc struct {
	file string
	line int
}

func locations(defs []stitcher.Definition) []loc {
	var out []loc
	for _, d := range defs {
		out = append(out, loc{file: d.Node.File, line: d.Pos.Line})
	}
	return out
}

func TestResolveLocalBinding(t *testing.T) {
	svc := newService(t, map[string]string{
		"t.py": "x = 1\ny = x\n",
	})
	defs, err := svc.ResolveAt("t.py", 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []loc{{"t.py", 1}}, locations(defs))
	assert.Equal(t, "x", defs[0].Symbol)
}

func TestResolveUnresolvedIsEmpty(t *testing.T) {
	svc := newService(t, map[string]string{"t.py": "x\n"})
	defs, err := svc.ResolveAt("t.py", 1, 0)
	require.NoError(t, err)
	require.NotNil(t, defs)
	assert.Empty(t, defs)
}

func TestResolveFromImport(t *testing.T) {
	svc := newService(t, map[string]string{
		"a.py": "x = 1\n",
		"b.py": "from a import x\ny = x\n",
	})
	defs, err := svc.ResolveAt("b.py", 2, 4)
	require.NoError(t, err)
	// The import binding reports itself, and resolution continues into the
	// target module.
	assert.Equal(t, []loc{{"a.py", 1}, {"b.py", 1}}, locations(defs))
}

func TestResolveImportAlias(t *testing.T) {
	svc := newService(t, map[string]string{
		"a.py": "x = 1\n",
		"b.py": "from a import x as y\ny\n",
	})
	defs, err := svc.ResolveAt("b.py", 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []loc{{"a.py", 1}, {"b.py", 1}}, locations(defs))
}

func TestResolveDottedImportAttribute(t *testing.T) {
	svc := newService(t, map[string]string{
		"pkg/mod.py": "x = 1\n",
		"main.py":    "import pkg.mod\npkg.mod.x\n",
	})
	defs, err := svc.ResolveAt("main.py", 2, 8)
	require.NoError(t, err)
	assert.Equal(t, []loc{{"pkg/mod.py", 1}}, locations(defs))
}

func TestResolveModuleAlias(t *testing.T) {
	svc := newService(t, map[string]string{
		"a.py": "x = 1\n",
		"b.py": "import a as al\nal.x\n",
	})
	defs, err := svc.ResolveAt("b.py", 2, 3)
	require.NoError(t, err)
	assert.Equal(t, []loc{{"a.py", 1}}, locations(defs))
}

func TestResolveRelativeReexport(t *testing.T) {
	svc := newService(t, map[string]string{
		"pkg/__init__.py": "from .sub import x\n",
		"pkg/sub.py":      "x = 1\n",
		"main.py":         "from pkg import x\nx\n",
	})
	defs, err := svc.ResolveAt("main.py", 2, 0)
	require.NoError(t, err)
	// Every binding along the re-export chain reports, ending at the
	// original definition two hops away.
	assert.ElementsMatch(t, []loc{
		{"main.py", 1},
		{"pkg/__init__.py", 1},
		{"pkg/sub.py", 1},
	}, locations(defs))
}

func TestResolveRelativeImportTwoLevelsUp(t *testing.T) {
	svc := newService(t, map[string]string{
		"pkg/mod.py":      "x = 1\n",
		"pkg/sub/deep.py": "from ..mod import x\nx\n",
	})
	defs, err := svc.ResolveAt("pkg/sub/deep.py", 2, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []loc{
		{"pkg/sub/deep.py", 1},
		{"pkg/mod.py", 1},
	}, locations(defs))
}

func TestResolveModuleReference(t *testing.T) {
	svc := newService(t, map[string]string{
		"a.py": "x = 1\n",
		"b.py": "import a\na\n",
	})
	defs, err := svc.ResolveAt("b.py", 2, 0)
	require.NoError(t, err)
	// The import binding and the module's own definition both report.
	assert.ElementsMatch(t, []loc{{"a.py", 1}, {"b.py", 1}}, locations(defs))
}

func TestResolveAliasesOfSharedImport(t *testing.T) {
	// a and b both alias the same imported name; each must still reach the
	// original definition two files away, and agree with the merged walk.
	svc := newService(t, map[string]string{
		"c.py":     "t = 1\n",
		"lib.py":   "from c import t\na = t\nb = t\n",
		"main.py":  "from lib import a\na\n",
		"main2.py": "from lib import b\nb\n",
	})
	graphs, err := svc.Graphs()
	require.NoError(t, err)

	check := func(file string, importLine, bindLine int) {
		defs, err := svc.ResolveAt(file, 2, 0)
		require.NoError(t, err)
		assert.ElementsMatch(t, []loc{
			{file, importLine},
			{"lib.py", bindLine},
			{"lib.py", 1},
			{"c.py", 1},
		}, locations(defs), "reference in %s", file)

		ref, ok := graphs[file].ReferenceAt(2, 0)
		require.True(t, ok)
		merged, err := stitcher.ResolveMerged(graphs, file, ref, 0)
		require.NoError(t, err)
		assert.Equal(t, merged, defs, "reference in %s", file)
	}

	check("main.py", 1, 2)
	check("main2.py", 1, 3)
}

func TestResolveExplicitImportOutranksWildcardRoute(t *testing.T) {
	// Both import forms route to the same residual stack at the root; the
	// explicit import's higher-precedence route must decide the ordering.
	svc := newService(t, map[string]string{
		"a.py": "x = 1\n",
		"b.py": "from a import *\nfrom a import x\nx\n",
	})
	defs, err := svc.ResolveAt("b.py", 3, 0)
	require.NoError(t, err)
	assert.Equal(t, []loc{{"a.py", 1}, {"b.py", 2}}, locations(defs))

	graphs, err := svc.Graphs()
	require.NoError(t, err)
	ref, ok := graphs["b.py"].ReferenceAt(3, 0)
	require.True(t, ok)
	merged, err := stitcher.ResolveMerged(graphs, "b.py", ref, 0)
	require.NoError(t, err)
	assert.Equal(t, merged, defs)
}

func TestResolveInstanceMember(t *testing.T) {
	src := `class A:
    def __init__(self):
        self.v = 1

a = A()
a.v
`
	svc := newService(t, map[string]string{"t.py": src})
	defs, err := svc.ResolveAt("t.py", 6, 2)
	require.NoError(t, err)
	assert.Equal(t, []loc{{"t.py", 3}}, locations(defs))
	assert.Equal(t, "v", defs[0].Symbol)
}

func TestResolveInheritedMethod(t *testing.T) {
	src := `class B:
    def f(self):
        return 1

class C(B):
    def g(self):
        self.f
        super().f
`
	svc := newService(t, map[string]string{"t.py": src})

	t.Run("through the receiver", func(t *testing.T) {
		defs, err := svc.ResolveAt("t.py", 7, 13)
		require.NoError(t, err)
		assert.Equal(t, []loc{{"t.py", 2}}, locations(defs))
	})

	t.Run("through super", func(t *testing.T) {
		defs, err := svc.ResolveAt("t.py", 8, 16)
		require.NoError(t, err)
		assert.Equal(t, []loc{{"t.py", 2}}, locations(defs))
	})
}

func TestResolveOverrideShadowsBase(t *testing.T) {
	src := `class B:
    def f(self): pass

class C(B):
    def f(self): pass

    def g(self):
        self.f
        super().f
`
	svc := newService(t, map[string]string{"t.py": src})

	t.Run("self sees the override first", func(t *testing.T) {
		defs, err := svc.ResolveAt("t.py", 8, 13)
		require.NoError(t, err)
		// Both candidates report; the override outranks the base method.
		assert.Equal(t, []loc{{"t.py", 5}, {"t.py", 2}}, locations(defs))
	})

	t.Run("super skips the override", func(t *testing.T) {
		defs, err := svc.ResolveAt("t.py", 9, 16)
		require.NoError(t, err)
		assert.Equal(t, []loc{{"t.py", 2}}, locations(defs))
	})
}

func TestResolveWildcardShadowedByLocal(t *testing.T) {
	svc := newService(t, map[string]string{
		"a.py": "x = 1\n",
		"b.py": "from a import *\nx = 2\nx\n",
	})
	defs, err := svc.ResolveAt("b.py", 3, 0)
	require.NoError(t, err)
	// The local assignment wins; the wildcard route still reports.
	assert.Equal(t, []loc{{"b.py", 2}, {"a.py", 1}}, locations(defs))
}

func TestResolveTupleDestructuring(t *testing.T) {
	src := `x = 1
y = 2
a, (b, c) = x, (y, x)
c
`
	svc := newService(t, map[string]string{"t.py": src})
	defs, err := svc.ResolveAt("t.py", 4, 0)
	require.NoError(t, err)
	// The binding itself and, positionally, the value it aliases.
	assert.ElementsMatch(t, []loc{{"t.py", 3}, {"t.py", 1}}, locations(defs))
}

func TestResolveMatchCaptureBindsOncePerArm(t *testing.T) {
	src := `p = 1
match p:
    case [a] | (a,):
        a
`
	svc := newService(t, map[string]string{"t.py": src})
	defs, err := svc.ResolveAt("t.py", 4, 8)
	require.NoError(t, err)
	require.Len(t, defs, 1, "or-pattern alternatives share one binding")
	assert.Equal(t, loc{"t.py", 3}, locations(defs)[0])
}

func TestResolveCyclicImportsTerminate(t *testing.T) {
	svc := newService(t, map[string]string{
		"a.py": "from b import x\nx\n",
		"b.py": "from a import x\n",
	})
	defs, err := svc.ResolveAt("a.py", 2, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []loc{{"a.py", 1}, {"b.py", 1}}, locations(defs))
}

func TestResolveOrderIndependentOfRegistration(t *testing.T) {
	files := map[string]string{
		"pkg/__init__.py": "from .sub import x\n",
		"pkg/sub.py":      "x = 1\n",
		"main.py":         "from pkg import x\nx\n",
	}

	build := func(order []string) []stitcher.Definition {
		var cfg config.Config
		fs := pathdb.MapFS{}
		svc := query.New(&cfg, fs)
		for name, src := range files {
			fs[name] = src
		}
		svc.AddFiles(order...)
		defs, err := svc.ResolveAt("main.py", 2, 0)
		require.NoError(t, err)
		return defs
	}

	first := build([]string{"pkg/__init__.py", "pkg/sub.py", "main.py"})
	second := build([]string{"main.py", "pkg/sub.py", "pkg/__init__.py"})
	assert.Equal(t, first, second)
}

// Stitching precomputed fragments must agree with walking the merged
// whole-program graph edge by edge.
func TestStitchedMatchesMerged(t *testing.T) {
	svc := newService(t, map[string]string{
		"pkg/__init__.py": "from .sub import x\n",
		"pkg/sub.py":      "x = 1\ny = x\n",
		"main.py":         "from pkg import x\nz = x\n",
	})
	graphs, err := svc.Graphs()
	require.NoError(t, err)

	for file, g := range graphs {
		for _, ref := range g.References {
			stitched, err := svc.Resolve(file, ref)
			require.NoError(t, err)
			merged, err := stitcher.ResolveMerged(graphs, file, ref, 0)
			require.NoError(t, err)
			assert.Equal(t, merged, stitched, "reference %s", ref)
		}
	}
}

func TestResolveRejectsNonReference(t *testing.T) {
	svc := newService(t, map[string]string{"t.py": "x = 1\n"})
	graphs, err := svc.Graphs()
	require.NoError(t, err)

	_, err = svc.Resolve("t.py", graphs["t.py"].ModuleScope)
	assert.Error(t, err)
}
