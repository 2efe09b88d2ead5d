package builder

import (
	"path/filepath"
	"strings"
)

// ModulePath converts a file path into dotted-module segments, relative to
// the configured root path when the file sits under it. `pkg/sub/mod.py`
// becomes [pkg sub mod]; a package `__init__.py` maps to the package path
// itself, so `pkg/sub/__init__.py` becomes [pkg sub].
func ModulePath(file, rootPath string) []string {
	p := filepath.ToSlash(filepath.Clean(file))
	if rootPath != "" {
		r := filepath.ToSlash(filepath.Clean(rootPath))
		if rel, err := filepath.Rel(r, p); err == nil && rel != ".." && !strings.HasPrefix(rel, "../") {
			p = filepath.ToSlash(rel)
		}
	}
	p = strings.TrimSuffix(p, ".py")

	var segs []string
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." {
			continue
		}
		segs = append(segs, seg)
	}
	if n := len(segs); n > 0 && segs[n-1] == "__init__" {
		segs = segs[:n-1]
	}
	return segs
}

// PackagePath is the module path of the package containing the file. For a
// regular module that is its module path minus the final segment; for an
// `__init__.py` the module path already names the package.
func PackagePath(file, rootPath string) []string {
	segs := ModulePath(file, rootPath)
	if strings.HasSuffix(filepath.Base(file), "__init__.py") {
		return segs
	}
	if len(segs) == 0 {
		return nil
	}
	return segs[:len(segs)-1]
}

// RelativeTarget resolves a relative-import prefix against the importing
// file's package: one leading dot anchors at the current package, each
// additional dot walks one level up. Returns nil when the prefix escapes
// past the root.
func RelativeTarget(file, rootPath string, dots int, sub []string) []string {
	if dots < 1 {
		return nil
	}
	pkg := PackagePath(file, rootPath)
	up := dots - 1
	if up > len(pkg) {
		return nil
	}
	base := pkg[:len(pkg)-up]
	out := make([]string, 0, len(base)+len(sub))
	out = append(out, base...)
	out = append(out, sub...)
	return out
}
