package pathdb

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"pyscope/internal/builder"
	"pyscope/internal/stackgraph"
)

// FS abstracts source access so tests can stitch across in-memory files.
type FS interface {
	ReadFile(name string) ([]byte, error)
}

// OSFS reads sources from disk.
type OSFS struct{}

func (OSFS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// MapFS serves sources from memory, keyed by slash path.
type MapFS map[string]string

func (m MapFS) ReadFile(name string) ([]byte, error) {
	src, ok := m[filepath.ToSlash(name)]
	if !ok {
		return nil, fmt.Errorf("pathdb: no such file %q", name)
	}
	return []byte(src), nil
}

// Entry is one file's published state: its immutable subgraph and the
// partial paths derived from it. Entries are replaced wholesale; readers
// never observe a partially built one.
type Entry struct {
	Graph *stackgraph.FileGraph

	// EntryPaths are the fragments entering the file from the root.
	EntryPaths []PartialPath

	// RefPaths holds, per reference node (by local ID), its in-file
	// resolutions and root exits.
	RefPaths map[uint32][]PartialPath
}

// DB precomputes and caches per-file partial paths. Rebuilding an entry is
// purely a function of the file's subgraph, keyed by content hash, so no
// cross-file knowledge is needed and files build independently.
type DB struct {
	fs      FS
	builder *builder.Builder
	root    string

	mu      sync.RWMutex
	entries map[string]*Entry
	index   map[string][]string // first module-path segment -> files
	files   []string
}

func New(fs FS, rootPath string) *DB {
	return &DB{
		fs:      fs,
		builder: builder.New(rootPath),
		root:    rootPath,
		entries: make(map[string]*Entry),
		index:   make(map[string][]string),
	}
}

// Register makes files stitchable. The candidate index needs only the
// module path, which is a function of the file path alone, so no file is
// parsed until resolution actually reaches it.
func (db *DB) Register(files ...string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, f := range files {
		f = filepath.ToSlash(f)
		segs := builder.ModulePath(f, db.root)
		if len(segs) == 0 {
			continue
		}
		if contains(db.files, f) {
			continue
		}
		db.files = append(db.files, f)
		db.index[segs[0]] = append(db.index[segs[0]], f)
	}
	sort.Strings(db.files)
	for seg := range db.index {
		sort.Strings(db.index[seg])
	}
}

// Files lists the registered files in deterministic order.
func (db *DB) Files() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]string(nil), db.files...)
}

// Candidates lists the files whose module path starts with the given
// segment; these are the only files worth loading for a stack whose top
// symbol is that segment.
func (db *DB) Candidates(seg string) []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]string(nil), db.index[seg]...)
}

// Load returns a file's entry, building subgraph and partial paths on
// first use. The build runs outside the lock; publication is atomic.
func (db *DB) Load(file string) (*Entry, error) {
	file = filepath.ToSlash(file)
	db.mu.RLock()
	e, ok := db.entries[file]
	db.mu.RUnlock()
	if ok {
		return e, nil
	}

	e, err := db.build(file)
	if err != nil {
		return nil, err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if existing, ok := db.entries[file]; ok && existing.Graph.Hash == e.Graph.Hash {
		return existing, nil
	}
	db.entries[file] = e
	return e, nil
}

func (db *DB) build(file string) (*Entry, error) {
	source, err := db.fs.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("pathdb: read %s: %w", file, err)
	}
	g, err := db.builder.Build(file, source)
	if err != nil {
		return nil, err
	}
	entry := &Entry{Graph: g, RefPaths: make(map[uint32][]PartialPath)}
	if entry.EntryPaths, err = entryPaths(g); err != nil {
		return nil, err
	}
	for _, ref := range g.References {
		paths, err := referencePaths(g, ref)
		if err != nil {
			return nil, err
		}
		entry.RefPaths[ref.Local] = paths
	}
	return entry, nil
}

// BuildAll eagerly builds every registered file on a bounded worker pool.
// Construction is embarrassingly parallel: each task touches only its own
// file's state.
func (db *DB) BuildAll(ctx context.Context) error {
	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(runtime.NumCPU())
	for _, file := range db.Files() {
		file := file
		grp.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := db.Load(file)
			return err
		})
	}
	return grp.Wait()
}

// Invalidate discards a file's entry; the next Load rebuilds it from the
// current source. The candidate index keeps the registration.
func (db *DB) Invalidate(file string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.entries, filepath.ToSlash(file))
}

// Graphs loads every registered file and returns the subgraphs, for
// callers that want the merged whole-program view.
func (db *DB) Graphs() (map[string]*stackgraph.FileGraph, error) {
	out := make(map[string]*stackgraph.FileGraph)
	for _, file := range db.Files() {
		e, err := db.Load(file)
		if err != nil {
			return nil, err
		}
		out[file] = e.Graph
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
