package query

import (
	"context"
	"errors"
	"fmt"

	"pyscope/internal/config"
	"pyscope/internal/pathdb"
	"pyscope/internal/stackgraph"
	"pyscope/internal/stitcher"
)

// ErrNoReference reports a position that no reference node covers.
var ErrNoReference = errors.New("no reference at position")

// Reference describes a use site for tooling.
type Reference struct {
	Node   stackgraph.NodeID
	Symbol string
	Chain  []string
	Pos    stackgraph.Position
}

// Service is the thin query layer over the database and resolver. It adds
// no algorithmic logic of its own.
type Service struct {
	db       *pathdb.DB
	resolver *stitcher.Resolver
}

func New(cfg *config.Config, fs pathdb.FS) *Service {
	if fs == nil {
		fs = pathdb.OSFS{}
	}
	db := pathdb.New(fs, cfg.Project.RootPath)
	return &Service{
		db:       db,
		resolver: stitcher.New(db, cfg.Resolver.MaxSteps),
	}
}

// AddFiles registers files for stitching; none is parsed until needed.
func (s *Service) AddFiles(files ...string) {
	s.db.Register(files...)
}

// BuildAll eagerly builds every registered file in parallel.
func (s *Service) BuildAll(ctx context.Context) error {
	return s.db.BuildAll(ctx)
}

// Invalidate discards a file's cached subgraph after a content change.
func (s *Service) Invalidate(file string) {
	s.db.Invalidate(file)
}

// Resolve runs the stitcher for an already-located reference node.
func (s *Service) Resolve(file string, ref stackgraph.NodeID) ([]stitcher.Definition, error) {
	return s.resolver.Resolve(file, ref)
}

// ResolveAt locates the reference covering a source position (1-based
// line, 0-based column) and resolves it. An empty, non-nil result means
// the reference exists but nothing defines it.
func (s *Service) ResolveAt(file string, line, col int) ([]stitcher.Definition, error) {
	entry, err := s.db.Load(file)
	if err != nil {
		return nil, err
	}
	ref, ok := entry.Graph.ReferenceAt(line, col)
	if !ok {
		return nil, fmt.Errorf("%w: %s:%d:%d", ErrNoReference, file, line, col)
	}
	defs, err := s.resolver.Resolve(file, ref)
	if err != nil {
		return nil, err
	}
	if defs == nil {
		defs = []stitcher.Definition{}
	}
	return defs, nil
}

// References lists a file's reference nodes in source order.
func (s *Service) References(file string) ([]Reference, error) {
	entry, err := s.db.Load(file)
	if err != nil {
		return nil, err
	}
	out := make([]Reference, 0, len(entry.Graph.References))
	for _, id := range entry.Graph.References {
		node, _ := entry.Graph.Node(id)
		out = append(out, Reference{Node: id, Symbol: node.Symbol, Chain: node.Chain, Pos: node.Pos})
	}
	return out, nil
}

// DefinitionsInScope lists the definitions directly visible in a file's
// module scope, for whole-graph introspection.
func (s *Service) DefinitionsInScope(file string) ([]stitcher.Definition, error) {
	entry, err := s.db.Load(file)
	if err != nil {
		return nil, err
	}
	g := entry.Graph
	var out []stitcher.Definition
	for _, e := range g.Outgoing(g.ModuleScope) {
		if e.Op.Kind != stackgraph.OpPop {
			continue
		}
		node, ok := g.Node(e.To)
		if !ok || node.Kind != stackgraph.KindDefinition {
			continue
		}
		out = append(out, stitcher.Definition{Node: e.To, Symbol: node.Symbol, Pos: node.Pos})
	}
	return out, nil
}

// Graphs exposes every built subgraph, primarily for merged-mode
// consumers and consistency checks.
func (s *Service) Graphs() (map[string]*stackgraph.FileGraph, error) {
	return s.db.Graphs()
}
