package stackgraph

import (
	"errors"
	"fmt"
)

// NodeKind distinguishes the roles a node can play during path search.
type NodeKind int

const (
	KindRoot NodeKind = iota
	KindScope
	KindDefinition
	KindReference
	KindPushSymbol
	KindPopSymbol
	KindJumpTo
	KindDrop
)

func (k NodeKind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindScope:
		return "scope"
	case KindDefinition:
		return "definition"
	case KindReference:
		return "reference"
	case KindPushSymbol:
		return "push"
	case KindPopSymbol:
		return "pop"
	case KindJumpTo:
		return "jump"
	case KindDrop:
		return "drop"
	}
	return "unknown"
}

// CallMarker is the reserved symbol inserted into a lookup chain when an
// attribute hangs off a call expression, e.g. f(a).y -> [f, (), y].
const CallMarker = "()"

var (
	// ErrUnsupportedConstruct marks a syntax form with no construction rule.
	// It is file-local: the construct contributes no nodes and the rest of
	// the file still builds.
	ErrUnsupportedConstruct = errors.New("unsupported construct")

	// ErrMalformedStack marks an internally inconsistent symbol-stack
	// operation. It indicates a rule-table bug and is surfaced, not skipped.
	ErrMalformedStack = errors.New("malformed symbol stack")
)

// NodeID addresses a node inside a file subgraph. The zero value is the
// shared root anchor, which no file owns.
type NodeID struct {
	File  string
	Local uint32
}

// RootID is the global anchor every cross-file path passes through.
var RootID = NodeID{}

func (id NodeID) IsRoot() bool {
	return id.File == "" && id.Local == 0
}

func (id NodeID) String() string {
	if id.IsRoot() {
		return "<root>"
	}
	return fmt.Sprintf("%s#%d", id.File, id.Local)
}

// Position is a source location: 1-based line, 0-based column.
type Position struct {
	Line int
	Col  int
}

// Node is a vertex in a file subgraph.
type Node struct {
	Kind   NodeKind
	Symbol string   // bound name for definitions, looked-up name for references
	Chain  []string // full lookup chain for references, base first
	Pos    Position
}

// OpKind classifies the symbol-stack effect of traversing an edge.
type OpKind int

const (
	OpNone OpKind = iota
	OpPush
	OpPop
)

// StackOp is the optional symbol-stack operation carried by an edge.
type StackOp struct {
	Kind   OpKind
	Symbol string
}

func Push(symbol string) StackOp { return StackOp{Kind: OpPush, Symbol: symbol} }
func Pop(symbol string) StackOp  { return StackOp{Kind: OpPop, Symbol: symbol} }

// Edge precedence bands. Higher wins among competing edges leaving a node.
const (
	PrecDefinition = 100 // a scope's own definitions
	PrecAlias      = 80  // definition -> bound value
	PrecLexical    = 50  // inner scope -> enclosing scope
	PrecBase       = 40  // first superclass; later bases count down from here
	PrecWildcard   = 10  // from m import *
)

// Edge is a directed connection between two nodes.
type Edge struct {
	From       NodeID
	To         NodeID
	Op         StackOp
	Precedence int
}
