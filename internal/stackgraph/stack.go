package stackgraph

import (
	"fmt"
	"strings"
)

// SymbolStack is the ordered sequence of pending lookup symbols along a
// path. The top of the stack is the last element. Stacks are treated as
// immutable: every operation returns a fresh slice.
type SymbolStack []string

// NewStack builds a stack whose top is the first symbol of the chain, so a
// reference chain [a, c, b] becomes a stack that resolves a first.
func NewStack(chain []string) SymbolStack {
	s := make(SymbolStack, len(chain))
	for i, sym := range chain {
		s[len(chain)-1-i] = sym
	}
	return s
}

func (s SymbolStack) Empty() bool {
	return len(s) == 0
}

func (s SymbolStack) Top() (string, bool) {
	if len(s) == 0 {
		return "", false
	}
	return s[len(s)-1], true
}

// Apply runs a stack operation. The boolean reports whether the path
// remains viable: a pop whose symbol does not match the current top is a
// dead end, not an error. Operations that are internally inconsistent
// (empty symbol, unknown kind) fail with ErrMalformedStack.
func (s SymbolStack) Apply(op StackOp) (SymbolStack, bool, error) {
	switch op.Kind {
	case OpNone:
		return s, true, nil
	case OpPush:
		if op.Symbol == "" {
			return nil, false, fmt.Errorf("%w: push with empty symbol", ErrMalformedStack)
		}
		next := make(SymbolStack, len(s)+1)
		copy(next, s)
		next[len(s)] = op.Symbol
		return next, true, nil
	case OpPop:
		if op.Symbol == "" {
			return nil, false, fmt.Errorf("%w: pop with empty symbol", ErrMalformedStack)
		}
		top, ok := s.Top()
		if !ok || top != op.Symbol {
			return s, false, nil
		}
		return s[:len(s)-1], true, nil
	}
	return nil, false, fmt.Errorf("%w: unknown op kind %d", ErrMalformedStack, op.Kind)
}

// Key returns a canonical encoding used by visited-state guards.
func (s SymbolStack) Key() string {
	return strings.Join(s, "\x1f")
}
