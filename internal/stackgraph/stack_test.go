package stackgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStack(t *testing.T) {
	s := NewStack([]string{"a", "c", "b"})
	assert.Equal(t, SymbolStack{"b", "c", "a"}, s)

	top, ok := s.Top()
	require.True(t, ok)
	assert.Equal(t, "a", top, "the chain's base symbol resolves first")

	assert.True(t, NewStack(nil).Empty())
}

func TestStackApply(t *testing.T) {
	t.Run("push then matching pop round-trips", func(t *testing.T) {
		s := SymbolStack{"x"}
		s2, ok, err := s.Apply(Push("y"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, SymbolStack{"x", "y"}, s2)
		assert.Equal(t, SymbolStack{"x"}, s, "stacks are immutable")

		s3, ok, err := s2.Apply(Pop("y"))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, SymbolStack{"x"}, s3)
	})

	t.Run("mismatched pop is a dead end, not an error", func(t *testing.T) {
		s := SymbolStack{"x"}
		_, ok, err := s.Apply(Pop("y"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("pop on empty stack is a dead end", func(t *testing.T) {
		_, ok, err := SymbolStack{}.Apply(Pop("x"))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("none leaves the stack alone", func(t *testing.T) {
		s := SymbolStack{"x"}
		s2, ok, err := s.Apply(StackOp{})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, s, s2)
	})

	t.Run("empty symbol is malformed", func(t *testing.T) {
		_, _, err := SymbolStack{}.Apply(StackOp{Kind: OpPush})
		assert.ErrorIs(t, err, ErrMalformedStack)

		_, _, err = SymbolStack{"x"}.Apply(StackOp{Kind: OpPop})
		assert.ErrorIs(t, err, ErrMalformedStack)
	})

	t.Run("unknown op kind is malformed", func(t *testing.T) {
		_, _, err := SymbolStack{}.Apply(StackOp{Kind: OpKind(99), Symbol: "x"})
		assert.ErrorIs(t, err, ErrMalformedStack)
	})
}

func TestStackKey(t *testing.T) {
	assert.Equal(t, SymbolStack{"a", "b"}.Key(), SymbolStack{"a", "b"}.Key())
	assert.NotEqual(t, SymbolStack{"a", "b"}.Key(), SymbolStack{"b", "a"}.Key())
	assert.NotEqual(t, SymbolStack{"ab"}.Key(), SymbolStack{"a", "b"}.Key())
	assert.Empty(t, SymbolStack{}.Key())
}
