package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chazu/ellie/pkg/bytecode"
)

func smallLimits() Limits {
	return Limits{FrameSlots: 4, CallDepth: 3, ProgramSize: 64, StackSlots: 20, ObjectSlots: 8}
}

func TestStackMemoryReadWrite(t *testing.T) {
	m := NewStackMemory(DefaultLimits())
	require.NoError(t, m.Push(0, 9, true))

	_, err := m.Read(3)
	assert.ErrorIs(t, err, NullReference)

	require.NoError(t, m.Write(3, bytecode.Int(5)))
	v, err := m.Read(3)
	require.NoError(t, err)
	assert.Equal(t, bytecode.Int(5), v)

	_, err = m.Read(10)
	assert.ErrorIs(t, err, IllegalAddressingValue)
	assert.ErrorIs(t, m.Write(-1, bytecode.Int(1)), IllegalAddressingValue)
}

func TestStackMemoryInnermostPool(t *testing.T) {
	m := NewStackMemory(DefaultLimits())
	require.NoError(t, m.Push(0, 10, true))
	require.NoError(t, m.Write(3, bytecode.Int(1)))

	require.NoError(t, m.Push(2, 5, false))
	_, err := m.Read(3)
	assert.ErrorIs(t, err, NullReference, "callee pool shadows the caller's slot")
	require.NoError(t, m.Write(3, bytecode.Int(2)))

	// locations outside the callee resolve to the caller
	require.NoError(t, m.Write(8, bytecode.Int(8)))

	m.Pop()
	v, err := m.Read(3)
	require.NoError(t, err)
	assert.Equal(t, bytecode.Int(1), v)
	v, err = m.Read(8)
	require.NoError(t, err)
	assert.Equal(t, bytecode.Int(8), v)
}

func TestStackMemoryLimits(t *testing.T) {
	m := NewStackMemory(smallLimits())

	assert.ErrorIs(t, m.Push(0, 9, false), StackOverflow, "frame larger than FrameSlots")
	require.NoError(t, m.Push(0, 9, true), "main pools are exempt from FrameSlots")
	require.NoError(t, m.Push(0, 3, false))
	require.NoError(t, m.Push(0, 3, false))
	assert.ErrorIs(t, m.Push(0, 3, false), StackOverflow, "call depth")
	assert.Equal(t, 3, m.Depth())
	assert.Equal(t, 18, m.Used())

	m.Pop()
	assert.ErrorIs(t, m.Push(0, 9, true), StackOverflow, "stack slots")
	require.NoError(t, m.Push(0, 1, false))
	assert.Equal(t, 16, m.Used())

	m.Reset()
	assert.Zero(t, m.Depth())
	assert.Zero(t, m.Used())
}

func TestStackMemoryPeek(t *testing.T) {
	m := NewStackMemory(DefaultLimits())
	require.NoError(t, m.Push(0, 10, true))
	require.NoError(t, m.Push(2, 5, false))
	require.NoError(t, m.Write(3, bytecode.String("inner")))

	_, ok := m.Peek(0, 3)
	assert.False(t, ok)
	v, ok := m.Peek(1, 3)
	assert.True(t, ok)
	assert.Equal(t, bytecode.String("inner"), v)
	_, ok = m.Peek(1, 9)
	assert.False(t, ok)
	_, ok = m.Peek(2, 3)
	assert.False(t, ok)
}

func TestHeapMemory(t *testing.T) {
	h := NewHeapMemory()
	a := h.Allocate(1, bytecode.Int(1))
	assert.Equal(t, uint64(1), a)

	arr := h.AllocateBlock(1, []bytecode.Value{bytecode.Int(10), bytecode.Int(20)})
	n, err := h.BlockLen(arr)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	v, err := h.Element(arr, 1)
	require.NoError(t, err)
	assert.Equal(t, bytecode.Int(20), v)
	require.NoError(t, h.SetElement(arr, 0, bytecode.String("x")))
	v, err = h.Element(arr, 0)
	require.NoError(t, err)
	assert.Equal(t, bytecode.String("x"), v)

	_, err = h.Element(arr, 2)
	assert.ErrorIs(t, err, IndexOutOfBounds)
	assert.ErrorIs(t, h.SetElement(arr, -1, bytecode.Null()), IndexOutOfBounds)
	assert.ErrorIs(t, h.Write(arr, bytecode.Int(0)), IllegalAddressingValue)
	_, err = h.BlockLen(a)
	assert.ErrorIs(t, err, UnexpectedType)
	_, err = h.Read(999)
	assert.ErrorIs(t, err, HeapOutOfBounds)
}

func TestHeapRelease(t *testing.T) {
	h := NewHeapMemory()
	h.Allocate(1, bytecode.Int(1))
	h.AllocateBlock(2, []bytecode.Value{bytecode.Int(1), bytecode.Int(2)})
	last := h.Allocate(1, bytecode.Int(3))

	assert.Equal(t, 2, h.Release(1))
	assert.Equal(t, 3, h.Len())
	_, err := h.Read(last)
	assert.ErrorIs(t, err, HeapOutOfBounds)

	// released handles are never reused
	assert.Greater(t, h.Allocate(1, bytecode.Null()), last)
}

func TestLimitsValidate(t *testing.T) {
	require.NoError(t, DefaultLimits().Validate())
	l := DefaultLimits()
	l.CallDepth = 0
	assert.Error(t, l.Validate())
	l = DefaultLimits()
	l.ObjectSlots = 0
	assert.ErrorContains(t, l.Validate(), "object slots")
}
