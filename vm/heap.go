package vm

import "github.com/chazu/ellie/pkg/bytecode"

// ---------------------------------------------------------------------------
// HeapMemory
// ---------------------------------------------------------------------------

// Owner identifies the thread an allocation belongs to.
type Owner uint64

type cell struct {
	v     bytecode.Value
	owner Owner
	block bool // header of a block; v is Int(length)
}

// HeapMemory is the Isolate-wide object store. Handles start at 1 and grow
// monotonically; a released handle is never handed out again.
//
// A block (array, instance or native exception record) of n elements
// occupies n+1 consecutive handles: the header h holds Int(n) and the
// elements live at h+1..h+n.
//
// HeapMemory does no locking of its own. Executors and native callbacks
// reach it only while the owning Isolate is locked.
type HeapMemory struct {
	cells map[uint64]cell
	next  uint64

	// maxBlock caps constructed instances; zero means no ceiling.
	maxBlock int
}

// NewHeapMemory creates an empty heap.
func NewHeapMemory() *HeapMemory {
	return &HeapMemory{cells: make(map[uint64]cell), next: 1}
}

// Allocate stores v in a fresh cell.
func (h *HeapMemory) Allocate(owner Owner, v bytecode.Value) uint64 {
	handle := h.next
	h.next++
	h.cells[handle] = cell{v: v, owner: owner}
	return handle
}

// checkBlock rejects an instance of n fields above the ceiling.
func (h *HeapMemory) checkBlock(n int) error {
	if h.maxBlock > 0 && n > h.maxBlock {
		return newPanic(HeapOutOfBounds, "instance of %d fields exceeds %d", n, h.maxBlock)
	}
	return nil
}

// AllocateBlock stores elems as one block and returns the header handle.
func (h *HeapMemory) AllocateBlock(owner Owner, elems []bytecode.Value) uint64 {
	handle := h.next
	h.cells[handle] = cell{v: bytecode.Int(int64(len(elems))), owner: owner, block: true}
	for i, v := range elems {
		h.cells[handle+1+uint64(i)] = cell{v: v, owner: owner}
	}
	h.next += uint64(len(elems)) + 1
	return handle
}

// Read returns the value at handle.
func (h *HeapMemory) Read(handle uint64) (bytecode.Value, error) {
	c, ok := h.cells[handle]
	if !ok {
		return bytecode.Value{}, newPanic(HeapOutOfBounds, "handle %d", handle)
	}
	return c.v, nil
}

// Write replaces the value at an existing handle.
func (h *HeapMemory) Write(handle uint64, v bytecode.Value) error {
	c, ok := h.cells[handle]
	if !ok {
		return newPanic(HeapOutOfBounds, "handle %d", handle)
	}
	if c.block {
		return newPanic(IllegalAddressingValue, "handle %d is a block header", handle)
	}
	c.v = v
	h.cells[handle] = c
	return nil
}

// BlockLen returns the element count of the block at handle.
func (h *HeapMemory) BlockLen(handle uint64) (int, error) {
	c, ok := h.cells[handle]
	if !ok {
		return 0, newPanic(HeapOutOfBounds, "handle %d", handle)
	}
	if !c.block {
		return 0, newPanic(UnexpectedType, "handle %d is not an array or object", handle)
	}
	n, _ := c.v.AsInt()
	return int(n), nil
}

// Element returns element i of the block at handle.
func (h *HeapMemory) Element(handle uint64, i int) (bytecode.Value, error) {
	n, err := h.BlockLen(handle)
	if err != nil {
		return bytecode.Value{}, err
	}
	if i < 0 || i >= n {
		return bytecode.Value{}, newPanic(IndexOutOfBounds, "index %d of %d", i, n)
	}
	return h.Read(handle + 1 + uint64(i))
}

// SetElement replaces element i of the block at handle.
func (h *HeapMemory) SetElement(handle uint64, i int, v bytecode.Value) error {
	n, err := h.BlockLen(handle)
	if err != nil {
		return err
	}
	if i < 0 || i >= n {
		return newPanic(IndexOutOfBounds, "index %d of %d", i, n)
	}
	return h.Write(handle+1+uint64(i), v)
}

// Release frees every cell owned by owner and returns how many were freed.
func (h *HeapMemory) Release(owner Owner) int {
	n := 0
	for handle, c := range h.cells {
		if c.owner == owner {
			delete(h.cells, handle)
			n++
		}
	}
	return n
}

// Len returns the number of live cells.
func (h *HeapMemory) Len() int { return len(h.cells) }
