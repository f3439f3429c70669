package vm

import "github.com/chazu/ellie/pkg/bytecode"

// ---------------------------------------------------------------------------
// StackMemory: per-frame slot pools
// ---------------------------------------------------------------------------

type slot struct {
	v   bytecode.Value
	set bool
}

// pool holds the slots of one frame. Slot i belongs to location base+i.
type pool struct {
	base  int
	end   int
	slots []slot
}

func (p *pool) contains(loc int) bool { return loc >= p.base && loc <= p.end }

// StackMemory is the slot storage of one Thread. Each live frame owns a pool
// covering its instruction range; a location resolves to the innermost pool
// containing it, so recursive activations never share locals.
type StackMemory struct {
	pools  []*pool
	used   int
	limits Limits
}

// NewStackMemory creates an empty StackMemory bounded by limits.
func NewStackMemory(limits Limits) *StackMemory {
	return &StackMemory{limits: limits}
}

// Push opens a pool for [base, end]. main pools are exempt from FrameSlots.
func (m *StackMemory) Push(base, end int, main bool) error {
	size := end - base + 1
	if size <= 0 {
		return newPanic(IllegalAddressingValue, "empty frame range [%d, %d]", base, end)
	}
	if !main && size > m.limits.FrameSlots {
		return newPanic(StackOverflow, "frame of %d slots exceeds %d", size, m.limits.FrameSlots)
	}
	if len(m.pools) >= m.limits.CallDepth {
		return newPanic(StackOverflow, "call depth %d reached", m.limits.CallDepth)
	}
	if m.used+size > m.limits.StackSlots {
		return newPanic(StackOverflow, "stack slots exhausted (%d in use, %d requested)", m.used, size)
	}
	m.pools = append(m.pools, &pool{base: base, end: end, slots: make([]slot, size)})
	m.used += size
	return nil
}

// Pop discards the innermost pool.
func (m *StackMemory) Pop() {
	if len(m.pools) == 0 {
		return
	}
	top := m.pools[len(m.pools)-1]
	m.pools[len(m.pools)-1] = nil
	m.pools = m.pools[:len(m.pools)-1]
	m.used -= len(top.slots)
}

// Depth returns the number of live pools.
func (m *StackMemory) Depth() int { return len(m.pools) }

// Used returns the number of slots held by live pools.
func (m *StackMemory) Used() int { return m.used }

func (m *StackMemory) find(loc int) *pool {
	for i := len(m.pools) - 1; i >= 0; i-- {
		if m.pools[i].contains(loc) {
			return m.pools[i]
		}
	}
	return nil
}

// Read returns the value stored at loc.
func (m *StackMemory) Read(loc int) (bytecode.Value, error) {
	p := m.find(loc)
	if p == nil {
		return bytecode.Value{}, newPanic(IllegalAddressingValue, "location %d is outside every live frame", loc)
	}
	s := p.slots[loc-p.base]
	if !s.set {
		return bytecode.Value{}, newPanic(NullReference, "slot %d read before it was written", loc)
	}
	return s.v, nil
}

// Write stores v at loc.
func (m *StackMemory) Write(loc int, v bytecode.Value) error {
	p := m.find(loc)
	if p == nil {
		return newPanic(IllegalAddressingValue, "location %d is outside every live frame", loc)
	}
	p.slots[loc-p.base] = slot{v: v, set: true}
	return nil
}

// Peek reads loc from the pool at depth without resolving through other
// pools. It is used for inspection and never fails.
func (m *StackMemory) Peek(depth, loc int) (bytecode.Value, bool) {
	if depth < 0 || depth >= len(m.pools) {
		return bytecode.Value{}, false
	}
	p := m.pools[depth]
	if !p.contains(loc) {
		return bytecode.Value{}, false
	}
	s := p.slots[loc-p.base]
	return s.v, s.set
}

// Reset drops every pool.
func (m *StackMemory) Reset() {
	for i := range m.pools {
		m.pools[i] = nil
	}
	m.pools = m.pools[:0]
	m.used = 0
}
