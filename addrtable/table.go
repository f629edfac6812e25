// Package addrtable maps 32-bit guest dispatch keys to host code addresses.
//
// The table is a fixed-depth radix tree stored outside the Go heap so that
// translated code can walk it directly: every interior slot holds the host
// address of the next node, every leaf slot holds the host entry address of a
// translated unit, and zero means absent. Lookups are lock free; inserts
// serialize node allocation and publish leaves with compare-and-swap, so the
// first writer of a key wins.
package addrtable

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Level is one radix level: the index is key>>Shift masked to Bits bits.
type Level struct {
	Shift uint
	Bits  uint
}

func (l Level) index(key uint32) uintptr {
	return uintptr(key>>l.Shift) & (1<<l.Bits - 1)
}

func (l Level) Mask() uint32 {
	return 1<<l.Bits - 1
}

// DefaultLevels splits a key 10/10/12.
var DefaultLevels = []Level{{Shift: 22, Bits: 10}, {Shift: 12, Bits: 10}, {Shift: 0, Bits: 12}}

// Table is a concurrent key to entry map readable by native code.
type Table struct {
	levels []Level
	arena  *arena
	root   uintptr

	mu     sync.Mutex // node allocation
	count  atomic.Int64
	closed atomic.Bool
}

// ValidateLevels checks that levels tile the 32-bit key from the top bit
// down, with the last level at bit 0.
func ValidateLevels(levels []Level) error {
	if len(levels) == 0 {
		return fmt.Errorf("addrtable: no levels")
	}
	next := uint(32)
	for i, l := range levels {
		if l.Bits == 0 || l.Bits > 16 {
			return fmt.Errorf("addrtable: level %d has %d bits", i, l.Bits)
		}
		if l.Shift+l.Bits != next {
			return fmt.Errorf("addrtable: level %d covers bits %d..%d, want top bit %d", i, l.Shift, l.Shift+l.Bits-1, next-1)
		}
		next = l.Shift
	}
	if next != 0 {
		return fmt.Errorf("addrtable: levels stop at bit %d", next)
	}
	return nil
}

// New allocates an empty table with the root node in place.
func New(levels []Level) (*Table, error) {
	if err := ValidateLevels(levels); err != nil {
		return nil, err
	}
	t := &Table{levels: append([]Level(nil), levels...), arena: newArena()}
	root, err := t.arena.alloc(nodeSize(levels[0]))
	if err != nil {
		return nil, err
	}
	t.root = root
	return t, nil
}

func nodeSize(l Level) uintptr {
	return 8 << l.Bits
}

func slotAt(node uintptr, l Level, key uint32) *uint64 {
	return (*uint64)(unsafe.Pointer(node + l.index(key)*8))
}

func (t *Table) Levels() []Level {
	return append([]Level(nil), t.levels...)
}

// Root is the host address of the root node.
func (t *Table) Root() uintptr {
	return t.root
}

func (t *Table) Len() int {
	return int(t.count.Load())
}

// Lookup returns the entry for key, or 0.
func (t *Table) Lookup(key uint32) uintptr {
	if t.closed.Load() {
		return 0
	}
	node := t.root
	for _, l := range t.levels {
		v := atomic.LoadUint64(slotAt(node, l, key))
		if v == 0 {
			return 0
		}
		node = uintptr(v)
	}
	return node
}

// leafSlot walks to the leaf slot of key, allocating interior nodes when
// create is set. It returns nil when a node is missing and create is false.
func (t *Table) leafSlot(key uint32, create bool) (*uint64, error) {
	node := t.root
	last := len(t.levels) - 1
	for i, l := range t.levels[:last] {
		slot := slotAt(node, l, key)
		next := atomic.LoadUint64(slot)
		if next == 0 {
			if !create {
				return nil, nil
			}
			t.mu.Lock()
			next = atomic.LoadUint64(slot)
			if next == 0 {
				child, err := t.arena.alloc(nodeSize(t.levels[i+1]))
				if err != nil {
					t.mu.Unlock()
					return nil, err
				}
				atomic.StoreUint64(slot, uint64(child))
				next = uint64(child)
			}
			t.mu.Unlock()
		}
		node = uintptr(next)
	}
	return slotAt(node, t.levels[last], key), nil
}

// Insert publishes entry under key unless the key already has one. It
// returns the entry that is installed afterwards and whether it is ours.
func (t *Table) Insert(key uint32, entry uintptr) (uintptr, bool, error) {
	if entry == 0 {
		return 0, false, fmt.Errorf("addrtable: zero entry for key %#x", key)
	}
	if t.closed.Load() {
		return 0, false, fmt.Errorf("addrtable: table closed")
	}
	slot, err := t.leafSlot(key, true)
	if err != nil {
		return 0, false, err
	}
	for {
		if atomic.CompareAndSwapUint64(slot, 0, uint64(entry)) {
			t.count.Add(1)
			return entry, true, nil
		}
		if cur := atomic.LoadUint64(slot); cur != 0 {
			return uintptr(cur), false, nil
		}
	}
}

// Remove clears key and returns the entry it held, or 0.
func (t *Table) Remove(key uint32) uintptr {
	if t.closed.Load() {
		return 0
	}
	slot, _ := t.leafSlot(key, false)
	if slot == nil {
		return 0
	}
	old := atomic.SwapUint64(slot, 0)
	if old != 0 {
		t.count.Add(-1)
	}
	return uintptr(old)
}

// RemoveIf clears key only while it still holds entry.
func (t *Table) RemoveIf(key uint32, entry uintptr) bool {
	if t.closed.Load() {
		return false
	}
	slot, _ := t.leafSlot(key, false)
	if slot == nil {
		return false
	}
	if atomic.CompareAndSwapUint64(slot, uint64(entry), 0) {
		t.count.Add(-1)
		return true
	}
	return false
}

// Walk calls fn for every installed key in ascending order until fn returns
// false. Concurrent inserts may or may not be observed.
func (t *Table) Walk(fn func(key uint32, entry uintptr) bool) {
	if t.closed.Load() {
		return
	}
	t.walk(t.root, 0, 0, fn)
}

func (t *Table) walk(node uintptr, depth int, prefix uint32, fn func(uint32, uintptr) bool) bool {
	l := t.levels[depth]
	for i := uint32(0); i <= l.Mask(); i++ {
		key := prefix | i<<l.Shift
		v := atomic.LoadUint64(slotAt(node, l, key))
		if v == 0 {
			continue
		}
		if depth == len(t.levels)-1 {
			if !fn(key, uintptr(v)) {
				return false
			}
			continue
		}
		if !t.walk(uintptr(v), depth+1, key, fn) {
			return false
		}
	}
	return true
}

// Stats reports node and memory usage.
type Stats struct {
	Entries int
	Nodes   int
	Bytes   int
}

func (t *Table) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{Entries: t.Len(), Nodes: t.arena.nodes, Bytes: t.arena.used}
}

// Close releases the node memory. Native code must no longer walk the table.
func (t *Table) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.arena.release()
}
