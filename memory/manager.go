// Package memory owns the host address space that backs guest memory.
//
// A Manager reserves one contiguous host region and maps views of a shared
// backing block into it. Guest virtual addresses handed to the Manager are
// host addresses inside the reservation, so translated code reaches guest
// memory with a single base+offset add and no software checks: host page
// protection is the only access check. Protection traps are resolved by the
// Tracking and FaultHandler types in this package.
//
// Lock order: Manager.mu, then Tracking.mu, then Manager.protMu. Every host
// protection change, caller driven or tracking driven, is serialized on
// protMu, so overlapping Reprotect and TrackingReprotect calls apply in the
// order they acquire it and the last one wins on the host.
package memory

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"

	"github.com/colorfulnotion/armjit/jiterrors"
	"github.com/colorfulnotion/armjit/log"
)

// Mapping is one mapped range: VA is a manager virtual address, PA an offset
// into the backing block.
type Mapping struct {
	VA    uint64
	Size  uint64
	PA    uint64
	Flags MapFlags
}

func (m Mapping) End() uint64 {
	return m.VA + m.Size
}

func (m Mapping) String() string {
	return fmt.Sprintf("%#x-%#x -> %#x", m.VA, m.End(), m.PA)
}

// UnmapFunc observes an Unmap before any state is removed. It runs with the
// manager's structural lock held and must not call Map, Unmap or Close.
type UnmapFunc func(va, size uint64)

type unmapSubscriber struct {
	id uint64
	fn UnmapFunc
}

// Manager is the native memory manager.
type Manager struct {
	block    *Block
	base     uint64
	size     uint64
	tracking *Tracking
	faults   *FaultHandler

	mu       sync.RWMutex
	mappings []Mapping
	pt       *pageTable
	closed   atomic.Bool

	protMu sync.Mutex

	subMu  sync.Mutex
	subs   []unmapSubscriber
	nextID uint64

	closeOnce sync.Once
	closeErr  error
}

// NewManager reserves spaceSize bytes of address space backed by backingSize
// bytes of memory.
func NewManager(spaceSize, backingSize uint64) (*Manager, error) {
	block, err := NewBlock(spaceSize, backingSize)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		block: block,
		base:  uint64(block.Base()),
		size:  block.Size(),
		pt:    newPageTable(block.Size()),
	}
	m.tracking = newTracking(m.TrackingReprotect)
	m.faults = newFaultHandler(m)
	log.Debug(log.MemoryMonitoring, "memory manager created", "base", fmt.Sprintf("%#x", m.base), "size", spaceSize, "backing", backingSize)
	return m, nil
}

// ReservedSize is the lowest valid virtual address: the host address of
// guest address zero.
func (m *Manager) ReservedSize() uint64 {
	return m.base
}

// AddressSpaceSize is the size of the reservation.
func (m *Manager) AddressSpaceSize() uint64 {
	return m.size
}

func (m *Manager) BackingSize() uint64 {
	return m.block.BackingSize()
}

// Supports4KBPages reports whether the host page size matches PageSize.
func (m *Manager) Supports4KBPages() bool {
	return os.Getpagesize() == PageSize
}

func (m *Manager) Tracking() *Tracking {
	return m.tracking
}

func (m *Manager) FaultHandler() *FaultHandler {
	return m.faults
}

// VirtualAddress converts a 32-bit guest address to a manager virtual address.
func (m *Manager) VirtualAddress(guest uint32) uint64 {
	return m.base + uint64(guest)
}

// AddressToOffset returns the offset of va inside the reservation.
func (m *Manager) AddressToOffset(va uint64) (uint64, error) {
	if va < m.base || va-m.base >= m.size {
		return 0, fmt.Errorf("%w: %#x", jiterrors.ErrInvalidAddress, va)
	}
	return va - m.base, nil
}

func (m *Manager) validate(va, size uint64) (uint64, error) {
	if va < m.base {
		return 0, fmt.Errorf("%w: %#x below reserved size %#x", jiterrors.ErrInvalidAddress, va, m.base)
	}
	if size == 0 || !pageAligned(va) || !pageAligned(size) {
		return 0, fmt.Errorf("%w: va %#x size %#x", jiterrors.ErrMisaligned, va, size)
	}
	off := va - m.base
	if off+size < off || off+size > m.size {
		return 0, fmt.Errorf("%w: %#x+%#x outside address space", jiterrors.ErrInvalidAddress, va, size)
	}
	return off, nil
}

func (m *Manager) overlapping(va, size uint64) (lo, hi int) {
	end := va + size
	lo, _ = slices.BinarySearchFunc(m.mappings, va, func(mp Mapping, v uint64) int {
		if mp.End() <= v {
			return -1
		}
		return 1
	})
	hi = lo
	for hi < len(m.mappings) && m.mappings[hi].VA < end {
		hi++
	}
	return lo, hi
}

// Map creates a view of backing[pa:pa+size] at va.
func (m *Manager) Map(va, pa, size uint64, flags MapFlags) error {
	off, err := m.validate(va, size)
	if err != nil {
		return err
	}
	if !pageAligned(pa) {
		return fmt.Errorf("%w: backing offset %#x", jiterrors.ErrMisaligned, pa)
	}
	if pa+size < pa || pa+size > m.block.BackingSize() {
		return fmt.Errorf("%w: backing range %#x+%#x", jiterrors.ErrInvalidAddress, pa, size)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed.Load() {
		return jiterrors.ErrClosed
	}
	if lo, hi := m.overlapping(va, size); lo != hi {
		return fmt.Errorf("%w: %#x+%#x overlaps %s", jiterrors.ErrAlreadyMapped, va, size, m.mappings[lo])
	}
	perm := PermReadWrite
	if flags&MapReadOnly != 0 {
		perm = PermReadOnly
	}
	m.protMu.Lock()
	err = m.block.MapView(off, pa, size, perm, flags&MapPrivate != 0)
	m.protMu.Unlock()
	if err != nil {
		return err
	}

	lo, _ := m.overlapping(va, size)
	m.mappings = slices.Insert(m.mappings, lo, Mapping{VA: va, Size: size, PA: pa, Flags: flags})
	m.pt.mapRange(off, pa, size)
	m.tracking.Map(va, size, perm)
	log.Debug(log.MemoryMonitoring, "map", "va", fmt.Sprintf("%#x", va), "pa", fmt.Sprintf("%#x", pa), "size", size, "perm", perm)
	return nil
}

// SubscribeUnmap registers fn for unmap notifications. Subscribers run in
// registration order. The returned function removes the subscription.
func (m *Manager) SubscribeUnmap(fn UnmapFunc) func() {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.nextID++
	id := m.nextID
	m.subs = append(m.subs, unmapSubscriber{id: id, fn: fn})
	return func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		m.subs = slices.DeleteFunc(m.subs, func(s unmapSubscriber) bool { return s.id == id })
	}
}

func (m *Manager) notifyUnmap(va, size uint64) {
	m.subMu.Lock()
	subs := slices.Clone(m.subs)
	m.subMu.Unlock()
	for _, s := range subs {
		s.fn(va, size)
	}
}

// Unmap removes [va, va+size). Subscribers are notified once with the exact
// range before tracking, the page table or the host view change, even when
// nothing in the range is mapped. If the host view cannot be removed the
// bookkeeping is left untouched.
func (m *Manager) Unmap(va, size uint64) error {
	off, err := m.validate(va, size)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed.Load() {
		return jiterrors.ErrClosed
	}
	m.notifyUnmap(va, size)

	m.protMu.Lock()
	err = m.block.UnmapView(off, size)
	m.protMu.Unlock()
	if err != nil {
		return err
	}

	m.tracking.Unmap(va, size)
	end := va + size
	lo, hi := m.overlapping(va, size)
	var keep []Mapping
	for _, mp := range m.mappings[lo:hi] {
		if mp.VA < va {
			keep = append(keep, Mapping{VA: mp.VA, Size: va - mp.VA, PA: mp.PA, Flags: mp.Flags})
		}
		if mp.End() > end {
			keep = append(keep, Mapping{VA: end, Size: mp.End() - end, PA: mp.PA + (end - mp.VA), Flags: mp.Flags})
		}
	}
	m.mappings = slices.Replace(m.mappings, lo, hi, keep...)
	m.pt.unmapRange(off, size)
	log.Debug(log.MemoryMonitoring, "unmap", "va", fmt.Sprintf("%#x", va), "size", size, "removed", hi-lo)
	return nil
}

func (m *Manager) fullyMapped(va, size uint64) bool {
	lo, hi := m.overlapping(va, size)
	next := va
	for _, mp := range m.mappings[lo:hi] {
		if mp.VA > next {
			return false
		}
		next = mp.End()
	}
	return next >= va+size
}

// Reprotect changes the host protection of a mapped range on behalf of the
// caller. Tracking bookkeeping is left alone.
func (m *Manager) Reprotect(va, size uint64, perm Permission) error {
	off, err := m.validate(va, size)
	if err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed.Load() {
		return jiterrors.ErrClosed
	}
	if !m.fullyMapped(va, size) {
		return fmt.Errorf("%w: %#x+%#x is not fully mapped", jiterrors.ErrInvalidAddress, va, size)
	}
	m.protMu.Lock()
	defer m.protMu.Unlock()
	log.Trace(log.MemoryMonitoring, "reprotect", "va", fmt.Sprintf("%#x", va), "size", size, "perm", perm)
	return m.block.Reprotect(off, size, perm)
}

// TrackingReprotect changes host protection for Tracking. It takes neither
// the structural lock nor the tracking lock, so it is safe from the fault
// path.
func (m *Manager) TrackingReprotect(va, size uint64, perm Permission) error {
	off, err := m.validate(va, size)
	if err != nil {
		return err
	}
	if m.closed.Load() {
		return jiterrors.ErrClosed
	}
	m.protMu.Lock()
	defer m.protMu.Unlock()
	log.Trace(log.TrackingMonitoring, "tracking reprotect", "va", fmt.Sprintf("%#x", va), "size", size, "perm", perm)
	return m.block.Reprotect(off, size, perm)
}

// Translate returns the backing offset of va.
func (m *Manager) Translate(va uint64) (uint64, bool) {
	off, err := m.AddressToOffset(va)
	if err != nil {
		return 0, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed.Load() {
		return 0, false
	}
	return m.pt.lookup(off)
}

func (m *Manager) IsMapped(va uint64) bool {
	_, ok := m.Translate(va)
	return ok
}

// Mappings returns the current mappings in address order.
func (m *Manager) Mappings() []Mapping {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.mappings)
}

// Close releases the address space and backing. Remaining mappings go away
// without unmap notifications. Later calls return the first result.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.closed.Store(true)
		m.faults.SetInvalidAccessHandler(nil)
		m.tracking.close()
		m.protMu.Lock()
		m.closeErr = m.block.Close()
		m.protMu.Unlock()
		n := len(m.mappings)
		m.mappings = nil
		m.pt = newPageTable(0)
		log.Debug(log.MemoryMonitoring, "memory manager closed", "mappings", n)
	})
	return m.closeErr
}

// HandleFault resolves a host trap at addr raised by translated code.
func (m *Manager) HandleFault(addr uintptr, write bool) Verdict {
	kind := AccessRead
	if write {
		kind = AccessWrite
	}
	return m.faults.Handle(addr, kind)
}

// SetInvalidAccessHandler installs the callback consulted for faults that
// Tracking cannot explain. nil removes it.
func (m *Manager) SetInvalidAccessHandler(fn InvalidAccessFunc) {
	m.faults.SetInvalidAccessHandler(fn)
}

func (m *Manager) contains(addr uint64) bool {
	return addr >= m.base && addr-m.base < m.size
}
