package memory

import (
	"encoding/binary"
	"fmt"
	"runtime/debug"

	"github.com/colorfulnotion/armjit/jiterrors"
)

// maxFaultRetries bounds how often a managed access may be resumed after
// faulting on the same page in a row. A fault on a new page resets it.
const maxFaultRetries = 8

// tryAccess runs fn and converts a memory fault inside it into the faulting
// address.
func tryAccess(fn func()) (addr uintptr, faulted bool) {
	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(interface{ Addr() uintptr }); ok {
				addr, faulted = e.Addr(), true
				return
			}
			panic(r)
		}
	}()
	fn()
	return 0, false
}

// The copies below move eight bytes at a time with plain loads and stores so
// that a trap is raised in this package rather than inside the runtime.

func copyFromGuest(dst, src []byte) {
	i := 0
	for ; i+8 <= len(dst); i += 8 {
		binary.LittleEndian.PutUint64(dst[i:], binary.LittleEndian.Uint64(src[i:]))
	}
	for ; i < len(dst); i++ {
		dst[i] = src[i]
	}
}

func copyToGuest(dst, src []byte) {
	i := 0
	for ; i+8 <= len(src); i += 8 {
		binary.LittleEndian.PutUint64(dst[i:], binary.LittleEndian.Uint64(src[i:]))
	}
	for ; i < len(src); i++ {
		dst[i] = src[i]
	}
}

// access runs fn over guest memory [va, va+n), resolving traps through
// resolve until fn completes or resolution gives up.
func (m *Manager) access(va uint64, n int, kind AccessKind, resolve func(addr uintptr, kind AccessKind) Verdict, fn func(mem []byte)) error {
	if m.closed.Load() {
		return jiterrors.ErrClosed
	}
	off, err := m.AddressToOffset(va)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	if off+uint64(n) > m.size {
		return fmt.Errorf("%w: %#x+%d outside address space", jiterrors.ErrInvalidAddress, va, n)
	}
	mem := m.block.Bytes()[off : off+uint64(n)]
	lastPage, retries := ^uint64(0), 0
	for {
		addr, faulted := tryAccess(func() { fn(mem) })
		if !faulted {
			return nil
		}
		v := resolve(addr, kind)
		if v != VerdictRetry {
			return fmt.Errorf("%w: %s at %#x (%s)", jiterrors.ErrInvalidAccess, kind, addr, v)
		}
		if page := pageFloor(uint64(addr)); page != lastPage {
			lastPage, retries = page, 1
		} else if retries++; retries > maxFaultRetries {
			return fmt.Errorf("%w: %s at %#x keeps faulting", jiterrors.ErrInvalidAccess, kind, addr)
		}
	}
}

// Read copies guest memory at va into dst.
func (m *Manager) Read(va uint64, dst []byte) error {
	return m.access(va, len(dst), AccessRead, m.faults.Handle, func(mem []byte) {
		copyFromGuest(dst, mem)
	})
}

// Write copies src into guest memory at va.
func (m *Manager) Write(va uint64, src []byte) error {
	return m.access(va, len(src), AccessWrite, m.faults.Handle, func(mem []byte) {
		copyToGuest(mem, src)
	})
}

func (m *Manager) ReadUint32(va uint64) (uint32, error) {
	var v uint32
	err := m.access(va, 4, AccessRead, m.faults.Handle, func(mem []byte) {
		v = binary.LittleEndian.Uint32(mem)
	})
	return v, err
}

func (m *Manager) ReadUint16(va uint64) (uint16, error) {
	var v uint16
	err := m.access(va, 2, AccessRead, m.faults.Handle, func(mem []byte) {
		v = binary.LittleEndian.Uint16(mem)
	})
	return v, err
}

func (m *Manager) WriteUint32(va uint64, v uint32) error {
	return m.access(va, 4, AccessWrite, m.faults.Handle, func(mem []byte) {
		binary.LittleEndian.PutUint32(mem, v)
	})
}

// Fetch reads guest instruction bytes at a 32-bit guest address. Soft faults
// are resolved; anything else fails without consulting the invalid-access
// callback.
func (m *Manager) Fetch(addr uint32, dst []byte) error {
	return m.access(m.VirtualAddress(addr), len(dst), AccessExecute, m.resolveSoft, func(mem []byte) {
		copyFromGuest(dst, mem)
	})
}

func (m *Manager) resolveSoft(addr uintptr, kind AccessKind) Verdict {
	if m.contains(uint64(addr)) && m.tracking.VirtualMemoryEvent(uint64(addr), kind) {
		return VerdictRetry
	}
	return VerdictFatal
}
