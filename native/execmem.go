package native

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/colorfulnotion/armjit/jiterrors"
)

// codeAlign keeps every allocation on a cache line.
const codeAlign = 64

// ExecutableMemory is a bump-allocated arena for translated code. Code is
// written once before its address is published and never moved or freed
// individually.
type ExecutableMemory struct {
	mu     sync.Mutex
	buffer []byte
	used   int
	unmap  func([]byte) error
}

// Allocate copies code into the arena and returns its host address.
func (em *ExecutableMemory) Allocate(code []byte) (uintptr, error) {
	em.mu.Lock()
	defer em.mu.Unlock()
	if em.buffer == nil {
		return 0, jiterrors.ErrClosed
	}
	start := (em.used + codeAlign - 1) &^ (codeAlign - 1)
	if start+len(code) > len(em.buffer) {
		return 0, fmt.Errorf("%w: need %d bytes, %d free", jiterrors.ErrCodeMemoryFull, len(code), len(em.buffer)-start)
	}
	copy(em.buffer[start:], code)
	em.used = start + len(code)
	return uintptr(unsafe.Pointer(&em.buffer[start])), nil
}

// Bytes returns a copy of size bytes at addr.
func (em *ExecutableMemory) Bytes(addr uintptr, size int) []byte {
	em.mu.Lock()
	defer em.mu.Unlock()
	start, end := em.bounds()
	if addr < start || addr+uintptr(size) > end {
		return nil
	}
	off := int(addr - start)
	out := make([]byte, size)
	copy(out, em.buffer[off:off+size])
	return out
}

func (em *ExecutableMemory) bounds() (start, end uintptr) {
	if len(em.buffer) == 0 {
		return 0, 0
	}
	start = uintptr(unsafe.Pointer(&em.buffer[0]))
	return start, start + uintptr(len(em.buffer))
}

// Bounds returns the host address range of the arena.
func (em *ExecutableMemory) Bounds() (start, end uintptr) {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.bounds()
}

func (em *ExecutableMemory) Used() int {
	em.mu.Lock()
	defer em.mu.Unlock()
	return em.used
}

func (em *ExecutableMemory) Capacity() int {
	em.mu.Lock()
	defer em.mu.Unlock()
	return len(em.buffer)
}

// Free releases the arena. Code allocated from it must no longer run.
func (em *ExecutableMemory) Free() error {
	em.mu.Lock()
	defer em.mu.Unlock()
	if em.buffer == nil {
		return nil
	}
	var err error
	if em.unmap != nil {
		err = em.unmap(em.buffer)
	}
	em.buffer = nil
	em.used = 0
	return err
}
