//go:build linux

package memory

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/colorfulnotion/armjit/jiterrors"
)

// guardSize is reserved PROT_NONE past the end of the reservation so that a
// multi-byte guest access starting just below 4GiB traps instead of reaching
// whatever the host mapped next.
const guardSize = PageSize

// Block is the host side of guest memory: one PROT_NONE reservation plus a
// memfd backing that views are mapped from.
type Block struct {
	mem         []byte // the usable reservation
	full        []byte // mem plus the guard
	base        uintptr
	backingFD   int
	backingSize uint64
}

func hostProt(p Permission) int {
	prot := unix.PROT_NONE
	if p.Has(PermRead) {
		prot |= unix.PROT_READ
	}
	if p.Has(PermWrite) {
		prot |= unix.PROT_READ | unix.PROT_WRITE
	}
	return prot
}

// NewBlock reserves reserve bytes of address space and creates backing bytes
// of shared backing memory.
func NewBlock(reserve, backing uint64) (*Block, error) {
	if !pageAligned(reserve) || !pageAligned(backing) || reserve == 0 || backing == 0 {
		return nil, jiterrors.ErrMisaligned
	}
	full, err := unix.Mmap(-1, 0, int(reserve+guardSize), unix.PROT_NONE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE)
	if err != nil {
		return nil, fmt.Errorf("%w: reserve %d bytes: %v", jiterrors.ErrAllocationFailure, reserve, err)
	}
	mem := full[:reserve:reserve]
	fd, err := unix.MemfdCreate("armjit-backing", unix.MFD_CLOEXEC)
	if err != nil {
		unix.Munmap(full)
		return nil, fmt.Errorf("%w: memfd: %v", jiterrors.ErrAllocationFailure, err)
	}
	if err := unix.Ftruncate(fd, int64(backing)); err != nil {
		unix.Close(fd)
		unix.Munmap(full)
		return nil, fmt.Errorf("%w: size backing to %d bytes: %v", jiterrors.ErrAllocationFailure, backing, err)
	}
	return &Block{
		mem:         mem,
		full:        full,
		base:        uintptr(unsafe.Pointer(&mem[0])),
		backingFD:   fd,
		backingSize: backing,
	}, nil
}

func (b *Block) Base() uintptr {
	return b.base
}

func (b *Block) Size() uint64 {
	return uint64(len(b.mem))
}

func (b *Block) BackingSize() uint64 {
	return b.backingSize
}

// Bytes is the whole reservation. Touching an unmapped or protected page traps.
func (b *Block) Bytes() []byte {
	return b.mem
}

func (b *Block) check(offset, size uint64) error {
	if offset+size < offset || offset+size > uint64(len(b.mem)) {
		return fmt.Errorf("%w: range %#x+%#x outside reservation", jiterrors.ErrInvalidAddress, offset, size)
	}
	return nil
}

// MapView maps backing[pa:pa+size] at reservation offset offset.
func (b *Block) MapView(offset, pa, size uint64, perm Permission, private bool) error {
	if err := b.check(offset, size); err != nil {
		return err
	}
	if pa+size > b.backingSize {
		return fmt.Errorf("%w: backing range %#x+%#x exceeds %#x", jiterrors.ErrInvalidAddress, pa, size, b.backingSize)
	}
	flags := unix.MAP_SHARED | unix.MAP_FIXED
	if private {
		flags = unix.MAP_PRIVATE | unix.MAP_FIXED
	}
	addr := unsafe.Pointer(&b.mem[offset])
	if _, err := unix.MmapPtr(b.backingFD, int64(pa), addr, uintptr(size), hostProt(perm), flags); err != nil {
		return fmt.Errorf("%w: map view at %#x: %v", jiterrors.ErrAllocationFailure, offset, err)
	}
	return nil
}

// UnmapView returns a range to the PROT_NONE reservation.
func (b *Block) UnmapView(offset, size uint64) error {
	if err := b.check(offset, size); err != nil {
		return err
	}
	addr := unsafe.Pointer(&b.mem[offset])
	_, err := unix.MmapPtr(-1, 0, addr, uintptr(size), unix.PROT_NONE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE|unix.MAP_FIXED)
	if err != nil {
		return fmt.Errorf("re-reserve %#x+%#x: %w", offset, size, err)
	}
	return nil
}

func (b *Block) Reprotect(offset, size uint64, perm Permission) error {
	if err := b.check(offset, size); err != nil {
		return err
	}
	if err := unix.Mprotect(b.mem[offset:offset+size], hostProt(perm)); err != nil {
		return fmt.Errorf("mprotect %#x+%#x %s: %w", offset, size, perm, err)
	}
	return nil
}

func (b *Block) Close() error {
	var first error
	if err := unix.Close(b.backingFD); err != nil {
		first = err
	}
	if err := unix.Munmap(b.full); err != nil && first == nil {
		first = err
	}
	b.mem, b.full, b.base = nil, nil, 0
	return first
}
