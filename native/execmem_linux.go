//go:build linux

package native

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/colorfulnotion/armjit/jiterrors"
)

// NewExecutableMemory maps size bytes of read-write-execute memory.
func NewExecutableMemory(size int) (*ExecutableMemory, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: code memory size %d", jiterrors.ErrAllocationFailure, size)
	}
	buffer, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap executable memory: %v", jiterrors.ErrAllocationFailure, err)
	}
	return &ExecutableMemory{buffer: buffer, unmap: unix.Munmap}, nil
}
