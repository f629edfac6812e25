//go:build !linux

package native

import (
	"fmt"

	"github.com/colorfulnotion/armjit/jiterrors"
)

// NewExecutableMemory returns a heap arena. Code placed in it can be
// inspected and disassembled but not run.
func NewExecutableMemory(size int) (*ExecutableMemory, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: code memory size %d", jiterrors.ErrAllocationFailure, size)
	}
	return &ExecutableMemory{buffer: make([]byte, size)}, nil
}
