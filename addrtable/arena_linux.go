//go:build linux

package addrtable

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func allocChunk(n int) ([]byte, error) {
	b, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("addrtable: mmap %d bytes: %w", n, err)
	}
	return b, nil
}

func freeChunk(b []byte) error {
	return unix.Munmap(b)
}
