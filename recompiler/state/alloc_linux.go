//go:build linux

package state

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Block owns a Context placed outside the Go heap so native code may keep
// pointers to it.
type Block struct {
	mem []byte
	Ctx *Context
}

func NewBlock() (*Block, error) {
	mem, err := unix.Mmap(-1, 0, unix.Getpagesize(), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap guest context: %w", err)
	}
	return &Block{mem: mem, Ctx: (*Context)(unsafe.Pointer(&mem[0]))}, nil
}

// Addr is the host address translated code receives as its context pointer.
func (b *Block) Addr() uintptr {
	return uintptr(unsafe.Pointer(b.Ctx))
}

func (b *Block) Close() error {
	if b.mem == nil {
		return nil
	}
	b.Ctx = nil
	err := unix.Munmap(b.mem)
	b.mem = nil
	return err
}
