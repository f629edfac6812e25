//go:build !linux

package state

import "unsafe"

type Block struct {
	Ctx *Context
}

func NewBlock() (*Block, error) {
	return &Block{Ctx: new(Context)}, nil
}

func (b *Block) Addr() uintptr {
	return uintptr(unsafe.Pointer(b.Ctx))
}

func (b *Block) Close() error {
	b.Ctx = nil
	return nil
}
