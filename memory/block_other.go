//go:build !linux

package memory

import "github.com/colorfulnotion/armjit/jiterrors"

// Block is unavailable off linux; NewBlock always fails.
type Block struct{}

func NewBlock(reserve, backing uint64) (*Block, error) {
	return nil, jiterrors.ErrUnsupportedPlatform
}

func (b *Block) Base() uintptr { return 0 }
func (b *Block) Size() uint64 { return 0 }
func (b *Block) BackingSize() uint64 { return 0 }
func (b *Block) Bytes() []byte { return nil }
func (b *Block) Close() error { return nil }

func (b *Block) MapView(offset, pa, size uint64, perm Permission, private bool) error {
	return jiterrors.ErrUnsupportedPlatform
}

func (b *Block) UnmapView(offset, size uint64) error {
	return jiterrors.ErrUnsupportedPlatform
}

func (b *Block) Reprotect(offset, size uint64, perm Permission) error {
	return jiterrors.ErrUnsupportedPlatform
}
