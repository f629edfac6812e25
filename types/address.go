package types

import "fmt"

// GuestAddress is a guest-space offset. As a dispatch key bit 0 tags a Thumb
// (16-bit encoding) site; ARM sites are word aligned so the bit is free.
type GuestAddress uint64

const ThumbBit GuestAddress = 1

func NewGuestAddress(pc uint32, thumb bool) GuestAddress {
	if thumb {
		return GuestAddress(pc&^1) | ThumbBit
	}
	return GuestAddress(pc &^ 3)
}

// DecodeKey splits a tagged 32-bit value as written to the guest PC by
// interworking branches.
func DecodeKey(v uint32) GuestAddress {
	return NewGuestAddress(v, v&1 != 0)
}

func (a GuestAddress) IsThumb() bool {
	return a&ThumbBit != 0
}

// PC is the untagged instruction address.
func (a GuestAddress) PC() uint32 {
	return uint32(a &^ ThumbBit)
}

func (a GuestAddress) Key() uint32 {
	return uint32(a)
}

func (a GuestAddress) String() string {
	if a.IsThumb() {
		return fmt.Sprintf("0x%08x(T)", a.PC())
	}
	return fmt.Sprintf("0x%08x", a.PC())
}
