package recompiler

import (
	"encoding/binary"
	"fmt"

	"github.com/colorfulnotion/armjit/arm32"
	"github.com/colorfulnotion/armjit/common"
	"github.com/colorfulnotion/armjit/types"
)

// TranslatedUnit is one compiled block. It is never modified after Compile
// returns it.
type TranslatedUnit struct {
	Key          types.GuestAddress
	Start        uint32 // first guest byte covered
	End          uint32 // one past the last guest byte covered
	Thumb        bool
	Arch         types.Architecture
	Entry        uintptr // host address of the code
	Code         []byte
	Instructions []arm32.Inst
	GuestHash    common.Hash // hash of the guest encodings the unit was built from
}

// Overlaps reports whether the unit covers any byte of [start, end).
func (u *TranslatedUnit) Overlaps(start, end uint64) bool {
	return uint64(u.Start) < end && uint64(u.End) > start
}

func (u *TranslatedUnit) String() string {
	return fmt.Sprintf("%s [%#08x,%#08x) %d insts %d bytes @%#x", u.Key, u.Start, u.End, len(u.Instructions), len(u.Code), u.Entry)
}

func guestHash(insts []arm32.Inst) common.Hash {
	buf := make([]byte, 0, 4*len(insts))
	for _, inst := range insts {
		var w [4]byte
		if inst.Size == 4 && inst.IsThumb() {
			// stored halfword first, as fetched
			binary.LittleEndian.PutUint16(w[:2], uint16(inst.Raw>>16))
			binary.LittleEndian.PutUint16(w[2:], uint16(inst.Raw))
		} else {
			binary.LittleEndian.PutUint32(w[:], inst.Raw)
		}
		buf = append(buf, w[:inst.Size]...)
	}
	return common.ComputeHash(buf)
}
