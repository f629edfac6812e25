package arm32

import (
	"encoding/binary"
	"errors"
)

// CodeReader supplies guest instruction bytes.
type CodeReader interface {
	Fetch(addr uint32, dst []byte) error
}

// Fetch reads and decodes the instruction at addr in the given state.
func Fetch(r CodeReader, addr uint32, thumb bool) (Inst, error) {
	var buf [4]byte
	if !thumb {
		if err := r.Fetch(addr, buf[:4]); err != nil {
			return Inst{}, err
		}
		return DecodeA32(addr, binary.LittleEndian.Uint32(buf[:])), nil
	}
	if err := r.Fetch(addr, buf[:2]); err != nil {
		return Inst{}, err
	}
	hw1 := binary.LittleEndian.Uint16(buf[:2])
	if !IsThumb32Prefix(hw1) {
		return DecodeT16(addr, hw1), nil
	}
	if err := r.Fetch(addr+2, buf[2:4]); err != nil {
		return Inst{}, err
	}
	return DecodeT32(addr, hw1, binary.LittleEndian.Uint16(buf[2:])), nil
}

// DecodeBytes decodes a flat code buffer loaded at base, stopping at the
// first block terminator when stopAtTerminator is set.
func DecodeBytes(code []byte, base uint32, thumb bool, stopAtTerminator bool) []Inst {
	r := sliceReader{base: base, code: code}
	var out []Inst
	for addr := base; addr < base+uint32(len(code)); {
		inst, err := Fetch(r, addr, thumb)
		if err != nil {
			break
		}
		out = append(out, inst)
		addr += inst.Size
		if stopAtTerminator && inst.IsTerminator() {
			break
		}
	}
	return out
}

type sliceReader struct {
	base uint32
	code []byte
}

func (s sliceReader) Fetch(addr uint32, dst []byte) error {
	off := int(addr - s.base)
	if addr < s.base || off+len(dst) > len(s.code) {
		return errOutOfRange
	}
	copy(dst, s.code[off:])
	return nil
}

var errOutOfRange = errors.New("code address out of range")
