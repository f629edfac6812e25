package recompiler

import (
	"errors"
	"fmt"

	"github.com/colorfulnotion/armjit/arm32"
	"github.com/colorfulnotion/armjit/jiterrors"
	"github.com/colorfulnotion/armjit/log"
	"github.com/colorfulnotion/armjit/types"
)

// Compile translates the block starting at address and installs it in table.
//
// Decoding stops after a terminator, after the table's instruction limit,
// or before the first instruction that cannot be fetched; a block whose
// first instruction cannot be fetched fails with ErrInvalidAccess. When
// another caller installed the same key first, Compile still returns its own
// complete unit; the table keeps the earlier one. A target without an
// encoder fails with ErrUnsupportedTarget before anything is fetched or
// installed.
func Compile(target types.Architecture, code arm32.CodeReader, address types.GuestAddress, table *AddressTable, dispatch uint64, isThumb bool) (*TranslatedUnit, error) {
	b, err := backendFor(target)
	if err != nil {
		return nil, err
	}
	if target != table.arch {
		return nil, fmt.Errorf("%w: table is built for %s, not %s", jiterrors.ErrUnsupportedTarget, table.arch, target)
	}
	key := types.NewGuestAddress(address.PC(), isThumb)
	insts, err := decodeBlock(code, key, table.maxBlock)
	if err != nil {
		return nil, err
	}

	enc := b.newEncoder(dispatch)
	for i := range insts {
		if err := enc.EmitInstruction(&insts[i]); err != nil {
			return nil, fmt.Errorf("compile %s: %w", key, err)
		}
	}
	last := &insts[len(insts)-1]
	if !last.IsTerminator() {
		enc.EmitFallthrough(last.NextKey())
	}
	host, err := enc.Finish()
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", key, err)
	}
	entry, err := table.allocate(host)
	if err != nil {
		return nil, err
	}
	unit := &TranslatedUnit{
		Key:          key,
		Start:        insts[0].Address,
		End:          last.Address + last.Size,
		Thumb:        isThumb,
		Arch:         target,
		Entry:        entry,
		Code:         host,
		Instructions: insts,
		GuestHash:    guestHash(insts),
	}
	if _, inserted, err := table.Insert(unit); err != nil {
		return nil, err
	} else if !inserted {
		log.Debug(log.JitMonitoring, "lost install race", "key", key)
	}
	log.Trace(log.JitMonitoring, "compiled", "unit", unit)
	return unit, nil
}

func decodeBlock(code arm32.CodeReader, key types.GuestAddress, limit int) ([]arm32.Inst, error) {
	thumb := key.IsThumb()
	pc := key.PC()
	var insts []arm32.Inst
	for len(insts) < limit {
		inst, err := arm32.Fetch(code, pc, thumb)
		if err != nil {
			if len(insts) == 0 {
				if errors.Is(err, jiterrors.ErrInvalidAccess) {
					return nil, fmt.Errorf("fetch %s: %w", key, err)
				}
				return nil, fmt.Errorf("fetch %s: %w: %v", key, jiterrors.ErrInvalidAccess, err)
			}
			break
		}
		insts = append(insts, inst)
		if inst.IsTerminator() {
			break
		}
		pc += inst.Size
	}
	return insts, nil
}
