package recompiler

import (
	"fmt"
	"sort"
	"sync"

	"github.com/colorfulnotion/armjit/addrtable"
	"github.com/colorfulnotion/armjit/log"
	"github.com/colorfulnotion/armjit/native"
	"github.com/colorfulnotion/armjit/types"
)

// AddressTable owns every translated unit of one guest context: the radix
// table walked by the dispatch stub, the executable arena the code lives in,
// and the runtime stubs.
type AddressTable struct {
	arch     types.Architecture
	backend  backend
	entries  *addrtable.Table
	code     *native.ExecutableMemory
	maxBlock int

	stubBase uintptr
	stubs    stubCode

	mu    sync.Mutex // serializes Insert and InvalidateRange
	units sync.Map   // entry address -> *TranslatedUnit
}

// NewAddressTable builds an empty table for cfg.Arch and places its stubs.
func NewAddressTable(cfg types.Config) (*AddressTable, error) {
	b, err := backendFor(cfg.Arch)
	if err != nil {
		return nil, err
	}
	entries, err := addrtable.New(addrtable.DefaultLevels)
	if err != nil {
		return nil, err
	}
	code, err := native.NewExecutableMemory(int(cfg.CodeMemorySize))
	if err != nil {
		entries.Close()
		return nil, err
	}
	stubs, err := b.stubs(entries.Root(), entries.Levels())
	if err == nil {
		var base uintptr
		base, err = code.Allocate(stubs.code)
		if err == nil {
			t := &AddressTable{
				arch:     cfg.Arch,
				backend:  b,
				entries:  entries,
				code:     code,
				maxBlock: cfg.MaxBlockInstructions,
				stubBase: base,
				stubs:    stubs,
			}
			if t.maxBlock <= 0 {
				t.maxBlock = types.DefaultMaxBlockInstructions
			}
			log.Debug(log.JitMonitoring, "address table ready", "arch", cfg.Arch, "enter", fmt.Sprintf("%#x", t.EnterAddress()), "dispatch", fmt.Sprintf("%#x", t.DispatchAddress()))
			return t, nil
		}
	}
	code.Free()
	entries.Close()
	return nil, err
}

func (t *AddressTable) Arch() types.Architecture {
	return t.arch
}

// EnterAddress is the host address of the enter stub.
func (t *AddressTable) EnterAddress() uintptr {
	return t.stubBase + uintptr(t.stubs.enter)
}

// DispatchAddress is the host address block exits jump to.
func (t *AddressTable) DispatchAddress() uint64 {
	return uint64(t.stubBase) + uint64(t.stubs.dispatch)
}

// StubCode returns a copy of the runtime stubs and their offsets.
func (t *AddressTable) StubCode() (code []byte, enter, leave, dispatch int) {
	return append([]byte(nil), t.stubs.code...), t.stubs.enter, t.stubs.leave, t.stubs.dispatch
}

// Lookup returns the unit installed for key, or nil.
func (t *AddressTable) Lookup(key types.GuestAddress) *TranslatedUnit {
	entry := t.entries.Lookup(key.Key())
	if entry == 0 {
		return nil
	}
	u, _ := t.units.Load(entry)
	unit, _ := u.(*TranslatedUnit)
	return unit
}

// Insert installs u unless another unit already holds its key. It returns
// the unit that holds the key afterwards and whether that is u.
func (t *AddressTable) Insert(u *TranslatedUnit) (*TranslatedUnit, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	// registered before publication so a Lookup never sees an unknown entry
	t.units.Store(u.Entry, u)
	winner, inserted, err := t.entries.Insert(u.Key.Key(), u.Entry)
	if err != nil {
		t.units.Delete(u.Entry)
		return nil, false, err
	}
	if !inserted {
		t.units.Delete(u.Entry)
		w, _ := t.units.Load(winner)
		unit, _ := w.(*TranslatedUnit)
		return unit, false, nil
	}
	return u, true, nil
}

// InvalidateRange removes every unit covering a guest byte in [start, end)
// and returns how many were removed. Their code stays in the arena, so a
// thread still running it finishes the block before dispatch stops finding
// it.
func (t *AddressTable) InvalidateRange(start, end uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	t.units.Range(func(k, v any) bool {
		u := v.(*TranslatedUnit)
		if u.Overlaps(start, end) {
			t.entries.RemoveIf(u.Key.Key(), u.Entry)
			t.units.Delete(k)
			n++
		}
		return true
	})
	if n > 0 {
		log.Debug(log.JitMonitoring, "invalidated", "start", fmt.Sprintf("%#x", start), "end", fmt.Sprintf("%#x", end), "units", n)
	}
	return n
}

// Units returns the installed units ordered by key.
func (t *AddressTable) Units() []*TranslatedUnit {
	var out []*TranslatedUnit
	t.units.Range(func(_, v any) bool {
		out = append(out, v.(*TranslatedUnit))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Len is the number of installed units.
func (t *AddressTable) Len() int {
	return t.entries.Len()
}

// Walk visits installed keys in order with their host entry addresses.
func (t *AddressTable) Walk(fn func(key uint32, entry uintptr) bool) {
	t.entries.Walk(fn)
}

func (t *AddressTable) Levels() []addrtable.Level {
	return t.entries.Levels()
}

func (t *AddressTable) TableStats() addrtable.Stats {
	return t.entries.Stats()
}

// CodeUsage returns the bytes used and the capacity of the code arena.
func (t *AddressTable) CodeUsage() (used, capacity int) {
	return t.code.Used(), t.code.Capacity()
}

func (t *AddressTable) allocate(code []byte) (uintptr, error) {
	return t.code.Allocate(code)
}

// Close frees the table and all code. No guest thread may be running.
func (t *AddressTable) Close() error {
	t.mu.Lock()
	t.units.Range(func(k, _ any) bool {
		t.units.Delete(k)
		return true
	})
	t.mu.Unlock()
	err := t.entries.Close()
	if cerr := t.code.Free(); err == nil {
		err = cerr
	}
	return err
}
