package memory

import (
	"fmt"
	"sync"

	"golang.org/x/exp/slices"

	"github.com/colorfulnotion/armjit/jiterrors"
	"github.com/colorfulnotion/armjit/log"
)

// WriteFunc observes the first write to an observed page.
type WriteFunc func(va, size uint64)

type pageState struct {
	allowed  Permission // what the guest may do
	host     Permission // what tracking last installed on the host
	dirty    bool
	observed bool // write protected until the next write
}

type trackedRegion struct {
	va    uint64
	pages []pageState
}

func (r *trackedRegion) end() uint64 {
	return r.va + uint64(len(r.pages))*PageSize
}

// RegionInfo summarizes one tracked region.
type RegionInfo struct {
	VA       uint64
	Size     uint64
	Dirty    int
	Observed int
}

// Tracking records per-page guest permissions and write observation for every
// mapped range. Its host protection changes go through the manager's
// TrackingReprotect.
type Tracking struct {
	mu        sync.Mutex
	regions   []*trackedRegion
	reprotect func(va, size uint64, perm Permission) error
	writeSubs []WriteFunc
	closed    bool
}

func newTracking(reprotect func(va, size uint64, perm Permission) error) *Tracking {
	return &Tracking{reprotect: reprotect}
}

func (t *Tracking) find(va uint64) (int, bool) {
	i, _ := slices.BinarySearchFunc(t.regions, va, func(r *trackedRegion, v uint64) int {
		if r.end() <= v {
			return -1
		}
		return 1
	})
	return i, i < len(t.regions) && t.regions[i].va <= va
}

// page returns the state of the page holding va. Callers hold t.mu.
func (t *Tracking) page(va uint64) *pageState {
	i, ok := t.find(va)
	if !ok {
		return nil
	}
	r := t.regions[i]
	return &r.pages[(va-r.va)/PageSize]
}

// Map starts tracking a freshly mapped range: unobserved, clean, with the
// mapping's permission.
func (t *Tracking) Map(va, size uint64, perm Permission) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pages := make([]pageState, size/PageSize)
	for i := range pages {
		pages[i] = pageState{allowed: perm, host: perm}
	}
	i, _ := t.find(va)
	t.regions = slices.Insert(t.regions, i, &trackedRegion{va: va, pages: pages})
}

// Unmap drops tracking for [va, va+size), splitting regions that straddle it.
func (t *Tracking) Unmap(va, size uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	end := va + size
	var out []*trackedRegion
	for _, r := range t.regions {
		if r.end() <= va || r.va >= end {
			out = append(out, r)
			continue
		}
		if r.va < va {
			out = append(out, &trackedRegion{va: r.va, pages: slices.Clone(r.pages[:(va-r.va)/PageSize])})
		}
		if r.end() > end {
			out = append(out, &trackedRegion{va: end, pages: slices.Clone(r.pages[(end-r.va)/PageSize:])})
		}
	}
	t.regions = out
}

// forRange calls fn for each tracked page in [va, va+size). Every page must
// be tracked. Callers hold t.mu.
func (t *Tracking) forRange(va, size uint64, fn func(pva uint64, p *pageState) error) error {
	for pva := pageFloor(va); pva < va+size; pva += PageSize {
		p := t.page(pva)
		if p == nil {
			return fmt.Errorf("%w: %#x is not tracked", jiterrors.ErrInvalidAddress, pva)
		}
		if err := fn(pva, p); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tracking) install(pva uint64, p *pageState, perm Permission) error {
	if p.host == perm {
		return nil
	}
	if err := t.reprotect(pva, PageSize, perm); err != nil {
		return err
	}
	p.host = perm
	return nil
}

// Observe write-protects [va, va+size) so the next write to each page is
// reported to write subscribers and marks it dirty.
func (t *Tracking) Observe(va, size uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return jiterrors.ErrClosed
	}
	return t.forRange(va, size, func(pva uint64, p *pageState) error {
		p.observed = true
		p.dirty = false
		return t.install(pva, p, p.allowed&^PermWrite)
	})
}

// Protect sets the guest permission of [va, va+size) and installs it on the
// host, keeping observed pages write protected.
func (t *Tracking) Protect(va, size uint64, perm Permission) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return jiterrors.ErrClosed
	}
	return t.forRange(va, size, func(pva uint64, p *pageState) error {
		p.allowed = perm
		host := perm
		if p.observed {
			host &^= PermWrite
		}
		return t.install(pva, p, host)
	})
}

// Permission returns the guest permission of the page holding va.
func (t *Tracking) Permission(va uint64) (Permission, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.page(va)
	if p == nil {
		return PermNone, false
	}
	return p.allowed, true
}

// VirtualMemoryEvent resolves a trap at va. It reports true when the access
// is one the guest is allowed to make: the page is marked dirty on a write,
// its host protection is restored to the guest permission, and the access
// may be retried. It never blocks on anything but the tracking lock.
func (t *Tracking) VirtualMemoryEvent(va uint64, kind AccessKind) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	p := t.page(va)
	if p == nil || !kind.PermittedBy(p.allowed) {
		t.mu.Unlock()
		return false
	}
	pva := pageFloor(va)
	notify := false
	if kind == AccessWrite {
		notify = p.observed
		p.dirty = true
		p.observed = false
	}
	target := p.allowed
	if p.observed {
		target &^= PermWrite
	}
	// always reinstall: a caller reprotect may have changed the host state
	err := t.reprotect(pva, PageSize, target)
	if err == nil {
		p.host = target
	}
	subs := t.writeSubs
	t.mu.Unlock()
	if err != nil {
		log.Warn(log.TrackingMonitoring, "restore protection failed", "va", fmt.Sprintf("%#x", pva), "err", err)
		return false
	}
	log.Trace(log.TrackingMonitoring, "soft fault", "va", fmt.Sprintf("%#x", va), "kind", kind, "observed", notify)
	if notify {
		for _, fn := range subs {
			fn(pva, PageSize)
		}
	}
	return true
}

// SubscribeWrite registers fn for writes to observed pages. It runs on the
// faulting thread after the page has been restored.
func (t *Tracking) SubscribeWrite(fn WriteFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeSubs = append(slices.Clip(t.writeSubs), fn)
}

func (t *Tracking) IsDirty(va uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.page(va)
	return p != nil && p.dirty
}

func (t *Tracking) IsObserved(va uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	p := t.page(va)
	return p != nil && p.observed
}

// PopDirty returns the dirty pages in address order and clears them.
func (t *Tracking) PopDirty() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []uint64
	for _, r := range t.regions {
		for i := range r.pages {
			if r.pages[i].dirty {
				r.pages[i].dirty = false
				out = append(out, r.va+uint64(i)*PageSize)
			}
		}
	}
	return out
}

func (t *Tracking) Regions() []RegionInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]RegionInfo, 0, len(t.regions))
	for _, r := range t.regions {
		info := RegionInfo{VA: r.va, Size: r.end() - r.va}
		for _, p := range r.pages {
			if p.dirty {
				info.Dirty++
			}
			if p.observed {
				info.Observed++
			}
		}
		out = append(out, info)
	}
	return out
}

func (t *Tracking) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.regions = nil
}
