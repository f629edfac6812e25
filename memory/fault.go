package memory

import (
	"fmt"
	"sync/atomic"

	"github.com/colorfulnotion/armjit/log"
)

// Verdict is the outcome of fault resolution.
type Verdict uint8

const (
	// VerdictRetry resumes the faulting access.
	VerdictRetry Verdict = iota
	// VerdictInvalid terminates the guest context at the invalid-access
	// callback's request.
	VerdictInvalid
	// VerdictFatal means nothing could explain the fault.
	VerdictFatal
)

func (v Verdict) String() string {
	switch v {
	case VerdictRetry:
		return "retry"
	case VerdictInvalid:
		return "invalid"
	default:
		return "fatal"
	}
}

// InvalidAccessFunc decides the fate of a fault Tracking could not explain.
// It returns VerdictRetry after fixing the cause, anything else terminates.
type InvalidAccessFunc func(va uint64, kind AccessKind) Verdict

// FaultHandler turns host traps inside the reservation into verdicts. It
// takes no manager locks.
type FaultHandler struct {
	m        *Manager
	callback atomic.Pointer[InvalidAccessFunc]
}

func newFaultHandler(m *Manager) *FaultHandler {
	return &FaultHandler{m: m}
}

func (h *FaultHandler) SetInvalidAccessHandler(fn InvalidAccessFunc) {
	if fn == nil {
		h.callback.Store(nil)
		return
	}
	h.callback.Store(&fn)
}

// Handle resolves a trap at host address addr.
func (h *FaultHandler) Handle(addr uintptr, kind AccessKind) Verdict {
	va := uint64(addr)
	if !h.m.contains(va) {
		log.Debug(log.FaultMonitoring, "fault outside reservation", "addr", fmt.Sprintf("%#x", va), "kind", kind)
		return VerdictFatal
	}
	if h.m.tracking.VirtualMemoryEvent(va, kind) {
		return VerdictRetry
	}
	cb := h.callback.Load()
	if cb == nil {
		log.Debug(log.FaultMonitoring, "unresolved fault", "va", fmt.Sprintf("%#x", va), "kind", kind)
		return VerdictFatal
	}
	if v := (*cb)(va, kind); v == VerdictRetry {
		return VerdictRetry
	}
	log.Debug(log.FaultMonitoring, "invalid access", "va", fmt.Sprintf("%#x", va), "kind", kind)
	return VerdictInvalid
}
