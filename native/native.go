// Package native runs translated code on the host CPU.
//
// Translated code is entered through the recompiler's enter stub with the
// guest context pointer as its only argument. A SIGSEGV or SIGBUS raised
// while that code runs on the calling thread is caught and reported as a
// Result instead of crashing the process; faults anywhere else are passed on
// to the handler that was installed before this package's.
package native

import "fmt"

// Result describes how a Run call came back.
type Result struct {
	Faulted bool
	Addr    uintptr // faulting host address
	Write   bool    // the faulting access was a store
}

func (r Result) String() string {
	if !r.Faulted {
		return "returned"
	}
	kind := "read"
	if r.Write {
		kind = "write"
	}
	return fmt.Sprintf("fault %s at %#x", kind, r.Addr)
}
