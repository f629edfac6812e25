package jiterrors

import (
	"errors"
	"strings"
)

// Memory Manager (M) Errors
var (
	ErrInvalidAddress      = errors.New("M1|InvalidAddress: Address is below the reserved region or outside the address space.")
	ErrMisaligned          = errors.New("M2|Misaligned: Address or size is not a positive multiple of the page size.")
	ErrAllocationFailure   = errors.New("M3|AllocationFailure: Host mapping creation failed.")
	ErrAlreadyMapped       = errors.New("M4|AlreadyMapped: Range overlaps an existing mapping.")
	ErrClosed              = errors.New("M5|Closed: Memory manager has been disposed.")
	ErrUnsupportedPlatform = errors.New("M6|UnsupportedPlatform: Host platform cannot back guest memory or run translated code.")
)

// Guest Execution (G) Errors
var (
	ErrInvalidAccess        = errors.New("G1|InvalidAccess: Guest memory fault with no tracking explanation.")
	ErrUndefinedInstruction = errors.New("G2|UndefinedInstruction: Guest executed an undefined or unsupported instruction.")
	ErrSupervisorCall       = errors.New("G3|SupervisorCall: Guest issued a supervisor call with no handler installed.")
	ErrExecutionCancelled   = errors.New("G4|ExecutionCancelled: Guest execution was cancelled.")
)

// Compiler (C) Errors
var (
	ErrUnsupportedTarget = errors.New("C1|UnsupportedTarget: No encoder is registered for the requested host architecture.")
	ErrEncoding          = errors.New("C2|Encoding: Encoder could not emit host code for an instruction.")
	ErrCodeMemoryFull    = errors.New("C3|CodeMemoryFull: Executable memory arena exhausted.")
)

var known = []error{
	ErrInvalidAddress, ErrMisaligned, ErrAllocationFailure, ErrAlreadyMapped, ErrClosed, ErrUnsupportedPlatform,
	ErrInvalidAccess, ErrUndefinedInstruction, ErrSupervisorCall, ErrExecutionCancelled,
	ErrUnsupportedTarget, ErrEncoding, ErrCodeMemoryFull,
}

// Sentinel returns the first known sentinel wrapped by err, or nil.
func Sentinel(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range known {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// GetErrorName extracts the error name from the sentinel wrapped by err.
func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	errStr := err.Error()
	if s := Sentinel(err); s != nil {
		errStr = s.Error()
	}
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	parts := strings.SplitN(errStr, "|", 2)
	nameParts := strings.SplitN(parts[1], ":", 2)
	return strings.TrimSpace(nameParts[0])
}

// GetErrorCode extracts the error code from the sentinel wrapped by err.
func GetErrorCode(err error) string {
	s := Sentinel(err)
	if s == nil {
		return ""
	}
	parts := strings.SplitN(s.Error(), "|", 2)
	return strings.TrimSpace(parts[0])
}

// GetErrorCodeWithName returns the error code and name in the format "Code_ErrorName".
func GetErrorCodeWithName(err error) string {
	code := GetErrorCode(err)
	name := GetErrorName(err)
	if code == "" || name == "" {
		return ""
	}
	return code + "_" + name
}
