package memory

import "strings"

// PageSize is the granularity of every mapping and protection change.
const PageSize = 4096

// Permission is a set of guest access rights.
type Permission uint8

const (
	PermNone    Permission = 0
	PermRead    Permission = 1 << 0
	PermWrite   Permission = 1 << 1
	PermExecute Permission = 1 << 2

	PermReadOnly    = PermRead
	PermReadWrite   = PermRead | PermWrite
	PermReadExecute = PermRead | PermExecute
	PermAll         = PermRead | PermWrite | PermExecute
)

func (p Permission) Has(q Permission) bool {
	return p&q == q
}

// String renders the permission as "rwx" with dashes for missing rights.
func (p Permission) String() string {
	var b strings.Builder
	for _, r := range []struct {
		bit Permission
		c   byte
	}{{PermRead, 'r'}, {PermWrite, 'w'}, {PermExecute, 'x'}} {
		if p.Has(r.bit) {
			b.WriteByte(r.c)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// AccessKind classifies a faulting access.
type AccessKind uint8

const (
	AccessRead AccessKind = iota
	AccessWrite
	AccessExecute
)

func (k AccessKind) String() string {
	switch k {
	case AccessWrite:
		return "write"
	case AccessExecute:
		return "execute"
	default:
		return "read"
	}
}

// PermittedBy reports whether perm allows an access of kind k.
func (k AccessKind) PermittedBy(perm Permission) bool {
	switch k {
	case AccessWrite:
		return perm.Has(PermWrite)
	case AccessExecute:
		return perm.Has(PermExecute) || perm.Has(PermRead)
	default:
		return perm.Has(PermRead)
	}
}

// MapFlags modify a Map call.
type MapFlags uint32

const (
	// MapPrivate maps a copy-on-write view; writes do not reach the backing.
	MapPrivate MapFlags = 1 << iota
	// MapReadOnly starts the range read-only instead of read-write.
	MapReadOnly
)

func pageAligned(v uint64) bool {
	return v%PageSize == 0
}

func pageFloor(v uint64) uint64 {
	return v &^ (PageSize - 1)
}
