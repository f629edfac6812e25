package addrtable

import "unsafe"

const chunkSize = 1 << 20

// arena hands out zeroed, 8-byte aligned node memory that never moves. Callers
// hold Table.mu.
type arena struct {
	chunks [][]byte
	cur    []byte
	off    uintptr
	nodes  int
	used   int
}

func newArena() *arena {
	return &arena{}
}

func (a *arena) alloc(size uintptr) (uintptr, error) {
	if a.cur == nil || a.off+size > uintptr(len(a.cur)) {
		n := uintptr(chunkSize)
		if size > n {
			n = size
		}
		chunk, err := allocChunk(int(n))
		if err != nil {
			return 0, err
		}
		a.chunks = append(a.chunks, chunk)
		a.cur, a.off = chunk, 0
	}
	addr := uintptr(unsafe.Pointer(&a.cur[0])) + a.off
	a.off += size
	a.nodes++
	a.used += int(size)
	return addr, nil
}

func (a *arena) release() error {
	var first error
	for _, c := range a.chunks {
		if err := freeChunk(c); err != nil && first == nil {
			first = err
		}
	}
	a.chunks, a.cur, a.off = nil, nil, 0
	return first
}
