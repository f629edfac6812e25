//go:build !linux

package addrtable

// Heap chunks stay reachable through arena.chunks, and the Go heap does not
// move objects, so node addresses remain valid.
func allocChunk(n int) ([]byte, error) {
	return make([]byte, n), nil
}

func freeChunk([]byte) error {
	return nil
}
