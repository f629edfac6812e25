package memory

// pageTable maps reservation offsets to backing offsets at page granularity.
// It is two-level: a directory of 4 MiB leaves allocated on first use.
// Callers hold Manager.mu.
type pageTable struct {
	dirs []*[ptLeafEntries]uint64
}

const (
	ptLeafBits    = 10
	ptLeafEntries = 1 << ptLeafBits
	ptPresent     = 1
)

func newPageTable(spaceSize uint64) *pageTable {
	n := (spaceSize/PageSize + ptLeafEntries - 1) / ptLeafEntries
	return &pageTable{dirs: make([]*[ptLeafEntries]uint64, n)}
}

func ptIndex(off uint64) (dir, leaf uint64) {
	page := off / PageSize
	return page >> ptLeafBits, page & (ptLeafEntries - 1)
}

func (pt *pageTable) mapRange(off, pa, size uint64) {
	for i := uint64(0); i < size; i += PageSize {
		d, l := ptIndex(off + i)
		if pt.dirs[d] == nil {
			pt.dirs[d] = new([ptLeafEntries]uint64)
		}
		pt.dirs[d][l] = (pa + i) | ptPresent
	}
}

func (pt *pageTable) unmapRange(off, size uint64) {
	for i := uint64(0); i < size; i += PageSize {
		d, l := ptIndex(off + i)
		if pt.dirs[d] != nil {
			pt.dirs[d][l] = 0
		}
	}
}

// lookup returns the backing offset of the byte at off.
func (pt *pageTable) lookup(off uint64) (uint64, bool) {
	d, l := ptIndex(off)
	if d >= uint64(len(pt.dirs)) || pt.dirs[d] == nil {
		return 0, false
	}
	e := pt.dirs[d][l]
	if e&ptPresent == 0 {
		return 0, false
	}
	return e&^ptPresent + off%PageSize, true
}
