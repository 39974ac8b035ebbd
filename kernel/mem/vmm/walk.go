package vmm

import (
	"unsafe"

	"corvid/kernel/cpu"
)

// pageLevels is the number of paging levels walked for every translation:
// L4, L3, L2, L1.
const pageLevels = 4

// pageLevelShifts holds the bit offset of each level's 9-bit index field
// within a virtual address, from L4 down to L1. pageLevelShifts[pageLevels-1]
// is always PageShift: the byte offset within the mapped frame.
var pageLevelShifts = [pageLevels]uint{39, 30, 21, 12}

// pageTableIndexMask isolates a single 9-bit table index.
const pageTableIndexMask = 0x1ff

var (
	// rootFn returns the physical address of the currently active L4
	// table. It is swapped out in tests so walk does not need a real
	// CR3 to exercise.
	rootFn = cpu.ActivePDT

	// ptePtrFn resolves a physical page-table-entry address to a
	// pointer the walker can dereference. In the freestanding build the
	// first 4 GiB are identity-mapped, so the physical address doubles
	// as a usable pointer; tests redirect entries into ordinary Go-heap
	// tables instead.
	ptePtrFn = func(physAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(physAddr)
	}
)

// walkVisitor is invoked once per paging level while resolving a virtual
// address. It returns false to stop the walk early (for example, because
// the next table is absent).
type walkVisitor func(level uint8, pte *pageTableEntry) bool

// walk resolves virtAddr one paging level at a time, starting at the
// active L4 table, invoking visit with the entry found at each level. It
// stops as soon as visit returns false or the last level (L1) has been
// visited.
func walk(virtAddr uintptr, visit walkVisitor) {
	tableAddr := rootFn()

	for level := uint8(0); level < pageLevels; level++ {
		index := (virtAddr >> pageLevelShifts[level]) & pageTableIndexMask
		entryAddr := tableAddr + index*8
		pte := (*pageTableEntry)(ptePtrFn(entryAddr))

		if !visit(level, pte) {
			return
		}

		if level < pageLevels-1 {
			tableAddr = pte.Frame().Address()
		}
	}
}
