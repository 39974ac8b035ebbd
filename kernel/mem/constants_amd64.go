//go:build amd64

package mem

const (
	// PageShift is log2(PageSize); it converts a physical address to a
	// frame number (shift right by PageShift) and back (shift left).
	PageShift = 12

	// PageSize is the system's page size in bytes.
	PageSize = Size(1 << PageShift)

	// PointerShift is log2(8), the size in bytes of one page-table entry
	// slot; it converts a 9-bit table index into a byte offset within a
	// page-table node.
	PointerShift = 3

	// EntriesPerTable is the number of entries in one level of the
	// 4-level page table (512 on amd64).
	EntriesPerTable = PageSize / (1 << PointerShift)
)
