package vmm

import (
	"corvid/kernel"
	"corvid/kernel/cpu"
	"corvid/kernel/mem"
	"corvid/kernel/mem/pmm"
)

var (
	// flushTLBEntryFn is swapped out by tests to avoid a real TLB flush
	// instruction, which faults outside ring 0.
	flushTLBEntryFn = cpu.FlushTLBEntry

	errNoHugePageSupport = &kernel.Error{Module: "vmm", Message: "huge pages are not supported"}

	// ErrInvalidMapping is returned by Unmap and Translate for a virtual
	// address with no current mapping.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "address has no active mapping"}
)

// FrameAllocatorFn allocates a physical frame, used to materialize missing
// intermediate page-table nodes.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// FrameDeallocatorFn releases a physical frame previously handed out by a
// FrameAllocatorFn.
type FrameDeallocatorFn func(pmm.Frame) *kernel.Error

// Map establishes a mapping from page to frame in the currently active
// address space, walking L4 through L1 and lazily allocating (via allocFn)
// any intermediate node that is absent. An intermediate node revisited with
// a more permissive request additively gains the User bit so the walk can
// still reach the leaf; it is never narrowed. The L1 entry is always
// overwritten unconditionally, so re-mapping an already-mapped page is
// permitted. A successful Map always ends with a TLB invalidation of page.
func Map(page Page, frame pmm.Frame, flags PageTableEntryFlag, allocFn FrameAllocatorFn) *kernel.Error {
	var err *kernel.Error

	walk(page.Address(), func(level uint8, pte *pageTableEntry) bool {
		if level == pageLevels-1 {
			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(FlagPresent | flags)
			flushTLBEntryFn(page.Address())
			return true
		}

		if pte.HasFlags(FlagPresent) {
			if pte.HasFlags(FlagHugePage) {
				err = errNoHugePageSupport
				return false
			}

			// Additively widen: a node shared by an earlier, more
			// restrictive mapping must not block a now-permitted
			// user-mode walk through it.
			if flags&FlagUser != 0 && !pte.HasFlags(FlagUser) {
				pte.SetFlags(FlagUser)
			}
			return true
		}

		// Next table does not yet exist; allocate and zero it.
		newTableFrame, allocErr := allocFn()
		if allocErr != nil {
			err = allocErr
			return false
		}

		intermediateFlags := FlagPresent | FlagRW
		if flags&FlagUser != 0 {
			intermediateFlags |= FlagUser
		}

		*pte = 0
		pte.SetFrame(newTableFrame)
		pte.SetFlags(intermediateFlags)

		mem.Memset(newTableFrame.Address(), 0, mem.PageSize)
		return true
	})

	return err
}

// Unmap removes a mapping previously installed by Map, freeing the frame it
// named via deallocFn, zeroing the entry and invalidating the TLB.
func Unmap(page Page, deallocFn FrameDeallocatorFn) *kernel.Error {
	var err *kernel.Error

	walk(page.Address(), func(level uint8, pte *pageTableEntry) bool {
		if level == pageLevels-1 {
			if !pte.HasFlags(FlagPresent) {
				err = ErrInvalidMapping
				return false
			}

			frame := pte.Frame()
			*pte = 0
			flushTLBEntryFn(page.Address())

			if deallocErr := deallocFn(frame); deallocErr != nil {
				err = deallocErr
			}
			return true
		}

		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		if pte.HasFlags(FlagHugePage) {
			err = errNoHugePageSupport
			return false
		}

		return true
	})

	return err
}

// Invalidate flushes the TLB entry for page, as required after any
// out-of-band modification of its page-table entry.
func Invalidate(page Page) {
	flushTLBEntryFn(page.Address())
}
