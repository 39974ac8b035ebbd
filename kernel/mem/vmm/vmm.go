// Package vmm implements the kernel's virtual-memory mapper (component D):
// Map, Unmap, Translate, Invalidate and SwitchRoot over the 4-level amd64
// page-table format. It walks L4 through L1 directly against physical
// addresses rather than the teacher's recursive self-mapping scheme,
// exploiting the boot protocol's guarantee that the first 4 GiB of
// physical memory are identity-mapped, so every table this package touches
// is addressable without first establishing a temporary mapping for it.
//
// Page faults are not handled here: kernel/fault's Report classifies and
// reports every trap, including page faults, and never returns, so this
// package carries no copy-on-write or fault-recovery machinery.
package vmm

import (
	"corvid/kernel"
	"corvid/kernel/mem/pmm"
)

var (
	// frameAllocator supplies frames for intermediate page-table nodes
	// that Map must create. It is set by component P during bring-up.
	frameAllocator FrameAllocatorFn

	// frameDeallocator releases the frame Unmap reclaims.
	frameDeallocator FrameDeallocatorFn
)

// SetFrameAllocator registers the allocator Map uses to materialize
// missing intermediate page-table nodes.
func SetFrameAllocator(allocFn FrameAllocatorFn) {
	frameAllocator = allocFn
}

// SetFrameDeallocator registers the deallocator Unmap uses to release the
// frame a mapping named.
func SetFrameDeallocator(deallocFn FrameDeallocatorFn) {
	frameDeallocator = deallocFn
}

// MapPage maps page to frame in the active address space using the
// registered frame allocator for any intermediate node Map needs to
// create.
func MapPage(page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	return Map(page, frame, flags, frameAllocator)
}

// UnmapPage removes page's mapping using the registered frame
// deallocator.
func UnmapPage(page Page) *kernel.Error {
	return Unmap(page, frameDeallocator)
}
