// Package allocator implements the kernel's physical page allocator
// (component C): a LIFO free list of fixed-size frames, with frames handed
// out ref-counted so a page shared by more than one address space is only
// returned to the list once its last owner frees it.
package allocator

import (
	"reflect"
	"unsafe"

	"corvid/kernel"
	"corvid/kernel/klog"
	"corvid/kernel/mem"
	"corvid/kernel/mem/pmm"
	"corvid/kernel/multiboot"
)

const subsystem = "pmm_alloc"

var (
	// FrameAllocator is the package-wide instance used once Init has run.
	FrameAllocator Allocator

	errOutOfMemory = &kernel.Error{Module: "pmm_alloc", Message: "out of physical memory"}
	errNotOwned    = &kernel.Error{Module: "pmm_alloc", Message: "frame is not currently allocated"}

	// reserveBootBytesFn is swapped out by tests so the descriptor and
	// free-stack backing arrays land in ordinary Go-heap memory instead
	// of the raw physical address a hosted test process cannot touch.
	reserveBootBytesFn = bumpAlloc
)

type descriptor struct {
	refCount uint32
	free     bool
}

// Allocator is a LIFO free-list physical frame allocator. The managed range
// is [0, frameCount), indexed directly by frame number; frames belonging to
// reserved or ACPI regions are simply never pushed onto the free stack, so
// Allocate can never hand one out.
type Allocator struct {
	frameCount uint64

	descs    []descriptor
	descsHdr reflect.SliceHeader

	freeStack    []pmm.Frame
	freeStackHdr reflect.SliceHeader
	freeTop      int

	totalPages uint64
}

// bumpAlloc reserves size bytes starting at the next page boundary after
// addr, exploiting the boot protocol's guarantee that the first 4 GiB of
// physical memory are identity-mapped: physical and virtual addresses
// coincide, so the descriptor and free-stack backing arrays need no
// intermediate vmm.Map call to become addressable.
func bumpAlloc(addr uintptr, size uintptr) uintptr {
	pageSizeMinus1 := uintptr(mem.PageSize - 1)
	start := (addr + pageSizeMinus1) &^ pageSizeMinus1
	end := (start + size + pageSizeMinus1) &^ pageSizeMinus1
	mem.Memset(start, 0, mem.Size(end-start))
	return start
}

// Init walks the multiboot memory map, excludes the kernel image and its own
// bookkeeping arrays from allocation, and populates the free stack with
// every other available frame.
func (alloc *Allocator) Init(kernelStart, kernelEnd uintptr) *kernel.Error {
	var highestFrame pmm.Frame
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type != multiboot.MemAvailable {
			return true
		}
		if end := pmm.FrameFromAddress(uintptr(region.PhysAddress + region.Length)); end > highestFrame {
			highestFrame = end
		}
		return true
	})
	alloc.frameCount = uint64(highestFrame) + 1

	descBytes := uintptr(alloc.frameCount) * unsafe.Sizeof(descriptor{})
	stackBytes := uintptr(alloc.frameCount) * unsafe.Sizeof(pmm.Frame(0))

	bootAddr := reserveBootBytesFn(kernelEnd, descBytes+stackBytes)
	descAddr, stackAddr := bootAddr, bootAddr+descBytes

	alloc.descsHdr = reflect.SliceHeader{Data: descAddr, Len: int(alloc.frameCount), Cap: int(alloc.frameCount)}
	alloc.descs = *(*[]descriptor)(unsafe.Pointer(&alloc.descsHdr))

	alloc.freeStackHdr = reflect.SliceHeader{Data: stackAddr, Len: int(alloc.frameCount), Cap: int(alloc.frameCount)}
	alloc.freeStack = *(*[]pmm.Frame)(unsafe.Pointer(&alloc.freeStackHdr))

	// The watermark assumes the reservation is placed immediately after
	// kernelEnd, which is how the production bumpAlloc behaves; this
	// holds regardless of where a test's mock reserveBootBytesFn actually
	// parks the backing memory, since that memory isn't part of the
	// multiboot-reported physical map being walked below anyway.
	kernelStartFrame := pmm.FrameFromAddress(kernelStart)
	kernelEndFrame := pmm.FrameFromAddress(kernelEnd + descBytes + stackBytes)

	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type != multiboot.MemAvailable {
			return true
		}

		regionStart := pmm.FrameFromAddress(uintptr(region.PhysAddress))
		regionEnd := pmm.FrameFromAddress(uintptr(region.PhysAddress + region.Length))
		for f := regionStart; f < regionEnd; f++ {
			if f >= kernelStartFrame && f <= kernelEndFrame {
				continue
			}
			alloc.descs[f].free = true
			alloc.freeStack[alloc.freeTop] = f
			alloc.freeTop++
			alloc.totalPages++
		}
		return true
	})

	klog.Infof(subsystem, "%d pages available after excluding kernel image and %d bookkeeping bytes",
		alloc.totalPages, uint64(descBytes+stackBytes))
	return nil
}

// Allocate pops a frame off the free list and marks it ref-counted to one.
func (alloc *Allocator) Allocate() (pmm.Frame, *kernel.Error) {
	if alloc.freeTop == 0 {
		return pmm.InvalidFrame, errOutOfMemory
	}

	alloc.freeTop--
	frame := alloc.freeStack[alloc.freeTop]
	alloc.descs[frame].free = false
	alloc.descs[frame].refCount = 1
	return frame, nil
}

// Retain increments frame's reference count. It is used when a virtual
// memory mapper duplicates a pointer to an existing frame into another
// address space's page tables (for example, the kernel half shared across
// every process's top-level table) rather than allocating a fresh one.
func (alloc *Allocator) Retain(frame pmm.Frame) *kernel.Error {
	if uint64(frame) >= alloc.frameCount || alloc.descs[frame].free {
		return errNotOwned
	}
	alloc.descs[frame].refCount++
	return nil
}

// Free decrements frame's reference count, returning it to the free list
// once the count reaches zero. Freeing a frame that is not currently
// allocated is reported as an error rather than silently ignored, since a
// stray double free here usually means page-table bookkeeping is corrupt.
func (alloc *Allocator) Free(frame pmm.Frame) *kernel.Error {
	if uint64(frame) >= alloc.frameCount || alloc.descs[frame].free || alloc.descs[frame].refCount == 0 {
		return errNotOwned
	}

	alloc.descs[frame].refCount--
	if alloc.descs[frame].refCount > 0 {
		return nil
	}

	alloc.descs[frame].free = true
	alloc.freeStack[alloc.freeTop] = frame
	alloc.freeTop++
	return nil
}

// AddressOf returns the physical base address for frame.
func (alloc *Allocator) AddressOf(frame pmm.Frame) uintptr {
	return frame.Address()
}

// FrameFor returns the frame containing physical address addr, or
// InvalidFrame if addr lies outside the managed range.
func (alloc *Allocator) FrameFor(addr uintptr) pmm.Frame {
	frame := pmm.FrameFromAddress(addr)
	if uint64(frame) >= alloc.frameCount {
		return pmm.InvalidFrame
	}
	return frame
}

// Stats reports current physical-page occupancy.
func (alloc *Allocator) Stats() mem.Stats {
	used := alloc.totalPages - uint64(alloc.freeTop)
	return mem.Stats{
		TotalPages: alloc.totalPages,
		FreePages:  uint64(alloc.freeTop),
		UsedPages:  used,
	}
}

// Init sets up the package-wide FrameAllocator.
func Init(kernelStart, kernelEnd uintptr) *kernel.Error {
	return FrameAllocator.Init(kernelStart, kernelEnd)
}
