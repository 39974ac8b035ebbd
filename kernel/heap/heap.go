// Package heap implements the kernel's dynamic heap (component E): a
// single contiguous arena managed as a doubly linked chain of blocks laid
// out in physical order, first-fit allocation with splitting, and
// coalescing on free. Every block carries a guard magic that is checked on
// each visit; a mismatch means something wrote past an allocation's bounds
// and is treated as fatal.
package heap

import (
	"math"
	"unsafe"

	"corvid/kernel"
	"corvid/kernel/mem"
)

const subsystem = "heap"

// guardMagic tags every live block header. It is checked whenever a block
// is visited by Malloc, Free, Calloc or Realloc.
const guardMagic uint32 = 0xDEADBEEF

// splitThreshold is the minimum leftover a block must have, beyond what the
// caller asked for, before Malloc bothers splitting off a trailing free
// block.
const splitThreshold = 128

// panicFn is swapped out by tests so a deliberately corrupted header can be
// observed without halting the test process.
var panicFn = kernel.Panic

// KernelHeap is the package-wide instance used once Init has run.
var KernelHeap Heap

// Init sets up the package-wide KernelHeap over [base, base+size).
func Init(base uintptr, size mem.Size) {
	KernelHeap.Init(base, size)
}

// Malloc allocates from the package-wide KernelHeap.
func Malloc(n uint64) uintptr { return KernelHeap.Malloc(n) }

// Calloc allocates from the package-wide KernelHeap.
func Calloc(count, size uint64) uintptr { return KernelHeap.Calloc(count, size) }

// Realloc resizes a block allocated from the package-wide KernelHeap.
func Realloc(ptr uintptr, n uint64) uintptr { return KernelHeap.Realloc(ptr, n) }

// Free releases a block allocated from the package-wide KernelHeap.
func Free(ptr uintptr) { KernelHeap.Free(ptr) }

// blockHeader precedes every block's payload in the arena. next and prev
// chain every block - free or allocated - in physical address order, so a
// free can always find both neighbours to attempt a coalesce.
type blockHeader struct {
	magic uint32
	size  uint64
	free  bool
	prev  uintptr
	next  uintptr
}

var headerSize = uint64(unsafe.Sizeof(blockHeader{}))

func headerAt(addr uintptr) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(addr))
}

func checkMagic(hdr *blockHeader) {
	if hdr.magic != guardMagic {
		panicFn(&kernel.Error{Module: subsystem, Message: "corrupted block header"})
	}
}

func alignUp16(n uint64) uint64 {
	return (n + 15) &^ 15
}

// Heap is a single contiguous arena. The zero value is not usable; call
// Init first.
type Heap struct {
	base     uintptr
	capacity uint64
}

// Init carves the single initial free block spanning [base, base+size).
func (h *Heap) Init(base uintptr, size mem.Size) {
	h.base = base
	h.capacity = uint64(size)

	hdr := headerAt(base)
	*hdr = blockHeader{magic: guardMagic, size: h.capacity - headerSize, free: true}
}

// Malloc returns a pointer to a zero-initialized-by-caller block of at
// least n bytes (rounded up to a 16-byte alignment), or 0 if no free block
// is large enough. It never panics on exhaustion.
func (h *Heap) Malloc(n uint64) uintptr {
	if n == 0 {
		return 0
	}
	n = alignUp16(n)

	for addr := h.base; addr != 0; {
		hdr := headerAt(addr)
		checkMagic(hdr)

		if hdr.free && hdr.size >= n {
			h.maybeSplit(addr, hdr, n)
			hdr.free = false
			return addr + uintptr(headerSize)
		}
		addr = hdr.next
	}
	return 0
}

// maybeSplit carves a new trailing free block out of hdr's tail when the
// leftover after n bytes exceeds a header plus splitThreshold bytes of
// slack, and shrinks hdr's own size to exactly n.
func (h *Heap) maybeSplit(addr uintptr, hdr *blockHeader, n uint64) {
	if hdr.size < n+headerSize+splitThreshold {
		return
	}

	newAddr := addr + uintptr(headerSize) + uintptr(n)
	newHdr := headerAt(newAddr)
	*newHdr = blockHeader{
		magic: guardMagic,
		size:  hdr.size - n - headerSize,
		free:  true,
		prev:  addr,
		next:  hdr.next,
	}
	if hdr.next != 0 {
		headerAt(hdr.next).prev = newAddr
	}

	hdr.next = newAddr
	hdr.size = n
}

// Free recovers ptr's header by pointer subtraction, validates its magic,
// and returns silently if the block is already free (a double free). A
// live block is marked free and coalesced with any free neighbour.
func (h *Heap) Free(ptr uintptr) {
	if ptr == 0 {
		return
	}

	addr := ptr - uintptr(headerSize)
	hdr := headerAt(addr)
	checkMagic(hdr)

	if hdr.free {
		return
	}

	hdr.free = true
	h.coalesce(addr, hdr)
}

// coalesce merges addr's block into its next neighbour, then into its
// previous neighbour, whenever either is also free.
func (h *Heap) coalesce(addr uintptr, hdr *blockHeader) {
	if hdr.next != 0 {
		next := headerAt(hdr.next)
		checkMagic(next)
		if next.free {
			hdr.size += headerSize + next.size
			hdr.next = next.next
			if hdr.next != 0 {
				headerAt(hdr.next).prev = addr
			}
		}
	}

	if hdr.prev != 0 {
		prev := headerAt(hdr.prev)
		checkMagic(prev)
		if prev.free {
			prev.size += headerSize + hdr.size
			prev.next = hdr.next
			if prev.next != 0 {
				headerAt(prev.next).prev = hdr.prev
			}
		}
	}
}

// Stats reports the arena's capacity and the bytes currently held by live
// (non-free) blocks, walking the same physical-order chain Malloc and Free
// maintain. It never allocates and is safe to call from a monitoring
// harness while the heap is otherwise idle.
func (h *Heap) Stats() (capacity, used uint64) {
	capacity = h.capacity
	for addr := h.base; addr != 0; {
		hdr := headerAt(addr)
		checkMagic(hdr)
		if !hdr.free {
			used += hdr.size
		}
		addr = hdr.next
	}
	return capacity, used
}

// Stats reports the package-wide KernelHeap's capacity and used bytes.
func Stats() (capacity, used uint64) { return KernelHeap.Stats() }

// Calloc allocates space for count objects of size bytes each and zeros
// it, returning 0 both on exhaustion and on a count*size overflow.
func (h *Heap) Calloc(count, size uint64) uintptr {
	if count != 0 && size > math.MaxUint64/count {
		return 0
	}

	total := count * size
	ptr := h.Malloc(total)
	if ptr == 0 {
		return 0
	}

	mem.Memset(ptr, 0, mem.Size(total))
	return ptr
}

// Realloc resizes the block at ptr to n bytes. It grows in place when the
// immediately following block is free and the combined size suffices;
// otherwise it allocates a new block, copies the old contents and frees
// the original. Realloc never shrinks a block in place. A nil ptr behaves
// like Malloc; a failed growth returns 0 and leaves ptr untouched.
func (h *Heap) Realloc(ptr uintptr, n uint64) uintptr {
	if ptr == 0 {
		return h.Malloc(n)
	}
	n = alignUp16(n)

	addr := ptr - uintptr(headerSize)
	hdr := headerAt(addr)
	checkMagic(hdr)

	if hdr.size >= n {
		return ptr
	}

	if hdr.next != 0 {
		next := headerAt(hdr.next)
		checkMagic(next)
		if next.free && hdr.size+headerSize+next.size >= n {
			hdr.size += headerSize + next.size
			hdr.next = next.next
			if hdr.next != 0 {
				headerAt(hdr.next).prev = addr
			}
			h.maybeSplit(addr, hdr, n)
			return ptr
		}
	}

	newPtr := h.Malloc(n)
	if newPtr == 0 {
		return 0
	}
	mem.Memcopy(newPtr, ptr, mem.Size(hdr.size))
	h.Free(ptr)
	return newPtr
}
