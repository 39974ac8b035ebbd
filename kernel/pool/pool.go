// Package pool implements fixed-size object pools (component F): O(1)
// allocation and free for a small set of common block sizes, backed by a
// free-pointer stack rather than the general-purpose kernel/heap free
// list. Three predefined pools (16, 64 and 256 bytes) cover the bulk of
// small kernel allocations; SmartAlloc/SmartFree route to whichever pool
// fits, falling back to kernel/heap for anything larger.
package pool

import (
	"unsafe"

	"corvid/kernel"
	"corvid/kernel/heap"
	"corvid/kernel/klog"
)

const subsystem = "pool"

// guardMagic tags every live Pool. It is checked on every Alloc/Free.
const guardMagic uint32 = 0xDEADC0DE

// panicFn is swapped out by tests so a corrupted pool can be observed
// without halting the test process.
var panicFn = kernel.Panic

const ptrSize = uint64(unsafe.Sizeof(uintptr(0)))

// Pool is a fixed block-size arena with a free-pointer stack. The top
// freeBlocks entries of freeList name the addresses currently available;
// Alloc pops, Free pushes.
type Pool struct {
	magic       uint32
	blockSize   uint64
	totalBlocks uint64
	freeBlocks  uint64
	poolStart   uintptr
	freeList    uintptr
}

func freeListEntry(base uintptr, i uint64) *uintptr {
	return (*uintptr)(unsafe.Pointer(base + uintptr(i*ptrSize)))
}

// Create allocates, from kernel/heap, a pool capable of holding numBlocks
// blocks of blockSize bytes each, plus its own management structures. It
// returns nil if either argument is zero or if any underlying allocation
// fails.
func Create(blockSize, numBlocks uint64) *Pool {
	if blockSize == 0 || numBlocks == 0 {
		return nil
	}

	poolAddr := heap.Malloc(uint64(unsafe.Sizeof(Pool{})))
	if poolAddr == 0 {
		return nil
	}
	p := (*Pool)(unsafe.Pointer(poolAddr))

	poolStart := heap.Malloc(numBlocks * blockSize)
	if poolStart == 0 {
		heap.Free(poolAddr)
		return nil
	}

	freeList := heap.Malloc(numBlocks * ptrSize)
	if freeList == 0 {
		heap.Free(poolStart)
		heap.Free(poolAddr)
		return nil
	}

	*p = Pool{
		magic:       guardMagic,
		blockSize:   blockSize,
		totalBlocks: numBlocks,
		freeBlocks:  numBlocks,
		poolStart:   poolStart,
		freeList:    freeList,
	}
	for i := uint64(0); i < numBlocks; i++ {
		*freeListEntry(freeList, i) = poolStart + uintptr(i*blockSize)
	}

	return p
}

func (p *Pool) checkMagic() {
	if p.magic != guardMagic {
		panicFn(&kernel.Error{Module: subsystem, Message: "corrupted pool header"})
	}
}

// Alloc pops and returns the next free block, or 0 if the pool is
// exhausted or nil.
func (p *Pool) Alloc() uintptr {
	if p == nil || p.freeBlocks == 0 {
		return 0
	}
	p.checkMagic()

	p.freeBlocks--
	return *freeListEntry(p.freeList, p.freeBlocks)
}

// Free returns ptr to the pool. It silently does nothing if ptr is nil,
// outside the pool's bounds, misaligned to blockSize, or already free.
func (p *Pool) Free(ptr uintptr) {
	if p == nil || ptr == 0 {
		return
	}
	p.checkMagic()

	end := p.poolStart + uintptr(p.totalBlocks*p.blockSize)
	if ptr < p.poolStart || ptr >= end {
		return
	}
	if uint64(ptr-p.poolStart)%p.blockSize != 0 {
		return
	}
	for i := uint64(0); i < p.freeBlocks; i++ {
		if *freeListEntry(p.freeList, i) == ptr {
			return
		}
	}

	if p.freeBlocks < p.totalBlocks {
		*freeListEntry(p.freeList, p.freeBlocks) = ptr
		p.freeBlocks++
	}
}

// Stats reports a pool's block size, total block count and the number of
// blocks currently allocated out.
func (p *Pool) Stats() (blockSize, total, inUse uint64) {
	if p == nil {
		return 0, 0, 0
	}
	return p.blockSize, p.totalBlocks, p.totalBlocks - p.freeBlocks
}

// Destroy releases a pool's block arena, free-pointer stack and its own
// management structure back to kernel/heap.
func (p *Pool) Destroy() {
	if p == nil {
		return
	}
	if p.poolStart != 0 {
		heap.Free(p.poolStart)
	}
	if p.freeList != 0 {
		heap.Free(p.freeList)
	}
	heap.Free(uintptr(unsafe.Pointer(p)))
}

// Predefined pools for the kernel's most common small allocation sizes.
var (
	smallPool  *Pool // 16 bytes
	mediumPool *Pool // 64 bytes
	largePool  *Pool // 256 bytes
)

// Init creates the small (16B x 1024), medium (64B x 512) and large
// (256B x 128) pools, logging a warning for any that fails rather than
// treating it as fatal - SmartAlloc falls back to kernel/heap regardless.
func Init() {
	smallPool = Create(16, 1024)
	mediumPool = Create(64, 512)
	largePool = Create(256, 128)

	if smallPool == nil || mediumPool == nil || largePool == nil {
		klog.Warnf(subsystem, "failed to create one or more predefined pools")
	}
}

// AllocSmall allocates a 16-byte block.
func AllocSmall() uintptr { return smallPool.Alloc() }

// AllocMedium allocates a 64-byte block.
func AllocMedium() uintptr { return mediumPool.Alloc() }

// AllocLarge allocates a 256-byte block.
func AllocLarge() uintptr { return largePool.Alloc() }

// FreeSmall returns a block to the small pool.
func FreeSmall(ptr uintptr) { smallPool.Free(ptr) }

// FreeMedium returns a block to the medium pool.
func FreeMedium(ptr uintptr) { mediumPool.Free(ptr) }

// FreeLarge returns a block to the large pool.
func FreeLarge(ptr uintptr) { largePool.Free(ptr) }

// Stats reports occupancy for the three predefined pools, keyed by their
// block size, for a monitoring harness to sample without reaching into
// package-private state.
func Stats() map[uint64]struct{ Total, InUse uint64 } {
	out := make(map[uint64]struct{ Total, InUse uint64 }, 3)
	for _, p := range []*Pool{smallPool, mediumPool, largePool} {
		blockSize, total, inUse := p.Stats()
		if blockSize == 0 {
			continue
		}
		out[blockSize] = struct{ Total, InUse uint64 }{total, inUse}
	}
	return out
}

// SmartAlloc routes size to the smallest predefined pool that fits it,
// falling back to kernel/heap for anything larger than 256 bytes.
func SmartAlloc(size uint64) uintptr {
	switch {
	case size <= 16:
		return AllocSmall()
	case size <= 64:
		return AllocMedium()
	case size <= 256:
		return AllocLarge()
	default:
		return heap.Malloc(size)
	}
}

// SmartFree returns ptr, originally obtained via SmartAlloc(size), to
// whichever pool or the heap would have served that size.
func SmartFree(ptr uintptr, size uint64) {
	switch {
	case size <= 16:
		FreeSmall(ptr)
	case size <= 64:
		FreeMedium(ptr)
	case size <= 256:
		FreeLarge(ptr)
	default:
		heap.Free(ptr)
	}
}
