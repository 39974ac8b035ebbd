// Package loader implements the kernel's ELF64 program loader (component
// L): header validation and a PT_LOAD segment walk that maps, zeroes and
// populates a freshly created process's address space from a binary image
// already sitting in memory.
//
// It reads header and program-header fields by overlaying the kernel's own
// structs onto the image's bytes with unsafe.Pointer, the same idiom
// kernel/multiboot uses for the bootloader's tag stream, rather than
// pulling in debug/elf's io.ReaderAt-based File reader — there is no file
// system under this package, only a byte slice already resident in
// memory. debug/elf supplies only the format's constants (magic bytes,
// class, segment types).
package loader

import (
	"debug/elf"
	"unsafe"

	"corvid/kernel"
	"corvid/kernel/mem"
	"corvid/kernel/mem/pmm"
	"corvid/kernel/mem/vmm"
)

const subsystem = "loader"

// mapPageFn is swapped out by tests to avoid real page-table writes.
var mapPageFn = vmm.Map

var (
	errTooShort    = &kernel.Error{Module: subsystem, Message: "image too short for an ELF header"}
	errBadMagic    = &kernel.Error{Module: subsystem, Message: "not an ELF image"}
	errWrongClass  = &kernel.Error{Module: subsystem, Message: "not a 64-bit ELF image"}
	errBadPhdr     = &kernel.Error{Module: subsystem, Message: "program header table extends past the image"}
	errBadSegment  = &kernel.Error{Module: subsystem, Message: "segment extends past the image"}
	errSegmentSize = &kernel.Error{Module: subsystem, Message: "segment memory size smaller than its file size"}
)

// ehdrSize and phdrSize are sizeof(Elf64_Ehdr)/sizeof(Elf64_Phdr): 64 and 56
// bytes respectively, with every field already naturally aligned so the Go
// structs below overlay the C layout with no explicit padding.
const (
	ehdrSize = 64
	phdrSize = 56
)

type ehdr64 struct {
	ident     [16]byte
	typ       uint16
	machine   uint16
	version   uint32
	entry     uint64
	phoff     uint64
	shoff     uint64
	flags     uint32
	ehsize    uint16
	phentsize uint16
	phnum     uint16
	shentsize uint16
	shnum     uint16
	shstrndx  uint16
}

type phdr64 struct {
	typ    uint32
	flags  uint32
	offset uint64
	vaddr  uint64
	paddr  uint64
	filesz uint64
	memsz  uint64
	align  uint64
}

// IsValidELF reports whether data begins with a 64-bit ELF header: the
// 4-byte magic followed by ELFCLASS64.
func IsValidELF(data []byte) bool {
	if len(data) < ehdrSize {
		return false
	}
	h := ehdrAt(data)
	return hasELFMagic(h) && h.ident[elf.EI_CLASS] == byte(elf.ELFCLASS64)
}

func hasELFMagic(h *ehdr64) bool {
	return h.ident[0] == '\x7f' && h.ident[1] == 'E' && h.ident[2] == 'L' && h.ident[3] == 'F'
}

// dataAddr returns the address of data's first byte.
func dataAddr(data []byte) uintptr {
	return uintptr(unsafe.Pointer(&data[0]))
}

func ehdrAt(data []byte) *ehdr64 {
	return (*ehdr64)(unsafe.Pointer(dataAddr(data)))
}

func phdrAt(data []byte, offset uint64) *phdr64 {
	return (*phdr64)(unsafe.Pointer(dataAddr(data) + uintptr(offset)))
}

// Segment describes one PT_LOAD entry that Load mapped.
type Segment struct {
	VirtAddr uintptr
	FileSize uint64
	MemSize  uint64
	Writable bool
}

// Load validates data as a 64-bit ELF image, maps and populates every
// PT_LOAD segment into the address space currently active (the caller is
// responsible for having activated the target process's table first, the
// same convention kernel/proc's Create uses for its own stack mapping),
// and returns the image's entry point.
func Load(data []byte, allocFrame vmm.FrameAllocatorFn) (uintptr, []Segment, *kernel.Error) {
	if len(data) < ehdrSize {
		return 0, nil, errTooShort
	}
	h := ehdrAt(data)
	if !hasELFMagic(h) {
		return 0, nil, errBadMagic
	}
	if h.ident[elf.EI_CLASS] != byte(elf.ELFCLASS64) {
		return 0, nil, errWrongClass
	}

	phdrsEnd := h.phoff + uint64(h.phnum)*phdrSize
	if phdrsEnd > uint64(len(data)) {
		return 0, nil, errBadPhdr
	}

	segments := make([]Segment, 0, h.phnum)
	for i := uint16(0); i < h.phnum; i++ {
		ph := phdrAt(data, h.phoff+uint64(i)*uint64(phdrSize))
		if ph.typ != uint32(elf.PT_LOAD) {
			continue
		}
		if ph.memsz < ph.filesz {
			return 0, nil, errSegmentSize
		}
		if ph.offset+ph.filesz > uint64(len(data)) {
			return 0, nil, errBadSegment
		}

		writable := ph.flags&uint32(elf.PF_W) != 0
		if err := mapSegment(data, ph, writable, allocFrame); err != nil {
			return 0, nil, err
		}
		segments = append(segments, Segment{
			VirtAddr: uintptr(ph.vaddr),
			FileSize: ph.filesz,
			MemSize:  ph.memsz,
			Writable: writable,
		})
	}

	return uintptr(h.entry), segments, nil
}

// mapSegment walks ph's virtual range one page at a time, mapping a fresh
// frame for each page, zeroing it (covering both alignment padding and the
// filesz..memsz bss tail) and copying in whatever file bytes fall within
// that page.
func mapSegment(data []byte, ph *phdr64, writable bool, allocFrame vmm.FrameAllocatorFn) *kernel.Error {
	flags := vmm.FlagUser
	if writable {
		flags |= vmm.FlagRW
	}

	segStart := uintptr(ph.vaddr)
	segEnd := segStart + uintptr(ph.memsz)
	pageStart := segStart &^ uintptr(mem.PageSize-1)

	for pageAddr := pageStart; pageAddr < segEnd; pageAddr += uintptr(mem.PageSize) {
		frame, err := allocFrame()
		if err != nil {
			return err
		}

		page := vmm.PageFromAddress(pageAddr)
		if err := mapPageFn(page, frame, flags, allocFrame); err != nil {
			return err
		}

		mem.Memset(frame.Address(), 0, mem.PageSize)
		copyFileBytesIntoPage(data, ph, pageAddr, frame)
	}
	return nil
}

// copyFileBytesIntoPage copies whatever portion of ph's file-backed bytes
// overlap [pageAddr, pageAddr+PageSize) into the frame backing that page.
func copyFileBytesIntoPage(data []byte, ph *phdr64, pageAddr uintptr, frame pmm.Frame) {
	fileStart := uintptr(ph.vaddr)
	fileEnd := fileStart + uintptr(ph.filesz)
	pageEnd := pageAddr + uintptr(mem.PageSize)

	copyStart := fileStart
	if pageAddr > copyStart {
		copyStart = pageAddr
	}
	copyEnd := fileEnd
	if pageEnd < copyEnd {
		copyEnd = pageEnd
	}
	if copyStart >= copyEnd {
		return
	}

	srcOffset := uint64(copyStart-fileStart) + ph.offset
	dstOffset := copyStart - pageAddr
	n := mem.Size(copyEnd - copyStart)

	mem.Memcopy(frame.Address()+dstOffset, dataAddr(data)+uintptr(srcOffset), n)
}
