package loader

import (
	"encoding/binary"
	"testing"
	"unsafe"

	"corvid/kernel"
	"corvid/kernel/mem"
	"corvid/kernel/mem/pmm"
	"corvid/kernel/mem/vmm"
)

// pageAlignedBuffer returns the address of a page-aligned region at least
// n pages long, backed by Go-heap memory the test owns. Frames handed out
// against this region round-trip exactly through Frame.Address(), since
// the physical-address arithmetic pmm.Frame performs assumes page
// alignment.
func pageAlignedBuffer(t *testing.T, n int) uintptr {
	t.Helper()
	raw := make([]byte, (n+1)*int(mem.PageSize))
	addr := uintptr(unsafe.Pointer(&raw[0]))
	aligned := (addr + uintptr(mem.PageSize-1)) &^ uintptr(mem.PageSize-1)
	return aligned
}

// sequentialFrameAllocator hands out consecutive frames starting at base,
// which must be page aligned.
func sequentialFrameAllocator(base uintptr) vmm.FrameAllocatorFn {
	next := uint64(0)
	return func() (pmm.Frame, *kernel.Error) {
		frame := pmm.FrameFromAddress(base + uintptr(next)*uintptr(mem.PageSize))
		next++
		return frame, nil
	}
}

func mockMapPage(t *testing.T) *int {
	t.Helper()
	calls := 0
	orig := mapPageFn
	mapPageFn = func(page vmm.Page, frame pmm.Frame, flags vmm.PageTableEntryFlag, allocFn vmm.FrameAllocatorFn) *kernel.Error {
		calls++
		return nil
	}
	t.Cleanup(func() { mapPageFn = orig })
	return &calls
}

// buildImage assembles a minimal little-endian ELF64 image with a single
// PT_LOAD segment carrying payload at file offset ehdrSize+phdrSize.
func buildImage(vaddr, filesz, memsz uint64, flags uint32, payload []byte) []byte {
	const segOff = uint64(ehdrSize + phdrSize)
	total := segOff + uint64(len(payload))
	buf := make([]byte, total)

	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	buf[4] = 2 // ELFCLASS64
	binary.LittleEndian.PutUint64(buf[24:], 0x401000) // e_entry
	binary.LittleEndian.PutUint64(buf[32:], ehdrSize)  // e_phoff
	binary.LittleEndian.PutUint16(buf[56:], 1)         // e_phnum

	ph := buf[ehdrSize:]
	binary.LittleEndian.PutUint32(ph[0:], 1) // PT_LOAD
	binary.LittleEndian.PutUint32(ph[4:], flags)
	binary.LittleEndian.PutUint64(ph[8:], segOff)
	binary.LittleEndian.PutUint64(ph[16:], vaddr)
	binary.LittleEndian.PutUint64(ph[24:], vaddr)
	binary.LittleEndian.PutUint64(ph[32:], filesz)
	binary.LittleEndian.PutUint64(ph[40:], memsz)

	copy(buf[segOff:], payload)
	return buf
}

func TestIsValidELFAcceptsWellFormedHeader(t *testing.T) {
	img := buildImage(0x400000, 4, 4, 5, []byte{1, 2, 3, 4})
	if !IsValidELF(img) {
		t.Error("expected a well-formed header to validate")
	}
}

func TestIsValidELFRejectsBadMagic(t *testing.T) {
	img := buildImage(0x400000, 4, 4, 5, []byte{1, 2, 3, 4})
	img[1] = 'X'
	if IsValidELF(img) {
		t.Error("expected a corrupted magic to be rejected")
	}
}

func TestIsValidELFRejectsWrongClass(t *testing.T) {
	img := buildImage(0x400000, 4, 4, 5, []byte{1, 2, 3, 4})
	img[4] = 1 // ELFCLASS32
	if IsValidELF(img) {
		t.Error("expected a 32-bit class to be rejected")
	}
}

func TestIsValidELFRejectsShortImage(t *testing.T) {
	if IsValidELF([]byte{0x7f, 'E', 'L'}) {
		t.Error("expected a too-short image to be rejected")
	}
}

func TestLoadReturnsEntryPoint(t *testing.T) {
	mockMapPage(t)
	img := buildImage(0x400000, 4, 4, 6, []byte{1, 2, 3, 4})
	base := pageAlignedBuffer(t, 4)

	entry, segs, err := Load(img, sequentialFrameAllocator(base))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry != 0x401000 {
		t.Errorf("expected entry 0x401000; got %#x", entry)
	}
	if len(segs) != 1 {
		t.Fatalf("expected one segment; got %d", len(segs))
	}
	if !segs[0].Writable {
		t.Error("expected segment flagged writable")
	}
}

func TestLoadCopiesFileBytesAndZeroesBSS(t *testing.T) {
	mockMapPage(t)
	payload := []byte{0xaa, 0xbb, 0xcc, 0xdd}
	// memsz doubles filesz: the tail must come back zeroed (bss).
	img := buildImage(0x400000, uint64(len(payload)), uint64(len(payload))*2, 6, payload)
	base := pageAlignedBuffer(t, 4)

	_, _, err := Load(img, sequentialFrameAllocator(base))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := (*[4]byte)(unsafe.Pointer(base))
	if *got != [4]byte{0xaa, 0xbb, 0xcc, 0xdd} {
		t.Errorf("expected file bytes copied into the segment's page; got %v", *got)
	}

	bssByte := *(*byte)(unsafe.Pointer(base + uintptr(len(payload))))
	if bssByte != 0 {
		t.Errorf("expected bss tail zeroed; got %#x", bssByte)
	}
}

func TestLoadMapsOnePagePerPageOfSegment(t *testing.T) {
	calls := mockMapPage(t)
	img := buildImage(0x400000, 4, uint64(mem.PageSize)*3, 4, []byte{1, 2, 3, 4})
	base := pageAlignedBuffer(t, 8)

	if _, _, err := Load(img, sequentialFrameAllocator(base)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *calls != 3 {
		t.Errorf("expected 3 page mappings for a 3-page segment; got %d", *calls)
	}
}

func TestLoadRejectsTooShortImage(t *testing.T) {
	if _, _, err := Load([]byte{0x7f, 'E'}, sequentialFrameAllocator(pageAlignedBuffer(t, 1))); err != errTooShort {
		t.Errorf("expected errTooShort; got %v", err)
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	img := buildImage(0x400000, 4, 4, 4, []byte{1, 2, 3, 4})
	img[0] = 0
	if _, _, err := Load(img, sequentialFrameAllocator(pageAlignedBuffer(t, 1))); err != errBadMagic {
		t.Errorf("expected errBadMagic; got %v", err)
	}
}

func TestLoadRejectsWrongClass(t *testing.T) {
	img := buildImage(0x400000, 4, 4, 4, []byte{1, 2, 3, 4})
	img[4] = 1
	if _, _, err := Load(img, sequentialFrameAllocator(pageAlignedBuffer(t, 1))); err != errWrongClass {
		t.Errorf("expected errWrongClass; got %v", err)
	}
}

func TestLoadRejectsSegmentLargerThanMemsz(t *testing.T) {
	img := buildImage(0x400000, 8, 4, 4, make([]byte, 8))
	if _, _, err := Load(img, sequentialFrameAllocator(pageAlignedBuffer(t, 1))); err != errSegmentSize {
		t.Errorf("expected errSegmentSize; got %v", err)
	}
}

func TestLoadPropagatesFrameAllocationError(t *testing.T) {
	mockMapPage(t)
	img := buildImage(0x400000, 4, 4, 4, []byte{1, 2, 3, 4})
	expErr := &kernel.Error{Module: "test", Message: "out of frames"}
	failing := func() (pmm.Frame, *kernel.Error) { return pmm.InvalidFrame, expErr }

	if _, _, err := Load(img, failing); err != expErr {
		t.Errorf("expected %v; got %v", expErr, err)
	}
}
