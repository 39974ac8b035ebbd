package vmm

import (
	"testing"
	"unsafe"

	"corvid/kernel"
	"corvid/kernel/mem/pmm"
)

func TestNewAddressSpaceCopiesKernelHalfAndRetainsFrames(t *testing.T) {
	// NewAddressSpace writes the new root through its frame address, so both
	// tables come from mockTables' heap-backed chain rather than from stack
	// arrays, which do not start on a frame boundary.
	tables := mockTables(t)
	activeRoot, newRoot := &tables[0], &tables[1]
	kernelFrame := pmm.Frame(99)
	activeRoot[kernelHalfStart].SetFlags(FlagPresent | FlagRW)
	activeRoot[kernelHalfStart].SetFrame(kernelFrame)

	allocFn := func() (pmm.Frame, *kernel.Error) {
		return pmm.FrameFromAddress(uintptr(unsafe.Pointer(&newRoot[0]))), nil
	}

	var retained []pmm.Frame
	retainFn := func(f pmm.Frame) *kernel.Error {
		retained = append(retained, f)
		return nil
	}

	as, err := NewAddressSpace(allocFn, retainFn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := newRoot[kernelHalfStart].Frame(); got != kernelFrame {
		t.Errorf("expected kernel-half entry copied into new root; got frame %v", got)
	}
	if len(retained) != 1 || retained[0] != kernelFrame {
		t.Errorf("expected kernelFrame to be retained exactly once; got %v", retained)
	}
	if as.Root() != pmm.FrameFromAddress(uintptr(unsafe.Pointer(&newRoot[0]))) {
		t.Error("expected AddressSpace.Root() to return the allocated frame")
	}
}

func TestNewAddressSpacePropagatesAllocError(t *testing.T) {
	expErr := &kernel.Error{Module: "test", Message: "out of memory"}
	allocFn := func() (pmm.Frame, *kernel.Error) { return pmm.InvalidFrame, expErr }

	if _, err := NewAddressSpace(allocFn, nil); err != expErr {
		t.Fatalf("expected %v; got %v", expErr, err)
	}
}

func TestSwitchRootAndActiveRoot(t *testing.T) {
	origSwitch, origRoot := switchRootFn, rootFn
	var switchedTo uintptr
	switchRootFn = func(addr uintptr) { switchedTo = addr }
	rootFn = func() uintptr { return switchedTo }
	t.Cleanup(func() {
		switchRootFn = origSwitch
		rootFn = origRoot
	})

	frame := pmm.Frame(17)
	SwitchRoot(frame)

	if switchedTo != frame.Address() {
		t.Errorf("expected switchRootFn called with %#x; got %#x", frame.Address(), switchedTo)
	}
	if got := ActiveRoot(); got != frame {
		t.Errorf("expected ActiveRoot %v; got %v", frame, got)
	}
}
