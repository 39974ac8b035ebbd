package proc

import (
	"testing"

	"corvid/kernel"
	"corvid/kernel/mem"
	"corvid/kernel/mem/pmm"
	"corvid/kernel/mem/vmm"
)

func resetTable(t *testing.T) {
	t.Helper()
	Init()
}

func mockAddrSpaceAndMap(t *testing.T) (*int, *int) {
	t.Helper()
	addrSpaceCalls := 0
	mapCalls := 0

	origNewAS, origMap := newAddressSpaceFn, mapPageFn
	origActiveRoot, origSwitchRoot := activeRootFn, switchRootFn
	newAddressSpaceFn = func(allocFn vmm.FrameAllocatorFn, retainFn func(pmm.Frame) *kernel.Error) (vmm.AddressSpace, *kernel.Error) {
		addrSpaceCalls++
		return vmm.AddressSpace{}, nil
	}
	mapPageFn = func(page vmm.Page, frame pmm.Frame, flags vmm.PageTableEntryFlag, allocFn vmm.FrameAllocatorFn) *kernel.Error {
		mapCalls++
		return nil
	}
	activeRootFn = func() pmm.Frame { return pmm.Frame(0) }
	switchRootFn = func(pmm.Frame) {}
	t.Cleanup(func() {
		newAddressSpaceFn = origNewAS
		mapPageFn = origMap
		activeRootFn = origActiveRoot
		switchRootFn = origSwitchRoot
	})

	return &addrSpaceCalls, &mapCalls
}

func stubFrameAllocator() vmm.FrameAllocatorFn {
	var next pmm.Frame
	return func() (pmm.Frame, *kernel.Error) {
		next++
		return next, nil
	}
}

func TestCreateAssignsMonotonicIDsAndReadyState(t *testing.T) {
	resetTable(t)
	mockAddrSpaceAndMap(t)

	p1, err := Create(0x1000, true, stubFrameAllocator(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p2, err := Create(0x2000, true, stubFrameAllocator(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p1.ID != 1 || p2.ID != 2 {
		t.Errorf("expected ids 1,2; got %d,%d", p1.ID, p2.ID)
	}
	if p1.State != StateReady || p2.State != StateReady {
		t.Errorf("expected both processes Ready; got %v, %v", p1.State, p2.State)
	}
}

func TestCreateSetsRegistersForUserProcess(t *testing.T) {
	resetTable(t)
	mockAddrSpaceAndMap(t)

	p, err := Create(0xdeadbeef, true, stubFrameAllocator(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.Regs.RIP != 0xdeadbeef {
		t.Errorf("expected RIP=0xdeadbeef; got %#x", p.Regs.RIP)
	}
	wantRSP := uint64(p.StackBase + UserStackSize - 16)
	if p.Regs.RSP != wantRSP || p.Regs.RBP != wantRSP {
		t.Errorf("expected RSP=RBP=%#x; got RSP=%#x RBP=%#x", wantRSP, p.Regs.RSP, p.Regs.RBP)
	}

	const ifSet = 0x202
	const iopl3 = 3 << 12
	if p.Regs.RFlags != ifSet|iopl3 {
		t.Errorf("expected user rflags IF|IOPL3; got %#x", p.Regs.RFlags)
	}
}

func TestCreateSetsRegistersForKernelProcess(t *testing.T) {
	resetTable(t)
	mockAddrSpaceAndMap(t)

	p, err := Create(0x1000, false, stubFrameAllocator(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const ifSet = 0x202
	if p.Regs.RFlags != ifSet {
		t.Errorf("expected kernel rflags IF only (no IOPL); got %#x", p.Regs.RFlags)
	}
}

func TestCreateMapsOnePagePerStackPage(t *testing.T) {
	resetTable(t)
	_, mapCalls := mockAddrSpaceAndMap(t)

	if _, err := Create(0x1000, true, stubFrameAllocator(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := UserStackSize / int(mem.PageSize)
	if *mapCalls != want {
		t.Errorf("expected %d page mappings for the user stack; got %d", want, *mapCalls)
	}
}

func TestCreatePropagatesAddressSpaceError(t *testing.T) {
	resetTable(t)
	origNewAS := newAddressSpaceFn
	expErr := &kernel.Error{Module: "test", Message: "out of memory"}
	newAddressSpaceFn = func(allocFn vmm.FrameAllocatorFn, retainFn func(pmm.Frame) *kernel.Error) (vmm.AddressSpace, *kernel.Error) {
		return vmm.AddressSpace{}, expErr
	}
	t.Cleanup(func() { newAddressSpaceFn = origNewAS })

	p, err := Create(0x1000, true, stubFrameAllocator(), nil)
	if err != expErr {
		t.Fatalf("expected %v; got %v", expErr, err)
	}
	if p != nil {
		t.Error("expected nil process on error")
	}
}

func TestCreatePropagatesStackMapError(t *testing.T) {
	resetTable(t)
	origNewAS, origMap := newAddressSpaceFn, mapPageFn
	origActiveRoot, origSwitchRoot := activeRootFn, switchRootFn
	newAddressSpaceFn = func(allocFn vmm.FrameAllocatorFn, retainFn func(pmm.Frame) *kernel.Error) (vmm.AddressSpace, *kernel.Error) {
		return vmm.AddressSpace{}, nil
	}
	expErr := &kernel.Error{Module: "test", Message: "mapping failed"}
	mapPageFn = func(page vmm.Page, frame pmm.Frame, flags vmm.PageTableEntryFlag, allocFn vmm.FrameAllocatorFn) *kernel.Error {
		return expErr
	}
	activeRootFn = func() pmm.Frame { return pmm.Frame(0) }
	switchRootFn = func(pmm.Frame) {}
	t.Cleanup(func() {
		newAddressSpaceFn = origNewAS
		mapPageFn = origMap
		activeRootFn = origActiveRoot
		switchRootFn = origSwitchRoot
	})

	p, err := Create(0x1000, true, stubFrameAllocator(), nil)
	if err != expErr {
		t.Fatalf("expected %v; got %v", expErr, err)
	}
	if p != nil {
		t.Error("expected nil process on error")
	}
	if table[0].State != StateUnused {
		t.Errorf("expected slot reclaimed as Unused after failure; got %v", table[0].State)
	}
}

func TestAllocateFailsWhenTableIsFull(t *testing.T) {
	resetTable(t)
	mockAddrSpaceAndMap(t)

	for i := 0; i < MaxProcesses; i++ {
		if _, err := Create(uintptr(i), true, stubFrameAllocator(), nil); err != nil {
			t.Fatalf("unexpected error filling slot %d: %v", i, err)
		}
	}

	if _, err := Create(0x1000, true, stubFrameAllocator(), nil); err != errTableFull {
		t.Fatalf("expected errTableFull; got %v", err)
	}
}

func TestByIDFindsLiveProcessAndMissesUnusedSlots(t *testing.T) {
	resetTable(t)
	mockAddrSpaceAndMap(t)

	p, _ := Create(0x1000, true, stubFrameAllocator(), nil)

	if got := ByID(p.ID); got != p {
		t.Errorf("expected ByID to find the created process; got %v", got)
	}
	if got := ByID(p.ID + 1000); got != nil {
		t.Errorf("expected ByID to miss an id never allocated; got %v", got)
	}
}

func TestExitMarksZombie(t *testing.T) {
	resetTable(t)
	mockAddrSpaceAndMap(t)

	p, _ := Create(0x1000, true, stubFrameAllocator(), nil)
	Exit(p, 7)

	if p.State != StateZombie {
		t.Errorf("expected Zombie after Exit; got %v", p.State)
	}
}

func TestExitOnNilProcessIsNoop(t *testing.T) {
	Exit(nil, 0) // must not panic
}

func TestReapReturnsNotImplemented(t *testing.T) {
	if err := Reap(1); err != ErrNotImplemented {
		t.Errorf("expected ErrNotImplemented; got %v", err)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateUnused:  "unused",
		StateReady:   "ready",
		StateRunning: "running",
		StateBlocked: "blocked",
		StateZombie:  "zombie",
		State(99):    "invalid",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
