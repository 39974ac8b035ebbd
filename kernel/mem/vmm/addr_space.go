package vmm

import (
	"corvid/kernel"
	"corvid/kernel/cpu"
	"corvid/kernel/mem"
	"corvid/kernel/mem/pmm"
)

// switchRootFn is swapped out by tests to avoid a real CR3 reload, which
// faults outside ring 0.
var switchRootFn = cpu.SwitchPDT

// kernelHalfStart is the first L4 index belonging to the kernel's half of
// the address space; every process's private table shares these entries.
const kernelHalfStart = 256

// AddressSpace names a private page-table root (an L4 frame). Component J's
// process table attaches one per process via NewAddressSpace.
type AddressSpace struct {
	root pmm.Frame
}

// NewAddressSpace allocates and zeroes a fresh L4 table via allocFn, then
// copies the kernel-half entries (indices 256..511) out of the currently
// active table so every address space shares the kernel's mappings without
// re-walking them. Each shared intermediate frame has its reference count
// bumped via retainFn, since it is now owned by more than one L4 table.
func NewAddressSpace(allocFn FrameAllocatorFn, retainFn func(pmm.Frame) *kernel.Error) (AddressSpace, *kernel.Error) {
	rootFrame, err := allocFn()
	if err != nil {
		return AddressSpace{}, err
	}
	mem.Memset(rootFrame.Address(), 0, mem.PageSize)

	activeRoot := rootFn()
	for i := kernelHalfStart; i < int(mem.EntriesPerTable); i++ {
		srcEntry := (*pageTableEntry)(ptePtrFn(activeRoot + uintptr(i)*8))
		if !srcEntry.HasFlags(FlagPresent) {
			continue
		}

		dstEntry := (*pageTableEntry)(ptePtrFn(rootFrame.Address() + uintptr(i)*8))
		*dstEntry = *srcEntry

		if err := retainFn(srcEntry.Frame()); err != nil {
			return AddressSpace{}, err
		}
	}

	return AddressSpace{root: rootFrame}, nil
}

// Root returns the physical frame backing this address space's L4 table.
func (as AddressSpace) Root() pmm.Frame {
	return as.root
}

// Activate installs as as the active address space.
func (as AddressSpace) Activate() {
	switchRootFn(as.root.Address())
}

// SwitchRoot installs root as the active L4 table. It is the package-level
// form of AddressSpace.Activate for callers that only hold a frame.
func SwitchRoot(root pmm.Frame) {
	switchRootFn(root.Address())
}

// ActiveRoot returns the L4 frame currently installed as the page-table
// root.
func ActiveRoot() pmm.Frame {
	return pmm.FrameFromAddress(rootFn())
}
