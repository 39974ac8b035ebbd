// Package proc implements the kernel's process table (component J): a
// fixed-size array of process records, their allocation and state
// machine, and the address-space/user-stack setup a freshly created
// process needs before it can run.
package proc

import (
	"corvid/kernel"
	"corvid/kernel/gate"
	"corvid/kernel/klog"
	"corvid/kernel/mem"
	"corvid/kernel/mem/pmm"
	"corvid/kernel/mem/vmm"
)

const subsystem = "proc"

// MaxProcesses bounds the process table to a fixed array, mirroring the
// original's MAX_PROCESSES.
const MaxProcesses = 256

// UserStackSize is the size, in bytes, of every process's user stack.
const UserStackSize = 1024 * 1024

// userSpaceBase is the first byte of user-addressable virtual memory.
const userSpaceBase = 0x0000000000400000

// userStackOffset places every process's stack 1GiB above userSpaceBase,
// matching the original's fixed per-process stack_base computation.
const userStackOffset = 1024 * 1024 * 1024

// State is a process's position in its lifecycle.
type State uint8

const (
	StateUnused State = iota
	StateReady
	StateRunning
	StateBlocked
	StateZombie
)

func (s State) String() string {
	switch s {
	case StateUnused:
		return "unused"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateZombie:
		return "zombie"
	default:
		return "invalid"
	}
}

// ErrNotImplemented is returned by operations the original source leaves
// as stubs.
var ErrNotImplemented = &kernel.Error{Module: subsystem, Message: "not implemented"}

var errTableFull = &kernel.Error{Module: subsystem, Message: "process table full"}

// newAddressSpaceFn, mapPageFn, activeRootFn and switchRootFn are
// indirections over vmm so tests can exercise Create's bookkeeping
// without walking real page tables or reloading CR3.
var (
	newAddressSpaceFn = vmm.NewAddressSpace
	mapPageFn         = vmm.Map
	activeRootFn      = vmm.ActiveRoot
	switchRootFn      = vmm.SwitchRoot
)

// Process is one slot in the process table. The table is its sole owner:
// the scheduler's run queue holds only a Process's ID, never a pointer,
// so the two structures cannot form a reference cycle.
type Process struct {
	ID    uint32
	State State

	AddrSpace vmm.AddressSpace
	StackBase uintptr
	HeapBase  uintptr
	HeapEnd   uintptr

	// Regs holds this process's saved register file whenever it is not
	// the one currently installed in the CPU. kernel/sched copies into
	// and out of it across a context switch.
	Regs gate.Registers
}

var (
	table  [MaxProcesses]Process
	nextID uint32 = 1
)

// Init clears the process table. It must run before any process is
// created.
func Init() {
	table = [MaxProcesses]Process{}
	nextID = 1
	klog.Infof(subsystem, "process table initialized (%d slots)", MaxProcesses)
}

// Allocate scans for the first Unused slot, assigns it the next
// monotonically increasing id, marks it Ready and returns it. It returns
// errTableFull if every slot is in use. Create calls Allocate and then
// builds out the address space and stack a runnable process needs;
// Allocate alone is exported for callers (and tests) that only need a
// bare table slot, mirroring the original's separate allocate_process.
func Allocate() (*Process, *kernel.Error) {
	for i := range table {
		if table[i].State == StateUnused {
			table[i] = Process{ID: nextID, State: StateReady}
			nextID++
			return &table[i], nil
		}
	}
	return nil, errTableFull
}

// ByID returns the process with the given id, or nil if no live slot
// carries it.
func ByID(id uint32) *Process {
	for i := range table {
		if table[i].ID == id && table[i].State != StateUnused {
			return &table[i]
		}
	}
	return nil
}

// Create allocates a process, gives it a fresh address space sharing the
// kernel's half of the current page tables, maps its user stack, and
// sets its initial register file so that it starts executing at entry.
// isUser controls whether the process runs with ring-3 privileges
// (IOPL=3) or as a kernel task (IOPL=0); both run with interrupts
// enabled.
func Create(entry uintptr, isUser bool, allocFrame vmm.FrameAllocatorFn, retain func(pmm.Frame) *kernel.Error) (*Process, *kernel.Error) {
	p, err := Allocate()
	if err != nil {
		klog.Errorf(subsystem, "failed to allocate process: %s", err.Message)
		return nil, err
	}

	addrSpace, err := newAddressSpaceFn(allocFrame, retain)
	if err != nil {
		p.State = StateUnused
		return nil, err
	}
	p.AddrSpace = addrSpace

	// The stack must be mapped into this process's own table, not
	// whichever table happens to be active, so the new address space is
	// activated for the duration of the mapping loop and the previous
	// root is always restored before Create returns.
	p.StackBase = userSpaceBase + userStackOffset
	origRoot := activeRootFn()
	switchRootFn(addrSpace.Root())
	mapErr := mapUserStack(p, allocFrame)
	switchRootFn(origRoot)

	if mapErr != nil {
		p.State = StateUnused
		return nil, mapErr
	}

	p.Regs.RSP = uint64(p.StackBase + UserStackSize - 16)
	p.Regs.RBP = p.Regs.RSP
	p.Regs.RIP = uint64(entry)

	const interruptEnableFlag = 0x202
	if isUser {
		const iopl3 = 3 << 12
		p.Regs.RFlags = interruptEnableFlag | iopl3
	} else {
		p.Regs.RFlags = interruptEnableFlag
	}

	p.HeapBase = userSpaceBase
	p.HeapEnd = p.HeapBase

	klog.Infof(subsystem, "created process pid=%d rip=%#x", p.ID, p.Regs.RIP)
	return p, nil
}

// mapUserStack maps UserStackSize/PageSize user-writable frames starting
// at p.StackBase. The caller must have already activated p's address
// space; this only walks and allocates.
func mapUserStack(p *Process, allocFrame vmm.FrameAllocatorFn) *kernel.Error {
	for off := uintptr(0); off < UserStackSize; off += uintptr(mem.PageSize) {
		frame, allocErr := allocFrame()
		if allocErr != nil {
			klog.Errorf(subsystem, "failed to allocate stack page for pid=%d: %s", p.ID, allocErr.Message)
			return allocErr
		}

		page := vmm.PageFromAddress(p.StackBase + off)
		if mapErr := mapPageFn(page, frame, vmm.FlagRW|vmm.FlagUser, allocFrame); mapErr != nil {
			return mapErr
		}
	}
	return nil
}

// Exit marks p as a Zombie. The caller (kernel/sched) is responsible for
// removing p's id from the run queue and invoking the scheduler; Exit
// itself never switches processes.
func Exit(p *Process, exitCode int) {
	if p == nil {
		return
	}
	klog.Infof(subsystem, "process pid=%d exited with code %d", p.ID, exitCode)
	p.State = StateZombie
}

// Reap is left unimplemented: the original never reaps Zombie processes
// and its waitpid stub returns NOT_IMPLEMENTED. This keeps that gap
// visible rather than silently absent.
func Reap(pid uint32) *kernel.Error {
	return ErrNotImplemented
}
