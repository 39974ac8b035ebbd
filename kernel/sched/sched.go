// Package sched implements the kernel's round-robin scheduler (component
// K): a FIFO run queue of Ready process ids, tick-driven preemption, and
// context save/restore against the trap frame kernel/gate defines.
package sched

import (
	"corvid/kernel/cpu"
	"corvid/kernel/gate"
	"corvid/kernel/klog"
	"corvid/kernel/mem/vmm"
	"corvid/kernel/proc"
)

const subsystem = "sched"

// DefaultSliceLength is the number of timer ticks (at 100Hz, 100ms) a
// Running process is allowed before being preempted.
const DefaultSliceLength = 10

// haltFn is invoked if Exit ever drains the run queue completely. It is
// mocked by tests to avoid halting the test process.
var haltFn = cpu.Halt

// activateAddrSpaceFn installs a process's address space as the active
// page-table root. It is mocked by tests since the real path issues a
// privileged mov-to-cr3 that faults outside ring 0.
var activateAddrSpaceFn = func(as vmm.AddressSpace) { as.Activate() }

// The run queue holds only process ids, never *proc.Process pointers: the
// process table is the sole owner of every Process, per spec §9's
// resolution of the table/queue reference cycle. It is a plain array
// walked linearly rather than a linked list, since MaxProcesses is small
// and fixed and this avoids any per-operation allocation.
var (
	queue    [proc.MaxProcesses]uint32
	queueLen int

	currentID    uint32
	sliceCounter uint64
	sliceLength  uint64 = DefaultSliceLength
)

// Init resets the run queue and clears the current process.
func Init() {
	queueLen = 0
	currentID = 0
	sliceCounter = 0
	klog.Infof(subsystem, "scheduler initialized")
}

// Add appends p to the tail of the run queue. It is a no-op if p is nil,
// not Ready, or the queue is already full.
func Add(p *proc.Process) {
	if p == nil || p.State != proc.StateReady || queueLen >= len(queue) {
		return
	}
	queue[queueLen] = p.ID
	queueLen++
	klog.Infof(subsystem, "added pid=%d to run queue", p.ID)
}

// Remove unlinks id from the run queue, shifting subsequent entries down.
// It is a no-op if id is not present.
func Remove(id uint32) {
	for i := 0; i < queueLen; i++ {
		if queue[i] == id {
			copy(queue[i:queueLen-1], queue[i+1:queueLen])
			queueLen--
			return
		}
	}
}

// pickNext returns the id at the head of the run queue and true, or 0 and
// false if the queue is empty.
func pickNext() (uint32, bool) {
	if queueLen == 0 {
		return 0, false
	}
	return queue[0], true
}

// CurrentProcess returns the process currently marked Running, or nil if
// the scheduler is idle.
func CurrentProcess() *proc.Process {
	if currentID == 0 {
		return nil
	}
	return proc.ByID(currentID)
}

// Schedule demotes the current Running process back to Ready and moves it
// to the tail of the run queue (round-robin fairness), then pops the head
// of the queue, switches to its address space, marks it Running and
// resets the slice counter. If the run queue is empty, the scheduler goes
// idle and the previously Running process (if any) keeps running.
//
// regs is the trap frame the caller was invoked with — the IRETQ that
// eventually returns from that trap must resume into whichever process
// ends up Running, not whoever was Running when the trap was taken. The
// outgoing process's registers are saved into it via SaveContext before
// the switch, and the incoming process's are written back via
// RestoreContext before Schedule returns. regs may be nil when there is
// no live trap frame to save into or restore from (bring-up, before any
// process has ever entered userspace); SaveContext/RestoreContext both
// treat a nil regs as a no-op.
func Schedule(regs *gate.Registers) {
	if cur := CurrentProcess(); cur != nil && cur.State == proc.StateRunning {
		SaveContext(cur, regs)
		cur.State = proc.StateReady
		Remove(cur.ID)
		Add(cur)
	}

	nextID, ok := pickNext()
	if !ok {
		currentID = 0
		return
	}

	next := proc.ByID(nextID)
	currentID = nextID
	next.State = proc.StateRunning
	sliceCounter = 0

	activateAddrSpaceFn(next.AddrSpace)
	RestoreContext(next, regs)
	klog.Infof(subsystem, "scheduled pid=%d", next.ID)
}

// Tick is called on every timer IRQ, carrying the trap frame the timer
// interrupt itself was taken with. It increments the current slice
// counter and preempts into Schedule once it reaches sliceLength.
func Tick(regs *gate.Registers) {
	sliceCounter++
	if sliceCounter >= sliceLength {
		Schedule(regs)
	}
}

// Yield voluntarily gives up the remainder of the current process's slice
// by invoking the scheduler directly, threading through the trap frame
// the sched_yield syscall itself was dispatched with.
func Yield(regs *gate.Registers) {
	Schedule(regs)
}

// Exit terminates the currently Running process with the given exit
// code: it is marked a Zombie via proc.Exit, removed from the run queue,
// and the scheduler picks a replacement, restoring its context into regs
// so the syscall's IRETQ resumes into the replacement rather than the
// exiting process. Exit never returns to its caller in the production
// build: if no other process is Ready, it halts the CPU, matching the
// original's unreachable-in-practice fallback.
func Exit(exitCode int, regs *gate.Registers) {
	cur := CurrentProcess()
	if cur == nil {
		return
	}

	proc.Exit(cur, exitCode)
	Remove(cur.ID)
	currentID = 0
	Schedule(regs)

	if CurrentProcess() == nil {
		haltFn()
	}
}

// SaveContext copies the general-purpose registers, RIP, RSP and RFlags
// out of regs into p's saved state. CS and SS are left untouched, since a
// context switch never changes privilege level for an already-running
// process.
func SaveContext(p *proc.Process, regs *gate.Registers) {
	if p == nil || regs == nil {
		return
	}
	p.Regs.RAX = regs.RAX
	p.Regs.RBX = regs.RBX
	p.Regs.RCX = regs.RCX
	p.Regs.RDX = regs.RDX
	p.Regs.RSI = regs.RSI
	p.Regs.RDI = regs.RDI
	p.Regs.RBP = regs.RBP
	p.Regs.R8 = regs.R8
	p.Regs.R9 = regs.R9
	p.Regs.R10 = regs.R10
	p.Regs.R11 = regs.R11
	p.Regs.R12 = regs.R12
	p.Regs.R13 = regs.R13
	p.Regs.R14 = regs.R14
	p.Regs.R15 = regs.R15
	p.Regs.RIP = regs.RIP
	p.Regs.RSP = regs.RSP
	p.Regs.RFlags = regs.RFlags
}

// RestoreContext performs the reverse of SaveContext, writing p's saved
// state back into regs ahead of an IRETQ into p.
func RestoreContext(p *proc.Process, regs *gate.Registers) {
	if p == nil || regs == nil {
		return
	}
	regs.RAX = p.Regs.RAX
	regs.RBX = p.Regs.RBX
	regs.RCX = p.Regs.RCX
	regs.RDX = p.Regs.RDX
	regs.RSI = p.Regs.RSI
	regs.RDI = p.Regs.RDI
	regs.RBP = p.Regs.RBP
	regs.R8 = p.Regs.R8
	regs.R9 = p.Regs.R9
	regs.R10 = p.Regs.R10
	regs.R11 = p.Regs.R11
	regs.R12 = p.Regs.R12
	regs.R13 = p.Regs.R13
	regs.R14 = p.Regs.R14
	regs.R15 = p.Regs.R15
	regs.RIP = p.Regs.RIP
	regs.RSP = p.Regs.RSP
	regs.RFlags = p.Regs.RFlags
}
