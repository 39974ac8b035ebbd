package syscall

import (
	"gvisor.dev/gvisor/pkg/abi/linux"

	"corvid/kernel/gate"
	"corvid/kernel/klog"
	"corvid/kernel/mem"
	"corvid/kernel/mem/vmm"
	"corvid/kernel/sched"
)

// currentProcessFn, yieldFn and exitFn indirect over kernel/sched so tests
// can exercise these handlers against a plain *proc.Process without
// driving sched.Schedule's real address-space activation, which issues a
// privileged mov-to-cr3 outside ring 0.
var (
	currentProcessFn = sched.CurrentProcess
	yieldFn          = sched.Yield
	exitFn           = sched.Exit
)

// mapPageFn is swapped out by tests to avoid real page-table writes, the
// same indirection kernel/loader uses for its own segment mapping.
var mapPageFn = vmm.Map

// brkFrameAllocator supplies frames for sysBrk's heap growth. It is wired
// up by component P during bring-up, once a frame allocator exists.
var brkFrameAllocator vmm.FrameAllocatorFn

// SetFrameAllocator registers the allocator sysBrk uses to back newly
// grown heap pages.
func SetFrameAllocator(allocFn vmm.FrameAllocatorFn) {
	brkFrameAllocator = allocFn
}

// Bootstrap binds every syscall this kernel implements. It must run after
// kernel/proc and kernel/sched are initialized, since several handlers
// call into both.
func Bootstrap() {
	bind(uint64(linux.SYS_EXIT), sysExit, "exit", 1)
	bind(uint64(linux.SYS_READ), sysRead, "read", 3)
	bind(uint64(linux.SYS_WRITE), sysWrite, "write", 3)
	bind(uint64(linux.SYS_BRK), sysBrk, "brk", 1)
	bind(uint64(linux.SYS_SCHED_YIELD), sysYield, "yield", 0)
	bind(uint64(linux.SYS_GETPID), sysGetpid, "getpid", 0)
	bind(uint64(linux.SYS_FORK), sysFork, "fork", 0)
	bind(uint64(linux.SYS_EXECVE), sysExecve, "execve", 3)
	bind(uint64(linux.SYS_WAIT4), sysWaitpid, "waitpid", 3)

	klog.Infof(subsystem, "bootstrapped %d syscalls", registered)
}

func bind(no uint64, h Handler, name string, argCount uint8) {
	if err := Bind(no, h, name, argCount); err != nil {
		klog.Errorf(subsystem, "failed to bind %s: %s", name, err.Message)
	}
}

// sysExit terminates the calling process via kernel/sched, which marks it
// a zombie, drops it from the run queue and schedules a replacement. It
// never meaningfully returns to its caller, since that process's register
// file is never restored again.
func sysExit(regs *gate.Registers, args [6]uint64) uint64 {
	exitFn(int(args[0]), regs)
	return Success
}

// sysGetpid returns the currently running process's id.
func sysGetpid(regs *gate.Registers, args [6]uint64) uint64 {
	cur := currentProcessFn()
	if cur == nil {
		return ErrorResult
	}
	return uint64(cur.ID)
}

// sysYield gives up the remainder of the current time slice. It threads
// the trap frame it was dispatched with through to sched.Yield, so the
// int-0x80 IRETQ resumes into whichever process the scheduler picks next
// rather than the yielding one.
func sysYield(regs *gate.Registers, args [6]uint64) uint64 {
	yieldFn(regs)
	return Success
}

// sysRead is left a stub, as in the original: there is no file-backed I/O
// under this package yet, only the validation the original performed
// before its own TODO.
func sysRead(regs *gate.Registers, args [6]uint64) uint64 {
	buffer, count := args[1], args[2]
	if buffer == 0 || count == 0 {
		return InvalidArgsResult
	}
	return NotImplemented
}

// sysWrite honors only fd 1 (stdout), echoing the original's "pretend we
// wrote all bytes" stub behavior; every other descriptor is unimplemented.
func sysWrite(regs *gate.Registers, args [6]uint64) uint64 {
	fd, buffer, count := args[0], args[1], args[2]
	if buffer == 0 || count == 0 {
		return InvalidArgsResult
	}
	if fd == 1 {
		return count
	}
	return NotImplemented
}

// sysBrk grows the calling process's heap. Called with addr 0 it reports
// the current break; called with addr at or below the current break it is
// a no-op (this kernel never shrinks a heap, and neither does the original
// — brk only ever grows or holds). Called above the
// current break it maps one fresh page at a time until new_end is
// covered, same as the original's sys_brk, returning the old break on the
// first allocation failure.
func sysBrk(regs *gate.Registers, args [6]uint64) uint64 {
	addr := args[0]
	cur := currentProcessFn()
	if cur == nil {
		return ErrorResult
	}

	if addr == 0 {
		return uint64(cur.HeapEnd)
	}
	if uintptr(addr) <= cur.HeapEnd {
		return uint64(cur.HeapEnd)
	}

	oldEnd := cur.HeapEnd
	newEnd := uintptr(addr)

	pageStart := (oldEnd + uintptr(mem.PageSize) - 1) &^ uintptr(mem.PageSize-1)
	for va := pageStart; va < newEnd; va += uintptr(mem.PageSize) {
		if brkFrameAllocator == nil {
			return uint64(cur.HeapEnd)
		}
		frame, err := brkFrameAllocator()
		if err != nil {
			return uint64(cur.HeapEnd)
		}

		page := vmm.PageFromAddress(va)
		if mapErr := mapPageFn(page, frame, vmm.FlagRW|vmm.FlagUser, brkFrameAllocator); mapErr != nil {
			return uint64(cur.HeapEnd)
		}
	}

	cur.HeapEnd = newEnd
	return uint64(cur.HeapEnd)
}

// sysFork, sysExecve and sysWaitpid are left unimplemented, exactly as the
// original leaves them: each logs its call and returns NotImplemented
// rather than performing any partial, unsafe version of process
// duplication, image replacement or reaping.
func sysFork(regs *gate.Registers, args [6]uint64) uint64 {
	if currentProcessFn() == nil {
		return ErrorResult
	}
	klog.Infof(subsystem, "fork() called")
	return NotImplemented
}

func sysExecve(regs *gate.Registers, args [6]uint64) uint64 {
	klog.Infof(subsystem, "execve() called path=%#x", args[0])
	return NotImplemented
}

func sysWaitpid(regs *gate.Registers, args [6]uint64) uint64 {
	klog.Infof(subsystem, "waitpid(%d) called", args[0])
	return NotImplemented
}
