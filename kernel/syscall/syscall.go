// Package syscall implements the kernel's system call table (component
// M): a fixed 256-entry table of named handlers, a dispatcher driven off
// a trap frame, and the small bookkeeping layer (call counters, tracing)
// the original kernel built alongside it.
package syscall

import (
	"corvid/kernel"
	"corvid/kernel/gate"
	"corvid/kernel/klog"
)

const subsystem = "syscall"

// MaxSyscalls bounds the table, mirroring the original's SYSCALL_MAX_COUNT.
const MaxSyscalls = 256

// Sentinel results a handler returns in place of a genuine value, mirroring
// the original's SYSCALL_* return-value constants (it has no separate
// error channel; the result word itself carries the failure).
const (
	Success           uint64 = 0
	ErrorResult       uint64 = 0xFFFFFFFFFFFFFFFF
	InvalidResult     uint64 = 0xFFFFFFFFFFFFFFFE
	NotImplemented    uint64 = 0xFFFFFFFFFFFFFFFD
	PermissionDenied  uint64 = 0xFFFFFFFFFFFFFFFC
	InvalidArgsResult uint64 = 0xFFFFFFFFFFFFFFFB
)

// Handler services one syscall. args holds up to six arguments in the
// order the original's int-0x80 convention passes them: RDI, RSI, RDX,
// RCX, R8, R9. Unlike the original's syscall_handler_t, it is not also
// handed its own syscall number — the table already knows that at the
// call site, and no handler in this package needs it. regs is the trap
// frame the syscall was dispatched from; only sysYield and sysExit (and
// any future handler that reschedules) need it, to thread through to
// kernel/sched's context save/restore, but every handler receives it
// for a uniform signature.
type Handler func(regs *gate.Registers, args [6]uint64) uint64

type entry struct {
	handler  Handler
	name     string
	argCount uint8
}

var (
	table      [MaxSyscalls]entry
	registered int
)

var errOutOfRange = &kernel.Error{Module: subsystem, Message: "syscall number out of range"}
var errNilHandler = &kernel.Error{Module: subsystem, Message: "nil handler"}

// Init clears the table and its statistics. Built-in handlers are bound
// separately by Bootstrap once kernel/proc and kernel/sched are up.
func Init() {
	table = [MaxSyscalls]entry{}
	registered = 0
	resetStatsLocked()
	klog.Infof(subsystem, "syscall table initialized (%d slots)", MaxSyscalls)
}

// Bind registers handler under syscall number no. It is an error for no to
// be out of range or handler to be nil; rebinding an already-registered
// number is allowed and only logged, matching the original's overwrite
// warning.
func Bind(no uint64, handler Handler, name string, argCount uint8) *kernel.Error {
	if no >= MaxSyscalls {
		return errOutOfRange
	}
	if handler == nil {
		return errNilHandler
	}

	if table[no].handler != nil {
		klog.Warnf(subsystem, "overwriting existing syscall %d (%s)", no, table[no].name)
	} else {
		registered++
	}

	table[no] = entry{handler: handler, name: name, argCount: argCount}
	return nil
}

// Unbind removes the handler registered under no, if any.
func Unbind(no uint64) {
	if no >= MaxSyscalls || table[no].handler == nil {
		return
	}
	table[no] = entry{}
	registered--
}

// IsValid reports whether no has a bound handler.
func IsValid(no uint64) bool {
	return no < MaxSyscalls && table[no].handler != nil
}

// Info returns the name and declared argument count for no, and whether it
// is bound at all.
func Info(no uint64) (name string, argCount uint8, ok bool) {
	if !IsValid(no) {
		return "", 0, false
	}
	return table[no].name, table[no].argCount, true
}

// Dispatch services the syscall named by regs.RAX, with arguments taken
// from RDI/RSI/RDX/RCX/R8/R9, and writes the result back into regs.RAX.
// It is the Go equivalent of the original's assembly-invoked
// syscall_handler trampoline.
func Dispatch(regs *gate.Registers) {
	no := regs.RAX
	args := [6]uint64{regs.RDI, regs.RSI, regs.RDX, regs.RCX, regs.R8, regs.R9}

	recordCall(no)

	if !IsValid(no) {
		klog.Errorf(subsystem, "invalid syscall number %d", no)
		recordInvalid()
		regs.RAX = InvalidResult
		return
	}

	if tracing {
		klog.Infof(subsystem, "trace: %s(%d) args=%v", table[no].name, no, args)
	}

	result := table[no].handler(regs, args)
	regs.RAX = result

	if result == ErrorResult || result == InvalidResult || result == NotImplemented || result == PermissionDenied || result == InvalidArgsResult {
		recordFailure()
	} else {
		recordSuccess()
	}
}
