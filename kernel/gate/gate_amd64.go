// Package gate defines the trap-frame layout shared by every interrupt,
// exception and syscall entry point, and the vector numbers that identify
// them. kernel/idt installs the descriptor table that routes each vector
// here; kernel/irq, kernel/fault, kernel/sched and kernel/syscall all
// operate on the *Registers value a trampoline hands them.
package gate

import "corvid/kernel/klog"

//go:generate stringer -type=InterruptNumber -trimprefix="" -output interrupt_number_string.go

// Registers is the trap frame: the complete register file saved by a
// vector's trampoline, as a single named-field aggregate. Earlier designs
// modelled the CPU-pushed iframe as a second structure sitting immediately
// above the register block and reached it via pointer arithmetic; folding
// both into one struct removes that offset computation entirely; see
// DESIGN.md's note on the corresponding redesign flag.
type Registers struct {
	R15 uint64
	R14 uint64
	R13 uint64
	R12 uint64
	R11 uint64
	R10 uint64
	R9  uint64
	R8  uint64
	RBP uint64
	RDI uint64
	RSI uint64
	RDX uint64
	RCX uint64
	RBX uint64
	RAX uint64

	// TrapNo is the vector number the trampoline was installed for.
	TrapNo uint64
	// ErrCode is the hardware-supplied error code, or zero for vectors
	// that do not push one.
	ErrCode uint64

	// The CPU-pushed return frame consumed by IRETQ.
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// DumpTo writes the register file as a fixed-width hex table to klog's
// attached sinks, tagged with subsystem.
func (r *Registers) DumpTo(subsystem string) {
	klog.Log(subsystem, klog.SeverityError, "RAX = %16x RBX = %16x", r.RAX, r.RBX)
	klog.Log(subsystem, klog.SeverityError, "RCX = %16x RDX = %16x", r.RCX, r.RDX)
	klog.Log(subsystem, klog.SeverityError, "RSI = %16x RDI = %16x", r.RSI, r.RDI)
	klog.Log(subsystem, klog.SeverityError, "RBP = %16x", r.RBP)
	klog.Log(subsystem, klog.SeverityError, "R8  = %16x R9  = %16x", r.R8, r.R9)
	klog.Log(subsystem, klog.SeverityError, "R10 = %16x R11 = %16x", r.R10, r.R11)
	klog.Log(subsystem, klog.SeverityError, "R12 = %16x R13 = %16x", r.R12, r.R13)
	klog.Log(subsystem, klog.SeverityError, "R14 = %16x R15 = %16x", r.R14, r.R15)
	klog.Log(subsystem, klog.SeverityError, "RIP = %16x CS  = %16x", r.RIP, r.CS)
	klog.Log(subsystem, klog.SeverityError, "RSP = %16x SS  = %16x", r.RSP, r.SS)
	klog.Log(subsystem, klog.SeverityError, "RFL = %16x TrapNo = %d ErrCode = %16x", r.RFlags, r.TrapNo, r.ErrCode)
}

// InterruptNumber identifies an x86 interrupt/exception/trap/syscall vector.
type InterruptNumber uint8

const (
	DivideByZero            = InterruptNumber(0)
	NMI                      = InterruptNumber(2)
	Overflow                 = InterruptNumber(4)
	BoundRangeExceeded       = InterruptNumber(5)
	InvalidOpcode            = InterruptNumber(6)
	DeviceNotAvailable       = InterruptNumber(7)
	DoubleFault              = InterruptNumber(8)
	InvalidTSS               = InterruptNumber(10)
	SegmentNotPresent        = InterruptNumber(11)
	StackSegmentFault        = InterruptNumber(12)
	GPFException             = InterruptNumber(13)
	PageFaultException       = InterruptNumber(14)
	FloatingPointException   = InterruptNumber(16)
	AlignmentCheck           = InterruptNumber(17)
	MachineCheck             = InterruptNumber(18)
	SIMDFPException          = InterruptNumber(19)
	VirtualizationException = InterruptNumber(20)
	ControlProtectionFault  = InterruptNumber(21)
	HypervisorInjection     = InterruptNumber(28)
	VMMCommunicationFault   = InterruptNumber(29)
	SecurityException       = InterruptNumber(30)

	// IRQBase is the vector that hardware IRQ 0 is remapped to by
	// kernel/pic; IRQ n dispatches at IRQBase+n for n in 0..15.
	IRQBase = InterruptNumber(32)

	// Syscall is the software-interrupt vector user code raises with
	// `int 0x80`. It is the one gate installed with descriptor-privilege
	// 3 instead of 0, so ring-3 code may invoke it directly.
	Syscall = InterruptNumber(0x80)
)

// IRQ reports whether n falls in the remapped hardware-IRQ range.
func (n InterruptNumber) IRQ() bool {
	return n >= IRQBase && n < IRQBase+16
}

// IRQLine returns the legacy IRQ line number for an IRQ vector; the second
// return value is false if n is not an IRQ vector.
func (n InterruptNumber) IRQLine() (uint8, bool) {
	if !n.IRQ() {
		return 0, false
	}
	return uint8(n - IRQBase), true
}

// HasErrorCode reports whether the CPU pushes a hardware error code for
// this exception vector. Vectors not listed here never push one.
func (n InterruptNumber) HasErrorCode() bool {
	switch n {
	case InterruptNumber(8), InvalidTSS, SegmentNotPresent, StackSegmentFault,
		GPFException, PageFaultException, ControlProtectionFault, SecurityException:
		return true
	default:
		return false
	}
}
