// Package fault is the kernel's fatal-fault reporter (component B): it
// classifies a CPU trap number into a named fault, dumps the register
// file, decodes the page-fault error code and CR2, disassembles the
// faulting instruction, prints CPU identification, counts down a grace
// period and halts. A call into this package never returns.
package fault

import (
	"corvid/kernel/cpu"
	"corvid/kernel/gate"
	"corvid/kernel/klog"

	"golang.org/x/arch/x86/x86asm"
)

const subsystem = "fault"

// faultNames maps the 16 fatal exception vectors named in §4.G to their
// human-readable fault name, matching the original kernel's panic_messages
// table.
var faultNames = map[gate.InterruptNumber]string{
	gate.DivideByZero:            "Division by zero",
	gate.InvalidOpcode:           "Invalid opcode",
	gate.DoubleFault:             "Double fault",
	gate.InvalidTSS:              "Invalid TSS",
	gate.SegmentNotPresent:       "Segment not present",
	gate.StackSegmentFault:       "Stack segment fault",
	gate.GPFException:            "General protection fault",
	gate.PageFaultException:      "Page fault",
	gate.AlignmentCheck:          "Alignment check",
	gate.MachineCheck:            "Machine check",
	gate.SIMDFPException:         "SIMD exception",
	gate.VirtualizationException: "Virtualization exception",
	gate.ControlProtectionFault:  "Control protection exception",
	gate.HypervisorInjection:     "Hypervisor injection exception",
	gate.VMMCommunicationFault:   "VMM communication exception",
	gate.SecurityException:       "Security exception",
}

// gracePeriodSeconds is how long Report counts down before attempting a
// platform reset.
var gracePeriodSeconds = 5

// sleepSecond is overridden in tests; by default it is a no-op, so Report's
// countdown does not pause between lines.
var sleepSecond = func() {}

func faultName(n gate.InterruptNumber) string {
	if name, ok := faultNames[n]; ok {
		return name
	}
	return "Unknown error"
}

// decodePageFaultCode breaks the page-fault hardware error code into the
// three flags §4.G requires: present vs not-present, read vs write, and
// user vs kernel.
func decodePageFaultCode(code uint64) (present, write, user bool) {
	return code&0x1 != 0, code&0x2 != 0, code&0x4 != 0
}

// disassembleFaultingInstruction returns a short textual disassembly of
// the bytes at rip, or "?" if they cannot be read or decoded. text is the
// byte window the caller has mapped around rip (kernel/fault never reads
// arbitrary memory directly — a fault mid-collapse may have corrupted
// page tables).
func disassembleFaultingInstruction(text []byte) string {
	inst, err := x86asm.Decode(text, 64)
	if err != nil {
		return "?"
	}
	return x86asm.GNUSyntax(inst, 0, nil)
}

// Report is the fatal entry point. It disables interrupts, classifies
// trapNo, logs the fault name and register dump, decodes CR2 for page
// faults, disassembles the faulting instruction if text is non-nil, prints
// CPU identification, counts down gracePeriodSeconds, then halts. It never
// returns.
func Report(trapNo gate.InterruptNumber, regs *gate.Registers, text []byte) {
	cpu.DisableInterrupts()

	name := faultName(trapNo)
	klog.Errorf(subsystem, "panic(): %x (\"%s\")", uint8(trapNo), name)

	if regs != nil {
		regs.DumpTo(subsystem)
	}

	if trapNo == gate.PageFaultException && regs != nil {
		cr2 := cpu.ReadCR2()
		present, write, user := decodePageFaultCode(regs.ErrCode)
		klog.Errorf(subsystem, "addr=%16x present=%t write=%t user=%t", cr2, present, write, user)
	}

	if text != nil {
		klog.Errorf(subsystem, "faulting instruction: %s", disassembleFaultingInstruction(text))
	}

	_, ebx, ecx, edx := cpu.ID(0)
	klog.Errorf(subsystem, "cpu_vendor: %x%x%x", ebx, edx, ecx)

	for i := gracePeriodSeconds; i > 0; i-- {
		klog.Errorf(subsystem, "reboot: %ds", i)
		sleepSecond()
	}

	shutdown()

	for {
		cpu.Halt()
	}
}

// shutdown attempts an orderly platform reset via the legacy keyboard
// controller reset line (port 0x64, pulse output line low). If the
// platform ignores it, Report's caller falls through to the unconditional
// halt loop.
func shutdown() {
	cpu.OutB(0x64, 0xFE)
}
