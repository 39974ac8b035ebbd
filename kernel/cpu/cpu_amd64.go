// Package cpu provides the handful of privileged operations that cannot be
// expressed in Go: interrupt masking, port I/O, page-table switching and
// CPUID. Every function below is declared without a body; its definition
// lives in the matching .s file.
package cpu

var cpuidFn = ID

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution until the next interrupt.
func Halt()

// Pause emits a spin-loop hint (the PAUSE instruction). The scheduler's idle
// loop uses it while waiting for the next timer tick so it does not thrash
// the pipeline the way a bare busy-loop would.
func Pause()

// FlushTLBEntry flushes a single TLB entry for the given virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// ReadCR2 returns the value stored in the CR2 register, the address that
// triggered the most recently delivered page fault.
func ReadCR2() uint64

// ID returns the CPUID output for EAX=leaf, as the EAX, EBX, ECX and EDX
// register values.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// InB reads a single byte from the given I/O port. kernel/pic and
// kernel/pit use it to program the legacy 8259 and 8253 devices.
func InB(port uint16) uint8

// OutB writes a single byte to the given I/O port.
func OutB(port uint16, val uint8)

// InW reads a 16-bit word from the given I/O port.
func InW(port uint16) uint16

// OutW writes a 16-bit word to the given I/O port.
func OutW(port uint16, val uint16)

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}
