// Package idt owns the two amd64 descriptor tables a kernel needs before it
// can take an interrupt: the GDT (with its TSS) and the 256-entry IDT. It
// installs one trampoline per vector — 32 exception stubs, 16 IRQ stubs and
// the 0x80 syscall stub — and routes every one of them back into Go through
// dispatchInterrupt.
package idt

import (
	"unsafe"

	"corvid/kernel/gate"
)

const (
	kernelCodeSelector = 0x08

	gatePresent        = 0x80
	gateDPLKernel      = 0x00
	gateDPLUser        = 0x60
	gateTypeInterrupt  = 0x0E
	gateKernelInt      = gatePresent | gateDPLKernel | gateTypeInterrupt // 0x8E
	gateUserInt        = gatePresent | gateDPLUser | gateTypeInterrupt   // 0xEE
)

// idtEntry is the packed on-wire shape of one IDT gate descriptor.
type idtEntry struct {
	baseLo   uint16
	sel      uint16
	ist      uint8
	flags    uint8
	baseMid  uint16
	baseHi   uint32
	reserved uint32
}

var idtEntries [256]idtEntry

// handlerTable maps a vector to the Go function installed for it via
// HandleInterrupt. It is consulted by dispatchInterrupt, which every
// trampoline calls after building the trap frame.
var handlerTable [256]func(*gate.Registers)

// trampolineAddr is implemented in idt_amd64.s; it returns the entry point
// address for vector n (0..31 exception stubs, 32..47 IRQ stubs, 0x80
// syscall stub). Vectors with no installed trampoline return 0.
func trampolineAddr(n uint8) uintptr

// lidt loads the IDT register from the 10-byte IDTR image at ptr.
func lidt(ptr unsafe.Pointer)

// lgdt loads the GDT register from the 10-byte GDTR image at ptr.
func lgdt(ptr unsafe.Pointer)

// ltr loads the task register with the given GDT selector.
func ltr(selector uint16)

func setGate(num uint8, base uintptr, sel uint16, flags uint8) {
	idtEntries[num] = idtEntry{
		baseLo:   uint16(base),
		sel:      sel,
		ist:      0,
		flags:    flags,
		baseMid:  uint16(base >> 16),
		baseHi:   uint32(base >> 32),
		reserved: 0,
	}
}

// Init builds and loads the GDT (with its TSS) and the IDT, installing
// every trampoline at descriptor-privilege 0 except the syscall gate
// (0x80), which is installed at DPL 3 so ring-3 code may raise it directly.
func Init() {
	initGDT()

	for v := 0; v < 32; v++ {
		setGate(uint8(v), trampolineAddr(uint8(v)), kernelCodeSelector, gateKernelInt)
	}
	for irq := 0; irq < 16; irq++ {
		v := uint8(gate.IRQBase) + uint8(irq)
		setGate(v, trampolineAddr(v), kernelCodeSelector, gateKernelInt)
	}
	setGate(uint8(gate.Syscall), trampolineAddr(uint8(gate.Syscall)), kernelCodeSelector, gateUserInt)

	var idtr [10]byte
	limit := uint16(len(idtEntries)*16 - 1)
	base := uint64(uintptr(unsafe.Pointer(&idtEntries[0])))
	idtr[0] = byte(limit)
	idtr[1] = byte(limit >> 8)
	for i := 0; i < 8; i++ {
		idtr[2+i] = byte(base >> (8 * i))
	}
	lidt(unsafe.Pointer(&idtr[0]))
}

// HandleInterrupt registers handler to run whenever vector fires. It may be
// called at any time after Init; re-registering a vector replaces the
// previous handler.
func HandleInterrupt(vec gate.InterruptNumber, handler func(*gate.Registers)) {
	handlerTable[vec] = handler
}

// dispatchInterrupt is called by every trampoline after it has pushed the
// complete trap frame. It never returns a value; the trampoline performs
// the iretq once this call returns.
func dispatchInterrupt(trapNo uint64, regs *gate.Registers) {
	if h := handlerTable[trapNo]; h != nil {
		h(regs)
	}
}
