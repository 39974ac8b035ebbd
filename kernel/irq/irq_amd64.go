// Package irq layers hardware-IRQ policy on top of kernel/idt's generic
// vector dispatch: a per-line callback table, the permanent binding of
// IRQ0 to the scheduler tick, and issuing End-Of-Interrupt once a line's
// callback (if any) has run.
package irq

import (
	"corvid/kernel/gate"
	"corvid/kernel/idt"
	"corvid/kernel/pic"
)

// Handler is invoked for a hardware interrupt on a specific legacy IRQ
// line. It receives the trap frame the CPU pushed for that vector.
type Handler func(*gate.Registers)

var callbacks [16]Handler

// Init installs the Go-level IRQ dispatch trampoline for every one of the
// 16 remapped hardware lines. It must run after kernel/idt.Init and
// kernel/pic.Remap.
func Init() {
	for line := uint8(0); line < 16; line++ {
		l := line
		idt.HandleInterrupt(gate.IRQBase+gate.InterruptNumber(l), func(r *gate.Registers) {
			dispatch(l, r)
		})
	}
}

// Bind registers handler to run whenever legacy IRQ line irq fires.
// Re-binding a line replaces its previous handler. IRQ 0 is reserved for
// kernel/timer's tick (4.I) and IRQ 1 for the PS/2 driver, per §4.G.
func Bind(line uint8, handler Handler) {
	callbacks[line] = handler
}

// dispatch runs the registered callback for line (if any), then signals
// End-Of-Interrupt. EOI is unconditional: an IRQ with no registered
// callback must still be acknowledged, or every later IRQ on that
// controller stays masked indefinitely.
func dispatch(line uint8, r *gate.Registers) {
	if h := callbacks[line]; h != nil {
		h(r)
	}
	pic.EOI(line)
}
