// Package pic drives the legacy 8259 programmable interrupt controller
// pair: the one-time remap away from the CPU exception range, and the
// per-interrupt End-Of-Interrupt acknowledgement every IRQ handler must
// issue before returning.
package pic

import "corvid/kernel/cpu"

const (
	masterCommand = 0x20
	masterData    = 0x21
	slaveCommand  = 0xA0
	slaveData     = 0xA1

	cmdInit = 0x11
	cmdEOI  = 0x20
	mode8086 = 0x01
)

// Remap reassigns the master and slave controllers' interrupt vectors to
// masterOffset and slaveOffset via the standard four-word initialization
// command sequence, then masks every line (both data ports are left at
// 0xFF) so that no IRQ fires until a driver explicitly unmasks its line.
func Remap(masterOffset, slaveOffset uint8) {
	cpu.OutB(masterCommand, cmdInit)
	cpu.OutB(slaveCommand, cmdInit)
	cpu.OutB(masterData, masterOffset)
	cpu.OutB(slaveData, slaveOffset)
	cpu.OutB(masterData, 0x04) // slave PIC lives on IRQ2
	cpu.OutB(slaveData, 0x02)  // slave PIC's cascade identity
	cpu.OutB(masterData, mode8086)
	cpu.OutB(slaveData, mode8086)

	MaskAll()
}

// MaskAll masks every line on both controllers.
func MaskAll() {
	cpu.OutB(masterData, 0xFF)
	cpu.OutB(slaveData, 0xFF)
}

// SetMasked sets or clears the mask bit for legacy IRQ line irq (0..15).
func SetMasked(irq uint8, masked bool) {
	port := uint16(masterData)
	line := irq
	if irq >= 8 {
		port = slaveData
		line -= 8
	}

	mask := cpu.InB(port)
	if masked {
		mask |= 1 << line
	} else {
		mask &^= 1 << line
	}
	cpu.OutB(port, mask)
}

// EOI issues End-Of-Interrupt for legacy IRQ line irq. Lines 8..15 require
// acknowledging the slave controller first, since it is cascaded through
// the master's IRQ2 input.
func EOI(irq uint8) {
	if irq >= 8 {
		cpu.OutB(slaveCommand, cmdEOI)
	}
	cpu.OutB(masterCommand, cmdEOI)
}
