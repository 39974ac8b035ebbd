// Package pit programs the 8253/8254 programmable interval timer's channel
// 0 in rate-generator mode, producing the periodic tick that drives
// kernel/timer and the scheduler.
package pit

import "corvid/kernel/cpu"

const (
	channel0Data = 0x40
	commandPort  = 0x43

	// baseFrequency is the PIT's fixed input clock, in Hz.
	baseFrequency = 1193182

	// modeRateGenerator selects channel 0, low+high byte access, mode 2.
	modeRateGenerator = 0x34
)

// Divisor returns the channel-0 reload value for a tick rate of hz, the way
// Init computes it for the kernel's fixed 100 Hz tick. It is exposed
// separately so tests can assert on the divisor arithmetic without touching
// hardware.
func Divisor(hz uint32) uint16 {
	return uint16(baseFrequency / hz)
}

// Init programs channel 0 in rate-generator mode at hz. The spec fixes hz
// at 100, giving a divisor of 1193182/100 = 11931.
func Init(hz uint32) {
	divisor := Divisor(hz)
	cpu.OutB(commandPort, modeRateGenerator)
	cpu.OutB(channel0Data, uint8(divisor))
	cpu.OutB(channel0Data, uint8(divisor>>8))
}
