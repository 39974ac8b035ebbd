// Package timer owns the kernel's monotonic tick counter. It is driven by
// kernel/pit through IRQ0 and, each tick, calls the scheduler's tick hook.
package timer

import (
	"corvid/kernel/gate"
	"corvid/kernel/irq"
	"corvid/kernel/pic"
	"corvid/kernel/pit"
)

// TicksPerSecond is the fixed rate kernel/pit programs channel 0 to.
const TicksPerSecond = 100

var (
	ticks uint64

	// onTick is called once per timer interrupt, after the uptime counter
	// has been incremented, with the trap frame the timer IRQ itself was
	// taken with — sched.Tick needs it to save/restore context across a
	// preemption. kernel/sched sets this during bring-up; it is a function
	// variable rather than a direct import to avoid a sched<->timer import
	// cycle (sched needs Ticks/Seconds, timer needs to drive sched.Tick).
	onTick func(*gate.Registers)
)

// Init programs the PIT at TicksPerSecond and binds IRQ0 to the tick
// handler, then unmasks IRQ0 and IRQ1 on the 8259 so the timer and (once
// bound) the keyboard driver kernel/shell expects actually reach the CPU —
// kernel/pic.Remap leaves every line masked, and nothing else in bring-up
// ever unmasks a line. It must run after kernel/irq.Init and
// kernel/pic.Remap.
func Init() {
	pit.Init(TicksPerSecond)
	irq.Bind(0, handleTick)
	pic.SetMasked(0, false)
	pic.SetMasked(1, false)
}

// SetTickHook registers the function called once per tick, after the
// uptime counter is updated. kernel/sched uses this to drive preemption.
func SetTickHook(f func(*gate.Registers)) {
	onTick = f
}

func handleTick(r *gate.Registers) {
	ticks++
	if onTick != nil {
		onTick(r)
	}
}

// Ticks returns the number of timer interrupts serviced since Init.
func Ticks() uint64 {
	return ticks
}

// Seconds returns uptime as a floating-point second count. It is meant for
// display (the shell's `uptime` command) rather than scheduling decisions,
// which should use Ticks directly.
func Seconds() float64 {
	return float64(ticks) / float64(TicksPerSecond)
}
