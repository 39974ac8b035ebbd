// Package pmm manages physical memory as a flat array of fixed-size
// frames. Unlike the teacher's buddy-oriented Frame (which encodes a
// page order in its top 8 bits), this spec's allocator hands out and
// frees single PageSize frames via a LIFO free list, so Frame carries no
// order information.
package pmm

import (
	"math"

	"corvid/kernel/mem"
)

// Frame identifies a physical page by index (physical address >> PageShift).
type Frame uint64

// InvalidFrame is returned by the allocator when it cannot satisfy a
// request.
const InvalidFrame = Frame(math.MaxUint64)

// IsValid reports whether f is a real frame rather than InvalidFrame.
func (f Frame) IsValid() bool {
	return f != InvalidFrame
}

// Address returns the physical address this frame starts at.
func (f Frame) Address() uintptr {
	return uintptr(f) << mem.PageShift
}

// FrameFromAddress returns the frame containing physical address addr.
func FrameFromAddress(addr uintptr) Frame {
	return Frame(addr >> mem.PageShift)
}
