// Command kernel is the freestanding entrypoint linked into the bootable
// image. It is the Go equivalent of the teacher's stub.go/boot.go
// trampoline: the rt0 assembly stub sets up the GDT and a minimal g0 stack
// before jumping here, so main must never return.
package main

import (
	"corvid/kernel"
	"corvid/kernel/boot"
	"corvid/kernel/hal"
	"corvid/kernel/mem"
)

// multibootInfoPtr, kernelStart and kernelEnd are populated by the rt0
// assembly trampoline before main is called, by writing directly to these
// package-level symbols — the same linkage the teacher's stub.go relies on
// rather than passing them as arguments the assembly side would have to
// marshal onto the Go calling convention.
var (
	multibootInfoPtr uintptr
	kernelStart      uintptr
	kernelEnd        uintptr
)

// defaultHeapSize matches the fixed heap arena the original carves out of
// the identity-mapped region immediately above the kernel image.
const defaultHeapSize = 64 * 1024 * 1024

var errKernelReturned = &kernel.Error{Module: "main", Message: "boot.Boot returned"}

// main is the only Go symbol visible to the rt0 initialization code. It is
// intentionally defined to prevent the compiler from optimizing away the
// real kernel code, since nothing in the generated object file otherwise
// references it.
//
//go:noinline
func main() {
	haveVideo := hal.InitTerminal()

	cfg := boot.Config{
		MultibootInfoPtr: multibootInfoPtr,
		KernelStart:      kernelStart,
		KernelEnd:        kernelEnd,
		HeapBase:         kernelEnd,
		HeapSize:         mem.Size(defaultHeapSize),
	}
	if haveVideo {
		cfg.LogSinks = append(cfg.LogSinks, hal.ActiveTerminal)
	}

	// No disk driver or file-system backend is wired here: this module's
	// scope stops at the Provider interface (see kernel/fs), and neither
	// the teacher nor the rest of the pack carries a concrete block
	// device. boot.Boot treats a nil FSProvider as "stay in bring-up"
	// rather than failing, so the freestanding image still boots,
	// initializes every subsystem, and idles instead of loading an init
	// program. An embedder with a real disk driver supplies cfg.FSProvider.
	if err := boot.Boot(cfg); err != nil {
		kernel.Panic(err)
	}

	// boot.Boot only returns nil once every subsystem is up; reaching
	// here with no init program loaded means bring-up is complete and
	// there is nothing left to schedule. Halt rather than fall off the
	// end of main into whatever the rt0 stub does next.
	kernel.Panic(errKernelReturned)
}
