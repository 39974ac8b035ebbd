// Package hal wires the concrete video console and terminal driver the
// freestanding entrypoint (cmd/kernel) uses as its pre-klog output path,
// before kernel/boot attaches the real klog sinks.
package hal

import (
	"corvid/kernel/driver/tty"
	"corvid/kernel/driver/video/console"
	"corvid/kernel/multiboot"
)

var (
	egaConsole = &console.Ega{}

	// ActiveTerminal points to the currently active terminal.
	ActiveTerminal = &tty.Vt{}
)

// InitTerminal provides a basic terminal to allow the kernel to emit some
// output till everything is properly setup. It is a no-op if the bootloader
// never initialized a framebuffer.
func InitTerminal() bool {
	fbInfo := multiboot.GetFramebufferInfo()
	if fbInfo == nil {
		return false
	}

	egaConsole.Init(uint16(fbInfo.Width), uint16(fbInfo.Height), uintptr(fbInfo.PhysAddr))
	ActiveTerminal.AttachTo(egaConsole)
	return true
}
