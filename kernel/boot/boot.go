// Package boot implements the kernel's bring-up sequencer (component P):
// the fixed order in which every other component is initialized, the root
// file system is mounted, and the first user program is loaded and
// entered. It is the Go equivalent of the original's start_kernel.
package boot

import (
	"io"

	"corvid/kernel"
	"corvid/kernel/fault"
	"corvid/kernel/fs"
	"corvid/kernel/gate"
	"corvid/kernel/heap"
	"corvid/kernel/idt"
	"corvid/kernel/irq"
	"corvid/kernel/klog"
	"corvid/kernel/loader"
	"corvid/kernel/mem"
	"corvid/kernel/mem/pmm/allocator"
	"corvid/kernel/mem/vmm"
	"corvid/kernel/multiboot"
	"corvid/kernel/pic"
	"corvid/kernel/pool"
	"corvid/kernel/proc"
	"corvid/kernel/sched"
	"corvid/kernel/syscall"
	"corvid/kernel/timer"
)

const subsystem = "boot"

// defaultTimerHz, defaultMasterOffset and defaultSlaveOffset match the
// original's fixed 100 Hz tick and the standard post-remap PIC vectors.
const (
	defaultTimerHz      = 100
	defaultMasterOffset = 32
	defaultSlaveOffset  = 40
	defaultInitPath     = "/System/boot/init"
	readChunkSize       = 4096
	maxInitImageSize    = 64 * 1024 * 1024
)

var (
	errNoHeapRegion = &kernel.Error{Module: subsystem, Message: "heap region not configured"}
	errInitTooLarge = &kernel.Error{Module: subsystem, Message: "init program exceeds maximum image size"}
	errInitEmpty    = &kernel.Error{Module: subsystem, Message: "init program is empty"}
)

// Config names every boot-time parameter an embedder (the freestanding
// entrypoint or the hosted developer harness) must supply. LogSinks and
// FSProvider are the spec's external collaborators: this package never
// constructs a concrete serial/video driver or file-system implementation
// itself, only wires whatever it is handed.
type Config struct {
	MultibootInfoPtr       uintptr
	KernelStart, KernelEnd uintptr

	HeapBase uintptr
	HeapSize mem.Size

	TimerHz                         uint32
	PICMasterOffset, PICSlaveOffset uint8

	LogSinks []io.Writer

	// FSProvider is nil-able: a build with no mounted root file system
	// skips straight past loading an init program, matching a kernel
	// that never reaches userspace rather than faking one.
	FSProvider fs.Provider
	FSBaseLBA  uint64
	InitPath   string
}

// withDefaults fills in the fixed constants the original hardcodes
// wherever cfg leaves the corresponding field at its zero value.
func (cfg Config) withDefaults() Config {
	if cfg.TimerHz == 0 {
		cfg.TimerHz = defaultTimerHz
	}
	if cfg.PICMasterOffset == 0 && cfg.PICSlaveOffset == 0 {
		cfg.PICMasterOffset, cfg.PICSlaveOffset = defaultMasterOffset, defaultSlaveOffset
	}
	if cfg.InitPath == "" {
		cfg.InitPath = defaultInitPath
	}
	return cfg
}

// The following indirections let boot_test.go drive the entire bring-up
// sequence and assert on call order and wiring without programming real
// hardware, walking real page tables, or performing a privileged ring-3
// transition — the same testability-through-indirection idiom every other
// component in this kernel uses for its own hardware-touching calls.
var (
	setSinksFn              = klog.SetSinks
	setInfoPtrFn            = multiboot.SetInfoPtr
	requireMandatoryTagsFn  = multiboot.RequireMandatoryTags
	idtInitFn               = idt.Init
	handleInterruptFn       = idt.HandleInterrupt
	picRemapFn              = pic.Remap
	irqInitFn               = irq.Init
	timerInitFn             = timer.Init
	setTickHookFn           = timer.SetTickHook
	allocatorInitFn         = allocator.Init
	setFrameAllocatorFn     = vmm.SetFrameAllocator
	setFrameDeallocatorFn   = vmm.SetFrameDeallocator
	heapInitFn              = heap.Init
	poolInitFn              = pool.Init
	syscallInitFn           = syscall.Init
	syscallBootstrapFn      = syscall.Bootstrap
	syscallSetFrameAllocFn  = syscall.SetFrameAllocator
	procInitFn              = proc.Init
	schedInitFn             = sched.Init
	fsSetProviderFn         = fs.SetProvider
	fsMountFn               = fs.Mount
	fsOpenFn                = fs.Open
	fsReadFn                = fs.Read
	fsCloseFn               = fs.Close
	loaderLoadFn            = loader.Load
	procCreateFn            = proc.Create
	activeRootFn            = vmm.ActiveRoot
	switchRootFn            = vmm.SwitchRoot
	schedAddFn              = sched.Add
	scheduleFn              = sched.Schedule
	currentProcessFn        = sched.CurrentProcess
	enterUserspaceFn        = idt.EnterUserspace
)

// Boot runs the complete bring-up sequence documented in §2's data-flow
// table: A is implicit (kernel/cpu's primitives need no initialization of
// their own), then G→H→I, then O→D→C→E→F, then M, then J and K, then,
// if cfg names a file-system provider, N→L and the first process is
// constructed and entered. It returns only if there is no provider to
// load an init program from, or if any bring-up step fails; in the
// freestanding build a returning Boot is as fatal as the original's
// unreachable post-enter_userspace path.
func Boot(cfg Config) *kernel.Error {
	cfg = cfg.withDefaults()

	setSinksFn(cfg.LogSinks...)

	setInfoPtrFn(cfg.MultibootInfoPtr)
	requireMandatoryTagsFn()

	idtInitFn()
	installFaultHandlers()
	picRemapFn(cfg.PICMasterOffset, cfg.PICSlaveOffset)
	irqInitFn()
	timerInitFn()
	setTickHookFn(sched.Tick)

	if err := allocatorInitFn(cfg.KernelStart, cfg.KernelEnd); err != nil {
		return err
	}
	setFrameAllocatorFn(allocator.FrameAllocator.Allocate)
	setFrameDeallocatorFn(allocator.FrameAllocator.Free)

	if cfg.HeapSize == 0 {
		return errNoHeapRegion
	}
	heapInitFn(cfg.HeapBase, cfg.HeapSize)
	poolInitFn()

	syscallInitFn()
	syscallBootstrapFn()
	syscallSetFrameAllocFn(allocator.FrameAllocator.Allocate)
	handleInterruptFn(gate.Syscall, syscall.Dispatch)

	procInitFn()
	schedInitFn()

	if cfg.FSProvider == nil {
		klog.Infof(subsystem, "no file-system provider configured; staying in bring-up")
		return nil
	}

	fsSetProviderFn(cfg.FSProvider)
	if err := fsMountFn(cfg.FSBaseLBA); err != nil {
		klog.Errorf(subsystem, "root file-system mount failed: %s", err.Message)
		return err
	}

	image, err := readWholeFile(cfg.InitPath)
	if err != nil {
		klog.Errorf(subsystem, "failed to load %s: %s", cfg.InitPath, err.Message)
		return err
	}

	p, err := loadInitProcess(image)
	if err != nil {
		klog.Errorf(subsystem, "failed to start init program: %s", err.Message)
		return err
	}

	schedAddFn(p)
	// No trap frame exists yet at bring-up — this is the first process
	// ever scheduled, entered below via EnterUserspace rather than an
	// IRETQ restore, so there is nothing for Schedule to save into or
	// restore from.
	scheduleFn(nil)

	cur := currentProcessFn()
	if cur == nil {
		return nil
	}
	enterUserspaceFn(uintptr(cur.Regs.RIP), uintptr(cur.Regs.RSP), uintptr(cur.Regs.RFlags))
	return nil
}

// installFaultHandlers routes every fatal exception vector named in §4.G
// to kernel/fault's reporter. Vectors the CPU never raises on this
// platform fall back to fault.Report's own "Unknown error" classification
// rather than being left unhandled.
func installFaultHandlers() {
	for v := 0; v < 32; v++ {
		vec := gate.InterruptNumber(v)
		handleInterruptFn(vec, func(r *gate.Registers) {
			fault.Report(vec, r, nil)
		})
	}
}

// readWholeFile opens path through kernel/fs and reads it to completion in
// fixed-size chunks, since a Handle carries no file-size metadata to
// preallocate against — matching the original's own two-step
// stat-then-read, minus the stat, since this core's Provider contract (see
// DESIGN.md) has no size query either.
func readWholeFile(path string) ([]byte, *kernel.Error) {
	h, err := fsOpenFn(path)
	if err != nil {
		return nil, err
	}
	defer fsCloseFn(h)

	var out []byte
	chunk := make([]byte, readChunkSize)
	for {
		n, err := fsReadFn(h, chunk)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		out = append(out, chunk[:n]...)
		if len(out) > maxInitImageSize {
			return nil, errInitTooLarge
		}
	}
	if len(out) == 0 {
		return nil, errInitEmpty
	}
	return out, nil
}

// loadInitProcess creates a fresh process, maps image's LOAD segments into
// its address space and points its saved instruction pointer at the
// image's entry point. The new address space is activated for the
// duration of the segment-mapping loop and the previous root is always
// restored afterward, the same temporary-root-switch discipline
// kernel/proc's own Create uses for its stack mapping, and for the same
// reason: Map always walks whichever table is currently active.
func loadInitProcess(image []byte) (*proc.Process, *kernel.Error) {
	allocFrame := allocator.FrameAllocator.Allocate
	retain := allocator.FrameAllocator.Retain

	p, err := procCreateFn(0, true, allocFrame, retain)
	if err != nil {
		return nil, err
	}

	origRoot := activeRootFn()
	switchRootFn(p.AddrSpace.Root())
	entry, _, loadErr := loaderLoadFn(image, allocFrame)
	switchRootFn(origRoot)

	if loadErr != nil {
		return nil, loadErr
	}

	p.Regs.RIP = uint64(entry)
	return p, nil
}
