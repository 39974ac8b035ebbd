package shell

import (
	"fmt"
	"io"
	"strconv"

	"corvid/kernel"
	"corvid/kernel/fault"
	"corvid/kernel/fs"
	"corvid/kernel/gate"
	"corvid/kernel/idt"
	"corvid/kernel/loader"
	"corvid/kernel/mem/pmm/allocator"
	"corvid/kernel/mem/vmm"
	"corvid/kernel/proc"
	"corvid/kernel/sched"
	"corvid/kernel/timer"
)

// The following indirections let commands_test.go substitute every
// cross-component call cmdExec and cmdPanic make, the same
// testability-through-indirection idiom kernel/boot uses for its own
// bring-up sequence.
var (
	fsOpenFn  = fs.Open
	fsReadFn  = fs.Read
	fsCloseFn = fs.Close
	fsListFn  = fs.List

	loaderLoadFn = loader.Load
	procCreateFn = proc.Create
	activeRootFn = vmm.ActiveRoot
	switchRootFn = vmm.SwitchRoot
	schedAddFn   = sched.Add
	scheduleFn   = sched.Schedule

	enterUserspaceFn = idt.EnterUserspace
	faultReportFn    = fault.Report
)

const maxExecImageSize = 4 * 1024 * 1024

func cmdHelp(ctx *Context, _ string) {
	io.WriteString(ctx.Out, "Available commands\n")

	var categories []string
	seen := map[string]bool{}
	for _, c := range commands {
		if !seen[c.Category] {
			seen[c.Category] = true
			categories = append(categories, c.Category)
		}
	}

	for _, cat := range categories {
		fmt.Fprintf(ctx.Out, "\n[%s]\n", cat)
		for _, c := range commands {
			if c.Category == cat {
				fmt.Fprintf(ctx.Out, " %-12s - %s\n", c.Name, c.Desc)
			}
		}
	}
}

// cmdClear parses an optional "#RRGGBB" or decimal color argument, the
// same pair of bases the original's cmd_clear accepted via strtol, and
// hands it to ctx.Clear if the embedder wired a video driver in.
func cmdClear(ctx *Context, args string) {
	var color uint32
	if args != "" {
		base := 10
		if args[0] == '#' {
			args = args[1:]
			base = 16
		}
		if v, err := strconv.ParseUint(args, base, 32); err == nil && v <= 0xFFFFFF {
			color = uint32(v)
		}
	}
	if ctx.Clear != nil {
		ctx.Clear(color)
		return
	}
	io.WriteString(ctx.Out, "\x1b[2J\x1b[H")
}

func cmdEcho(ctx *Context, args string) {
	if args == "" {
		io.WriteString(ctx.Out, "Echo... echo... echo...\n")
		return
	}
	io.WriteString(ctx.Out, args+"\n")
}

func cmdHistory(ctx *Context, _ string) {
	lines := ctx.history.Lines()
	if len(lines) == 0 {
		io.WriteString(ctx.Out, "No commands in history\n")
		return
	}
	base := ctx.history.Len() - len(lines)
	for i, line := range lines {
		fmt.Fprintf(ctx.Out, "%2d - %s\n", base+i+1, line)
	}
}

func cmdPwd(ctx *Context, _ string) {
	io.WriteString(ctx.Out, fs.Getcwd()+"\n")
}

func cmdCd(ctx *Context, args string) {
	path := args
	if path == "" {
		path = "/"
	}
	if err := fs.Chdir(path); err != nil {
		fmt.Fprintf(ctx.Out, "cd: cannot access %s (%s)\n", path, err.Message)
	}
}

func cmdLs(ctx *Context, args string) {
	path := args
	if path == "" {
		path = fs.Getcwd()
	}
	err := fsListFn(path, func(name string, isDir bool) {
		if isDir {
			fmt.Fprintf(ctx.Out, "%s/\n", name)
			return
		}
		fmt.Fprintf(ctx.Out, "%s\n", name)
	})
	if err != nil {
		fmt.Fprintf(ctx.Out, "ls: cannot access %s (%s)\n", path, err.Message)
	}
}

// readWholeFile mirrors kernel/boot's chunked read, since kernel/fs's
// Handle carries no size to preallocate against.
func readWholeFile(path string, max int) ([]byte, *kernel.Error) {
	h, err := fsOpenFn(path)
	if err != nil {
		return nil, err
	}
	defer fsCloseFn(h)

	var out []byte
	chunk := make([]byte, 512)
	for {
		n, err := fsReadFn(h, chunk)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}
		out = append(out, chunk[:n]...)
		if len(out) > max {
			return out, nil
		}
	}
	return out, nil
}

func cmdCat(ctx *Context, args string) {
	if args == "" {
		io.WriteString(ctx.Out, "Usage: cat <path>\n")
		return
	}
	path := fs.Resolve(args)
	data, err := readWholeFile(path, maxExecImageSize)
	if err != nil {
		fmt.Fprintf(ctx.Out, "cat: cannot open %s (%s)\n", path, err.Message)
		return
	}
	ctx.Out.Write(data)
}

func cmdFsize(ctx *Context, args string) {
	if args == "" {
		io.WriteString(ctx.Out, "Usage: fsize <path>\n")
		return
	}
	path := fs.Resolve(args)
	data, err := readWholeFile(path, maxExecImageSize)
	if err != nil {
		fmt.Fprintf(ctx.Out, "fsize: cannot open %s (%s)\n", path, err.Message)
		return
	}
	fmt.Fprintf(ctx.Out, "%s: %d bytes\n", args, len(data))
}

func cmdUptime(ctx *Context, _ string) {
	fmt.Fprintf(ctx.Out, "up %.2f seconds\n", timer.Seconds())
}

// cmdExec loads an ELF file through kernel/fs and runs it as a new user
// process: create a placeholder process, temporarily activate its address
// space to map the image's LOAD segments, restore the caller's address
// space, then schedule and enter the freshly loaded program — the same
// create-then-load ordering kernel/boot uses for the very first process,
// grounded on the original's cmd_exec (open, read whole file, validate,
// create process, swap CR3 to map, swap back, enter_userspace).
func cmdExec(ctx *Context, args string) {
	if args == "" {
		io.WriteString(ctx.Out, "Usage: exec <elf_path>\n")
		return
	}
	path := fs.Resolve(args)
	fmt.Fprintf(ctx.Out, "Loading ELF file: %s\n", path)

	image, err := readWholeFile(path, maxExecImageSize)
	if err != nil {
		fmt.Fprintf(ctx.Out, "exec: cannot open %s (%s)\n", path, err.Message)
		return
	}
	if len(image) == 0 {
		io.WriteString(ctx.Out, "exec: file is empty\n")
		return
	}
	if len(image) > maxExecImageSize {
		fmt.Fprintf(ctx.Out, "exec: file too large (%d bytes, max %d)\n", len(image), maxExecImageSize)
		return
	}
	if !loader.IsValidELF(image) {
		io.WriteString(ctx.Out, "exec: not a valid ELF file\n")
		return
	}

	allocFrame := allocator.FrameAllocator.Allocate
	retain := allocator.FrameAllocator.Retain

	p, err := procCreateFn(0, true, allocFrame, retain)
	if err != nil {
		fmt.Fprintf(ctx.Out, "exec: failed to create process (%s)\n", err.Message)
		return
	}
	fmt.Fprintf(ctx.Out, "Created process PID=%d\n", p.ID)

	origRoot := activeRootFn()
	switchRootFn(p.AddrSpace.Root())
	entry, _, loadErr := loaderLoadFn(image, allocFrame)
	switchRootFn(origRoot)

	if loadErr != nil {
		fmt.Fprintf(ctx.Out, "exec: failed to load ELF (%s)\n", loadErr.Message)
		return
	}

	p.Regs.RIP = uint64(entry)
	fmt.Fprintf(ctx.Out, "Entry point: %#x\n", entry)

	schedAddFn(p)
	// No trap frame exists yet for this process — exec starts it fresh via
	// EnterUserspace, not an IRETQ restore, so there is nothing to save
	// into or restore from here.
	scheduleFn(nil)
	enterUserspaceFn(uintptr(p.Regs.RIP), uintptr(p.Regs.RSP), uintptr(p.Regs.RFlags))
}

// cmdPanic simulates a CPU fault through kernel/fault for testing
// component B's reporting path, the same as the original's kpanic
// passing a raw exception code to panic::init.
func cmdPanic(ctx *Context, args string) {
	if args == "" {
		io.WriteString(ctx.Out, "Usage: kpanic <error_code>\n")
		io.WriteString(ctx.Out, "Error codes: 0-31 (CPU exception vector number)\n")
		return
	}
	code, scanErr := strconv.Atoi(args)
	if scanErr != nil || code < 0 || code > 31 {
		io.WriteString(ctx.Out, "Error code must be between 0 and 31\n")
		return
	}
	faultReportFn(gate.InterruptNumber(code), &gate.Registers{TrapNo: uint64(code)}, nil)
}
