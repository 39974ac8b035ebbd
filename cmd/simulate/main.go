// Command simulate is the hosted developer harness: it wires the parts of
// this module that do not require ring-0 privileges or physical hardware
// (kernel/heap, kernel/pool, kernel/fs and kernel/shell) against a host Go
// process instead of a booted machine, the same role smoynes-elsie's
// cmd/elsie and tinyrange-cc's cmd/term play for their own cores — a place
// to exercise the command dispatcher and allocators without a VM.
//
// kernel/idt, kernel/pic, kernel/timer, kernel/syscall, kernel/proc,
// kernel/sched and kernel/mem/vmm are deliberately left unwired here: each
// ultimately reaches a real privileged instruction (cpu.OutB, cpu.SwitchPDT,
// cpu.ActivePDT, an iret into ring 3) that would fault a hosted process, or
// assumes frame numbers are small offsets from physical address zero, which
// a host process's heap addresses are not. Those components are exercised
// by their own package tests instead; see DESIGN.md.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"unsafe"

	"github.com/charmbracelet/x/vt"
	"github.com/google/pprof/profile"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"corvid/cmd/simulate/internal/memfs"
	"corvid/cmd/simulate/internal/scenario"
	"corvid/kernel/heap"
	"corvid/kernel/klog"
	"corvid/kernel/mem"
	"corvid/kernel/pool"
	"corvid/kernel/shell"

	"corvid/kernel/fs"
)

// arena backs kernel/heap's arena for the lifetime of the process. It is a
// package-level var, not a local, so the garbage collector always has a
// reachable reference to it — heap.Init only ever sees its address as a
// bare uintptr, which the collector cannot trace.
var arena []byte

func main() {
	scenarioPath := flag.String("scenario", "", "path to a scenario YAML file (default: a small built-in scenario)")
	headless := flag.Bool("headless", false, "replay the scenario's script against a headless VT100 emulator and print the resulting screen, instead of reading a live terminal")
	profilePath := flag.String("profile", "", "write a pprof heap/pool occupancy profile to this path on exit")
	flag.Parse()

	scn, err := loadScenario(*scenarioPath)
	if err != nil {
		log.Fatalf("simulate: %s", err)
	}

	// arena stands in for the identity-mapped physical memory kernel/heap
	// expects: a single Go-allocated buffer big enough for the heap arena.
	// unsafe.Pointer over its first element gives kernel/heap a uintptr it
	// can treat exactly the way it treats a real physical base address,
	// since both components only ever do pointer arithmetic relative to
	// that base — they never assume it is zero or small, unlike
	// kernel/mem/pmm/allocator's frame numbering.
	arena = make([]byte, scn.HeapBytes)
	arenaBase := uintptr(unsafe.Pointer(&arena[0]))

	provider := memfs.New()
	klog.SetSinks(os.Stdout)

	steps := []struct {
		name string
		run  func() error
	}{
		{"carve heap arena", func() error { heap.Init(arenaBase, mem.Size(len(arena))); return nil }},
		{"create object pools", func() error { pool.Init(); return nil }},
		{"mount in-memory file system", func() error {
			fs.SetProvider(provider)
			if kerr := fs.Mount(0); kerr != nil {
				return fmt.Errorf("%s", kerr.Message)
			}
			return nil
		}},
		{"preload scenario files", func() error { return populate(provider, scn) }},
	}

	bar := progressbar.Default(int64(len(steps)), "bring-up")
	for _, step := range steps {
		bar.Describe(step.name)
		if err := step.run(); err != nil {
			log.Fatalf("simulate: %s: %s", step.name, err)
		}
		bar.Add(1)
	}
	bar.Finish()

	switch {
	case *headless || !term.IsTerminal(int(os.Stdin.Fd())):
		runHeadless(scn.Script)
	default:
		runInteractive()
	}

	if *profilePath != "" {
		if err := writeOccupancyProfile(*profilePath); err != nil {
			log.Fatalf("simulate: writing profile: %s", err)
		}
	}
}

func loadScenario(path string) (*scenario.Scenario, error) {
	if path == "" {
		return scenario.Default(), nil
	}
	return scenario.Load(path)
}

func populate(p *memfs.Provider, scn *scenario.Scenario) error {
	for _, dir := range scn.Dirs {
		if err := p.Mkdir(dir); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	for _, f := range scn.Files {
		if err := p.WriteFile(f.Path, []byte(f.Data)); err != nil {
			return fmt.Errorf("write %s: %w", f.Path, err)
		}
	}
	return nil
}

// runHeadless replays script's command lines through kernel/shell with its
// output captured and rendered by a headless charmbracelet/x/vt emulator,
// the same VT100 state machine tinyrange-cc's cmd/term drives interactively
// — here used purely for its screen-buffer bookkeeping, with no window to
// paint it into, so a CI run without a real terminal still exercises the
// exact escape-sequence path an interactive session would.
func runHeadless(script []string) {
	const cols, rows = 80, 24
	emu := vt.NewSafeEmulator(cols, rows)
	defer emu.Close()

	var out strings.Builder
	ctx := shell.NewContext(&out)
	for _, line := range script {
		shell.Dispatch(ctx, line)
	}
	emu.Write([]byte(out.String()))

	for y := 0; y < rows; y++ {
		var row strings.Builder
		for x := 0; x < cols; x++ {
			cell := emu.CellAt(x, y)
			if cell == nil || cell.Content == "" {
				row.WriteByte(' ')
				continue
			}
			row.WriteString(cell.Content)
		}
		fmt.Println(strings.TrimRight(row.String(), " "))
	}
}

// runInteractive puts stdin into raw mode and drives kernel/shell.Run
// directly against it, restoring the terminal on EOF (Ctrl-D) or SIGINT.
// The two goroutines (the shell's read loop and the signal watcher) are
// coordinated through an errgroup so a SIGINT during a blocking read still
// leaves the terminal in cooked mode afterward, the same restore-on-any-exit
// discipline smoynes-elsie's internal/tty.Console follows around
// term.MakeRaw.
func runInteractive() {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		log.Fatalf("simulate: putting terminal into raw mode: %s", err)
	}
	defer term.Restore(fd, oldState)

	ctx := shell.NewContext(os.Stdout)
	r := bufio.NewReader(os.Stdin)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	defer signal.Stop(sigCh)

	var g errgroup.Group
	g.Go(func() error {
		shell.Run(r, ctx)
		return nil
	})
	g.Go(func() error {
		<-sigCh
		return nil
	})
	g.Wait()
}

// writeOccupancyProfile dumps kernel/heap and kernel/pool's current
// occupancy as a pprof profile, one sample per arena, so it can be
// inspected with the standard `go tool pprof` flame graph and table views
// instead of a bespoke report format.
func writeOccupancyProfile(path string) error {
	capacity, used := heap.Stats()

	valueType := &profile.ValueType{Type: "bytes", Unit: "bytes"}
	sampleType := []*profile.ValueType{valueType}

	heapFn := &profile.Function{ID: 1, Name: "kernel/heap.KernelHeap"}
	heapLoc := &profile.Location{ID: 1, Line: []profile.Line{{Function: heapFn}}}

	p := &profile.Profile{
		SampleType: sampleType,
		Function:   []*profile.Function{heapFn},
		Location:   []*profile.Location{heapLoc},
		Sample: []*profile.Sample{
			{Location: []*profile.Location{heapLoc}, Value: []int64{int64(used)}, Label: map[string][]string{"arena": {"heap"}}},
		},
	}

	funcID := uint64(2)
	locID := uint64(2)
	for blockSize, stat := range pool.Stats() {
		fn := &profile.Function{ID: funcID, Name: fmt.Sprintf("kernel/pool.Pool[%d]", blockSize)}
		loc := &profile.Location{ID: locID, Line: []profile.Line{{Function: fn}}}
		p.Function = append(p.Function, fn)
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{int64(stat.InUse * blockSize)},
			Label:    map[string][]string{"arena": {fmt.Sprintf("pool-%d", blockSize)}},
		})
		funcID++
		locID++
	}

	p.Comments = []string{fmt.Sprintf("heap capacity=%d used=%d", capacity, used)}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return p.Write(f)
}
