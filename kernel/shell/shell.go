// Package shell implements the kernel's interactive command dispatcher
// (component R): a line-editing read loop over a byte source, a fixed
// command table grouped by category, and a bounded history buffer. It is
// the Go equivalent of the original's kernSh, reading through whatever
// keyboard/TTY driver an embedder wires in rather than touching hardware
// itself.
package shell

import (
	"io"
)

const subsystem = "shell"

// cmdBufferSize and maxHistory match the original's CMD_BUFFER_SIZE (512)
// and MAX_HISTORY (128).
const (
	cmdBufferSize = 512
	maxHistory    = 128
)

// Command is one entry in the dispatch table: a name, a one-line
// description and category for `help`, and the handler invoked with
// whatever text followed the command name.
type Command struct {
	Name     string
	Desc     string
	Category string
	Handler  func(ctx *Context, args string)
}

// Context carries everything a command handler needs: where to write
// output and the shell's shared history. Handlers never touch package
// globals directly, so Dispatch can be exercised against an isolated
// Context in tests.
type Context struct {
	Out io.Writer

	// Clear is the external collaborator behind the `clear` command — a
	// real video driver in the freestanding build, a VT100 escape writer
	// in the hosted harness. A nil Clear falls back to writing the ANSI
	// clear-screen sequence directly to Out.
	Clear func(color uint32)

	history *History
}

// History is a fixed-capacity ring of past command lines, mirroring the
// original's command_history array plus its modulo-indexed write cursor.
type History struct {
	buf   [maxHistory]string
	count int
}

// Add records line as the most recently executed command.
func (h *History) Add(line string) {
	h.buf[h.count%maxHistory] = line
	h.count++
}

// Len returns how many commands have ever been recorded, which may exceed
// the number still retained once the ring has wrapped.
func (h *History) Len() int {
	return h.count
}

// Lines returns up to maxHistory most recent entries, oldest first.
func (h *History) Lines() []string {
	n := h.count
	if n > maxHistory {
		n = maxHistory
	}
	out := make([]string, n)
	start := h.count - n
	for i := 0; i < n; i++ {
		out[i] = h.buf[(start+i)%maxHistory]
	}
	return out
}

// NewContext builds a Context writing to out, with a fresh empty history.
func NewContext(out io.Writer) *Context {
	return &Context{Out: out, history: &History{}}
}

var commands = []Command{
	{"help", "Show this help message", "System", cmdHelp},
	{"clear", "Clear the screen", "System", cmdClear},
	{"echo", "Echo a message", "System", cmdEcho},
	{"history", "Show the history of commands", "System", cmdHistory},
	{"exec", "Execute an ELF program", "System", cmdExec},

	{"kpanic", "Test kernel panic reporting (DANGEROUS!)", "Hardware", cmdPanic},

	{"uptime", "Show elapsed time since boot", "Info", cmdUptime},

	{"ls", "List directory", "Filesystem", cmdLs},
	{"cat", "Read file from filesystem", "Filesystem", cmdCat},
	{"fsize", "Show file size", "Filesystem", cmdFsize},
	{"cd", "Change current directory", "Filesystem", cmdCd},
	{"pwd", "Print current directory", "Filesystem", cmdPwd},
}

// splitCommand separates a command line into its leading word and the
// (possibly empty) remainder, trimming leading spaces off the remainder
// the same way the original's handle_command did by hand.
func splitCommand(line string) (cmd, args string) {
	i := 0
	for i < len(line) && line[i] != ' ' {
		i++
	}
	cmd = line[:i]
	for i < len(line) && line[i] == ' ' {
		i++
	}
	args = line[i:]
	return cmd, args
}

// Dispatch parses line into a command name and argument string, looks the
// command up in the fixed table, and invokes its handler. An empty line is
// silently ignored; an unrecognized command name is reported to ctx.Out.
func Dispatch(ctx *Context, line string) {
	if line == "" {
		return
	}
	cmd, args := splitCommand(line)
	if cmd == "" {
		return
	}
	for _, c := range commands {
		if c.Name == cmd {
			c.Handler(ctx, args)
			return
		}
	}
	io.WriteString(ctx.Out, "Unknown command: '"+cmd+"'\n")
}
