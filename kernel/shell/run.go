package shell

import "io"

const prompt = "\n[shell@corvid] "

// ByteReader is the keyboard/TTY driver's contract with this package: one
// byte per call, with any error (typically io.EOF) ending the read loop.
// The original's tty::read_char blocked forever; a hosted byte source can
// simply run out, which is how Run's tests terminate.
type ByteReader interface {
	ReadByte() (byte, error)
}

// Run drives the read-eval loop: prints a prompt, accumulates characters
// into a cmdBufferSize line buffer handling backspace (both ASCII BS and
// DEL) and printable characters, and dispatches each completed line,
// recording it in ctx's history first — the same order the original's
// init() loop saved to command_history before calling handle_command. Run
// returns once r.ReadByte reports an error.
func Run(r ByteReader, ctx *Context) {
	var buf [cmdBufferSize]byte

lines:
	for {
		io.WriteString(ctx.Out, prompt)
		n := 0
		overflow := false

		for {
			c, err := r.ReadByte()
			if err != nil {
				return
			}

			switch {
			case c == '\n':
				ctx.Out.Write([]byte{'\n'})
				if overflow {
					io.WriteString(ctx.Out, "Error: command too long\n")
				} else if n > 0 {
					line := string(buf[:n])
					ctx.history.Add(line)
					Dispatch(ctx, line)
				}
				continue lines
			case c == '\b' || c == 127:
				if n > 0 {
					n--
				}
			case c >= 32 && c < 127:
				if n < cmdBufferSize-1 {
					buf[n] = c
					n++
				} else {
					overflow = true
				}
			}
		}
	}
}
