// Package klog is the kernel's debug logger (component Q). It formats
// "[subsystem] severity: message" lines with a no-allocation Printf engine
// and fans them out to the serial and framebuffer console sinks, the same
// way the teacher's kfmt package buffers early output in a ring buffer
// until a real console is attached.
package klog

import (
	"io"

	"corvid/kernel/klog/early"
)

var (
	sinks   []*PrefixWriter
	ringBuf ringBuffer
)

// SetSinks attaches the console writers (typically serial and framebuffer)
// that Log fans output out to, and flushes anything accumulated in the ring
// buffer into each of them. Calling SetSinks again replaces the previous
// sink set; it does not append.
func SetSinks(writers ...io.Writer) {
	sinks = sinks[:0]
	for _, w := range writers {
		sinks = append(sinks, &PrefixWriter{Sink: w})
	}

	if len(sinks) == 0 {
		return
	}

	buffered := make([]byte, ringBufferSize)
	n, _ := ringBuf.Read(buffered)
	for n > 0 {
		for _, s := range sinks {
			s.Sink.Write(buffered[:n])
		}
		n, _ = ringBuf.Read(buffered)
	}
}

// Log writes a "[subsystem] severity: message" line, formatted per the
// verbs documented on early.Printf (%s, %d, %o, %x, %t, with an optional
// decimal width), to every attached sink. With no sink attached the line is
// held in the ring buffer so that nothing is lost during early boot.
func Log(subsystem string, sev Severity, format string, args ...interface{}) {
	if len(sinks) == 0 {
		fprintf(&ringBuf, "[%s] %s: ", subsystem, sev.String())
		fprintf(&ringBuf, format, args...)
		ringBuf.Write([]byte{'\n'})
		return
	}

	for _, s := range sinks {
		fprintf(s, "[%s] %s: ", subsystem, sev.String())
		fprintf(s, format, args...)
		s.Write([]byte{'\n'})
	}
}

// Debugf, Infof, Warnf and Errorf are Log shorthands for each Severity.
func Debugf(subsystem, format string, args ...interface{}) {
	Log(subsystem, SeverityDebug, format, args...)
}

func Infof(subsystem, format string, args ...interface{}) {
	Log(subsystem, SeverityInfo, format, args...)
}

func Warnf(subsystem, format string, args ...interface{}) {
	Log(subsystem, SeverityWarn, format, args...)
}

func Errorf(subsystem, format string, args ...interface{}) {
	Log(subsystem, SeverityError, format, args...)
}

// AttachEarlySink wires kernel/klog/early's minimal Printf (used by
// kernel.Panic and by code that runs before SetSinks) to the same
// underlying writer, so panic output interleaves correctly with klog lines
// on a real console instead of landing in a second, unsynchronized stream.
func AttachEarlySink(w interface {
	WriteByte(byte)
	Write([]byte)
}) {
	early.Sink = w
}
