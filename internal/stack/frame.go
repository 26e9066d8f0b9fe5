package stack

import (
	"fmt"
	"strings"
)

// Frame is one resolved call site.
//
// Addr is the raw return address and is only meaningful inside the process
// that captured it. ModuleAddr is the address relative to the owning module's
// load base and is the identity used for merging and wire transport. The text
// fields are best-effort: any of them may be empty when resolution failed.
type Frame struct {
	Addr       uint64
	ModuleAddr uint64
	Module     string
	Function   string
	File       string
	Line       int
}

// Key returns the identity used to decide whether two frames are the same
// call site. Module-relative addresses survive re-loads at different bases,
// so they win over the raw address when available.
func (f Frame) Key() uint64 {
	if f.ModuleAddr != 0 {
		return f.ModuleAddr
	}
	return f.Addr
}

// Resolved reports whether any symbolic information was attached.
func (f Frame) Resolved() bool {
	return f.Module != "" || f.Function != "" || f.File != ""
}

// Default print columns, matching the report format: the module column starts
// after the 16-digit address, the function column after the module.
const (
	moduleColumn   = 38
	functionColumn = 70
)

// String renders the frame as a single report line:
// "0x<addr>:  <module>  <function>  <file>:<line>".
func (f Frame) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "0x%016x:  ", f.Addr)
	b.WriteString(stripPath(f.Module))
	pad(&b, moduleColumn)
	b.WriteString("  ")
	b.WriteString(f.Function)
	switch {
	case f.File != "" && f.Line > 0:
		pad(&b, functionColumn)
		fmt.Fprintf(&b, "  %s:%d", stripPath(f.File), f.Line)
	case f.File != "":
		pad(&b, functionColumn)
		fmt.Fprintf(&b, "  %s", stripPath(f.File))
	case f.Line > 0:
		fmt.Fprintf(&b, " : %d", f.Line)
	}
	return b.String()
}

func pad(b *strings.Builder, width int) {
	for b.Len() < width {
		b.WriteByte(' ')
	}
}

// stripPath drops the directory part of a path, handling both separators.
func stripPath(path string) string {
	if i := strings.LastIndexAny(path, "/\\"); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Sequence is an ordered list of frames, innermost call first. A sequence is
// immutable once produced by a capture.
type Sequence []Frame

// String renders the sequence one frame per line.
func (s Sequence) String() string {
	var b strings.Builder
	for _, f := range s {
		b.WriteString(f.String())
		b.WriteByte('\n')
	}
	return b.String()
}

// Trim returns the sequence without frames whose function name starts with
// one of the given prefixes. Used to remove capture machinery and runtime
// scaffolding from reports.
func (s Sequence) Trim(prefixes ...string) Sequence {
	out := make(Sequence, 0, len(s))
	for _, f := range s {
		if matchesAny(f.Function, prefixes) {
			continue
		}
		out = append(out, f)
	}
	return out
}

func matchesAny(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
