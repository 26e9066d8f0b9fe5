package symbol

import (
	"context"
	"runtime"
	"strconv"
	"strings"

	"github.com/hugo-lorenzo-mato/crashtrace/internal/stack"
)

// Resolver maps raw return addresses to resolved frames. It never fails: any
// lookup error yields a frame carrying only the raw address. Safe for
// concurrent use once constructed.
type Resolver struct {
	table *Table
	run   ExecFunc

	exe           string
	slide         uint64
	addr2linePath string
	lineInfo      bool
	demangle      bool
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithAddr2Line enables the external file/line lookup using the given tool
// path ("addr2line" when empty).
func WithAddr2Line(path string) ResolverOption {
	return func(r *Resolver) {
		if path == "" {
			path = "addr2line"
		}
		r.addr2linePath = path
		r.lineInfo = true
	}
}

// WithDemangle controls whether table names are demangled (on by default).
func WithDemangle(enabled bool) ResolverOption {
	return func(r *Resolver) {
		r.demangle = enabled
	}
}

// WithExecutable overrides the executable image and slide, mainly for tests.
func WithExecutable(exe string, slide uint64) ResolverOption {
	return func(r *Resolver) {
		r.exe = exe
		r.slide = slide
	}
}

// NewResolver creates a resolver backed by the given symbol table. The table
// may be nil, leaving only runtime introspection. run is the exec
// collaborator used for addr2line; it may be nil, disabling line lookup.
func NewResolver(table *Table, run ExecFunc, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		table:    table,
		run:      run,
		exe:      Executable(),
		slide:    Slide(),
		demangle: true,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.run == nil {
		r.lineInfo = false
	}
	return r
}

// Resolve maps one return address to a frame. The runtime's own introspection
// is consulted first (it is an O(1) in-process query and already knows Go
// frames completely); the symbol table fallback attributes addresses the
// runtime does not know to the nearest link-time symbol; addr2line fills in
// file/line where still missing.
func (r *Resolver) Resolve(pc uintptr) stack.Frame {
	f := stack.Frame{Addr: uint64(pc)}

	// CallersFrames adjusts the return address back to the call site and
	// attributes inlined calls correctly, which plain FuncForPC does not.
	frames := runtime.CallersFrames([]uintptr{pc})
	if fr, _ := frames.Next(); fr.Function != "" {
		f.Function = fr.Function
		f.File = fr.File
		f.Line = fr.Line
		f.Module = r.exe
		f.ModuleAddr = uint64(pc) - r.slide
		return f
	}

	// Non-Go address: attribute it to the nearest symbol at or below.
	if r.table != nil && r.table.EnsureLoaded() == nil {
		rel := uint64(pc) - r.slide
		if e, ok := r.table.Lookup(rel); ok {
			f.Function = e.Name
			if r.demangle {
				f.Function = Demangle(e.Name)
			}
			f.Module = r.exe
			f.ModuleAddr = rel
		}
	}

	if f.Module != "" && f.Line == 0 && r.lineInfo {
		r.fileAndLine(&f)
	}
	return f
}

// fileAndLine shells out to addr2line and parses its two-line output:
// the function name, then "file:line" (or "??" / "??:0" when unknown).
// Best-effort only; every failure leaves the frame as it was.
func (r *Resolver) fileAndLine(f *stack.Frame) {
	out, code, err := r.run(context.Background(), r.addr2linePath,
		"-C", "-f", "-e", r.exe, strconv.FormatUint(f.ModuleAddr, 16))
	if err != nil || code != 0 {
		return
	}
	lines := strings.SplitN(out, "\n", 3)
	if len(lines) >= 1 {
		name := strings.TrimSpace(lines[0])
		if f.Function == "" && name != "" && name != "??" {
			f.Function = name
		}
	}
	if len(lines) >= 2 {
		loc := strings.TrimSpace(lines[1])
		if loc == "" || strings.HasPrefix(loc, "?") {
			return
		}
		// "file:line" possibly followed by " (discriminator N)".
		if j := strings.IndexByte(loc, ' '); j > 0 {
			loc = loc[:j]
		}
		i := strings.LastIndexByte(loc, ':')
		if i <= 0 {
			return
		}
		file := loc[:i]
		line, err := strconv.Atoi(loc[i+1:])
		if err != nil || file == "??" {
			return
		}
		f.File = file
		f.Line = line
	}
}
