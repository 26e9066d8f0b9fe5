package stack

import (
	"runtime"
)

// DefaultMaxDepth bounds a single capture. Corrupted or cyclic stacks
// terminate at this depth instead of walking forever.
const DefaultMaxDepth = 100

// Backtrace returns the raw program counters of the calling goroutine,
// innermost first, skipping the given number of callers (0 means the caller
// of Backtrace). This is the only capture entry point that is safe from a
// signal-handling context: it performs exactly one slice allocation and no
// symbol resolution, so it cannot contend on locks held by interrupted code.
// Resolution happens later, at a safe point.
func Backtrace(skip, maxDepth int) []uintptr {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	pcs := make([]uintptr, maxDepth)
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n]
}

// Resolver maps a raw return address to a resolved frame. Implementations
// must not fail: on any lookup error they return a Frame with only Addr set.
type Resolver interface {
	Resolve(pc uintptr) Frame
}

// Capturer walks call stacks and resolves them through a Resolver.
type Capturer struct {
	resolver Resolver
	maxDepth int
	trim     []string
}

// CapturerOption configures a Capturer.
type CapturerOption func(*Capturer)

// WithMaxDepth overrides the frame depth bound.
func WithMaxDepth(depth int) CapturerOption {
	return func(c *Capturer) {
		if depth > 0 {
			c.maxDepth = depth
		}
	}
}

// WithTrimPrefixes sets function-name prefixes removed from captured
// sequences before they are returned or merged.
func WithTrimPrefixes(prefixes ...string) CapturerOption {
	return func(c *Capturer) {
		c.trim = prefixes
	}
}

// DefaultTrimPrefixes removes the capture machinery itself plus runtime
// scaffolding that only adds noise to reports.
var DefaultTrimPrefixes = []string{
	"github.com/hugo-lorenzo-mato/crashtrace/internal/stack.Backtrace",
	"github.com/hugo-lorenzo-mato/crashtrace/internal/stack.(*Capturer)",
	"github.com/hugo-lorenzo-mato/crashtrace/internal/stack.snapshotGoroutines",
	"github.com/hugo-lorenzo-mato/crashtrace/internal/terminate.",
	"runtime.goexit",
	"runtime.gopanic",
	"runtime.sigpanic",
}

// NewCapturer creates a Capturer. The resolver may be nil, in which case
// frames carry only raw addresses.
func NewCapturer(r Resolver, opts ...CapturerOption) *Capturer {
	c := &Capturer{
		resolver: r,
		maxDepth: DefaultMaxDepth,
		trim:     DefaultTrimPrefixes,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capture returns the resolved stack of the calling goroutine, innermost
// first.
func (c *Capturer) Capture() Sequence {
	return c.capture(1)
}

func (c *Capturer) capture(skip int) Sequence {
	pcs := Backtrace(skip+1, c.maxDepth)
	return c.Resolve(pcs)
}

// Resolve maps raw program counters (e.g. from Backtrace) to a Sequence,
// applying the configured trim prefixes.
func (c *Capturer) Resolve(pcs []uintptr) Sequence {
	seq := make(Sequence, 0, len(pcs))
	for _, pc := range pcs {
		seq = append(seq, c.resolveOne(pc))
	}
	return seq.Trim(c.trim...)
}

func (c *Capturer) resolveOne(pc uintptr) Frame {
	if c.resolver == nil {
		return Frame{Addr: uint64(pc)}
	}
	return c.resolver.Resolve(pc)
}

// CaptureAll snapshots every live goroutine of the process and merges the
// resolved stacks into one tree. The snapshot is taken at a single instant by
// the runtime; goroutines created or destroyed while it is taken are included
// on a best-effort basis only.
func (c *Capturer) CaptureAll() *MultiStack {
	records := snapshotGoroutines()
	seqs := make([]Sequence, 0, len(records))
	for i := range records {
		pcs := records[i].Stack()
		if len(pcs) > c.maxDepth {
			pcs = pcs[:c.maxDepth]
		}
		seq := c.Resolve(pcs)
		if len(seq) > 0 {
			seqs = append(seqs, seq)
		}
	}
	return Merge(seqs)
}

// CaptureThread would walk the stack of another OS thread. The Go runtime
// does not expose per-thread unwinding (goroutines migrate between threads),
// so this platform reports the capture as unsupported by returning an empty
// sequence, never an error.
func (c *Capturer) CaptureThread(handle uint64) Sequence {
	_ = handle
	return nil
}

// snapshotGoroutines retries runtime.GoroutineProfile until the record buffer
// is large enough; the count can grow between the sizing call and the fill.
func snapshotGoroutines() []runtime.StackRecord {
	n, _ := runtime.GoroutineProfile(nil)
	for {
		records := make([]runtime.StackRecord, n+8)
		var ok bool
		n, ok = runtime.GoroutineProfile(records)
		if ok {
			return records[:n]
		}
	}
}
