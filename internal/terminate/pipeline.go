package terminate

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/hugo-lorenzo-mato/crashtrace/internal/stack"
)

// Scope selects how much of the process (or process group) is captured on a
// fatal condition.
type Scope uint8

const (
	// ScopeLocal captures the calling goroutine only.
	ScopeLocal Scope = iota
	// ScopeAll captures every live goroutine.
	ScopeAll
	// ScopeDistributed captures locally and coordinates the abort across a
	// cooperating process group.
	ScopeDistributed
)

// ParseScope maps the configuration strings to a Scope; unknown values fall
// back to ScopeLocal.
func ParseScope(s string) Scope {
	switch s {
	case "all":
		return ScopeAll
	case "distributed", "global":
		return ScopeDistributed
	default:
		return ScopeLocal
	}
}

func (s Scope) String() string {
	switch s {
	case ScopeAll:
		return "all"
	case ScopeDistributed:
		return "distributed"
	default:
		return "local"
	}
}

// Notifier coordinates an abort across a distributed group of cooperating
// processes.
type Notifier interface {
	AbortGroup(reason string) error
}

// Sink receives the finished report after it has been written to the error
// stream, e.g. to persist it. Sink failures are logged and otherwise ignored.
type Sink interface {
	StoreReport(err *AbortError) error
}

// Sinks fans a report out to several sinks. Every sink is attempted; the
// first error is returned after all have run.
type Sinks []Sink

func (s Sinks) StoreReport(err *AbortError) error {
	var firstErr error
	for _, sink := range s {
		if sink == nil {
			continue
		}
		if storeErr := sink.StoreReport(err); storeErr != nil && firstErr == nil {
			firstErr = storeErr
		}
	}
	return firstErr
}

// Config assembles a Pipeline.
type Config struct {
	// ThrowOnAbort raises the AbortError as a panic instead of killing the
	// process, letting a prepared caller recover it.
	ThrowOnAbort bool
	Scope        Scope
	Capturer     *stack.Capturer
	// Memory reads the process memory usage; nil leaves it at zero.
	Memory func() uint64
	// Out receives the rendered report; defaults to stderr.
	Out io.Writer
	// Kill performs the irrevocable process termination; defaults to
	// re-raising SIGABRT. Tests substitute it.
	Kill     func()
	Notifier Notifier
	Sink     Sink
	Logger   *slog.Logger
}

// Pipeline is the fail-safe termination driver. Exactly one thread at a time
// may run the capture-and-dispatch sequence; the guard mutex is acquired at
// entry and deliberately never released on the terminating branches, so any
// second entrant is detected and routed straight to process termination
// without re-entering capture.
type Pipeline struct {
	guard sync.Mutex

	throwOnAbort bool
	scope        Scope
	capturer     *stack.Capturer
	memory       func() uint64
	out          io.Writer
	kill         func()
	notifier     Notifier
	sink         Sink
	logger       *slog.Logger

	mu      sync.Mutex
	onEntry []func()
}

// New creates a Pipeline from the config, filling in defaults.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		throwOnAbort: cfg.ThrowOnAbort,
		scope:        cfg.Scope,
		capturer:     cfg.Capturer,
		memory:       cfg.Memory,
		out:          cfg.Out,
		kill:         cfg.Kill,
		notifier:     cfg.Notifier,
		sink:         cfg.Sink,
		logger:       cfg.Logger,
	}
	if p.capturer == nil {
		p.capturer = stack.NewCapturer(nil)
	}
	if p.out == nil {
		p.out = os.Stderr
	}
	if p.kill == nil {
		p.kill = defaultKill
	}
	if p.logger == nil {
		p.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return p
}

// OnEntry registers a hook run once at pipeline entry, before capture. Used
// to clear externally registered handlers (signal handlers, user hooks) so a
// failure during termination cannot recurse into them.
func (p *Pipeline) OnEntry(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onEntry = append(p.onEntry, fn)
}

// Abort raises an explicit fatal condition with the caller's source location
// and does not return unless the pipeline is configured to throw (in which
// case it panics with the *AbortError).
func (p *Pipeline) Abort(message string) {
	p.Terminate(&AbortError{
		Message: message,
		Source:  callerSource(2),
		Kind:    KindAbort,
	})
}

// Abortf is Abort with formatting.
func (p *Pipeline) Abortf(format string, args ...any) {
	p.Terminate(&AbortError{
		Message: fmt.Sprintf(format, args...),
		Source:  callerSource(2),
		Kind:    KindAbort,
	})
}

// Terminate runs the full pipeline for an already-built AbortError: detect
// re-entrance, clear handlers, fill in memory and stacks, emit the report,
// then dispatch. The report is always written and flushed before any
// terminating action so it stays visible even through a hard kill.
func (p *Pipeline) Terminate(abortErr *AbortError) {
	if !p.guard.TryLock() {
		// Another thread is already past capturing. Do not capture again,
		// do not wait: a recursive fault must end the process immediately.
		p.killNow()
		return
	}
	// The guard stays held on every branch below except the throw path,
	// which hands control back to a live caller.

	p.runEntryHooks()

	if abortErr.Time.IsZero() {
		abortErr.Time = time.Now()
	}
	if abortErr.Bytes == 0 && p.memory != nil {
		abortErr.Bytes = p.memory()
	}
	if abortErr.Stack.Empty() {
		abortErr.Stack = p.captureStacks()
	}

	p.emit(abortErr)

	switch {
	case p.scope == ScopeDistributed && p.notifier != nil:
		if err := p.notifier.AbortGroup(abortErr.Message); err != nil {
			p.logger.Error("group abort failed", "error", err)
		}
		p.killNow()
	case p.throwOnAbort:
		p.guard.Unlock()
		panic(abortErr)
	default:
		p.killNow()
	}
}

// Recover is a defer-compatible helper that routes an escaped panic into the
// pipeline as a fatal condition. A panic that is already an *AbortError (the
// throw dispatch of a nested pipeline) is passed through unchanged.
func (p *Pipeline) Recover() {
	r := recover()
	if r == nil {
		return
	}
	if abortErr, ok := r.(*AbortError); ok {
		panic(abortErr)
	}
	p.Terminate(&AbortError{
		Message: fmt.Sprintf("%v", r),
		Kind:    KindPanic,
	})
}

func (p *Pipeline) runEntryHooks() {
	p.mu.Lock()
	hooks := p.onEntry
	p.onEntry = nil
	p.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (p *Pipeline) captureStacks() *stack.MultiStack {
	if p.scope == ScopeLocal {
		seq := p.capturer.Capture()
		return stack.Merge([]stack.Sequence{seq})
	}
	return p.capturer.CaptureAll()
}

func (p *Pipeline) emit(abortErr *AbortError) {
	report := abortErr.Report()
	if _, err := io.WriteString(p.out, report); err == nil {
		flush(p.out)
	}
	if p.sink != nil {
		if err := p.sink.StoreReport(abortErr); err != nil {
			p.logger.Error("storing abort report", "error", err)
		}
	}
}

func (p *Pipeline) killNow() {
	flush(p.out)
	p.kill()
}

type syncer interface{ Sync() error }

func flush(w io.Writer) {
	if s, ok := w.(syncer); ok {
		_ = s.Sync()
	}
}

func callerSource(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", file, line)
}
