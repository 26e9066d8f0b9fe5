package terminate

import (
	"errors"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/hugo-lorenzo-mato/crashtrace/internal/stack"
)

type testResolver struct{}

func (testResolver) Resolve(pc uintptr) stack.Frame {
	f := stack.Frame{Addr: uint64(pc), ModuleAddr: uint64(pc)}
	if fn := runtime.FuncForPC(pc); fn != nil {
		f.Function = fn.Name()
		f.File, f.Line = fn.FileLine(pc)
	}
	return f
}

// safeWriter collects report output across goroutines.
type safeWriter struct {
	mu sync.Mutex
	b  strings.Builder
}

func (w *safeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.Write(p)
}

func (w *safeWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.b.String()
}

func newTestPipeline(t *testing.T, cfg Config, kills *atomic.Int32) (*Pipeline, *safeWriter) {
	t.Helper()
	out := &safeWriter{}
	cfg.Out = out
	cfg.Capturer = stack.NewCapturer(testResolver{})
	if cfg.Kill == nil {
		cfg.Kill = func() {
			if kills != nil {
				kills.Add(1)
			}
		}
	}
	return New(cfg), out
}

func TestThrowDispatchPanicsWithAbortError(t *testing.T) {
	t.Parallel()
	p, out := newTestPipeline(t, Config{ThrowOnAbort: true}, nil)

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("throw dispatch did not panic")
		}
		abortErr, ok := r.(*AbortError)
		if !ok {
			t.Fatalf("panicked with %T, want *AbortError", r)
		}
		if abortErr.Kind != KindAbort {
			t.Errorf("kind = %v", abortErr.Kind)
		}
		if !strings.Contains(abortErr.Message, "boom") {
			t.Errorf("message = %q", abortErr.Message)
		}
		if !strings.Contains(abortErr.Source, "pipeline_test.go") {
			t.Errorf("source = %q", abortErr.Source)
		}
		// Thrown error text reproduces the emitted report exactly.
		if abortErr.Error() != out.String() {
			t.Error("thrown error text differs from emitted report")
		}
		if abortErr.Stack.Empty() {
			t.Error("no stack captured")
		}
	}()
	p.Abort("boom")
}

func TestAbortDispatchKillsOnce(t *testing.T) {
	t.Parallel()
	var kills atomic.Int32
	p, out := newTestPipeline(t, Config{}, &kills)

	p.Abort("fatal")

	if kills.Load() != 1 {
		t.Fatalf("kill called %d times, want 1", kills.Load())
	}
	report := out.String()
	if !strings.Contains(report, "Program abort called") {
		t.Errorf("report header missing:\n%s", report)
	}
	if !strings.Contains(report, "fatal") {
		t.Errorf("report message missing:\n%s", report)
	}
	if !strings.Contains(report, "Call stack:") {
		t.Errorf("report stack missing:\n%s", report)
	}
}

func TestMemoryContextAttached(t *testing.T) {
	t.Parallel()
	p, out := newTestPipeline(t, Config{Memory: func() uint64 { return 42 << 20 }}, nil)
	p.Abort("oom-ish")
	if !strings.Contains(out.String(), "42.0 MB") {
		t.Errorf("memory context missing:\n%s", out.String())
	}
}

func TestSecondConcurrentCallerForcedToKill(t *testing.T) {
	t.Parallel()
	var kills atomic.Int32
	captureStarted := make(chan struct{})
	releaseCapture := make(chan struct{})

	out := &safeWriter{}
	p := New(Config{
		Out:      out,
		Capturer: stack.NewCapturer(testResolver{}),
		Memory: func() uint64 {
			// Stall the first entrant inside the capture phase so the
			// second arrives while the guard is held.
			close(captureStarted)
			<-releaseCapture
			return 0
		},
		Kill: func() { kills.Add(1) },
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		p.Terminate(&AbortError{Message: "first", Kind: KindAbort})
	}()
	go func() {
		defer wg.Done()
		<-captureStarted
		p.Terminate(&AbortError{Message: "second", Kind: KindAbort})
		close(releaseCapture)
	}()
	wg.Wait()

	if kills.Load() != 2 {
		t.Fatalf("kills = %d, want 2 (both paths terminate)", kills.Load())
	}
	report := out.String()
	if !strings.Contains(report, "first") {
		t.Error("first report missing")
	}
	if strings.Contains(report, "second") {
		t.Error("second entrant must not emit a report")
	}
	if strings.Count(report, "Program abort called") != 1 {
		t.Errorf("expected exactly one full report:\n%s", report)
	}
}

func TestEntryHooksRunOnce(t *testing.T) {
	t.Parallel()
	var hooks atomic.Int32
	p, _ := newTestPipeline(t, Config{ThrowOnAbort: true}, nil)
	p.OnEntry(func() { hooks.Add(1) })

	for i := 0; i < 2; i++ {
		func() {
			defer func() { _ = recover() }()
			p.Abort("again")
		}()
	}
	if hooks.Load() != 1 {
		t.Fatalf("entry hook ran %d times, want 1", hooks.Load())
	}
}

func TestRecoverRoutesPanicIntoPipeline(t *testing.T) {
	t.Parallel()
	var kills atomic.Int32
	p, out := newTestPipeline(t, Config{}, &kills)

	func() {
		defer p.Recover()
		panic("exploded")
	}()

	if kills.Load() != 1 {
		t.Fatalf("kills = %d", kills.Load())
	}
	report := out.String()
	if !strings.Contains(report, "Unhandled exception caught") {
		t.Errorf("report header:\n%s", report)
	}
	if !strings.Contains(report, "exploded") {
		t.Errorf("panic value missing:\n%s", report)
	}
}

type recordingSink struct {
	mu   sync.Mutex
	seen []*AbortError
}

func (s *recordingSink) StoreReport(err *AbortError) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, err)
	return nil
}

func TestSinkReceivesReport(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	p, _ := newTestPipeline(t, Config{Sink: sink}, nil)
	p.Abort("persist me")
	if len(sink.seen) != 1 || sink.seen[0].Message != "persist me" {
		t.Fatalf("sink saw %+v", sink.seen)
	}
}

func TestSinksFanOut(t *testing.T) {
	t.Parallel()
	first := &recordingSink{}
	second := &recordingSink{}
	p, _ := newTestPipeline(t, Config{Sink: Sinks{first, nil, second}}, nil)
	p.Abort("fan out")
	if len(first.seen) != 1 || len(second.seen) != 1 {
		t.Fatalf("sinks saw %d and %d reports, want 1 each", len(first.seen), len(second.seen))
	}
}

type failingSink struct{ err error }

func (s failingSink) StoreReport(*AbortError) error { return s.err }

func TestSinksReturnFirstError(t *testing.T) {
	t.Parallel()
	after := &recordingSink{}
	wantErr := errors.New("disk full")
	s := Sinks{failingSink{err: wantErr}, after}
	if err := s.StoreReport(&AbortError{}); !errors.Is(err, wantErr) {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if len(after.seen) != 1 {
		t.Fatal("later sink skipped after earlier failure")
	}
}

type fakeNotifier struct {
	calls atomic.Int32
}

func (n *fakeNotifier) AbortGroup(string) error {
	n.calls.Add(1)
	return nil
}

func TestDistributedDispatchNotifiesThenKills(t *testing.T) {
	t.Parallel()
	var kills atomic.Int32
	n := &fakeNotifier{}
	p, _ := newTestPipeline(t, Config{Scope: ScopeDistributed, Notifier: n}, &kills)

	p.Abort("cluster down")

	if n.calls.Load() != 1 {
		t.Fatalf("notifier calls = %d", n.calls.Load())
	}
	if kills.Load() != 1 {
		t.Fatalf("kills = %d", kills.Load())
	}
}

func TestAllScopeCapturesMultipleGoroutines(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() { defer wg.Done(); <-release }()
	}
	defer func() { close(release); wg.Wait() }()

	p, _ := newTestPipeline(t, Config{ThrowOnAbort: true, Scope: ScopeAll}, nil)
	defer func() {
		r := recover()
		abortErr, ok := r.(*AbortError)
		if !ok {
			t.Fatalf("recovered %T", r)
		}
		if abortErr.Stack.Count < 4 {
			t.Errorf("contributors = %d, want >= 4", abortErr.Stack.Count)
		}
	}()
	p.Abort("all")
}

func TestSignalName(t *testing.T) {
	t.Parallel()
	if got := SignalName(syscall.SIGSEGV); !strings.Contains(got, "SIGSEGV") {
		t.Errorf("SignalName = %q", got)
	}
	if got := SignalName(nil); got != "none" {
		t.Errorf("SignalName(nil) = %q", got)
	}
}

func TestParseScope(t *testing.T) {
	t.Parallel()
	cases := map[string]Scope{
		"all":         ScopeAll,
		"distributed": ScopeDistributed,
		"global":      ScopeDistributed,
		"local":       ScopeLocal,
		"":            ScopeLocal,
		"bogus":       ScopeLocal,
	}
	for in, want := range cases {
		if got := ParseScope(in); got != want {
			t.Errorf("ParseScope(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestAbortErrorReportSignalKind(t *testing.T) {
	t.Parallel()
	e := &AbortError{
		Kind:   KindSignal,
		Signal: syscall.SIGBUS,
		Time:   time.Unix(0, 0),
	}
	r := e.Report()
	if !strings.Contains(r, "Unhandled signal") || !strings.Contains(r, "SIGBUS") {
		t.Errorf("report = %q", r)
	}
}
