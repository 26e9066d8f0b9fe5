package symbol

import (
	"context"
	"runtime"
	"strings"
	"testing"
)

//go:noinline
func currentPC() uintptr {
	pcs := make([]uintptr, 1)
	runtime.Callers(1, pcs)
	return pcs[0]
}

func TestResolveGoFrame(t *testing.T) {
	t.Parallel()
	r := NewResolver(nil, nil)

	pc := currentPC()
	f := r.Resolve(pc)

	if !strings.Contains(f.Function, "currentPC") {
		t.Errorf("function = %q, want currentPC", f.Function)
	}
	if !strings.HasSuffix(f.File, "resolver_test.go") {
		t.Errorf("file = %q", f.File)
	}
	if f.Line == 0 {
		t.Error("line not resolved")
	}
	if f.Addr != uint64(pc) {
		t.Errorf("addr = %#x, want %#x", f.Addr, pc)
	}
}

func TestResolveIdempotent(t *testing.T) {
	t.Parallel()
	r := NewResolver(nil, nil)
	pc := currentPC()
	if a, b := r.Resolve(pc), r.Resolve(pc); a != b {
		t.Fatalf("resolution not idempotent:\n%+v\n%+v", a, b)
	}
}

func TestResolveUnknownAddressDegrades(t *testing.T) {
	t.Parallel()
	r := NewResolver(nil, nil, WithExecutable("", 0))

	// An address no module owns, with no symbol table: raw address only.
	f := r.Resolve(0x1)
	if f.Addr != 0x1 {
		t.Fatalf("addr = %#x", f.Addr)
	}
	if f.Resolved() || f.ModuleAddr != 0 || f.Line != 0 {
		t.Fatalf("expected fully degraded frame, got %+v", f)
	}
}

// Addresses far above any Go text segment, so runtime.FuncForPC cannot claim
// them and the table fallback is exercised.
const nmHighOutput = `00007fff00001000 T libinit
00007fff00002000 T do_work
00007fff00003000 t cleanup
`

func TestResolveTableFallback(t *testing.T) {
	t.Parallel()
	tab := NewTable("/bin/app", "", fakeExec(nmHighOutput, 0, nil, nil))
	r := NewResolver(tab, nil, WithExecutable("/bin/app", 0))

	// Inside do_work per the fake nm data; the runtime does not know the
	// address, so the table attributes it.
	f := r.Resolve(0x7fff00002150)
	if f.Function != "do_work" {
		t.Errorf("function = %q, want do_work", f.Function)
	}
	if f.Module != "/bin/app" {
		t.Errorf("module = %q", f.Module)
	}
	if f.ModuleAddr != 0x7fff00002150 {
		t.Errorf("module addr = %#x", f.ModuleAddr)
	}
	if f.File != "" || f.Line != 0 {
		t.Errorf("table fallback must not invent file/line: %+v", f)
	}
}

func TestResolveNeverFailsOnBrokenTable(t *testing.T) {
	t.Parallel()
	tab := NewTable("/bin/app", "", fakeExec("", 127, nil, nil))
	r := NewResolver(tab, nil, WithExecutable("/bin/app", 0))

	f := r.Resolve(0x7fff00002150)
	if f.Addr != 0x7fff00002150 || f.Resolved() {
		t.Fatalf("broken table must degrade to raw address: %+v", f)
	}
}

func TestAddr2LineFillsFileAndLine(t *testing.T) {
	t.Parallel()
	tab := NewTable("/bin/app", "", fakeExec(nmHighOutput, 0, nil, nil))
	run := func(_ context.Context, name string, args ...string) (string, int, error) {
		if strings.Contains(name, "addr2line") {
			return "do_work\n/src/app/work.c:99\n", 0, nil
		}
		return nmHighOutput, 0, nil
	}
	r := NewResolver(tab, run, WithExecutable("/bin/app", 0), WithAddr2Line(""))

	f := r.Resolve(0x7fff00002150)
	if f.File != "/src/app/work.c" || f.Line != 99 {
		t.Fatalf("file:line = %q:%d", f.File, f.Line)
	}
	// Name from the table wins; addr2line only fills gaps.
	if f.Function != "do_work" {
		t.Errorf("function = %q", f.Function)
	}
}

func TestAddr2LineUnknownOutputIgnored(t *testing.T) {
	t.Parallel()
	tab := NewTable("/bin/app", "", fakeExec(nmHighOutput, 0, nil, nil))
	run := func(_ context.Context, name string, _ ...string) (string, int, error) {
		if strings.Contains(name, "addr2line") {
			return "??\n??:0\n", 0, nil
		}
		return nmHighOutput, 0, nil
	}
	r := NewResolver(tab, run, WithExecutable("/bin/app", 0), WithAddr2Line(""))

	f := r.Resolve(0x7fff00002150)
	if f.File != "" || f.Line != 0 {
		t.Fatalf("unknown addr2line output must be ignored: %+v", f)
	}
}

func TestDemangle(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"main.run":     "main.run", // Go names untouched
		"plain_c_name": "plain_c_name",
		"_ZN3foo3barEv": func() string {
			// The exact rendering belongs to the demangler; it must at
			// least contain the namespace and method.
			return "foo::bar()"
		}(),
		// Mach-O form with the extra leading underscore.
		"__ZN3foo3barEv": "foo::bar()",
		// A single stray underscore is not a mangling prefix.
		"_initheap": "_initheap",
	}
	for in, want := range cases {
		got := Demangle(in)
		if !strings.Contains(got, strings.TrimSuffix(want, "()")) {
			t.Errorf("Demangle(%q) = %q, want containing %q", in, got, want)
		}
	}
}
