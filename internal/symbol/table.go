// Package symbol resolves raw return addresses into module, function and
// source-location information. Resolution is layered: the Go runtime's own
// introspection first, then a lazily-built table of the executable's link-time
// symbols, then an optional external addr2line lookup for file/line. Every
// layer degrades rather than fails: the worst case is a frame carrying only
// its raw address.
package symbol

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Entry is one link-time symbol of the running executable.
type Entry struct {
	Addr uint64
	Kind byte
	Name string
}

// ExecFunc runs an external command and returns its combined stdout and exit
// code. It matches the thin collaborator contract used for the nm and
// addr2line invocations; tests substitute it freely.
type ExecFunc func(ctx context.Context, name string, args ...string) (string, int, error)

// Table is the process-wide cache of the executable's symbols, sorted
// ascending by address. It is built at most once per process lifetime:
// concurrent first callers share a single nm invocation, and a build failure
// (tool missing, unsupported platform) is remembered so resolution degrades
// to raw addresses without ever retrying the external call.
type Table struct {
	exe    string
	nmPath string
	run    ExecFunc

	group singleflight.Group

	mu      sync.RWMutex
	loaded  bool
	loadErr error
	entries []Entry
}

// NewTable creates a symbol table for the given executable image. nmPath
// defaults to "nm" on PATH.
func NewTable(exe, nmPath string, run ExecFunc) *Table {
	if nmPath == "" {
		nmPath = "nm"
	}
	return &Table{exe: exe, nmPath: nmPath, run: run}
}

// EnsureLoaded builds the table on first call and is a cheap read afterward.
// The returned error is sticky: once the dump tool has failed, every later
// call reports the same failure without re-running it.
func (t *Table) EnsureLoaded() error {
	t.mu.RLock()
	if t.loaded {
		err := t.loadErr
		t.mu.RUnlock()
		return err
	}
	t.mu.RUnlock()

	// Concurrent first callers block here on one shared build instead of
	// each spawning nm.
	_, err, _ := t.group.Do("load", func() (any, error) {
		t.mu.RLock()
		done := t.loaded
		t.mu.RUnlock()
		if done {
			return nil, t.loadErr
		}
		entries, err := t.load()
		t.mu.Lock()
		t.loaded = true
		t.loadErr = err
		t.entries = entries
		t.mu.Unlock()
		return nil, err
	})
	return err
}

func (t *Table) load() ([]Entry, error) {
	if t.run == nil {
		return nil, fmt.Errorf("symbol table: no exec collaborator configured")
	}
	if t.exe == "" {
		return nil, fmt.Errorf("symbol table: executable path unknown")
	}
	out, code, err := t.run(context.Background(), t.nmPath, "-n", t.exe)
	if err != nil {
		return nil, fmt.Errorf("symbol table: running %s: %w", t.nmPath, err)
	}
	if code != 0 {
		return nil, fmt.Errorf("symbol table: %s exited with code %d", t.nmPath, code)
	}
	entries := parseNM(out)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Addr < entries[j].Addr })
	return entries, nil
}

// parseNM parses "nm -n" output: "<hex address> <type char> <name>" per line.
// Undefined symbols (lines starting with a space) and malformed lines are
// skipped.
func parseNM(out string) []Entry {
	var entries []Entry
	for _, line := range strings.Split(out, "\n") {
		if line == "" || line[0] == ' ' {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		if len(fields) != 3 || len(fields[1]) != 1 {
			continue
		}
		addr, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil {
			continue
		}
		name := strings.TrimRight(fields[2], "\r")
		if name == "" {
			continue
		}
		entries = append(entries, Entry{Addr: addr, Kind: fields[1][0], Name: name})
	}
	return entries
}

// Lookup returns the last symbol at or before addr. The table must be loaded;
// an unloaded or failed table reports no match.
func (t *Table) Lookup(addr uint64) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.loaded || t.loadErr != nil || len(t.entries) == 0 {
		return Entry{}, false
	}
	// First entry strictly above addr; the one before it owns the address.
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].Addr > addr })
	if i == 0 {
		return Entry{}, false
	}
	return t.entries[i-1], true
}

// Len returns the number of cached symbols.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Entries returns a copy of the cached symbols for display purposes. The
// backing list itself is never exposed.
func (t *Table) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}
