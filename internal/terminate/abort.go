// Package terminate drives the fail-safe shutdown path: when a fatal
// condition is detected it captures the current stacks, attaches memory
// context, renders a report, and then either raises a catchable error or
// takes the process down. The pipeline itself must never become a second
// failure: every step degrades instead of erroring, and a one-shot guard
// keeps concurrent aborts from re-entering capture.
package terminate

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hugo-lorenzo-mato/crashtrace/internal/stack"
)

// Kind records what drove the termination.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAbort        // explicit abort call
	KindPanic        // uncaught severe condition surfaced as a panic
	KindSignal       // fatal signal re-raised as an error
	KindGroup        // abort coordinated across a distributed group
)

func (k Kind) String() string {
	switch k {
	case KindAbort:
		return "abort"
	case KindPanic:
		return "exception"
	case KindSignal:
		return "signal"
	case KindGroup:
		return "group-abort"
	default:
		return "unknown"
	}
}

// AbortError is the single error type that crosses the fatal path. It is
// created at the moment a fatal condition is recognized, owned by the
// pipeline invocation that created it, and never outlives the termination
// path (the throw dispatch hands ownership to the recovering caller).
type AbortError struct {
	Message string
	Source  string // file:line where the fatal condition was raised
	Kind    Kind
	Signal  os.Signal // set only for KindSignal
	Bytes   uint64    // process memory in use at abort
	Time    time.Time
	Stack   *stack.MultiStack
}

// Error renders the same report that the unconditional-abort path writes to
// the error stream, so callers that catch and log the error observe
// identical content.
func (e *AbortError) Error() string {
	return e.Report()
}

// Report renders the full human-readable report.
func (e *AbortError) Report() string {
	var b strings.Builder
	switch e.Kind {
	case KindAbort:
		b.WriteString("Program abort called")
	case KindPanic:
		b.WriteString("Unhandled exception caught")
	case KindSignal:
		fmt.Fprintf(&b, "Unhandled signal (%s) caught", SignalName(e.Signal))
	case KindGroup:
		b.WriteString("Group abort called")
	default:
		b.WriteString("Unknown fatal condition")
	}
	if e.Source != "" {
		fmt.Fprintf(&b, " in %s", e.Source)
	}
	b.WriteByte('\n')
	if e.Message != "" {
		fmt.Fprintf(&b, "Message: %s\n", e.Message)
	}
	if e.Bytes > 0 {
		fmt.Fprintf(&b, "Memory used: %d bytes (%.1f MB)\n", e.Bytes, float64(e.Bytes)/(1<<20))
	}
	if !e.Time.IsZero() {
		fmt.Fprintf(&b, "Time: %s\n", e.Time.UTC().Format(time.RFC3339))
	}
	if !e.Stack.Empty() {
		b.WriteString("Call stack:\n")
		for _, line := range e.Stack.Lines() {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
