package terminate

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// DefaultSignals is the set of fatal signals routed into the pipeline when
// signal handling is installed. Synchronous faults raised from Go code are
// handled by the runtime itself; these handlers cover faults raised from
// non-Go code and externally delivered termination signals.
func DefaultSignals() []os.Signal {
	return []os.Signal{
		syscall.SIGHUP,
		syscall.SIGQUIT,
		syscall.SIGILL,
		syscall.SIGTRAP,
		syscall.SIGABRT,
		syscall.SIGBUS,
		syscall.SIGFPE,
		syscall.SIGSEGV,
		syscall.SIGTERM,
	}
}

var signalNames = map[syscall.Signal]string{
	syscall.SIGHUP:  "SIGHUP",
	syscall.SIGINT:  "SIGINT",
	syscall.SIGQUIT: "SIGQUIT",
	syscall.SIGILL:  "SIGILL",
	syscall.SIGTRAP: "SIGTRAP",
	syscall.SIGABRT: "SIGABRT",
	syscall.SIGBUS:  "SIGBUS",
	syscall.SIGFPE:  "SIGFPE",
	syscall.SIGSEGV: "SIGSEGV",
	syscall.SIGPIPE: "SIGPIPE",
	syscall.SIGALRM: "SIGALRM",
	syscall.SIGTERM: "SIGTERM",
}

// SignalName returns a readable name ("SIGSEGV (11)") for a signal.
func SignalName(sig os.Signal) string {
	if sig == nil {
		return "none"
	}
	s, ok := sig.(syscall.Signal)
	if !ok {
		return sig.String()
	}
	name, ok := signalNames[s]
	if !ok {
		name = s.String()
	}
	return fmt.Sprintf("%s (%d)", name, int(s))
}

// SignalHandler owns the channel registered with the runtime and the
// goroutine that converts received signals into pipeline entries.
type SignalHandler struct {
	pipeline *Pipeline
	sigs     []os.Signal
	ch       chan os.Signal
}

// HandleSignals installs handlers for the given signals (DefaultSignals when
// none are named) and routes each received signal into the pipeline as a
// fatal condition. The handlers are cleared automatically at pipeline entry
// so a fault during termination is handled by the OS default disposition,
// not by us again.
func (p *Pipeline) HandleSignals(sigs ...os.Signal) *SignalHandler {
	if len(sigs) == 0 {
		sigs = DefaultSignals()
	}
	h := &SignalHandler{
		pipeline: p,
		sigs:     sigs,
		ch:       make(chan os.Signal, 1),
	}
	signal.Notify(h.ch, sigs...)
	p.OnEntry(h.Stop)

	go func() {
		for sig := range h.ch {
			p.Terminate(&AbortError{
				Message: "Unhandled signal caught",
				Kind:    KindSignal,
				Signal:  sig,
			})
		}
	}()
	return h
}

// Stop clears the installed handlers. Safe to call more than once.
func (h *SignalHandler) Stop() {
	signal.Reset(h.sigs...)
	signal.Stop(h.ch)
}
