//go:build unix

package terminate

import (
	"os"
	"os/signal"
	"syscall"
)

// defaultKill terminates abnormally by re-raising SIGABRT with the default
// disposition restored, so the OS records an abort (and a core dump where
// enabled) rather than a plain exit code.
func defaultKill() {
	signal.Reset(syscall.SIGABRT)
	_ = syscall.Kill(os.Getpid(), syscall.SIGABRT)
	// The signal is delivered asynchronously; never return to the caller.
	select {}
}
