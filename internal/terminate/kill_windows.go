//go:build windows

package terminate

import "os"

// defaultKill terminates the process. Windows has no SIGABRT re-raise; exit
// code 3 matches the C runtime's abort() convention.
func defaultKill() {
	os.Exit(3)
}
