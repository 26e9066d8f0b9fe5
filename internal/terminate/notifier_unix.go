//go:build unix

package terminate

import (
	"fmt"
	"syscall"
)

// GroupNotifier aborts a cooperating process group by signalling every
// member. It is the distributed-coordination hook for launchers that run the
// group under one process group id (the usual arrangement for job launchers).
type GroupNotifier struct {
	// Signal sent to the group; SIGTERM when zero.
	Signal syscall.Signal
}

// AbortGroup signals the whole process group of the current process. The
// calling process excludes itself from graceful handling: the pipeline kills
// it immediately afterwards.
func (n *GroupNotifier) AbortGroup(reason string) error {
	_ = reason
	sig := n.Signal
	if sig == 0 {
		sig = syscall.SIGTERM
	}
	pgid, err := syscall.Getpgid(0)
	if err != nil {
		return fmt.Errorf("resolving process group: %w", err)
	}
	if err := syscall.Kill(-pgid, sig); err != nil {
		return fmt.Errorf("signalling process group %d: %w", pgid, err)
	}
	return nil
}
