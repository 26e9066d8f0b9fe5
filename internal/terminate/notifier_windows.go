//go:build windows

package terminate

import "errors"

// GroupNotifier is a stub on Windows: process-group signalling is not
// available, so distributed aborts degrade to local termination.
type GroupNotifier struct{}

// AbortGroup reports the missing platform support; the pipeline logs the
// error and proceeds to local termination.
func (n *GroupNotifier) AbortGroup(string) error {
	return errors.New("process group abort not supported on windows")
}
