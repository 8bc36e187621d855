//go:build !unix

package runner

import (
	"errors"
	"os"
	"os/exec"
)

func configureProcessGroup(processCommand *exec.Cmd) {}

// signalProcessGroup has no group semantics here, only the direct child is signaled.
func signalProcessGroup(process *os.Process, force bool) error {
	var errSignal error
	if force {
		errSignal = process.Kill()
	} else {
		errSignal = process.Signal(os.Interrupt)
	}
	if errors.Is(errSignal, os.ErrProcessDone) {
		return nil
	}
	return errSignal
}
