//go:build unix

package runner

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureProcessGroup makes the child the leader of a new process group.
func configureProcessGroup(processCommand *exec.Cmd) {
	processCommand.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalProcessGroup sends SIGTERM (or SIGKILL when forced) to the whole group.
// a negative pid addresses the group whose id equals the leader's pid.
func signalProcessGroup(process *os.Process, force bool) error {
	signal := unix.SIGTERM
	if force {
		signal = unix.SIGKILL
	}
	errKill := unix.Kill(-process.Pid, signal)
	if errors.Is(errKill, unix.ESRCH) {
		return nil
	}
	return errKill
}
