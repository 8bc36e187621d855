// Package runner starts external tools and exposes them as Handles: line streams,
// a single-fire terminal signal and a cancel path that is guaranteed to end the process.
// it also holds the TimeoutGuard that races a Handle against a deadline.
package runner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/chainguard-dev/clog"
)

// Command is one invocation of an external tool.
type Command struct {
	Tool string
	Args []string

	// Dir is the working directory, empty means the current one
	Dir string

	// Env is appended to the parent environment
	Env []string
}

// Runner starts commands. the local exec backend and the container backend
// (docker.CloneContainerRunner) both implement it.
type Runner interface {
	Start(ctx context.Context, command Command) (*Handle, error)
}

// ExecRunner starts commands as local child processes, each in its own process group
// so a cancel reaches the helpers git spawns (git-remote-https, index-pack) too.
type ExecRunner struct {
	killGrace time.Duration
}

// ExecRunnerConfig mirrors the runner fields of config.Config.
type ExecRunnerConfig struct {
	// KillGrace is the time between SIGTERM and SIGKILL on cancel
	KillGrace time.Duration
}

// NewExecRunner constructs an ExecRunner.
func NewExecRunner(config ExecRunnerConfig) *ExecRunner {
	if config.KillGrace <= 0 {
		config.KillGrace = 5 * time.Second
	}
	return &ExecRunner{killGrace: config.KillGrace}
}

// Start spawns the command. a binary that cannot be found or started is
// reported as *ProcessSpawnError and nothing is left running.
func (execRunner *ExecRunner) Start(ctx context.Context, command Command) (*Handle, error) {
	log := clog.FromContext(ctx)

	// resolving the binary up front turns "not installed" into a clear spawn error
	// instead of an opaque fork/exec failure
	binaryPath, errLookPath := exec.LookPath(command.Tool)
	if errLookPath != nil {
		return nil, &ProcessSpawnError{Tool: command.Tool, Err: errLookPath}
	}

	// exec.Command and not exec.CommandContext: termination goes through the
	// Handle so it can hit the whole process group with a grace period
	processCommand := exec.Command(binaryPath, command.Args...)
	processCommand.Dir = command.Dir
	processCommand.Env = append(os.Environ(), command.Env...)
	configureProcessGroup(processCommand)

	stdoutPipe, errStdout := processCommand.StdoutPipe()
	if errStdout != nil {
		return nil, &ProcessSpawnError{Tool: command.Tool, Err: errStdout}
	}
	stderrPipe, errStderr := processCommand.StderrPipe()
	if errStderr != nil {
		return nil, &ProcessSpawnError{Tool: command.Tool, Err: errStderr}
	}

	if errStart := processCommand.Start(); errStart != nil {
		return nil, &ProcessSpawnError{Tool: command.Tool, Err: errStart}
	}

	processID := processCommand.Process.Pid
	log.Debug("process started", "tool", command.Tool, "pid", processID, "dir", command.Dir)

	return NewHandle(HandleConfig{
		Stdout: stdoutPipe,
		Stderr: stderrPipe,
		Wait: func() (int, bool, error) {
			return exitStatus(processCommand.Wait())
		},
		Signal: func(force bool) error {
			return signalProcessGroup(processCommand.Process, force)
		},
		KillGrace: execRunner.killGrace,
	}), nil
}

// exitStatus converts the error of cmd.Wait into (exit code, signaled, error).
// a non-zero exit is not an error here, the caller decides what it means.
func exitStatus(errWait error) (int, bool, error) {
	if errWait == nil {
		return 0, false, nil
	}
	var exitError *exec.ExitError
	if errors.As(errWait, &exitError) {
		exitCode := exitError.ExitCode()
		return exitCode, exitCode == -1, nil
	}
	return -1, false, errWait
}
