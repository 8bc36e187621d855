package runner

import (
	"fmt"

	"github.com/CybrosysAssista/Assista-IDE/models"
)

// ProcessSpawnError means the tool could not be started at all
// (binary missing, not executable, bad working directory).
type ProcessSpawnError struct {
	Tool string
	Err  error
}

func (spawnError *ProcessSpawnError) Error() string {
	return fmt.Sprintf("failed to start %q: %v", spawnError.Tool, spawnError.Err)
}

func (spawnError *ProcessSpawnError) Unwrap() error { return spawnError.Err }

func (spawnError *ProcessSpawnError) Kind() models.ErrorKind { return models.ErrorKindProcessSpawn }

// ProcessExitError means the tool ran and exited non-zero.
// Stderr holds the tail of what the process wrote to stderr.
type ProcessExitError struct {
	Tool     string
	ExitCode int
	Stderr   string
}

func (exitError *ProcessExitError) Error() string {
	if exitError.Stderr == "" {
		return fmt.Sprintf("%s exited with code %d", exitError.Tool, exitError.ExitCode)
	}
	return fmt.Sprintf("%s exited with code %d: %s", exitError.Tool, exitError.ExitCode, exitError.Stderr)
}

func (exitError *ProcessExitError) Kind() models.ErrorKind { return models.ErrorKindProcessExit }

// TimeoutError means the stage deadline elapsed and the process was terminated.
type TimeoutError struct {
	Tool     string
	Deadline string
}

func (timeoutError *TimeoutError) Error() string {
	return fmt.Sprintf("%s did not finish within %s and was terminated", timeoutError.Tool, timeoutError.Deadline)
}

func (timeoutError *TimeoutError) Kind() models.ErrorKind { return models.ErrorKindTimeout }

// CanceledError means the caller canceled the run while the process was alive.
type CanceledError struct {
	Tool string
	Err  error
}

func (canceledError *CanceledError) Error() string {
	return fmt.Sprintf("%s was canceled: %v", canceledError.Tool, canceledError.Err)
}

func (canceledError *CanceledError) Unwrap() error { return canceledError.Err }

func (canceledError *CanceledError) Kind() models.ErrorKind { return models.ErrorKindCanceled }
