package runner

import (
	"context"
	"time"
)

// Verdict is how a guarded wait ended.
type Verdict int

const (
	// Exited means the process finished on its own before the deadline
	Exited Verdict = iota
	// TimedOut means the deadline fired first and termination was initiated
	TimedOut
	// Canceled means ctx was canceled first and termination was initiated
	Canceled
)

func (verdict Verdict) String() string {
	switch verdict {
	case Exited:
		return "exited"
	case TimedOut:
		return "timed_out"
	case Canceled:
		return "canceled"
	}
	return "unknown"
}

// Guard races handle against a wall clock deadline and ctx.
//
// when the deadline or ctx wins, the handle's async cancel is triggered (SIGTERM is
// already sent when Guard returns, SIGKILL follows after the grace period) and the
// matching verdict is returned without waiting for the process to be gone.
// a deadline <= 0 disables the timer.
func Guard(ctx context.Context, handle *Handle, deadline time.Duration) Verdict {
	// a nil channel blocks forever in select, which is exactly "no timer"
	var timeoutChannel <-chan time.Time
	if deadline > 0 {
		deadlineTimer := time.NewTimer(deadline)
		defer deadlineTimer.Stop()
		timeoutChannel = deadlineTimer.C
	}

	select {
	case <-handle.Done():
		return Exited
	case <-timeoutChannel:
		handle.CancelAsync()
		return TimedOut
	case <-ctx.Done():
		handle.CancelAsync()
		return Canceled
	}
}

// Classify turns a verdict and the final outcome into the typed error of the stage,
// or nil when the process exited cleanly with code 0.
func Classify(ctx context.Context, tool string, verdict Verdict, deadline time.Duration, outcome Outcome) error {
	switch verdict {
	case TimedOut:
		return &TimeoutError{Tool: tool, Deadline: deadline.String()}
	case Canceled:
		return &CanceledError{Tool: tool, Err: context.Cause(ctx)}
	}
	if outcome.Err != nil {
		return &ProcessExitError{Tool: tool, ExitCode: outcome.ExitCode, Stderr: outcome.Err.Error()}
	}
	if outcome.ExitCode != 0 {
		return &ProcessExitError{Tool: tool, ExitCode: outcome.ExitCode, Stderr: outcome.StderrTail}
	}
	return nil
}
