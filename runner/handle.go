package runner

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// lineBufferSize is how many unread lines each stream channel holds before the
// reader goroutine blocks. git progress is bursty, so this is generous.
const lineBufferSize = 256

// stderrTailLines is how many trailing stderr lines are kept for error messages.
const stderrTailLines = 20

// Outcome is the terminal state of a process.
type Outcome struct {
	// ExitCode is the process exit code, -1 when it was killed by a signal
	ExitCode int

	// Signaled is true when the process was terminated by a signal
	Signaled bool

	// Err is set when reading the streams or waiting for the process failed
	// for a reason other than a non-zero exit
	Err error

	// StderrTail holds the last lines the process wrote to stderr
	StderrTail string
}

// HandleConfig is what a backend (local exec, container) provides to build a Handle.
type HandleConfig struct {
	Stdout io.Reader
	Stderr io.Reader

	// Wait blocks until the process exits. it is only called after both
	// streams reached EOF.
	Wait func() (exitCode int, signaled bool, err error)

	// Signal delivers a termination request. force=false asks politely (SIGTERM),
	// force=true kills (SIGKILL). errors for already exited processes are ignored by the caller.
	Signal func(force bool) error

	// KillGrace is how long Cancel waits after the polite signal before forcing
	KillGrace time.Duration
}

// Handle is a live process started by a Runner.
//
// both line channels MUST be drained until they are closed, otherwise the reader
// goroutines block and the process never reaches Done. they close right before Done fires.
type Handle struct {
	stdoutLines chan string
	stderrLines chan string
	done        chan struct{}

	signal    func(force bool) error
	killGrace time.Duration

	cancelOnce sync.Once
	mutex      sync.Mutex
	canceled   bool
	outcome    Outcome
}

// NewHandle wraps the streams and lifecycle funcs of a started process and begins
// reading both streams right away.
func NewHandle(config HandleConfig) *Handle {
	handle := &Handle{
		stdoutLines: make(chan string, lineBufferSize),
		stderrLines: make(chan string, lineBufferSize),
		done:        make(chan struct{}),
		signal:      config.Signal,
		killGrace:   config.KillGrace,
	}
	go handle.supervise(config)
	return handle
}

// supervise reads both streams to EOF, then waits for the process and publishes the outcome.
// cmd.Wait closes the pipes, so it must not run before the reads are finished.
func (handle *Handle) supervise(config HandleConfig) {
	tail := newTailBuffer(stderrTailLines)

	var readers errgroup.Group
	readers.Go(func() error {
		defer close(handle.stdoutLines)
		return pumpLines(config.Stdout, handle.stdoutLines, nil)
	})
	readers.Go(func() error {
		defer close(handle.stderrLines)
		return pumpLines(config.Stderr, handle.stderrLines, tail)
	})
	errRead := readers.Wait()

	exitCode, signaled, errWait := config.Wait()

	outcome := Outcome{
		ExitCode:   exitCode,
		Signaled:   signaled,
		StderrTail: tail.String(),
	}
	if errWait != nil {
		outcome.Err = errWait
	} else if errRead != nil {
		outcome.Err = errRead
	}

	handle.mutex.Lock()
	handle.outcome = outcome
	handle.mutex.Unlock()

	close(handle.done)
}

// pumpLines scans reader with the progress aware splitter and forwards every non-empty line.
func pumpLines(reader io.Reader, lines chan<- string, tail *tailBuffer) error {
	if reader == nil {
		return nil
	}
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	scanner.Split(ScanProgressLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if tail != nil {
			tail.add(line)
		}
		lines <- line
	}
	return scanner.Err()
}

// ScanProgressLines is a bufio.SplitFunc that ends a token at '\n' or '\r'.
// git redraws progress counters in place with a bare carriage return, so splitting
// on newlines only would deliver a whole phase as one giant line at the very end.
func ScanProgressLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if index := bytes.IndexAny(data, "\r\n"); index >= 0 {
		return index + 1, data[:index], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Stdout returns the stdout line stream.
func (handle *Handle) Stdout() <-chan string { return handle.stdoutLines }

// Stderr returns the stderr line stream. git writes its progress here.
func (handle *Handle) Stderr() <-chan string { return handle.stderrLines }

// Done is closed exactly once, after the process exited and both streams closed.
func (handle *Handle) Done() <-chan struct{} { return handle.done }

// Outcome returns the terminal state. only meaningful after Done is closed.
func (handle *Handle) Outcome() Outcome {
	handle.mutex.Lock()
	defer handle.mutex.Unlock()
	return handle.outcome
}

// Canceled reports whether CancelAsync or Cancel was called on this handle.
func (handle *Handle) Canceled() bool {
	handle.mutex.Lock()
	defer handle.mutex.Unlock()
	return handle.canceled
}

// CancelAsync sends the polite termination signal before returning and schedules the
// forced kill after the grace period. calling it more than once, or after the process
// already exited, is a no-op.
func (handle *Handle) CancelAsync() {
	handle.cancelOnce.Do(func() {
		select {
		case <-handle.done:
			return
		default:
		}

		handle.mutex.Lock()
		handle.canceled = true
		handle.mutex.Unlock()

		if handle.signal == nil {
			return
		}
		_ = handle.signal(false)

		go func() {
			graceTimer := time.NewTimer(handle.killGrace)
			defer graceTimer.Stop()
			select {
			case <-handle.done:
			case <-graceTimer.C:
				_ = handle.signal(true)
			}
		}()
	})
}

// Cancel terminates the process and blocks until it has exited.
func (handle *Handle) Cancel() Outcome {
	handle.CancelAsync()
	<-handle.done
	return handle.Outcome()
}

// tailBuffer keeps the last N lines written to it.
type tailBuffer struct {
	mutex sync.Mutex
	lines []string
	limit int
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (buffer *tailBuffer) add(line string) {
	buffer.mutex.Lock()
	defer buffer.mutex.Unlock()
	buffer.lines = append(buffer.lines, line)
	if len(buffer.lines) > buffer.limit {
		buffer.lines = buffer.lines[len(buffer.lines)-buffer.limit:]
	}
}

func (buffer *tailBuffer) String() string {
	buffer.mutex.Lock()
	defer buffer.mutex.Unlock()
	return strings.Join(buffer.lines, "\n")
}

// ForEachLine drains both streams, calling onStdout / onStderr for each line
// (either may be nil), and returns once both are closed.
func (handle *Handle) ForEachLine(onStdout, onStderr func(line string)) {
	stdout, stderr := handle.stdoutLines, handle.stderrLines
	for stdout != nil || stderr != nil {
		select {
		case line, ok := <-stdout:
			if !ok {
				stdout = nil
				continue
			}
			if onStdout != nil {
				onStdout(line)
			}
		case line, ok := <-stderr:
			if !ok {
				stderr = nil
				continue
			}
			if onStderr != nil {
				onStderr(line)
			}
		}
	}
}
