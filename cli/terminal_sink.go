package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/CybrosysAssista/Assista-IDE/models"
)

// progressBarWidth is the number of cells of the overall bar
const progressBarWidth = 30

// terminalSink prints orchestrator progress for a human. on a terminal the progress
// line is redrawn in place, otherwise every event is its own line.
type terminalSink struct {
	mutex       sync.Mutex
	output      io.Writer
	redraw      bool
	verbose     bool
	linePending bool
}

func newTerminalSink(output io.Writer, redraw, verbose bool) *terminalSink {
	return &terminalSink{output: output, redraw: redraw, verbose: verbose}
}

func (sink *terminalSink) OnProgress(stage models.StageName, event models.ProgressEvent) {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()

	line := formatProgressLine(stage, event)
	if sink.redraw {
		fmt.Fprintf(sink.output, "\r\033[K%s", line)
		sink.linePending = true
		return
	}
	fmt.Fprintln(sink.output, line)
}

// OnDiagnostic only prints with --verbose, git writes plenty of chatter.
func (sink *terminalSink) OnDiagnostic(stage models.StageName, line string) {
	if !sink.verbose {
		return
	}
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	sink.endPendingLine()
	fmt.Fprintf(sink.output, "[%s] %s\n", stage, line)
}

func (sink *terminalSink) OnResult(result models.PipelineResult) {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	sink.endPendingLine()

	for _, outcome := range result.Stages {
		if outcome.Success {
			fmt.Fprintf(sink.output, "%-12s ok      %s (branch %s, %s)\n", outcome.Stage, outcome.FinalPath, outcome.Branch, shortCommit(outcome.Commit))
			continue
		}
		fmt.Fprintf(sink.output, "%-12s failed  %s: %s\n", outcome.Stage, outcome.ErrorKind, outcome.ErrorMessage)
	}
	if result.Success {
		fmt.Fprintln(sink.output, "provisioning succeeded")
		return
	}
	if len(result.Stages) == 0 {
		fmt.Fprintf(sink.output, "provisioning rejected (%s): %s\n", result.ErrorKind, result.ErrorMessage)
	}
}

func (sink *terminalSink) endPendingLine() {
	if sink.linePending {
		fmt.Fprintln(sink.output)
		sink.linePending = false
	}
}

// formatProgressLine renders eg `[####------] 42% source receive 65%`.
func formatProgressLine(stage models.StageName, event models.ProgressEvent) string {
	filled := event.Overall * progressBarWidth / 100
	bar := strings.Repeat("#", filled) + strings.Repeat("-", progressBarWidth-filled)
	return fmt.Sprintf("[%s] %3d%% %s %s %d%%", bar, event.Overall, stage, event.Phase, event.Percent)
}

func shortCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	if commit == "" {
		return "unknown commit"
	}
	return commit
}
