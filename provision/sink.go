package provision

import "github.com/CybrosysAssista/Assista-IDE/models"

// ProgressSink receives the live output of an Orchestrator.
// OnProgress is called zero or more times per stage, OnResult exactly once per run.
// calls are serialized but not made from one goroutine: while a clone runs, OnProgress
// and OnDiagnostic come from the goroutine draining its output. OnResult comes last,
// from the goroutine that called Run.
type ProgressSink interface {
	OnProgress(stage models.StageName, event models.ProgressEvent)
	OnResult(result models.PipelineResult)
}

// DiagnosticSink is optionally implemented by a ProgressSink that also wants
// the output lines the progress parser did not recognize.
type DiagnosticSink interface {
	OnDiagnostic(stage models.StageName, line string)
}

// SinkFuncs adapts plain functions to ProgressSink and DiagnosticSink. nil fields are skipped.
type SinkFuncs struct {
	Progress   func(stage models.StageName, event models.ProgressEvent)
	Result     func(result models.PipelineResult)
	Diagnostic func(stage models.StageName, line string)
}

func (sink SinkFuncs) OnProgress(stage models.StageName, event models.ProgressEvent) {
	if sink.Progress != nil {
		sink.Progress(stage, event)
	}
}

func (sink SinkFuncs) OnResult(result models.PipelineResult) {
	if sink.Result != nil {
		sink.Result(result)
	}
}

func (sink SinkFuncs) OnDiagnostic(stage models.StageName, line string) {
	if sink.Diagnostic != nil {
		sink.Diagnostic(stage, line)
	}
}
