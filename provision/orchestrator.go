// Package provision runs the provisioning pipeline: it resolves branches, clones each stage
// into a private staging directory, validates and normalizes the result, commits it under
// the destination root and reports weighted progress to a sink.
package provision

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/CybrosysAssista/Assista-IDE/models"
	"github.com/CybrosysAssista/Assista-IDE/progress"
	"github.com/CybrosysAssista/Assista-IDE/runner"
)

const tracerName = "github.com/CybrosysAssista/Assista-IDE/provision"

// environmentDirName is the committed name of the environment stage under the root,
// and the folder of the environment repository that holds it
const environmentDirName = "venv"

// State is the lifecycle state of an Orchestrator.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateAdvancing State = "advancing"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Repositories are the two fixed upstream URLs.
type Repositories struct {
	SourceURL      string
	EnvironmentURL string
}

// StageSettings are the per-stage knobs. a zero Deadline disables the timeout of that stage.
type StageSettings struct {
	Deadline time.Duration
	Weight   int
}

// Dependencies groups everything an Orchestrator needs besides the request.
type Dependencies struct {
	Staging      *StagingArea
	Repositories Repositories

	Source      StageSettings
	Environment StageSettings

	// LogWriter receives the step log and the raw clone output of the run, nil discards it
	LogWriter io.Writer

	// SkipManifest disables writing the manifest into the destination root
	SkipManifest bool

	// Now is the clock, time.Now when nil
	Now func() time.Time
}

// plannedStage is a fully resolved stage, built before anything is spawned.
type plannedStage struct {
	spec      models.CloneSpec
	finalPath string
	deadline  time.Duration
	layout    Layout

	// overall percent range this stage maps into
	rangeStart, rangeEnd int
}

// Orchestrator runs one ProvisionRequest. it is single use: Run executes the pipeline
// once and every later call returns the same result.
type Orchestrator struct {
	request      models.ProvisionRequest
	dependencies Dependencies
	sink         ProgressSink
	now          func() time.Time

	runOnce sync.Once
	result  models.PipelineResult

	mutex        sync.Mutex
	state        State
	currentStage int
	overall      int
}

// NewOrchestrator constructs an Orchestrator. a nil sink discards everything.
func NewOrchestrator(request models.ProvisionRequest, dependencies Dependencies, sink ProgressSink) *Orchestrator {
	if sink == nil {
		sink = SinkFuncs{}
	}
	now := dependencies.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		request:      request,
		dependencies: dependencies,
		sink:         sink,
		now:          now,
		state:        StatePending,
		currentStage: -1,
	}
}

// State returns the current state and the index of the running (or last run) stage, -1 before any.
func (orchestrator *Orchestrator) State() (State, int) {
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	return orchestrator.state, orchestrator.currentStage
}

func (orchestrator *Orchestrator) setState(state State, stageIndex int) {
	orchestrator.mutex.Lock()
	defer orchestrator.mutex.Unlock()
	orchestrator.state = state
	orchestrator.currentStage = stageIndex
}

// Run executes the pipeline and returns its terminal result. the sink's OnResult
// is called exactly once, before the first Run returns. every call, and the sink,
// gets its own copy of the stored result.
func (orchestrator *Orchestrator) Run(ctx context.Context) models.PipelineResult {
	orchestrator.runOnce.Do(func() {
		pipelinesInFlightGauge.Inc()
		defer pipelinesInFlightGauge.Dec()

		orchestrator.result = orchestrator.execute(ctx)
		orchestrator.sink.OnResult(orchestrator.result.Clone())
	})
	return orchestrator.result.Clone()
}

func (orchestrator *Orchestrator) execute(ctx context.Context) models.PipelineResult {
	log := clog.FromContext(ctx).With("source_version", orchestrator.request.SourceVersion)
	ctx = clog.WithLogger(ctx, log)

	orchestrator.setState(StateRunning, -1)
	orchestrator.logStep("provisioning %s (runtime variant %q) into %s",
		orchestrator.request.SourceVersion, orchestrator.request.RuntimeVariant, orchestrator.request.DestinationRoot)

	// ===== resolve every stage before spawning anything
	stages, errPlan := orchestrator.plan()
	if errPlan != nil {
		orchestrator.logStep("FAILED: %v", errPlan)
		log.Warn("provisioning request rejected", "error", errPlan)
		orchestrator.setState(StateFailed, -1)
		return failedResult(errPlan, nil, nil, nil)
	}

	finalPaths := map[models.StageName]string{}
	commits := map[models.StageName]string{}
	var outcomes []models.StageOutcome

	for stageIndex, stage := range stages {
		// cancel between stages, before the next clone starts
		if ctx.Err() != nil {
			errCanceled := &runner.CanceledError{Tool: "pipeline", Err: context.Cause(ctx)}
			orchestrator.logStep("FAILED: %v", errCanceled)
			orchestrator.setState(StateFailed, stageIndex)
			return failedResult(errCanceled, finalPaths, commits, outcomes)
		}

		orchestrator.setState(StateRunning, stageIndex)
		outcome, errStage := orchestrator.runStage(ctx, stage)
		outcomes = append(outcomes, outcome)
		if errStage != nil {
			orchestrator.setState(StateFailed, stageIndex)
			return failedResult(errStage, finalPaths, commits, outcomes)
		}

		finalPaths[stage.spec.Stage] = outcome.FinalPath
		if outcome.Commit != "" {
			commits[stage.spec.Stage] = outcome.Commit
		}
		if stageIndex < len(stages)-1 {
			orchestrator.setState(StateAdvancing, stageIndex)
		}
	}

	if !orchestrator.dependencies.SkipManifest {
		errManifest := WriteManifest(orchestrator.request.DestinationRoot, Manifest{
			SourceVersion:  orchestrator.request.SourceVersion,
			RuntimeVariant: orchestrator.request.RuntimeVariant,
			ProvisionedAt:  orchestrator.now().UTC(),
			Stages:         outcomes,
		})
		if errManifest != nil {
			log.Warn("failed to write manifest (non-fatal)", "error", errManifest)
		}
	}

	orchestrator.logStep("provisioning succeeded")
	orchestrator.setState(StateSucceeded, len(stages)-1)
	return models.PipelineResult{
		Success:    true,
		FinalPaths: finalPaths,
		Commits:    commits,
		Stages:     outcomes,
	}
}

// plan validates the request and resolves branches, paths and progress ranges of all stages.
func (orchestrator *Orchestrator) plan() ([]plannedStage, error) {
	request := orchestrator.request
	if errShape := validateRequestShape(request); errShape != nil {
		return nil, errShape
	}

	sourceBranch, errSource := ResolveSourceBranch(request.SourceVersion)
	if errSource != nil {
		return nil, errSource
	}
	var environmentBranch string
	if request.IncludeEnvironment {
		branch, errEnvironment := ResolveEnvironmentBranch(request.SourceVersion, request.RuntimeVariant)
		if errEnvironment != nil {
			return nil, errEnvironment
		}
		environmentBranch = branch
	}

	if errRoot := validateDestinationRoot(request.DestinationRoot); errRoot != nil {
		return nil, errRoot
	}

	stages := []plannedStage{{
		spec: models.CloneSpec{
			Stage:         models.StageSource,
			RepositoryURL: orchestrator.dependencies.Repositories.SourceURL,
			Branch:        sourceBranch,
			Depth:         1,
		},
		finalPath: filepath.Join(request.DestinationRoot, request.SourceVersion),
		deadline:  orchestrator.dependencies.Source.Deadline,
		layout:    sourceLayout,
	}}
	weights := []int{orchestrator.dependencies.Source.Weight}

	if request.IncludeEnvironment {
		stages = append(stages, plannedStage{
			spec: models.CloneSpec{
				Stage:         models.StageEnvironment,
				RepositoryURL: orchestrator.dependencies.Repositories.EnvironmentURL,
				Branch:        environmentBranch,
				Depth:         1,
				Subdirectory:  environmentDirName,
			},
			finalPath: filepath.Join(request.DestinationRoot, environmentDirName),
			deadline:  orchestrator.dependencies.Environment.Deadline,
			layout:    environmentLayout,
		})
		weights = append(weights, orchestrator.dependencies.Environment.Weight)
	}

	ranges := weightedRanges(weights)
	for index := range stages {
		stages[index].rangeStart = ranges[index][0]
		stages[index].rangeEnd = ranges[index][1]
	}
	return stages, nil
}

// weightedRanges splits 0..100 into consecutive ranges proportional to weights.
// non-positive weights count as 1. the last range always ends at 100.
func weightedRanges(weights []int) [][2]int {
	total := 0
	for index, weight := range weights {
		if weight <= 0 {
			weights[index] = 1
		}
		total += weights[index]
	}

	ranges := make([][2]int, len(weights))
	cumulative := 0
	for index, weight := range weights {
		start := cumulative * 100 / total
		cumulative += weight
		end := cumulative * 100 / total
		if index == len(weights)-1 {
			end = 100
		}
		ranges[index] = [2]int{start, end}
	}
	return ranges
}

// runStage runs one planned stage inside its own span and returns its outcome.
func (orchestrator *Orchestrator) runStage(ctx context.Context, stage plannedStage) (models.StageOutcome, error) {
	stageName := stage.spec.Stage
	log := clog.FromContext(ctx).With("stage", stageName, "branch", stage.spec.Branch)
	ctx = clog.WithLogger(ctx, log)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "provision.stage", trace.WithAttributes(
		attribute.String("stage", string(stageName)),
		attribute.String("branch", stage.spec.Branch),
		attribute.String("repository", stage.spec.RepositoryURL),
	))
	defer span.End()

	orchestrator.logStep("===== %s: cloning %s (branch %s)", stageName, stage.spec.RepositoryURL, stage.spec.Branch)
	log.Info("stage started", "final_path", stage.finalPath, "deadline", stage.deadline.String())

	startedAt := orchestrator.now()
	stageResult, errStage := orchestrator.dependencies.Staging.Stage(ctx, StageRequest{
		Spec:      stage.spec,
		FinalPath: stage.finalPath,
		Deadline:  stage.deadline,
		Prepare: func(ctx context.Context, stagedPath string) error {
			warnings, errNormalize := NormalizePermissions(ctx, stagedPath, stage.layout)
			for _, warning := range warnings {
				orchestrator.logStep("WARNING: %s: %s", stageName, warning)
			}
			return errNormalize
		},
		OnProgress: func(event models.ProgressEvent) {
			orchestrator.forwardProgress(stage, event)
		},
		OnDiagnostic: func(line string) {
			if diagnosticSink, ok := orchestrator.sink.(DiagnosticSink); ok {
				diagnosticSink.OnDiagnostic(stageName, line)
			}
		},
		RawOutput: orchestrator.dependencies.LogWriter,
	})
	duration := orchestrator.now().Sub(startedAt)
	cleanupFailureCounter.Add(float64(len(stageResult.CleanupErrors)))

	outcome := models.StageOutcome{
		Stage:    stageName,
		Branch:   stage.spec.Branch,
		Duration: duration,
	}

	if errStage != nil {
		errorKind := models.KindOf(errStage)
		outcome.ErrorKind = errorKind
		outcome.ErrorMessage = errStage.Error()

		span.RecordError(errStage)
		span.SetStatus(codes.Error, errStage.Error())
		stageDurationHistogram.WithLabelValues(string(stageName), "failure").Observe(duration.Seconds())
		stageOutcomeCounter.WithLabelValues(string(stageName), string(errorKind)).Inc()

		orchestrator.logStep("FAILED: %s: %v", stageName, errStage)
		log.Error("stage failed", "error_kind", errorKind, "error", errStage)
		return outcome, errStage
	}

	outcome.Success = true
	outcome.FinalPath = stageResult.FinalPath
	outcome.Commit = stageResult.Clone.Commit

	span.SetAttributes(attribute.String("commit", outcome.Commit))
	span.SetStatus(codes.Ok, "")
	stageDurationHistogram.WithLabelValues(string(stageName), "success").Observe(duration.Seconds())
	stageOutcomeCounter.WithLabelValues(string(stageName), "").Inc()

	orchestrator.logStep("%s committed to %s in %s", stageName, outcome.FinalPath, duration.Round(time.Millisecond))
	return outcome, nil
}

// forwardProgress maps a stage-local event into the stage's overall range and forwards it.
// the overall percent only ever moves forward.
func (orchestrator *Orchestrator) forwardProgress(stage plannedStage, event models.ProgressEvent) {
	stageCompletion := progress.StageCompletion(event)
	overall := stage.rangeStart + (stage.rangeEnd-stage.rangeStart)*stageCompletion/100

	orchestrator.mutex.Lock()
	if overall > orchestrator.overall {
		orchestrator.overall = overall
	}
	event.Overall = orchestrator.overall
	orchestrator.mutex.Unlock()

	orchestrator.sink.OnProgress(stage.spec.Stage, event)
}

// logStep writes a timestamped line to the run log, if there is one.
func (orchestrator *Orchestrator) logStep(format string, args ...any) {
	if orchestrator.dependencies.LogWriter == nil {
		return
	}
	message := fmt.Sprintf(format, args...)
	fmt.Fprintf(orchestrator.dependencies.LogWriter, "[%s] %s\n", orchestrator.now().UTC().Format(time.RFC3339), message)
}

// failedResult builds the terminal result of a failed run. stages committed before the
// failure stay in FinalPaths.
func failedResult(err error, finalPaths, commits map[models.StageName]string, outcomes []models.StageOutcome) models.PipelineResult {
	if finalPaths == nil {
		finalPaths = map[models.StageName]string{}
	}
	return models.PipelineResult{
		Success:      false,
		FinalPaths:   finalPaths,
		Commits:      commits,
		ErrorKind:    models.KindOf(err),
		ErrorMessage: err.Error(),
		Stages:       outcomes,
	}
}
