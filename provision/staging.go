package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"

	"github.com/CybrosysAssista/Assista-IDE/models"
	"github.com/CybrosysAssista/Assista-IDE/progress"
	"github.com/CybrosysAssista/Assista-IDE/runner"
)

const (
	// stagingPrefix names the private clone directory of one stage invocation
	stagingPrefix = ".provision-staging-"

	// asidePrefix names a previous final directory while it is being replaced
	asidePrefix = ".provision-old-"

	// cloneDirName is the clone target inside a staging directory
	cloneDirName = "clone"
)

// StagingArea clones into a private directory next to the final path and
// exposes the result under the final name with a single rename.
//
// the staging directory lives in the same parent as the final path, so the rename never
// crosses a filesystem boundary and can not degrade into a copy.
type StagingArea struct {
	runner    runner.Runner
	gitBinary string
	extraEnv  []string
	throttle  time.Duration
	now       func() time.Time
}

// StagingAreaConfig mirrors the relevant fields of config.Config.
type StagingAreaConfig struct {
	GitBinary string

	// ExtraEnv is appended to the clone process environment ("KEY=VALUE")
	ExtraEnv []string

	// ProgressThrottle is passed to the progress parser
	ProgressThrottle time.Duration

	// Now is the clock of the progress parser, time.Now when nil
	Now func() time.Time
}

// NewStagingArea constructs a StagingArea on top of a process runner.
func NewStagingArea(processRunner runner.Runner, config StagingAreaConfig) *StagingArea {
	if config.GitBinary == "" {
		config.GitBinary = "git"
	}
	return &StagingArea{
		runner:    processRunner,
		gitBinary: config.GitBinary,
		extraEnv:  config.ExtraEnv,
		throttle:  config.ProgressThrottle,
		now:       config.Now,
	}
}

// StageRequest is one stage invocation.
type StageRequest struct {
	// Spec describes the clone. TargetPath is ignored, the staging area picks it.
	Spec models.CloneSpec

	// FinalPath is where the committed tree ends up. a pre-existing directory is
	// replaced, the caller already has consent to overwrite it.
	FinalPath string

	// Deadline bounds the clone process, zero means no deadline
	Deadline time.Duration

	// Prepare runs on the fully populated staged tree right before the commit.
	// an error aborts the stage.
	Prepare func(ctx context.Context, stagedPath string) error

	// OnProgress and OnDiagnostic receive parsed events and unrecognized lines.
	// they are called from a single goroutine.
	OnProgress   func(event models.ProgressEvent)
	OnDiagnostic func(line string)

	// RawOutput receives every output line of the clone, nil discards them
	RawOutput io.Writer
}

// StageResult describes a committed stage.
type StageResult struct {
	FinalPath string
	Clone     CloneInfo

	// CleanupErrors are best-effort purge failures. they never fail the stage.
	CleanupErrors []error
}

// Stage clones, validates, prepares and commits. on any failure the staging directory
// is purged and FinalPath is left as it was before the call, never half written.
func (stagingArea *StagingArea) Stage(ctx context.Context, request StageRequest) (result StageResult, err error) {
	log := clog.FromContext(ctx).With("stage", request.Spec.Stage)

	destinationRoot := filepath.Dir(request.FinalPath)

	// ===== private staging directory, unique per invocation
	stagingDir, errMkdir := os.MkdirTemp(destinationRoot, stagingPrefix+"*")
	if errMkdir != nil {
		return StageResult{}, &FilesystemError{Operation: "create staging directory in", Path: destinationRoot, Err: errMkdir}
	}

	// the staging directory goes away on every path, success included:
	// after a successful commit it only holds leftovers (the .git of a subdirectory commit)
	defer func() {
		if errRemove := os.RemoveAll(stagingDir); errRemove != nil {
			log.Warn("failed to remove staging directory (non-fatal)", "path", stagingDir, "error", errRemove)
			result.CleanupErrors = append(result.CleanupErrors, errRemove)
		}
	}()

	spec := request.Spec
	spec.TargetPath = filepath.Join(stagingDir, cloneDirName)

	// ===== clone
	errClone := stagingArea.clone(ctx, spec, request)
	if errClone != nil {
		return StageResult{}, errClone
	}

	// ===== validate the committed source is a non-empty directory
	committedSource := spec.TargetPath
	if spec.Subdirectory != "" {
		committedSource = filepath.Join(spec.TargetPath, filepath.FromSlash(spec.Subdirectory))
	}
	if errValidate := validateNonEmptyDir(committedSource); errValidate != nil {
		return StageResult{}, errValidate
	}

	cloneInfo, errInspect := inspectClone(spec.TargetPath)
	if errInspect != nil {
		log.Warn("failed to inspect clone (non-fatal)", "error", errInspect)
	}

	if request.Prepare != nil {
		if errPrepare := request.Prepare(ctx, committedSource); errPrepare != nil {
			return StageResult{}, errPrepare
		}
	}

	// last chance to honor a cancel. past this point the commit is a couple of
	// renames and runs to completion
	if ctx.Err() != nil {
		return StageResult{}, &runner.CanceledError{Tool: "commit", Err: context.Cause(ctx)}
	}

	// ===== commit
	cleanupErrors, errCommit := commitDirectory(ctx, committedSource, request.FinalPath)
	if errCommit != nil {
		return StageResult{}, errCommit
	}

	log.Info("stage committed", "final_path", request.FinalPath, "commit", cloneInfo.Commit)
	return StageResult{
		FinalPath:     request.FinalPath,
		Clone:         cloneInfo,
		CleanupErrors: cleanupErrors,
	}, nil
}

// clone runs git under the timeout guard while a single goroutine drains both output
// streams into the parser, the raw log and the callbacks.
func (stagingArea *StagingArea) clone(ctx context.Context, spec models.CloneSpec, request StageRequest) error {
	command := runner.CloneCommand(stagingArea.gitBinary, spec, stagingArea.extraEnv)
	command.Dir = filepath.Dir(spec.TargetPath)

	handle, errStart := stagingArea.runner.Start(ctx, command)
	if errStart != nil {
		return errStart
	}

	parser := progress.NewParser(spec.Stage, progress.Config{Throttle: stagingArea.throttle, Now: stagingArea.now})
	emit := func(events []models.ProgressEvent) {
		if request.OnProgress == nil {
			return
		}
		for _, event := range events {
			request.OnProgress(event)
		}
	}
	writeRaw := func(line string) {
		if request.RawOutput != nil {
			fmt.Fprintf(request.RawOutput, "[%s] %s\n", spec.Stage, line)
		}
	}

	drained := make(chan struct{})
	go func() {
		defer close(drained)
		handle.ForEachLine(
			writeRaw,
			func(line string) {
				writeRaw(line)
				events, recognized := parser.Feed(line)
				if !recognized && request.OnDiagnostic != nil {
					request.OnDiagnostic(line)
				}
				emit(events)
			},
		)
	}()

	verdict := runner.Guard(ctx, handle, request.Deadline)

	// the process must be gone before anything is removed under it
	<-handle.Done()
	<-drained

	outcome := handle.Outcome()
	exitCode := outcome.ExitCode
	if verdict != runner.Exited {
		exitCode = -1
	}
	emit(parser.Finish(exitCode))

	return runner.Classify(ctx, command.Tool, verdict, request.Deadline, outcome)
}

// validateNonEmptyDir fails with *ValidationError unless path is a directory with at least one entry.
func validateNonEmptyDir(path string) error {
	info, errStat := os.Stat(path)
	if errors.Is(errStat, os.ErrNotExist) {
		return &ValidationError{Path: filepath.Dir(path), Missing: []string{filepath.Base(path)}}
	}
	if errStat != nil {
		return &FilesystemError{Operation: "stat", Path: path, Err: errStat}
	}
	if !info.IsDir() {
		return &ValidationError{Path: path, Reason: "clone result is not a directory"}
	}

	directory, errOpen := os.Open(path)
	if errOpen != nil {
		return &FilesystemError{Operation: "open", Path: path, Err: errOpen}
	}
	defer directory.Close()

	if _, errRead := directory.Readdirnames(1); errors.Is(errRead, io.EOF) {
		return &ValidationError{Path: path, Reason: "clone produced an empty directory"}
	}
	return nil
}

// commitDirectory exposes staged under finalPath.
//
// without a previous finalPath this is a single rename. with one, the previous tree is
// renamed aside first, the staged tree renamed in, and the aside copy removed. when the
// second rename fails the aside copy is renamed back, so finalPath is either the old
// complete tree or the new complete tree at every point.
func commitDirectory(ctx context.Context, staged, finalPath string) (cleanupErrors []error, err error) {
	log := clog.FromContext(ctx)

	_, errLstat := os.Lstat(finalPath)
	if errors.Is(errLstat, os.ErrNotExist) {
		if errRename := os.Rename(staged, finalPath); errRename != nil {
			return nil, &FilesystemError{Operation: "rename staged tree to", Path: finalPath, Err: errRename}
		}
		return nil, nil
	}
	if errLstat != nil {
		return nil, &FilesystemError{Operation: "stat", Path: finalPath, Err: errLstat}
	}

	asidePath := filepath.Join(filepath.Dir(finalPath), asidePrefix+uuid.NewString())
	if errAside := os.Rename(finalPath, asidePath); errAside != nil {
		return nil, &FilesystemError{Operation: "move previous tree aside from", Path: finalPath, Err: errAside}
	}

	if errRename := os.Rename(staged, finalPath); errRename != nil {
		if errRestore := os.Rename(asidePath, finalPath); errRestore != nil {
			// the previous tree survives under the aside name, the sweeper will not touch
			// it until it is older than its max age
			log.Error("failed to restore previous tree", "aside_path", asidePath, "final_path", finalPath, "error", errRestore)
		}
		return nil, &FilesystemError{Operation: "rename staged tree to", Path: finalPath, Err: errRename}
	}

	if errRemove := os.RemoveAll(asidePath); errRemove != nil {
		log.Warn("failed to remove previous tree (non-fatal)", "path", asidePath, "error", errRemove)
		cleanupErrors = append(cleanupErrors, errRemove)
	}
	return cleanupErrors, nil
}
