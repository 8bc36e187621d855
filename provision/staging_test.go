//go:build unix

package provision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CybrosysAssista/Assista-IDE/models"
	"github.com/CybrosysAssista/Assista-IDE/runner"
)

func sourceStageRequest(root string) StageRequest {
	return StageRequest{
		Spec: models.CloneSpec{
			Stage:         models.StageSource,
			RepositoryURL: testSourceURL,
			Branch:        "17.0",
			Depth:         1,
		},
		FinalPath: filepath.Join(root, "17.0"),
		Deadline:  30 * time.Second,
	}
}

func TestStageCommitsToFinalPath(t *testing.T) {
	root := t.TempDir()
	stagingArea := newTestStagingArea(writeFakeGit(t, fakeGitSuccess))

	var events []models.ProgressEvent
	request := sourceStageRequest(root)
	request.OnProgress = func(event models.ProgressEvent) { events = append(events, event) }

	result, err := stagingArea.Stage(context.Background(), request)
	require.NoError(t, err)
	assert.Equal(t, request.FinalPath, result.FinalPath)
	assert.Empty(t, result.CleanupErrors)

	branch, err := os.ReadFile(filepath.Join(request.FinalPath, "BRANCH"))
	require.NoError(t, err)
	assert.Equal(t, "17.0\n", string(branch))
	assertNoStagingLeftovers(t, root)

	require.NotEmpty(t, events)
	assert.Equal(t, models.PhaseInit, events[0].Phase)
	last := events[len(events)-1]
	assert.Equal(t, models.PhaseDone, last.Phase)
	assert.Equal(t, 100, last.Percent)
}

func TestStageReplacesExistingFinalPath(t *testing.T) {
	root := t.TempDir()
	request := sourceStageRequest(root)
	require.NoError(t, os.MkdirAll(request.FinalPath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(request.FinalPath, "stale.txt"), []byte("old"), 0o644))

	_, err := newTestStagingArea(writeFakeGit(t, fakeGitSuccess)).Stage(context.Background(), request)
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(request.FinalPath, "stale.txt"))
	assert.FileExists(t, filepath.Join(request.FinalPath, "BRANCH"))
	assertNoStagingLeftovers(t, root)
}

func TestStageNonZeroExitLeavesNoFinalPath(t *testing.T) {
	root := t.TempDir()
	gitBinary := writeFakeGit(t, `
echo "Cloning into '$target'..." >&2
mkdir -p "$target"
echo partial > "$target/partial.txt"
printf 'Receiving objects:  40%% (4/10)\r' >&2
echo "fatal: early EOF" >&2
exit 128
`)

	var events []models.ProgressEvent
	request := sourceStageRequest(root)
	request.OnProgress = func(event models.ProgressEvent) { events = append(events, event) }

	_, err := newTestStagingArea(gitBinary).Stage(context.Background(), request)
	require.Error(t, err)

	var exitError *runner.ProcessExitError
	require.True(t, errors.As(err, &exitError))
	assert.Equal(t, 128, exitError.ExitCode)
	assert.Contains(t, exitError.Stderr, "fatal: early EOF")

	receiveEvent := findEvent(events, models.PhaseReceive)
	assert.Equal(t, 40, receiveEvent.Percent)
	assert.Equal(t, models.StageSource, receiveEvent.Stage)
	for _, event := range events {
		assert.NotEqual(t, models.PhaseDone, event.Phase)
	}

	assert.NoDirExists(t, request.FinalPath)
	assertNoStagingLeftovers(t, root)
}

func findEvent(events []models.ProgressEvent, phase models.Phase) models.ProgressEvent {
	for _, event := range events {
		if event.Phase == phase {
			return event
		}
	}
	return models.ProgressEvent{}
}

func TestStageFailureKeepsPreviousTree(t *testing.T) {
	root := t.TempDir()
	request := sourceStageRequest(root)
	require.NoError(t, os.MkdirAll(request.FinalPath, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(request.FinalPath, "kept.txt"), []byte("old"), 0o644))

	_, err := newTestStagingArea(writeFakeGit(t, "exit 1\n")).Stage(context.Background(), request)
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindProcessExit, models.KindOf(err))

	assert.FileExists(t, filepath.Join(request.FinalPath, "kept.txt"))
	assertNoStagingLeftovers(t, root)
}

func TestStageTimeoutTerminatesClone(t *testing.T) {
	root := t.TempDir()
	gitBinary := writeFakeGit(t, `
mkdir -p "$target"
echo "Cloning into '$target'..." >&2
exec sleep 30
`)
	request := sourceStageRequest(root)
	request.Deadline = 200 * time.Millisecond

	startedAt := time.Now()
	_, err := newTestStagingArea(gitBinary).Stage(context.Background(), request)
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindTimeout, models.KindOf(err))
	assert.Less(t, time.Since(startedAt), 10*time.Second)

	assert.NoDirExists(t, request.FinalPath)
	assertNoStagingLeftovers(t, root)
}

func TestStageContextCancelTerminatesClone(t *testing.T) {
	root := t.TempDir()
	gitBinary := writeFakeGit(t, "exec sleep 30\n")

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	request := sourceStageRequest(root)
	request.Deadline = 0
	_, err := newTestStagingArea(gitBinary).Stage(ctx, request)
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindCanceled, models.KindOf(err))
	assert.NoDirExists(t, request.FinalPath)
	assertNoStagingLeftovers(t, root)
}

func TestStageSpawnError(t *testing.T) {
	root := t.TempDir()
	request := sourceStageRequest(root)

	_, err := newTestStagingArea(filepath.Join(t.TempDir(), "missing-git")).Stage(context.Background(), request)
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindProcessSpawn, models.KindOf(err))
	assert.NoDirExists(t, request.FinalPath)
	assertNoStagingLeftovers(t, root)
}

func TestStageEmptyCloneIsValidationError(t *testing.T) {
	root := t.TempDir()
	request := sourceStageRequest(root)

	_, err := newTestStagingArea(writeFakeGit(t, "mkdir -p \"$target\"\nexit 0\n")).Stage(context.Background(), request)
	require.Error(t, err)
	assert.Equal(t, models.ErrorKindValidation, models.KindOf(err))
	assert.NoDirExists(t, request.FinalPath)
	assertNoStagingLeftovers(t, root)
}

func TestStageCommitsSubdirectory(t *testing.T) {
	root := t.TempDir()
	request := StageRequest{
		Spec: models.CloneSpec{
			Stage:         models.StageEnvironment,
			RepositoryURL: testEnvironmentURL,
			Branch:        "17.0-py3.12",
			Subdirectory:  "venv",
		},
		FinalPath: filepath.Join(root, "venv"),
	}

	_, err := newTestStagingArea(writeFakeGit(t, fakeGitSuccess)).Stage(context.Background(), request)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "venv", "bin", "activate"))
	// only the subdirectory is committed, not the rest of the clone
	assert.NoDirExists(t, filepath.Join(root, "venv", ".git"))
	assertNoStagingLeftovers(t, root)
}

func TestStageMissingSubdirectory(t *testing.T) {
	root := t.TempDir()
	request := sourceStageRequest(root)
	request.Spec.Subdirectory = "venv"

	_, err := newTestStagingArea(writeFakeGit(t, fakeGitSuccess)).Stage(context.Background(), request)
	var validationError *ValidationError
	require.True(t, errors.As(err, &validationError))
	assert.Equal(t, []string{"venv"}, validationError.Missing)
	assertNoStagingLeftovers(t, root)
}

func TestStagePrepareFailureAbortsCommit(t *testing.T) {
	root := t.TempDir()
	request := sourceStageRequest(root)
	request.Prepare = func(ctx context.Context, stagedPath string) error {
		assert.FileExists(t, filepath.Join(stagedPath, "BRANCH"))
		return &ValidationError{Path: stagedPath, Missing: []string{"bin/activate"}}
	}

	_, err := newTestStagingArea(writeFakeGit(t, fakeGitSuccess)).Stage(context.Background(), request)
	assert.Equal(t, models.ErrorKindValidation, models.KindOf(err))
	assert.NoDirExists(t, request.FinalPath)
	assertNoStagingLeftovers(t, root)
}

func TestStageWritesRawOutput(t *testing.T) {
	root := t.TempDir()
	var rawOutput lockedBuffer
	var diagnostics []string
	request := sourceStageRequest(root)
	request.RawOutput = &rawOutput
	request.OnDiagnostic = func(line string) { diagnostics = append(diagnostics, line) }

	gitBinary := writeFakeGit(t, "echo 'warning: redirecting to https://example.test/moved.git/' >&2\n"+fakeGitSuccess)
	_, err := newTestStagingArea(gitBinary).Stage(context.Background(), request)
	require.NoError(t, err)

	assert.Contains(t, rawOutput.String(), "[source] Cloning into")
	assert.Equal(t, []string{"warning: redirecting to https://example.test/moved.git/"}, diagnostics)
}
