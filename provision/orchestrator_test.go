//go:build unix

package provision

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CybrosysAssista/Assista-IDE/models"
)

func newTestOrchestrator(request models.ProvisionRequest, gitBinary string, sink ProgressSink) *Orchestrator {
	return NewOrchestrator(request, Dependencies{
		Staging: newTestStagingArea(gitBinary),
		Repositories: Repositories{
			SourceURL:      testSourceURL,
			EnvironmentURL: testEnvironmentURL,
		},
		Source:      StageSettings{Deadline: 30 * time.Second, Weight: 70},
		Environment: StageSettings{Deadline: 30 * time.Second, Weight: 30},
	}, sink)
}

func TestOrchestratorProvisionsSourceAndEnvironment(t *testing.T) {
	root := t.TempDir()
	sink := &recordingSink{}
	orchestrator := newTestOrchestrator(models.ProvisionRequest{
		SourceVersion:      "17.0",
		RuntimeVariant:     "3.10",
		DestinationRoot:    root,
		IncludeEnvironment: true,
	}, writeFakeGit(t, fakeGitSuccess), sink)

	result := orchestrator.Run(context.Background())
	require.True(t, result.Success, result.ErrorMessage)

	wantPaths := map[models.StageName]string{
		models.StageSource:      filepath.Join(root, "17.0"),
		models.StageEnvironment: filepath.Join(root, "venv"),
	}
	if diff := cmp.Diff(wantPaths, result.FinalPaths); diff != "" {
		t.Errorf("final paths mismatch (-want +got):\n%s", diff)
	}

	environmentBranch, err := os.ReadFile(filepath.Join(root, "venv", "BRANCH"))
	require.NoError(t, err)
	assert.Equal(t, "17.0-py3.10\n", string(environmentBranch))

	info, err := os.Stat(filepath.Join(root, "venv", "bin", "python3"))
	require.NoError(t, err)
	assert.NotZero(t, info.Mode().Perm()&0o100, "interpreter is not executable")

	assert.FileExists(t, filepath.Join(root, ManifestFileName))
	assertNoStagingLeftovers(t, root)

	state, stageIndex := orchestrator.State()
	assert.Equal(t, StateSucceeded, state)
	assert.Equal(t, 1, stageIndex)

	events, _, results := sink.snapshot()
	require.Len(t, results, 1)
	require.NotEmpty(t, events)

	lastOverall := 0
	sawEnvironment := false
	for _, event := range events {
		assert.GreaterOrEqual(t, event.Overall, lastOverall)
		lastOverall = event.Overall
		if event.Stage == models.StageEnvironment {
			sawEnvironment = true
			assert.GreaterOrEqual(t, event.Overall, 70)
		} else {
			assert.LessOrEqual(t, event.Overall, 70)
		}
	}
	assert.True(t, sawEnvironment)
	assert.Equal(t, 100, lastOverall)
}

func TestOrchestratorRunIsSingleUse(t *testing.T) {
	root := t.TempDir()
	sink := &recordingSink{}
	orchestrator := newTestOrchestrator(models.ProvisionRequest{
		SourceVersion:   "16.0",
		DestinationRoot: root,
	}, writeFakeGit(t, fakeGitSuccess), sink)

	first := orchestrator.Run(context.Background())
	second := orchestrator.Run(context.Background())
	require.True(t, first.Success)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("second run differs (-first +second):\n%s", diff)
	}

	_, _, results := sink.snapshot()
	assert.Len(t, results, 1)
}

func TestOrchestratorResultCannotBeChangedByCallers(t *testing.T) {
	root := t.TempDir()
	sink := &recordingSink{}
	orchestrator := newTestOrchestrator(models.ProvisionRequest{
		SourceVersion:   "16.0",
		DestinationRoot: root,
	}, writeFakeGit(t, fakeGitSuccess), sink)

	first := orchestrator.Run(context.Background())
	require.True(t, first.Success)
	wantPath := first.FinalPaths[models.StageSource]

	first.FinalPaths[models.StageSource] = "/elsewhere"
	first.Commits[models.StageSource] = "0000000"
	first.Stages[0].FinalPath = "/elsewhere"

	_, _, results := sink.snapshot()
	require.Len(t, results, 1)
	results[0].FinalPaths[models.StageSource] = "/sink-copy"

	second := orchestrator.Run(context.Background())
	assert.Equal(t, wantPath, second.FinalPaths[models.StageSource])
	assert.NotEqual(t, "0000000", second.Commits[models.StageSource])
	assert.Equal(t, wantPath, second.Stages[0].FinalPath)
}

// overlapSink counts calls that start while another call is still running.
type overlapSink struct {
	inCall   atomic.Bool
	calls    atomic.Int64
	overlaps atomic.Int64
}

func (sink *overlapSink) enter() {
	if !sink.inCall.CompareAndSwap(false, true) {
		sink.overlaps.Add(1)
		return
	}
	sink.calls.Add(1)
	time.Sleep(time.Millisecond)
	sink.inCall.Store(false)
}

func (sink *overlapSink) OnProgress(models.StageName, models.ProgressEvent) { sink.enter() }
func (sink *overlapSink) OnDiagnostic(models.StageName, string) { sink.enter() }
func (sink *overlapSink) OnResult(models.PipelineResult) { sink.enter() }

func TestOrchestratorSinkCallsAreSerialized(t *testing.T) {
	sink := &overlapSink{}
	orchestrator := newTestOrchestrator(models.ProvisionRequest{
		SourceVersion:      "17.0",
		RuntimeVariant:     "3.12",
		DestinationRoot:    t.TempDir(),
		IncludeEnvironment: true,
	}, writeFakeGit(t, fakeGitSuccess), sink)

	result := orchestrator.Run(context.Background())
	require.True(t, result.Success, result.ErrorMessage)
	assert.Greater(t, sink.calls.Load(), int64(1))
	assert.Zero(t, sink.overlaps.Load())
}

func TestOrchestratorUnsupportedVersionSpawnsNothing(t *testing.T) {
	root := t.TempDir()
	marker := filepath.Join(t.TempDir(), "spawned")
	gitBinary := writeFakeGit(t, "touch '"+marker+"'\nexit 0\n")

	sink := &recordingSink{}
	result := newTestOrchestrator(models.ProvisionRequest{
		SourceVersion:   "19.0",
		DestinationRoot: root,
	}, gitBinary, sink).Run(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, models.ErrorKindUnsupportedVersion, result.ErrorKind)
	assert.Empty(t, result.FinalPaths)
	assert.NoFileExists(t, marker)

	events, _, results := sink.snapshot()
	assert.Empty(t, events)
	assert.Len(t, results, 1)
}

func TestOrchestratorResolvesEnvironmentBeforeCloningSource(t *testing.T) {
	root := t.TempDir()
	marker := filepath.Join(t.TempDir(), "spawned")
	gitBinary := writeFakeGit(t, "touch '"+marker+"'\n"+fakeGitSuccess)

	// 17.0 needs a runtime variant for its environment
	result := newTestOrchestrator(models.ProvisionRequest{
		SourceVersion:      "17.0",
		DestinationRoot:    root,
		IncludeEnvironment: true,
	}, gitBinary, nil).Run(context.Background())

	assert.Equal(t, models.ErrorKindUnsupportedVersion, result.ErrorKind)
	assert.NoFileExists(t, marker)
	assert.NoDirExists(t, filepath.Join(root, "17.0"))
}

func TestOrchestratorFailedCloneReportsProgressThenExitError(t *testing.T) {
	root := t.TempDir()
	gitBinary := writeFakeGit(t, `
echo "Cloning into '$target'..." >&2
mkdir -p "$target"
printf 'Receiving objects:  40%% (4/10)\r' >&2
echo "fatal: the remote end hung up unexpectedly" >&2
exit 128
`)
	sink := &recordingSink{}
	result := newTestOrchestrator(models.ProvisionRequest{
		SourceVersion:   "16.0",
		DestinationRoot: root,
	}, gitBinary, sink).Run(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, models.ErrorKindProcessExit, result.ErrorKind)
	assert.Contains(t, result.ErrorMessage, "exited with code 128")
	assert.NoDirExists(t, filepath.Join(root, "16.0"))
	assertNoStagingLeftovers(t, root)

	events, diagnostics, _ := sink.snapshot()
	receiveEvent := findEvent(events, models.PhaseReceive)
	assert.Equal(t, 40, receiveEvent.Percent)
	assert.Contains(t, diagnostics, "fatal: the remote end hung up unexpectedly")
}

func TestOrchestratorKeepsCommittedStageOnLaterFailure(t *testing.T) {
	root := t.TempDir()
	gitBinary := writeFakeGit(t, `
case "$url" in
*environment*)
	echo "fatal: Remote branch $branch not found in upstream origin" >&2
	exit 128
	;;
esac
`+fakeGitSuccess)

	orchestrator := newTestOrchestrator(models.ProvisionRequest{
		SourceVersion:      "18.0",
		RuntimeVariant:     "3.12",
		DestinationRoot:    root,
		IncludeEnvironment: true,
	}, gitBinary, nil)
	result := orchestrator.Run(context.Background())

	assert.False(t, result.Success)
	assert.Equal(t, models.ErrorKindProcessExit, result.ErrorKind)
	assert.Contains(t, result.ErrorMessage, "18.0-py3.12")
	assert.Equal(t, map[models.StageName]string{models.StageSource: filepath.Join(root, "18.0")}, result.FinalPaths)
	assert.DirExists(t, filepath.Join(root, "18.0"))
	assert.NoDirExists(t, filepath.Join(root, "venv"))
	assert.NoFileExists(t, filepath.Join(root, ManifestFileName))

	require.Len(t, result.Stages, 2)
	assert.True(t, result.Stages[0].Success)
	assert.False(t, result.Stages[1].Success)

	state, stageIndex := orchestrator.State()
	assert.Equal(t, StateFailed, state)
	assert.Equal(t, 1, stageIndex)
}

func TestOrchestratorCanceledBeforeFirstStage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := newTestOrchestrator(models.ProvisionRequest{
		SourceVersion:   "15.0",
		DestinationRoot: t.TempDir(),
	}, writeFakeGit(t, fakeGitSuccess), nil).Run(ctx)

	assert.False(t, result.Success)
	assert.Equal(t, models.ErrorKindCanceled, result.ErrorKind)
}

func TestOrchestratorRejectsInvalidRequests(t *testing.T) {
	root := t.TempDir()
	filePath := filepath.Join(root, "not-a-dir")
	require.NoError(t, os.WriteFile(filePath, nil, 0o644))

	tests := []struct {
		name    string
		request models.ProvisionRequest
		want    models.ErrorKind
	}{
		{"bad version token", models.ProvisionRequest{SourceVersion: "17", DestinationRoot: root}, models.ErrorKindValidation},
		{"bad variant", models.ProvisionRequest{SourceVersion: "17.0", RuntimeVariant: "py3", DestinationRoot: root}, models.ErrorKindValidation},
		{"missing root", models.ProvisionRequest{SourceVersion: "17.0", DestinationRoot: filepath.Join(root, "missing")}, models.ErrorKindValidation},
		{"root is a file", models.ProvisionRequest{SourceVersion: "17.0", DestinationRoot: filePath}, models.ErrorKindValidation},
		{"unsupported before root check", models.ProvisionRequest{SourceVersion: "19.0", DestinationRoot: filepath.Join(root, "missing")}, models.ErrorKindUnsupportedVersion},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := newTestOrchestrator(test.request, "git", nil).Run(context.Background())
			assert.False(t, result.Success)
			assert.Equal(t, test.want, result.ErrorKind)
		})
	}
}

func TestWeightedRanges(t *testing.T) {
	tests := []struct {
		name    string
		weights []int
		want    [][2]int
	}{
		{"source and environment", []int{70, 30}, [][2]int{{0, 70}, {70, 100}}},
		{"single stage", []int{70}, [][2]int{{0, 100}}},
		{"uneven", []int{1, 2}, [][2]int{{0, 33}, {33, 100}}},
		{"zero weight counts as one", []int{0, 0}, [][2]int{{0, 50}, {50, 100}}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if diff := cmp.Diff(test.want, weightedRanges(test.weights)); diff != "" {
				t.Errorf("ranges mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
