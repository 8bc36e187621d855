//go:build unix

package provision

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/CybrosysAssista/Assista-IDE/models"
	"github.com/CybrosysAssista/Assista-IDE/runner"
)

const (
	testSourceURL      = "https://example.test/source.git"
	testEnvironmentURL = "https://example.test/environment.git"
)

// fakeGitPreamble picks the branch, url and target out of
// `clone --depth 1 --branch <b> --progress <url> <target>`.
const fakeGitPreamble = `#!/bin/sh
branch="$5"
url="$7"
for target; do :; done
`

// fakeGitSuccess behaves like a successful shallow clone of either repository.
const fakeGitSuccess = `
echo "Cloning into '$target'..." >&2
mkdir -p "$target/.git"
printf 'remote: Enumerating objects: 3, done.\n' >&2
printf 'remote: Counting objects: 100%% (3/3), done.\n' >&2
printf 'Receiving objects:  40%% (1/3)\rReceiving objects: 100%% (3/3), done.\n' >&2
printf 'Resolving deltas: 100%% (1/1), done.\n' >&2
echo "$branch" > "$target/BRANCH"
case "$url" in
*environment*)
	mkdir -p "$target/venv/bin"
	echo "$branch" > "$target/venv/BRANCH"
	printf '#!/bin/sh\n' > "$target/venv/bin/activate"
	printf '#!/bin/sh\n' > "$target/venv/bin/python3"
	chmod 0644 "$target/venv/bin/python3"
	;;
*)
	printf '#!/usr/bin/env python3\n' > "$target/odoo-bin"
	;;
esac
exit 0
`

// writeFakeGit writes an executable git stand-in and returns its path.
func writeFakeGit(t *testing.T, body string) string {
	t.Helper()
	scriptPath := filepath.Join(t.TempDir(), "git")
	require.NoError(t, os.WriteFile(scriptPath, []byte(fakeGitPreamble+body), 0o755))
	return scriptPath
}

func newTestStagingArea(gitBinary string) *StagingArea {
	return NewStagingArea(
		runner.NewExecRunner(runner.ExecRunnerConfig{KillGrace: time.Second}),
		StagingAreaConfig{GitBinary: gitBinary, ProgressThrottle: time.Millisecond},
	)
}

// assertNoStagingLeftovers fails when a staging or aside directory survived under root.
func assertNoStagingLeftovers(t *testing.T, root string) {
	t.Helper()
	for _, pattern := range []string{stagingPrefix + "*", asidePrefix + "*"} {
		matches, err := filepath.Glob(filepath.Join(root, pattern))
		require.NoError(t, err)
		require.Empty(t, matches, "leftover directories under %s", root)
	}
}

// recordingSink captures everything an orchestrator reports.
type recordingSink struct {
	mutex       sync.Mutex
	events      []models.ProgressEvent
	diagnostics []string
	results     []models.PipelineResult
}

func (sink *recordingSink) OnProgress(stage models.StageName, event models.ProgressEvent) {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	sink.events = append(sink.events, event)
}

func (sink *recordingSink) OnResult(result models.PipelineResult) {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	sink.results = append(sink.results, result)
}

func (sink *recordingSink) OnDiagnostic(stage models.StageName, line string) {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	sink.diagnostics = append(sink.diagnostics, line)
}

func (sink *recordingSink) snapshot() ([]models.ProgressEvent, []string, []models.PipelineResult) {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	return append([]models.ProgressEvent{}, sink.events...),
		append([]string{}, sink.diagnostics...),
		append([]models.PipelineResult{}, sink.results...)
}

// lockedBuffer is a strings.Builder safe for the drain goroutine and the test.
type lockedBuffer struct {
	mutex   sync.Mutex
	builder strings.Builder
}

func (buffer *lockedBuffer) Write(data []byte) (int, error) {
	buffer.mutex.Lock()
	defer buffer.mutex.Unlock()
	return buffer.builder.Write(data)
}

func (buffer *lockedBuffer) String() string {
	buffer.mutex.Lock()
	defer buffer.mutex.Unlock()
	return buffer.builder.String()
}
