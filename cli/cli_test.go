package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CybrosysAssista/Assista-IDE/models"
	"github.com/CybrosysAssista/Assista-IDE/provision"
)

func TestFormatProgressLine(t *testing.T) {
	line := formatProgressLine(models.StageSource, models.ProgressEvent{
		Phase:   models.PhaseReceive,
		Percent: 65,
		Overall: 50,
	})
	assert.Equal(t, "[###############---------------]  50% source receive 65%", line)
}

func TestTerminalSinkPlainOutput(t *testing.T) {
	var output bytes.Buffer
	sink := newTerminalSink(&output, false, false)

	sink.OnProgress(models.StageSource, models.ProgressEvent{Phase: models.PhaseInit, Percent: 100, Overall: 3})
	sink.OnDiagnostic(models.StageSource, "warning: redirecting to https://example.test/")
	sink.OnResult(models.PipelineResult{
		Success: false,
		Stages: []models.StageOutcome{
			{Stage: models.StageSource, Success: true, Branch: "17.0", FinalPath: "/srv/17.0", Commit: "0123456789abcdef"},
			{Stage: models.StageEnvironment, ErrorKind: models.ErrorKindTimeout, ErrorMessage: "git exceeded its deadline"},
		},
	})

	text := output.String()
	assert.Contains(t, text, "source init 100%\n")
	assert.NotContains(t, text, "redirecting")
	assert.Contains(t, text, "/srv/17.0 (branch 17.0, 0123456789ab)")
	assert.Contains(t, text, "failed  timeout: git exceeded its deadline")
	assert.NotContains(t, text, "succeeded")
}

func TestTerminalSinkRedrawEndsLineBeforeResult(t *testing.T) {
	var output bytes.Buffer
	sink := newTerminalSink(&output, true, true)

	sink.OnProgress(models.StageSource, models.ProgressEvent{Phase: models.PhaseReceive, Percent: 10, Overall: 5})
	sink.OnDiagnostic(models.StageSource, "hint: something")
	sink.OnResult(models.PipelineResult{ErrorKind: models.ErrorKindUnsupportedVersion, ErrorMessage: "no branch for 12.0"})

	text := output.String()
	assert.True(t, strings.HasPrefix(text, "\r\033[K["))
	assert.Contains(t, text, "receive 10%\n[source] hint: something\n")
	assert.Contains(t, text, "provisioning rejected (unsupported_version): no branch for 12.0")
}

func TestIsTerminalFollowsTheOutputWriter(t *testing.T) {
	assert.False(t, isTerminal(&bytes.Buffer{}))

	redirected, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	require.NoError(t, err)
	defer redirected.Close()
	assert.False(t, isTerminal(redirected), "a regular file must not get redraw escapes")
}

func TestProvisioningRow(t *testing.T) {
	row := provisioningRow(&models.Provisioning{
		Slug:            "amber-ridge-1a2b",
		SourceVersion:   "16.0",
		DestinationRoot: "/srv/odoo",
		Status:          models.StatusFailed,
		ErrorKind:       models.ErrorKindProcessExit,
		Progress:        40,
		FinalPaths: map[models.StageName]string{
			models.StageSource: "/srv/odoo/16.0",
		},
		CreatedAt: time.Now(),
	})
	assert.Equal(t, "-", row[2])
	assert.Equal(t, "failed (process_exit)", row[4])
	assert.Equal(t, "40%", row[5])
	assert.Equal(t, "source=/srv/odoo/16.0", row[6])
}

func TestFormatFinalPathsIsSorted(t *testing.T) {
	got := formatFinalPaths(map[models.StageName]string{
		models.StageSource:      "/r/17.0",
		models.StageEnvironment: "/r/venv",
	})
	assert.Equal(t, "environment=/r/venv source=/r/17.0", got)
	assert.Equal(t, "-", formatFinalPaths(nil))
}

func TestManifestCommand(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, provision.WriteManifest(root, provision.Manifest{
		SourceVersion:  "17.0",
		RuntimeVariant: "3.10",
		ProvisionedAt:  time.Now(),
		Stages: []models.StageOutcome{
			{Stage: models.StageSource, Success: true, Branch: "17.0", FinalPath: filepath.Join(root, "17.0"), Duration: 3 * time.Second},
		},
	}))

	var output bytes.Buffer
	rootCmd := NewRootCommand()
	rootCmd.SetOut(&output)
	rootCmd.SetArgs([]string{"manifest", root})
	require.NoError(t, rootCmd.Execute())

	text := output.String()
	assert.Contains(t, text, "source version:  17.0")
	assert.Contains(t, text, "runtime variant: 3.10")
	assert.Contains(t, text, filepath.Join(root, "17.0"))
}

func TestManifestCommandMissingManifest(t *testing.T) {
	rootCmd := NewRootCommand()
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"manifest", t.TempDir()})
	err := rootCmd.Execute()
	assert.Equal(t, models.ErrorKindFilesystem, models.KindOf(err))
}

func TestSweepCommandWithExplicitRoot(t *testing.T) {
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "assista.db"))
	root := t.TempDir()

	var output bytes.Buffer
	rootCmd := NewRootCommand()
	rootCmd.SetOut(&output)
	rootCmd.SetArgs([]string{"sweep", "--max-age", "1h", root})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, output.String(), "swept 1 root(s), removed 0 leftover(s)")
}

func TestProvisionCommandRequiresFlags(t *testing.T) {
	rootCmd := NewRootCommand()
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"provision", "--version", "17.0"})
	assert.Error(t, rootCmd.Execute())
}
