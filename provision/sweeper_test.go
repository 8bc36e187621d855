//go:build unix

package provision

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CybrosysAssista/Assista-IDE/models"
)

func makeAgedDir(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(path, "clone"), 0o755))
	modTime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, modTime, modTime))
}

func TestSweepRootRemovesOnlyOldLeftovers(t *testing.T) {
	root := t.TempDir()
	oldStaging := filepath.Join(root, stagingPrefix+"old")
	oldAside := filepath.Join(root, asidePrefix+"old")
	freshStaging := filepath.Join(root, stagingPrefix+"fresh")
	provisioned := filepath.Join(root, "17.0")

	makeAgedDir(t, oldStaging, 2*time.Hour)
	makeAgedDir(t, oldAside, 2*time.Hour)
	makeAgedDir(t, freshStaging, time.Minute)
	makeAgedDir(t, provisioned, 48*time.Hour)

	removed, err := SweepRoot(root, time.Hour, time.Now())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{oldStaging, oldAside}, removed)
	assert.DirExists(t, freshStaging)
	assert.DirExists(t, provisioned)
}

func TestSweepRootMissingRoot(t *testing.T) {
	removed, err := SweepRoot(filepath.Join(t.TempDir(), "missing"), time.Hour, time.Now())
	assert.NoError(t, err)
	assert.Empty(t, removed)
}

type countingReaper struct {
	calls int
}

func (reaper *countingReaper) RemoveLeftoverCloneContainers(ctx context.Context) (int, error) {
	reaper.calls++
	return 0, nil
}

func TestServiceSweepWalksKnownRoots(t *testing.T) {
	service, _ := newTestService(t, writeFakeGit(t, fakeGitSuccess))
	root := t.TempDir()

	_, err := service.Start(context.Background(), models.ProvisionRequest{SourceVersion: "17.0", DestinationRoot: root})
	require.NoError(t, err)
	service.Wait()

	leftover := filepath.Join(root, stagingPrefix+"crashed")
	makeAgedDir(t, leftover, 3*time.Hour)

	reaper := &countingReaper{}
	require.NoError(t, service.Sweep(context.Background(), time.Hour, reaper))
	assert.NoDirExists(t, leftover)
	assert.DirExists(t, filepath.Join(root, "17.0"))
	assert.Equal(t, 1, reaper.calls)
}
