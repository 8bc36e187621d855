package provision

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/chainguard-dev/clog"
)

// ExpectedEntry is a path (relative to the stage root) that must exist.
// when several alternatives are listed, any one of them satisfies the entry
// (a virtualenv has bin/python or bin/python3, not always both).
type ExpectedEntry struct {
	Alternatives []string
}

// Entry builds an ExpectedEntry from a path and optional alternatives.
func Entry(path string, alternatives ...string) ExpectedEntry {
	return ExpectedEntry{Alternatives: append([]string{path}, alternatives...)}
}

func (entry ExpectedEntry) String() string {
	return strings.Join(entry.Alternatives, " | ")
}

// Layout is the shape a committed stage directory must have.
type Layout struct {
	Expected []ExpectedEntry

	// ExecutableDir is the directory (relative to the stage root) whose regular
	// files get exec bits. empty means no normalization.
	ExecutableDir string
}

// sourceLayout is what a source checkout always contains
var sourceLayout = Layout{
	Expected: []ExpectedEntry{Entry("odoo-bin")},
}

// environmentLayout is what a usable virtualenv contains
var environmentLayout = Layout{
	Expected: []ExpectedEntry{
		Entry("bin"),
		Entry("bin/python", "bin/python3"),
		Entry("bin/activate"),
	},
	ExecutableDir: "bin",
}

// NormalizePermissions checks that every expected entry exists under root, then adds
// exec bits to each regular file directly inside the executable dir.
//
// a missing entry fails with *ValidationError listing all of them. chmod failures do not
// fail, they are logged and returned as warnings since the tree may still be usable.
func NormalizePermissions(ctx context.Context, root string, layout Layout) (warnings []string, err error) {
	log := clog.FromContext(ctx)

	var missingEntries []string
	for _, entry := range layout.Expected {
		if !anyExists(root, entry.Alternatives) {
			missingEntries = append(missingEntries, entry.String())
		}
	}
	if len(missingEntries) > 0 {
		return nil, &ValidationError{Path: root, Missing: missingEntries}
	}

	if layout.ExecutableDir == "" {
		return nil, nil
	}

	executableDir := filepath.Join(root, layout.ExecutableDir)
	dirEntries, errReadDir := os.ReadDir(executableDir)
	if errReadDir != nil {
		return nil, &FilesystemError{Operation: "read", Path: executableDir, Err: errReadDir}
	}

	for _, dirEntry := range dirEntries {
		// symlinks (bin/python -> python3.12) are skipped, chmod would follow
		// them to the target outside the tree
		if !dirEntry.Type().IsRegular() {
			continue
		}
		filePath := filepath.Join(executableDir, dirEntry.Name())
		info, errInfo := dirEntry.Info()
		if errInfo != nil {
			warnings = append(warnings, fmt.Sprintf("stat %s: %v", filePath, errInfo))
			continue
		}
		mode := info.Mode().Perm()
		wantedMode := executableMode(mode)
		if wantedMode == mode {
			continue
		}
		if errChmod := os.Chmod(filePath, wantedMode); errChmod != nil {
			warnings = append(warnings, fmt.Sprintf("chmod %s: %v", filePath, errChmod))
		}
	}

	for _, warning := range warnings {
		log.Warn("failed to normalize permission (non-fatal)", "detail", warning)
	}
	return warnings, nil
}

// executableMode adds owner exec, and group/other exec wherever that class can read.
// 0644 becomes 0755, 0600 becomes 0700.
func executableMode(mode fs.FileMode) fs.FileMode {
	mode |= 0o100
	if mode&0o040 != 0 {
		mode |= 0o010
	}
	if mode&0o004 != 0 {
		mode |= 0o001
	}
	return mode
}

// anyExists uses Lstat so a venv symlink pointing at an interpreter that only exists
// on the target machine still counts as present.
func anyExists(root string, alternatives []string) bool {
	for _, alternative := range alternatives {
		if _, errLstat := os.Lstat(filepath.Join(root, filepath.FromSlash(alternative))); errLstat == nil {
			return true
		}
	}
	return false
}
