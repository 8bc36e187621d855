package runner

import (
	"context"
	"regexp"
	"time"

	"github.com/chainguard-dev/clog"
)

// pythonCandidates are probed in order
var pythonCandidates = []string{"python3", "python"}

var pythonVersionPattern = regexp.MustCompile(`Python (\d+)\.(\d+)\.(\d+)`)

// probeTimeout bounds a single `--version` call
const probeTimeout = 10 * time.Second

// PythonInstallation is an interpreter found on the PATH.
type PythonInstallation struct {
	Command string `json:"command"`
	Version string `json:"version"`

	// Variant is major.minor, the form environment branches use (eg "3.12")
	Variant string `json:"variant"`
}

// DetectPythonVersions runs `<candidate> --version` for every candidate and returns the
// distinct interpreters found. missing binaries are skipped silently.
func DetectPythonVersions(ctx context.Context, processRunner Runner) []PythonInstallation {
	log := clog.FromContext(ctx)

	seenVersions := map[string]bool{}
	var installations []PythonInstallation
	for _, candidate := range pythonCandidates {
		version, variant, ok := probePython(ctx, processRunner, candidate)
		if !ok || seenVersions[version] {
			continue
		}
		seenVersions[version] = true
		installations = append(installations, PythonInstallation{
			Command: candidate,
			Version: version,
			Variant: variant,
		})
		log.Debug("python interpreter found", "command", candidate, "version", version)
	}
	return installations
}

// probePython returns the full and major.minor version printed by `<command> --version`.
func probePython(ctx context.Context, processRunner Runner, command string) (string, string, bool) {
	handle, errStart := processRunner.Start(ctx, Command{Tool: command, Args: []string{"--version"}})
	if errStart != nil {
		return "", "", false
	}

	// python 2 prints the version on stderr, python 3 on stdout, so both are read
	var version, variant string
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		matchVersion := func(line string) {
			if match := pythonVersionPattern.FindStringSubmatch(line); match != nil && version == "" {
				version = match[1] + "." + match[2] + "." + match[3]
				variant = match[1] + "." + match[2]
			}
		}
		handle.ForEachLine(matchVersion, matchVersion)
	}()

	verdict := Guard(ctx, handle, probeTimeout)
	<-handle.Done()
	<-collected
	if verdict != Exited || handle.Outcome().ExitCode != 0 || version == "" {
		return "", "", false
	}
	return version, variant, true
}
