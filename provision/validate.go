package provision

import (
	"fmt"
	"os"
	"regexp"

	"github.com/CybrosysAssista/Assista-IDE/models"
)

var (
	versionPattern = regexp.MustCompile(`^\d+\.\d+$`)
	variantPattern = regexp.MustCompile(`^\d+(\.\d+)*$`)
)

// validateRequestShape checks the grammar of the version tokens. it does not
// decide whether a version is supported, the branch resolvers do.
func validateRequestShape(request models.ProvisionRequest) error {
	if !versionPattern.MatchString(request.SourceVersion) {
		return &ValidationError{Reason: fmt.Sprintf("source version %q is not of the form <major>.<minor>", request.SourceVersion)}
	}
	if request.RuntimeVariant != "" && !variantPattern.MatchString(request.RuntimeVariant) {
		return &ValidationError{Reason: fmt.Sprintf("runtime variant %q is not a dotted version", request.RuntimeVariant)}
	}
	if request.DestinationRoot == "" {
		return &ValidationError{Reason: "destination root is required"}
	}
	return nil
}

// validateDestinationRoot checks the root exists, is a directory and is writable
// by this process.
func validateDestinationRoot(destinationRoot string) error {
	info, errStat := os.Stat(destinationRoot)
	if errStat != nil {
		return &ValidationError{Path: destinationRoot, Reason: "destination root does not exist"}
	}
	if !info.IsDir() {
		return &ValidationError{Path: destinationRoot, Reason: "destination root is not a directory"}
	}
	if errWritable := checkWritable(destinationRoot); errWritable != nil {
		return &ValidationError{Path: destinationRoot, Reason: fmt.Sprintf("destination root is not writable: %v", errWritable)}
	}
	return nil
}

// ValidateRequest runs the checks the orchestrator runs before spawning anything,
// in the same order, so callers can reject a request up front.
func ValidateRequest(request models.ProvisionRequest) error {
	if errShape := validateRequestShape(request); errShape != nil {
		return errShape
	}
	if _, errSource := ResolveSourceBranch(request.SourceVersion); errSource != nil {
		return errSource
	}
	if request.IncludeEnvironment {
		if _, errEnvironment := ResolveEnvironmentBranch(request.SourceVersion, request.RuntimeVariant); errEnvironment != nil {
			return errEnvironment
		}
	}
	return validateDestinationRoot(request.DestinationRoot)
}
