package provision

import (
	"fmt"
	"slices"
	"strings"

	"github.com/CybrosysAssista/Assista-IDE/models"
)

// UnsupportedVersionError means no branch exists for the requested (version, variant) pair.
// it is raised before any process is spawned.
type UnsupportedVersionError struct {
	Version string
	Variant string
}

func (versionError *UnsupportedVersionError) Error() string {
	variants := strings.Join(publishedVariants, ", ")
	switch {
	case versionError.Variant != "":
		return fmt.Sprintf("unsupported version %q with runtime variant %q (published runtime variants: %s)",
			versionError.Version, versionError.Variant, variants)
	case slices.Contains(variantEnvironmentVersions, versionError.Version):
		return fmt.Sprintf("version %q needs a runtime variant (published runtime variants: %s)", versionError.Version, variants)
	}
	return fmt.Sprintf("unsupported version %q (supported versions: %s)",
		versionError.Version, strings.Join(SupportedVersions(), ", "))
}

func (versionError *UnsupportedVersionError) Kind() models.ErrorKind {
	return models.ErrorKindUnsupportedVersion
}

// ValidationError means a request or a fetched tree does not have the expected shape.
type ValidationError struct {
	// Path is the directory that was checked, empty for request validation
	Path string

	// Missing lists expected entries that were not found
	Missing []string

	// Reason is set for failures that are not about missing entries
	Reason string
}

func (validationError *ValidationError) Error() string {
	if len(validationError.Missing) > 0 {
		return fmt.Sprintf("%s is missing expected entries: %s",
			validationError.Path, strings.Join(validationError.Missing, ", "))
	}
	if validationError.Path == "" {
		return "invalid request: " + validationError.Reason
	}
	return fmt.Sprintf("%s: %s", validationError.Path, validationError.Reason)
}

func (validationError *ValidationError) Kind() models.ErrorKind { return models.ErrorKindValidation }

// FilesystemError wraps a failed filesystem operation on a pipeline path.
type FilesystemError struct {
	Operation string
	Path      string
	Err       error
}

func (filesystemError *FilesystemError) Error() string {
	return fmt.Sprintf("failed to %s %q: %v", filesystemError.Operation, filesystemError.Path, filesystemError.Err)
}

func (filesystemError *FilesystemError) Unwrap() error { return filesystemError.Err }

func (filesystemError *FilesystemError) Kind() models.ErrorKind { return models.ErrorKindFilesystem }
