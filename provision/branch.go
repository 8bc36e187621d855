package provision

import "slices"

// legacyEnvironmentBranch holds the single environment shared by 14.0, 15.0 and 16.0
const legacyEnvironmentBranch = "14-16"

var (
	legacyEnvironmentVersions  = []string{"14.0", "15.0", "16.0"}
	variantEnvironmentVersions = []string{"17.0", "18.0"}

	// publishedVariants are the interpreter versions environment branches are built for
	publishedVariants = []string{"3.10", "3.12"}
)

// SupportedVersions returns every source version the pipeline can provision, oldest first.
func SupportedVersions() []string {
	return slices.Concat(legacyEnvironmentVersions, variantEnvironmentVersions)
}

// SupportedVariants returns the runtime variants published for 17.0 and later.
func SupportedVariants() []string {
	return slices.Clone(publishedVariants)
}

// ResolveSourceBranch returns the branch of the source repository for version.
// release branches are named after the version itself.
func ResolveSourceBranch(version string) (string, error) {
	if !slices.Contains(SupportedVersions(), version) {
		return "", &UnsupportedVersionError{Version: version}
	}
	return version, nil
}

// ResolveEnvironmentBranch returns the branch of the environment repository.
//
//	17.0, 18.0 with a variant  -> "<version>-py<variant>"
//	14.0, 15.0, 16.0           -> "14-16" (variant ignored)
//	anything else              -> *UnsupportedVersionError
func ResolveEnvironmentBranch(version, variant string) (string, error) {
	switch {
	case slices.Contains(variantEnvironmentVersions, version) && variant != "":
		return version + "-py" + variant, nil
	case slices.Contains(legacyEnvironmentVersions, version):
		return legacyEnvironmentBranch, nil
	}
	return "", &UnsupportedVersionError{Version: version, Variant: variant}
}
