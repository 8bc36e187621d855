package provision

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/CybrosysAssista/Assista-IDE/models"
)

// ManifestFileName is written into the destination root after a successful run.
const ManifestFileName = ".provision-manifest.yaml"

// Manifest records what was provisioned into a destination root.
type Manifest struct {
	SourceVersion  string                `yaml:"source_version"`
	RuntimeVariant string                `yaml:"runtime_variant,omitempty"`
	ProvisionedAt  time.Time             `yaml:"provisioned_at"`
	Stages         []models.StageOutcome `yaml:"stages"`
}

// WriteManifest writes the manifest next to the committed stages. it goes through a
// temp file and a rename so a reader never sees a truncated manifest.
func WriteManifest(destinationRoot string, manifest Manifest) error {
	encodedManifest, errMarshal := yaml.Marshal(manifest)
	if errMarshal != nil {
		return fmt.Errorf("failed to encode manifest: %w", errMarshal)
	}

	temporaryFile, errCreate := os.CreateTemp(destinationRoot, ManifestFileName+".*")
	if errCreate != nil {
		return &FilesystemError{Operation: "create manifest in", Path: destinationRoot, Err: errCreate}
	}
	temporaryPath := temporaryFile.Name()

	_, errWrite := temporaryFile.Write(encodedManifest)
	errClose := temporaryFile.Close()
	if errWrite == nil {
		errWrite = errClose
	}
	if errWrite != nil {
		os.Remove(temporaryPath)
		return &FilesystemError{Operation: "write manifest", Path: temporaryPath, Err: errWrite}
	}

	manifestPath := filepath.Join(destinationRoot, ManifestFileName)
	if errRename := os.Rename(temporaryPath, manifestPath); errRename != nil {
		os.Remove(temporaryPath)
		return &FilesystemError{Operation: "rename manifest to", Path: manifestPath, Err: errRename}
	}
	return nil
}

// ReadManifest loads the manifest of a destination root.
func ReadManifest(destinationRoot string) (Manifest, error) {
	manifestPath := filepath.Join(destinationRoot, ManifestFileName)
	encodedManifest, errRead := os.ReadFile(manifestPath)
	if errRead != nil {
		return Manifest{}, &FilesystemError{Operation: "read manifest", Path: manifestPath, Err: errRead}
	}
	var manifest Manifest
	if errUnmarshal := yaml.Unmarshal(encodedManifest, &manifest); errUnmarshal != nil {
		return Manifest{}, fmt.Errorf("failed to decode manifest %q: %w", manifestPath, errUnmarshal)
	}
	return manifest, nil
}
