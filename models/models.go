// Package models defines the data structures (structs) shared across the application.
// this package has no imports from other internal packages, making it the
// foundation of the dependency graph. runner, progress, provision, db and handlers all import it.
package models

import (
	"maps"
	"slices"
	"time"
)

/*
ProvisioningStatus, StageName and Phase are all strings (or ints) under the hood, but giving
them their own type means the compiler rejects `record.Status = "typo"` unless "typo" is one of
the declared constants.
*/

// ProvisioningStatus represents the lifecycle state of a persisted provisioning run.
type ProvisioningStatus string

const (
	// StatusPending means the record exists but the orchestrator has not started yet
	StatusPending ProvisioningStatus = "pending"

	// StatusRunning means a stage is in flight (cloning, validating, committing)
	StatusRunning ProvisioningStatus = "running"

	// StatusSucceeded means every requested stage was committed to its final path
	StatusSucceeded ProvisioningStatus = "succeeded"

	// StatusFailed means a stage failed. earlier committed stages may still be on disk.
	StatusFailed ProvisioningStatus = "failed"

	// StatusCanceled means the caller canceled the run before it finished
	StatusCanceled ProvisioningStatus = "canceled"
)

// StageName labels one clone stage of the pipeline.
type StageName string

const (
	// StageSource is the versioned application source tree, committed to <root>/<version>
	StageSource StageName = "source"

	// StageEnvironment is the prebuilt runtime environment, committed to <root>/venv
	StageEnvironment StageName = "environment"
)

// ProvisionRequest is the input of one pipeline run.
type ProvisionRequest struct {
	// SourceVersion is the major.minor release to fetch, eg "17.0"
	SourceVersion string `json:"source_version"`

	// RuntimeVariant is the interpreter variant of the environment, eg "3.12".
	// empty means no variant was chosen.
	RuntimeVariant string `json:"runtime_variant,omitempty"`

	// DestinationRoot is the existing, writable directory both stages are committed under.
	DestinationRoot string `json:"destination_root"`

	// IncludeEnvironment adds the environment stage after the source stage.
	IncludeEnvironment bool `json:"include_environment"`
}

// CloneSpec describes a single shallow clone.
type CloneSpec struct {
	Stage         StageName
	RepositoryURL string
	Branch        string

	// TargetPath is where git writes the clone. always inside a staging directory,
	// never the final path.
	TargetPath string

	// Depth is always 1 for this pipeline
	Depth int

	// Subdirectory names the folder inside the clone that gets committed.
	// the environment repository ships the environment under "venv/".
	// empty means the whole clone is committed.
	Subdirectory string
}

// Phase is a normalized git progress phase. the order of the constants is the order
// git walks through them during a clone.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseEnumerate
	PhaseCount
	PhaseCompress
	PhaseReceive
	PhaseResolveDeltas
	PhaseUpdatingFiles
	PhaseDone
)

var phaseNames = [...]string{
	PhaseInit:          "init",
	PhaseEnumerate:     "enumerate",
	PhaseCount:         "count",
	PhaseCompress:      "compress",
	PhaseReceive:       "receive",
	PhaseResolveDeltas: "resolve_deltas",
	PhaseUpdatingFiles: "updating_files",
	PhaseDone:          "done",
}

func (phase Phase) String() string {
	if phase < 0 || int(phase) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[phase]
}

// MarshalText lets phases show up as names in JSON and yaml instead of ints.
func (phase Phase) MarshalText() ([]byte, error) {
	return []byte(phase.String()), nil
}

// ProgressEvent is one normalized progress update.
type ProgressEvent struct {
	Stage StageName `json:"stage"`
	Phase Phase     `json:"phase"`

	// Percent is local to the phase, 0..100
	Percent int `json:"percent"`

	// Overall is the pipeline-wide weighted completion, 0..100.
	// filled in by the orchestrator, the parser leaves it at 0.
	Overall int `json:"overall"`

	RawLine string    `json:"raw_line,omitempty"`
	At      time.Time `json:"at"`
}

// StageOutcome records how a single stage ended.
type StageOutcome struct {
	Stage        StageName     `json:"stage" yaml:"stage"`
	Success      bool          `json:"success" yaml:"success"`
	Branch       string        `json:"branch" yaml:"branch"`
	FinalPath    string        `json:"final_path,omitempty" yaml:"final_path,omitempty"`
	Commit       string        `json:"commit,omitempty" yaml:"commit,omitempty"`
	ErrorKind    ErrorKind     `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
}

// PipelineResult is the terminal result of an orchestrator run.
// it is built once and never mutated afterwards.
//
// Success=false with a non-empty FinalPaths is a partial success: the stages listed
// in FinalPaths were committed before a later stage failed.
type PipelineResult struct {
	Success      bool                 `json:"success"`
	FinalPaths   map[StageName]string `json:"final_paths"`
	Commits      map[StageName]string `json:"commits,omitempty"`
	ErrorKind    ErrorKind            `json:"error_kind,omitempty"`
	ErrorMessage string               `json:"error_message,omitempty"`
	Stages       []StageOutcome       `json:"stages"`
}

// Clone returns a copy that shares no maps or slices with result.
func (result PipelineResult) Clone() PipelineResult {
	result.FinalPaths = maps.Clone(result.FinalPaths)
	result.Commits = maps.Clone(result.Commits)
	result.Stages = slices.Clone(result.Stages)
	return result
}

// Provisioning is the persisted record of one pipeline run.
// it maps 1:1 to the provisionings table in SQLite and is what the HTTP API returns.
type Provisioning struct {
	// ID is a UUID v4, generated at creation time, used as the primary key
	ID string `json:"id" db:"id"`

	// Slug is a human readable handle, used for the log file name. example: "amber-ridge-3f9a"
	Slug string `json:"slug" db:"slug"`

	SourceVersion      string `json:"source_version" db:"source_version"`
	RuntimeVariant     string `json:"runtime_variant,omitempty" db:"runtime_variant"`
	DestinationRoot    string `json:"destination_root" db:"destination_root"`
	IncludeEnvironment bool   `json:"include_environment" db:"include_environment"`

	Status ProvisioningStatus `json:"status" db:"status"`

	// Progress is the last overall percent reported by the orchestrator
	Progress int `json:"progress" db:"progress"`

	// CurrentStage and CurrentPhase are the last reported position of the run
	CurrentStage StageName `json:"current_stage,omitempty" db:"current_stage"`
	CurrentPhase string    `json:"current_phase,omitempty" db:"current_phase"`

	// FinalPaths and Commits are stored as JSON text columns
	FinalPaths map[StageName]string `json:"final_paths,omitempty" db:"final_paths"`
	Commits    map[StageName]string `json:"commits,omitempty" db:"commits"`

	ErrorKind    ErrorKind `json:"error_kind,omitempty" db:"error_kind"`
	ErrorMessage string    `json:"error_message,omitempty" db:"error_message"`

	// CreatedAt is set once at row insertion time
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is refreshed on every progress or status update
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Request rebuilds the pipeline input from a persisted record.
func (provisioning *Provisioning) Request() ProvisionRequest {
	return ProvisionRequest{
		SourceVersion:      provisioning.SourceVersion,
		RuntimeVariant:     provisioning.RuntimeVariant,
		DestinationRoot:    provisioning.DestinationRoot,
		IncludeEnvironment: provisioning.IncludeEnvironment,
	}
}
