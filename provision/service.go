package provision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"

	"github.com/CybrosysAssista/Assista-IDE/db"
	"github.com/CybrosysAssista/Assista-IDE/models"
	"github.com/CybrosysAssista/Assista-IDE/util"
)

var (
	// ErrDestinationBusy is returned by Start when another run is still active on the same root
	ErrDestinationBusy = errors.New("destination root already has an active provisioning")

	// ErrNotActive is returned by Cancel for runs that already finished or never existed
	ErrNotActive = errors.New("provisioning is not active")

	// ErrStillActive is returned by Delete for runs that have not finished yet
	ErrStillActive = errors.New("provisioning is still active, cancel it first")

	// errCanceledByUser is the cancel cause of Cancel
	errCanceledByUser = errors.New("canceled by user")

	// errShuttingDown is the cancel cause of Shutdown
	errShuttingDown = errors.New("control plane shutting down")
)

// Service runs provisionings in the background and persists their progress.
// constructed once at startup and shared by the HTTP handlers.
// every Start call runs its own Orchestrator, the Service only tracks which runs are active.
type Service struct {
	database *db.Database
	staging  *StagingArea
	logger   *slog.Logger

	repositories Repositories
	source       StageSettings
	environment  StageSettings

	// logRoot holds one log file per run, `<logRoot>/<slug>.log`
	logRoot string

	mutex sync.Mutex
	// active maps a run ID to its cancel function
	active map[string]context.CancelCauseFunc
	// busyRoots maps the rootKey of a destination root to the ID of the run using it
	busyRoots map[string]string

	runs sync.WaitGroup
}

// ServiceConfig mirrors the relevant fields of config.Config
// so this package does not import the config package.
type ServiceConfig struct {
	Repositories Repositories
	Source       StageSettings
	Environment  StageSettings
	LogRoot      string
}

// NewService constructs a Service with its required dependencies.
func NewService(database *db.Database, staging *StagingArea, logger *slog.Logger, config ServiceConfig) *Service {
	return &Service{
		database:     database,
		staging:      staging,
		logger:       logger,
		repositories: config.Repositories,
		source:       config.Source,
		environment:  config.Environment,
		logRoot:      config.LogRoot,
		active:       map[string]context.CancelCauseFunc{},
		busyRoots:    map[string]string{},
	}
}

// Start validates the request, records a pending provisioning and runs the pipeline
// in a background goroutine. the returned record is the freshly inserted row.
//
// the run outlives ctx: only its values (the logger) are kept, not its cancellation,
// since an HTTP request context is done as soon as the handler returns.
func (service *Service) Start(ctx context.Context, request models.ProvisionRequest) (*models.Provisioning, error) {
	if errValidate := ValidateRequest(request); errValidate != nil {
		return nil, errValidate
	}
	root, errAbs := filepath.Abs(request.DestinationRoot)
	if errAbs != nil {
		return nil, &FilesystemError{Operation: "resolve", Path: request.DestinationRoot, Err: errAbs}
	}
	key := rootKey(root)

	service.mutex.Lock()
	defer service.mutex.Unlock()

	if activeID, busy := service.busyRoots[key]; busy {
		return nil, fmt.Errorf("%w: %s is used by %s", ErrDestinationBusy, root, activeID)
	}

	provisioning := &models.Provisioning{
		ID:                 uuid.NewString(),
		Slug:               util.GenerateSlug(request.SourceVersion),
		SourceVersion:      request.SourceVersion,
		RuntimeVariant:     request.RuntimeVariant,
		DestinationRoot:    root,
		IncludeEnvironment: request.IncludeEnvironment,
		Status:             models.StatusPending,
	}
	if errInsert := service.database.InsertProvisioning(provisioning); errInsert != nil {
		return nil, errInsert
	}

	runContext, cancelRun := context.WithCancelCause(context.WithoutCancel(ctx))
	service.active[provisioning.ID] = cancelRun
	service.busyRoots[key] = provisioning.ID

	service.runs.Go(func() {
		defer service.release(provisioning.ID, key)
		service.run(runContext, provisioning)
	})

	return provisioning, nil
}

// rootKey identifies a destination root regardless of how it was spelled:
// relative or absolute, with or without symlinks in the path.
func rootKey(root string) string {
	absoluteRoot, errAbs := filepath.Abs(root)
	if errAbs != nil {
		return filepath.Clean(root)
	}
	if resolvedRoot, errResolve := filepath.EvalSymlinks(absoluteRoot); errResolve == nil {
		return resolvedRoot
	}
	return absoluteRoot
}

// release forgets a finished run.
func (service *Service) release(id, key string) {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	if cancelRun, ok := service.active[id]; ok {
		cancelRun(nil)
		delete(service.active, id)
	}
	if service.busyRoots[key] == id {
		delete(service.busyRoots, key)
	}
}

// run drives one orchestrator and mirrors its progress and result into the database.
func (service *Service) run(ctx context.Context, provisioning *models.Provisioning) {
	log := service.logger.With("id", provisioning.ID, "slug", provisioning.Slug)
	ctx = clog.WithLogger(ctx, clog.NewLogger(log))

	// ===== log file, non-fatal when it can not be opened
	var logWriter io.Writer = io.Discard
	logFile, errOpenLogFile := service.openLogFile(provisioning.Slug)
	if errOpenLogFile != nil {
		log.Error("failed to open provisioning log file", "error", errOpenLogFile)
	} else {
		defer logFile.Close()
		logWriter = logFile
	}

	if errStatus := service.database.UpdateStatus(provisioning.ID, models.StatusRunning); errStatus != nil {
		log.Error("failed to set status to running", "error", errStatus)
	}

	sink := SinkFuncs{
		Progress: func(stage models.StageName, event models.ProgressEvent) {
			if errProgress := service.database.UpdateProgress(provisioning.ID, event); errProgress != nil {
				log.Warn("failed to store progress (non-fatal)", "error", errProgress)
			}
		},
	}

	orchestrator := NewOrchestrator(provisioning.Request(), Dependencies{
		Staging:      service.staging,
		Repositories: service.repositories,
		Source:       service.source,
		Environment:  service.environment,
		LogWriter:    logWriter,
	}, sink)

	log.Info("provisioning started")
	result := orchestrator.Run(ctx)

	status := terminalStatus(result)
	if errComplete := service.database.CompleteProvisioning(provisioning.ID, status, result); errComplete != nil {
		log.Error("failed to store provisioning result", "error", errComplete)
	}
	log.Info("provisioning finished",
		"status", status,
		"error_kind", result.ErrorKind,
		"final_paths", result.FinalPaths,
	)
}

// terminalStatus maps a result to the persisted status.
func terminalStatus(result models.PipelineResult) models.ProvisioningStatus {
	switch {
	case result.Success:
		return models.StatusSucceeded
	case result.ErrorKind == models.ErrorKindCanceled:
		return models.StatusCanceled
	default:
		return models.StatusFailed
	}
}

// Cancel stops an active run. the run records its own canceled status once its
// clone process is gone.
func (service *Service) Cancel(id string) error {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	cancelRun, ok := service.active[id]
	if !ok {
		return ErrNotActive
	}
	cancelRun(errCanceledByUser)
	return nil
}

// IsActive reports whether the run with the given ID is still in flight.
func (service *Service) IsActive(id string) bool {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	_, ok := service.active[id]
	return ok
}

// hasActiveRuns reports whether any run is in flight.
func (service *Service) hasActiveRuns() bool {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	return len(service.active) > 0
}

// rootIsBusy reports whether a run is currently using root.
func (service *Service) rootIsBusy(root string) bool {
	service.mutex.Lock()
	defer service.mutex.Unlock()
	_, busy := service.busyRoots[rootKey(root)]
	return busy
}

// Delete removes a finished run's record and log file. provisioned trees on disk are
// never removed, they belong to the caller.
func (service *Service) Delete(id string) error {
	if service.IsActive(id) {
		return ErrStillActive
	}
	provisioning, errGet := service.database.GetProvisioning(id)
	if errGet != nil {
		return errGet
	}
	if errDelete := service.database.DeleteProvisioning(id); errDelete != nil {
		return errDelete
	}

	errRemove := os.Remove(service.LogPath(provisioning.Slug))
	if errRemove != nil && !os.IsNotExist(errRemove) {
		service.logger.Warn("failed to remove provisioning log file (non-fatal)",
			"slug", provisioning.Slug,
			"error", errRemove,
		)
	}
	return nil
}

// LogPath is the log file of the run with the given slug.
func (service *Service) LogPath(slug string) string {
	return filepath.Join(service.logRoot, slug+".log")
}

// openLogFile creates or opens the log file of a run in append mode.
// the log directory is created if it does not exist.
func (service *Service) openLogFile(slug string) (*os.File, error) {
	err := os.MkdirAll(service.logRoot, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	return os.OpenFile(service.LogPath(slug), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

// Shutdown cancels every active run and waits for them to record their result,
// or until ctx is done.
func (service *Service) Shutdown(ctx context.Context) error {
	service.mutex.Lock()
	for _, cancelRun := range service.active {
		cancelRun(errShuttingDown)
	}
	service.mutex.Unlock()

	finished := make(chan struct{})
	go func() {
		service.runs.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("provisionings still running at shutdown: %w", ctx.Err())
	}
}

// Wait blocks until every started run has finished.
func (service *Service) Wait() {
	service.runs.Wait()
}
