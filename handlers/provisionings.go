package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/CybrosysAssista/Assista-IDE/db"
	"github.com/CybrosysAssista/Assista-IDE/models"
	"github.com/CybrosysAssista/Assista-IDE/provision"
)

// ProvisioningHandler holds the dependencies needed by all provisioning endpoints.
type ProvisioningHandler struct {
	database *db.Database
	logger   *slog.Logger
	service  *provision.Service
}

// NewProvisioningHandler constructs a ProvisioningHandler with its required dependencies.
func NewProvisioningHandler(
	database *db.Database,
	logger *slog.Logger,
	service *provision.Service,
) *ProvisioningHandler {
	return &ProvisioningHandler{
		database: database,
		logger:   logger,
		service:  service,
	}
}

// createProvisioningRequest is the JSON body of POST /api/provisionings.
// it is decoded separately from models.ProvisionRequest so the wire shape can
// grow without touching the pipeline input.
type createProvisioningRequest struct {
	SourceVersion      string `json:"source_version"`
	RuntimeVariant     string `json:"runtime_variant"`
	DestinationRoot    string `json:"destination_root"`
	IncludeEnvironment bool   `json:"include_environment"`
}

// errorResponse carries the machine readable kind next to the message,
// so clients can tell an unsupported version from a bad destination.
type errorResponse struct {
	Error     string           `json:"error"`
	ErrorKind models.ErrorKind `json:"error_kind,omitempty"`
}

// CreateProvisioning handles POST /api/provisionings.
// the request is validated synchronously, the clones run in the background.
// responds 202 Accepted with the pending record, its id is what clients poll.
func (handler *ProvisioningHandler) CreateProvisioning(responseWriter http.ResponseWriter, request *http.Request) {
	var body createProvisioningRequest
	if err := decodeJsonBody(responseWriter, request, &body); err != nil {
		writeErrorJsonAndLogIt(responseWriter, http.StatusBadRequest, "invalid JSON body: "+err.Error(), handler.logger)
		return
	}

	provisioning, err := handler.service.Start(request.Context(), models.ProvisionRequest{
		SourceVersion:      body.SourceVersion,
		RuntimeVariant:     body.RuntimeVariant,
		DestinationRoot:    body.DestinationRoot,
		IncludeEnvironment: body.IncludeEnvironment,
	})
	if err != nil {
		handler.writeStartError(responseWriter, err)
		return
	}

	handler.logger.Info("provisioning accepted",
		"id", provisioning.ID,
		"slug", provisioning.Slug,
		"source_version", provisioning.SourceVersion,
		"destination_root", provisioning.DestinationRoot,
	)
	writeJsonAndRespond(responseWriter, http.StatusAccepted, provisioning)
}

// writeStartError maps a rejected Start to a status code.
func (handler *ProvisioningHandler) writeStartError(responseWriter http.ResponseWriter, err error) {
	kind := models.KindOf(err)
	statusCode := http.StatusInternalServerError
	switch {
	case errors.Is(err, provision.ErrDestinationBusy):
		statusCode = http.StatusConflict
		kind = models.ErrorKindNone
	case kind == models.ErrorKindValidation:
		statusCode = http.StatusBadRequest
	case kind == models.ErrorKindUnsupportedVersion:
		statusCode = http.StatusUnprocessableEntity
	}

	if statusCode == http.StatusInternalServerError {
		handler.logger.Error("failed to start provisioning", "error", err)
		writeJsonAndRespond(responseWriter, statusCode, errorResponse{Error: "failed to start provisioning"})
		return
	}
	handler.logger.Info("provisioning rejected", "status", statusCode, "error", err)
	writeJsonAndRespond(responseWriter, statusCode, errorResponse{Error: err.Error(), ErrorKind: kind})
}

// ListProvisionings handles GET /api/provisionings, newest first.
// an empty table is [] and never null.
func (handler *ProvisioningHandler) ListProvisionings(responseWriter http.ResponseWriter, request *http.Request) {
	provisionings, err := handler.database.ListProvisionings()
	if err != nil {
		handler.logger.Error("failed to list provisionings", "error", err)
		writeErrorJsonAndLogIt(responseWriter, http.StatusInternalServerError, "failed to retrieve provisionings", handler.logger)
		return
	}
	writeJsonAndRespond(responseWriter, http.StatusOK, provisionings)
}

// GetProvisioning handles GET /api/provisionings/{uuid}.
// clients poll this for progress, current_stage and current_phase.
func (handler *ProvisioningHandler) GetProvisioning(responseWriter http.ResponseWriter, request *http.Request) {
	provisioning, ok := handler.lookup(responseWriter, request)
	if !ok {
		return
	}
	writeJsonAndRespond(responseWriter, http.StatusOK, provisioning)
}

// CancelProvisioning handles POST /api/provisionings/{uuid}/cancel.
// responds 202, the run records its canceled status once the clone process is gone.
func (handler *ProvisioningHandler) CancelProvisioning(responseWriter http.ResponseWriter, request *http.Request) {
	provisioning, ok := handler.lookup(responseWriter, request)
	if !ok {
		return
	}

	err := handler.service.Cancel(provisioning.ID)
	if errors.Is(err, provision.ErrNotActive) {
		writeJsonAndRespond(responseWriter, http.StatusConflict, errorResponse{Error: "provisioning already finished with status " + string(provisioning.Status)})
		return
	}
	if err != nil {
		writeErrorJsonAndLogIt(responseWriter, http.StatusInternalServerError, "failed to cancel provisioning", handler.logger)
		return
	}

	handler.logger.Info("provisioning cancel requested", "id", provisioning.ID, "slug", provisioning.Slug)
	writeJsonAndRespond(responseWriter, http.StatusAccepted, map[string]string{"id": provisioning.ID, "status": "canceling"})
}

// DeleteProvisioning handles DELETE /api/provisionings/{uuid}.
// removes the record and its log. provisioned directories are left in place.
func (handler *ProvisioningHandler) DeleteProvisioning(responseWriter http.ResponseWriter, request *http.Request) {
	provisioningID := chi.URLParam(request, "uuid")

	err := handler.service.Delete(provisioningID)
	switch {
	case errors.Is(err, db.ErrRecordNotFound):
		writeJsonAndRespond(responseWriter, http.StatusNotFound, errorResponse{Error: "provisioning not found"})
	case errors.Is(err, provision.ErrStillActive):
		writeJsonAndRespond(responseWriter, http.StatusConflict, errorResponse{Error: err.Error()})
	case err != nil:
		handler.logger.Error("failed to delete provisioning", "id", provisioningID, "error", err)
		writeErrorJsonAndLogIt(responseWriter, http.StatusInternalServerError, "failed to delete provisioning", handler.logger)
	default:
		handler.logger.Info("provisioning deleted", "id", provisioningID)
		responseWriter.WriteHeader(http.StatusNoContent)
	}
}

// GetProvisioningLogs handles GET /api/provisionings/{uuid}/logs as plain text.
func (handler *ProvisioningHandler) GetProvisioningLogs(responseWriter http.ResponseWriter, request *http.Request) {
	provisioning, ok := handler.lookup(responseWriter, request)
	if !ok {
		return
	}

	logContent, err := os.ReadFile(handler.service.LogPath(provisioning.Slug))
	if errors.Is(err, os.ErrNotExist) {
		writeJsonAndRespond(responseWriter, http.StatusNotFound, errorResponse{Error: "no log written for this provisioning yet"})
		return
	}
	if err != nil {
		handler.logger.Error("failed to read provisioning log", "slug", provisioning.Slug, "error", err)
		writeErrorJsonAndLogIt(responseWriter, http.StatusInternalServerError, "failed to read provisioning log", handler.logger)
		return
	}

	responseWriter.Header().Set("Content-Type", "text/plain; charset=utf-8")
	responseWriter.WriteHeader(http.StatusOK)
	responseWriter.Write(logContent) // nolint:errcheck
}

// lookup fetches the record named by the {uuid} route parameter, writing the
// error response itself when it can not.
func (handler *ProvisioningHandler) lookup(responseWriter http.ResponseWriter, request *http.Request) (*models.Provisioning, bool) {
	provisioningID := chi.URLParam(request, "uuid")
	provisioning, err := handler.database.GetProvisioning(provisioningID)
	if errors.Is(err, db.ErrRecordNotFound) {
		writeJsonAndRespond(responseWriter, http.StatusNotFound, errorResponse{Error: "provisioning not found"})
		return nil, false
	}
	if err != nil {
		handler.logger.Error("failed to get provisioning", "id", provisioningID, "error", err)
		writeErrorJsonAndLogIt(responseWriter, http.StatusInternalServerError, "failed to retrieve provisioning", handler.logger)
		return nil, false
	}
	return provisioning, true
}
