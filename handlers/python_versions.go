package handlers

import (
	"log/slog"
	"net/http"

	"github.com/chainguard-dev/clog"

	"github.com/CybrosysAssista/Assista-IDE/provision"
	"github.com/CybrosysAssista/Assista-IDE/runner"
)

// PythonVersionsHandler reports the interpreters installed on the host, so a client
// can pick a runtime variant that matches an environment branch.
type PythonVersionsHandler struct {
	logger        *slog.Logger
	processRunner runner.Runner
}

// NewPythonVersionsHandler constructs a PythonVersionsHandler.
func NewPythonVersionsHandler(logger *slog.Logger, processRunner runner.Runner) *PythonVersionsHandler {
	return &PythonVersionsHandler{logger: logger, processRunner: processRunner}
}

type pythonVersionsResponse struct {
	Installations     []runner.PythonInstallation `json:"installations"`
	SupportedVersions []string                    `json:"supported_versions"`

	// SupportedVariants are the runtime variants with a published environment branch
	SupportedVariants []string `json:"supported_variants"`
}

// ListPythonVersions handles GET /api/python-versions.
func (handler *PythonVersionsHandler) ListPythonVersions(responseWriter http.ResponseWriter, request *http.Request) {
	ctx := clog.WithLogger(request.Context(), clog.NewLogger(handler.logger))

	installations := runner.DetectPythonVersions(ctx, handler.processRunner)
	if installations == nil {
		installations = []runner.PythonInstallation{}
	}
	writeJsonAndRespond(responseWriter, http.StatusOK, pythonVersionsResponse{
		Installations:     installations,
		SupportedVersions: provision.SupportedVersions(),
		SupportedVariants: provision.SupportedVariants(),
	})
}
