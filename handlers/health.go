// Package handlers contains all HTTP handler functions of the provisioning API.
// each handler file groups related endpoints by resource or concern.
// handlers receive a decoded request, call into the db or provisioning service, and write a JSON response.
// no business logic lives in handlers; they are thin translation layers between HTTP and the domain.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// pinger is satisfied by *db.Database.
type pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	logger   *slog.Logger
	database pinger
}

// NewHealthHandler constructs a HealthHandler. a nil database makes /ready equal to /health.
func NewHealthHandler(inputLogger *slog.Logger, database pinger) *HealthHandler {
	return &HealthHandler{logger: inputLogger, database: database}
}

// healthResponse is the JSON body returned by both probes.
type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Database  string `json:"database,omitempty"`
}

// Health handles GET /health.
// the minimum signal that the process is alive and the HTTP stack works, no db check.
func (handler *HealthHandler) Health(responseWriter http.ResponseWriter, request *http.Request) {
	response := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	writeJsonAndRespond(responseWriter, http.StatusOK, response)
}

// Ready handles GET /ready. it answers 503 while the database is unreachable,
// since no provisioning can be recorded without it.
func (handler *HealthHandler) Ready(responseWriter http.ResponseWriter, request *http.Request) {
	response := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if handler.database == nil {
		writeJsonAndRespond(responseWriter, http.StatusOK, response)
		return
	}

	pingContext, cancelPing := context.WithTimeout(request.Context(), 2*time.Second)
	defer cancelPing()
	if err := handler.database.Ping(pingContext); err != nil {
		handler.logger.Warn("readiness check failed", "error", err)
		response.Status = "unavailable"
		response.Database = "unreachable"
		writeJsonAndRespond(responseWriter, http.StatusServiceUnavailable, response)
		return
	}
	response.Database = "ok"
	writeJsonAndRespond(responseWriter, http.StatusOK, response)
}
