package handlers

// router.go constructs the chi router, registers all middleware, and wires all
// routes to their respective handlers. it is the single source of truth for
// the HTTP surface of the provisioning API.

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/CybrosysAssista/Assista-IDE/db"
	"github.com/CybrosysAssista/Assista-IDE/provision"
	"github.com/CybrosysAssista/Assista-IDE/runner"
)

// RouterDependencies groups all external dependencies that the router and its handlers need.
type RouterDependencies struct {
	Logger   *slog.Logger
	Database *db.Database
	Service  *provision.Service

	// Runner probes the host interpreters for /api/python-versions
	Runner runner.Runner

	// CORSOrigin is the allowed browser origin
	CORSOrigin string
}

// CreateAndSetupRouter constructs the chi multiplexer, attaches middleware, constructs
// all handlers with their dependencies, and registers all routes.
// it returns a plain http.Handler so the caller needs no chi import.
func CreateAndSetupRouter(dependencies RouterDependencies) http.Handler {
	router := chi.NewRouter()

	// middleware runs top to bottom on every request
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger) // TODO replace with a custom slog middleware
	router.Use(middleware.Recoverer)
	if dependencies.CORSOrigin != "" {
		router.Use(CORSMiddleware(dependencies.CORSOrigin))
	}

	// --- handler construction ---
	// each handler receives only the dependencies it actually needs
	healthHandler := NewHealthHandler(dependencies.Logger, dependencies.Database)
	provisioningHandler := NewProvisioningHandler(dependencies.Database, dependencies.Logger, dependencies.Service)
	pythonVersionsHandler := NewPythonVersionsHandler(dependencies.Logger, dependencies.Runner)

	// --- route registration ---

	// probes and metrics stay at the root, infrastructure expects them there
	router.Get("/health", healthHandler.Health)
	router.Get("/ready", healthHandler.Ready)
	router.Handle("/metrics", promhttp.Handler())

	router.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Get("/provisionings", provisioningHandler.ListProvisionings)
		apiRouter.Post("/provisionings", provisioningHandler.CreateProvisioning)

		apiRouter.Get("/provisionings/{uuid}", provisioningHandler.GetProvisioning)
		apiRouter.Delete("/provisionings/{uuid}", provisioningHandler.DeleteProvisioning)
		apiRouter.Post("/provisionings/{uuid}/cancel", provisioningHandler.CancelProvisioning)
		apiRouter.Get("/provisionings/{uuid}/logs", provisioningHandler.GetProvisioningLogs)

		apiRouter.Get("/python-versions", pythonVersionsHandler.ListPythonVersions)
	})

	return router
}
