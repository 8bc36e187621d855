package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/CybrosysAssista/Assista-IDE/handlers"
	"github.com/CybrosysAssista/Assista-IDE/provision"
)

// shutdownTimeout bounds both the HTTP drain and the wait for canceled runs
const shutdownTimeout = 30 * time.Second

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control plane",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	logger := env.logger
	appConfig := env.config

	logger.Info("assista control plane starting",
		"port", appConfig.Port,
		"db_path", appConfig.DBPath,
		"clone_backend", appConfig.CloneBackend,
		"log_format", appConfig.LogFormat,
	)

	// ===== database
	database, err := env.openDatabase()
	if err != nil {
		return err
	}
	defer database.CloseDatabase()

	// runs that were active when the last process died can never finish
	if _, err := database.MarkInterruptedRuns(); err != nil {
		return err
	}

	// ===== clone backend, staging and service
	processRunner, dockerClient, err := env.buildRunner()
	if err != nil {
		return err
	}
	defer closeDockerClient(dockerClient, logger)

	stagingArea, err := env.buildStagingArea(processRunner)
	if err != nil {
		return err
	}
	service := provision.NewService(database, stagingArea, logger, provision.ServiceConfig{
		Repositories: env.repositories(),
		Source:       env.sourceSettings(),
		Environment:  env.environmentSettings(),
		LogRoot:      appConfig.LogRoot,
	})

	// ===== signals
	// the first SIGINT/SIGTERM starts the graceful shutdown below
	signalContext, stopSignals := signal.NotifyContext(env.ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// ===== sweeper
	var reaper provision.ContainerReaper
	if dockerClient != nil {
		reaper = dockerClient
	}
	go service.StartSweepLoop(signalContext, appConfig.SweepInterval, appConfig.SweepMaxAge, reaper)

	// ===== http server
	router := handlers.CreateAndSetupRouter(handlers.RouterDependencies{
		Logger:     logger,
		Database:   database,
		Service:    service,
		Runner:     processRunner,
		CORSOrigin: appConfig.CORSOrigin,
	})
	server := &http.Server{
		Addr:              ":" + appConfig.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-signalContext.Done():
		logger.Info("shutdown signal received")
	}

	// ===== graceful shutdown
	// new requests stop first, then active runs are canceled and record their result
	shutdownContext, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownContext); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}
	if err := service.Shutdown(shutdownContext); err != nil {
		logger.Error("provisioning shutdown incomplete", "error", err)
	}

	logger.Info("assista control plane stopped")
	return nil
}
