// Package cli is the command line surface: the HTTP control plane (serve), a one-shot
// provisioning run in the terminal (provision) and a few inspection commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/CybrosysAssista/Assista-IDE/config"
	"github.com/CybrosysAssista/Assista-IDE/db"
	"github.com/CybrosysAssista/Assista-IDE/docker"
	"github.com/CybrosysAssista/Assista-IDE/provision"
	"github.com/CybrosysAssista/Assista-IDE/runner"
)

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "assista",
		Short: "Provision versioned source trees and their runtime environments",
		Long: `assista clones a versioned application source tree and, optionally, its prebuilt
runtime environment into a destination directory. clones are staged next to their
final location and only appear there once they are complete.

configuration is read from the environment, see config.Config for every variable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newServeCommand(),
		newProvisionCommand(),
		newListCommand(),
		newPythonVersionsCommand(),
		newSweepCommand(),
		newManifestCommand(),
	)
	return rootCmd
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "error:", err)
		return 1
	}
	return 0
}

// environment is what every command builds first: config, logger and a context carrying the logger.
type environment struct {
	config *config.Config
	logger *slog.Logger
	ctx    context.Context
}

func loadEnvironment(cmd *cobra.Command) (*environment, error) {
	appConfig, err := config.Load(cmd.Context())
	if err != nil {
		return nil, err
	}
	logger := appConfig.NewLogger()
	return &environment{
		config: appConfig,
		logger: logger,
		ctx:    config.WithLogger(cmd.Context(), logger),
	}, nil
}

// openDatabase opens the configured database.
func (env *environment) openDatabase() (*db.Database, error) {
	return db.OpenDatabase(env.config.DBPath, env.logger)
}

// buildRunner picks the clone backend. the docker client is returned so the
// caller can close it and hand it to the sweeper, it is nil for the exec backend.
func (env *environment) buildRunner() (runner.Runner, *docker.DockerClient, error) {
	if env.config.CloneBackend != "docker" {
		return runner.NewExecRunner(runner.ExecRunnerConfig{KillGrace: env.config.KillGrace}), nil, nil
	}

	dockerClient, err := docker.NewClient(env.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize docker client: %w", err)
	}
	return docker.NewCloneContainerRunner(dockerClient, docker.CloneContainerRunnerConfig{
		Image:     env.config.CloneImage,
		KillGrace: env.config.KillGrace,
	}), dockerClient, nil
}

// buildStagingArea wires the runner into a staging area with the configured git settings.
func (env *environment) buildStagingArea(processRunner runner.Runner) (*provision.StagingArea, error) {
	extraEnv, err := runner.DecodeEnvironment(env.config.GitExtraEnv)
	if err != nil {
		return nil, fmt.Errorf("invalid GIT_EXTRA_ENV: %w", err)
	}
	return provision.NewStagingArea(processRunner, provision.StagingAreaConfig{
		GitBinary:        env.config.GitBinary,
		ExtraEnv:         extraEnv,
		ProgressThrottle: env.config.ProgressThrottle,
	}), nil
}

func (env *environment) repositories() provision.Repositories {
	return provision.Repositories{
		SourceURL:      env.config.SourceRepositoryURL,
		EnvironmentURL: env.config.EnvironmentRepositoryURL,
	}
}

func (env *environment) sourceSettings() provision.StageSettings {
	return provision.StageSettings{Deadline: env.config.SourceTimeout, Weight: env.config.SourceWeight}
}

func (env *environment) environmentSettings() provision.StageSettings {
	return provision.StageSettings{Deadline: env.config.EnvironmentTimeout, Weight: env.config.EnvironmentWeight}
}

// closeDockerClient is a no-op for the exec backend.
func closeDockerClient(dockerClient *docker.DockerClient, logger *slog.Logger) {
	if dockerClient == nil {
		return
	}
	if err := dockerClient.Close(); err != nil {
		logger.Warn("failed to close docker client", "error", err)
	}
}

// isTerminal reports whether progress written to output can be redrawn in place.
// only a character device qualifies, files, pipes and buffers do not.
func isTerminal(output io.Writer) bool {
	file, ok := output.(*os.File)
	if !ok {
		return false
	}
	info, err := file.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
