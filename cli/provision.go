package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/CybrosysAssista/Assista-IDE/models"
	"github.com/CybrosysAssista/Assista-IDE/provision"
)

type provisionOptions struct {
	sourceVersion      string
	runtimeVariant     string
	destinationRoot    string
	includeEnvironment bool
	verbose            bool
	skipManifest       bool
}

func newProvisionCommand() *cobra.Command {
	options := &provisionOptions{}
	provisionCmd := &cobra.Command{
		Use:   "provision",
		Short: "Provision a source tree (and optionally its environment) in the foreground",
		Example: `  assista provision --version 17.0 --root /srv/odoo
  assista provision --version 18.0 --variant 3.12 --environment --root /srv/odoo`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(cmd, options)
		},
	}
	flags := provisionCmd.Flags()
	flags.StringVar(&options.sourceVersion, "version", "", "source version to provision, eg 17.0")
	flags.StringVar(&options.runtimeVariant, "variant", "", "runtime variant of the environment, eg 3.12")
	flags.StringVarP(&options.destinationRoot, "root", "r", "", "existing writable directory to provision into")
	flags.BoolVar(&options.includeEnvironment, "environment", false, "also provision the runtime environment into <root>/venv")
	flags.BoolVarP(&options.verbose, "verbose", "v", false, "print git output the progress parser did not recognize")
	flags.BoolVar(&options.skipManifest, "no-manifest", false, "do not write the manifest into the root")
	provisionCmd.MarkFlagRequired("version") // nolint:errcheck
	provisionCmd.MarkFlagRequired("root")    // nolint:errcheck
	return provisionCmd
}

func runProvision(cmd *cobra.Command, options *provisionOptions) error {
	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}

	processRunner, dockerClient, err := env.buildRunner()
	if err != nil {
		return err
	}
	defer closeDockerClient(dockerClient, env.logger)

	stagingArea, err := env.buildStagingArea(processRunner)
	if err != nil {
		return err
	}

	// Ctrl-C cancels the running clone, the staging directory is cleaned up on the way out
	ctx, stopSignals := signal.NotifyContext(env.ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	var logWriter io.Writer
	if options.verbose {
		logWriter = cmd.ErrOrStderr()
	}

	output := cmd.OutOrStdout()
	sink := newTerminalSink(output, isTerminal(output), options.verbose)
	orchestrator := provision.NewOrchestrator(models.ProvisionRequest{
		SourceVersion:      options.sourceVersion,
		RuntimeVariant:     options.runtimeVariant,
		DestinationRoot:    options.destinationRoot,
		IncludeEnvironment: options.includeEnvironment,
	}, provision.Dependencies{
		Staging:      stagingArea,
		Repositories: env.repositories(),
		Source:       env.sourceSettings(),
		Environment:  env.environmentSettings(),
		LogWriter:    logWriter,
		SkipManifest: options.skipManifest,
	}, sink)

	result := orchestrator.Run(ctx)
	if !result.Success {
		return fmt.Errorf("provisioning failed (%s): %s", result.ErrorKind, result.ErrorMessage)
	}
	return nil
}
