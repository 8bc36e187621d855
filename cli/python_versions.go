package cli

import (
	"slices"

	"github.com/spf13/cobra"

	"github.com/CybrosysAssista/Assista-IDE/provision"
	"github.com/CybrosysAssista/Assista-IDE/runner"
)

func newPythonVersionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "python-versions",
		Short: "List the Python interpreters found on this host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}

			// always probe the host, the docker backend only ships git
			processRunner := runner.NewExecRunner(runner.ExecRunnerConfig{KillGrace: env.config.KillGrace})
			installations := runner.DetectPythonVersions(env.ctx, processRunner)

			publishedVariants := provision.SupportedVariants()
			table := newTable([]string{"Command", "Version", "Variant", "Published"}, cmd.OutOrStdout())
			for _, installation := range installations {
				published := "no"
				if slices.Contains(publishedVariants, installation.Variant) {
					published = "yes"
				}
				_ = table.Append([]string{installation.Command, installation.Version, installation.Variant, published})
			}
			return table.Render()
		},
	}
}
