package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/CybrosysAssista/Assista-IDE/provision"
)

func newManifestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "manifest <root>",
		Short: "Show what was provisioned into a destination root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := provision.ReadManifest(args[0])
			if err != nil {
				return err
			}

			output := cmd.OutOrStdout()
			fmt.Fprintf(output, "source version:  %s\n", manifest.SourceVersion)
			if manifest.RuntimeVariant != "" {
				fmt.Fprintf(output, "runtime variant: %s\n", manifest.RuntimeVariant)
			}
			fmt.Fprintf(output, "provisioned at:  %s\n\n", manifest.ProvisionedAt.Local().Format("2006-01-02 15:04:05"))

			table := newTable([]string{"Stage", "Branch", "Path", "Commit", "Duration"}, output)
			for _, stage := range manifest.Stages {
				_ = table.Append([]string{
					string(stage.Stage),
					stage.Branch,
					stage.FinalPath,
					shortCommit(stage.Commit),
					stage.Duration.Round(time.Millisecond).String(),
				})
			}
			return table.Render()
		},
	}
}
