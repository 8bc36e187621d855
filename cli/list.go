package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/CybrosysAssista/Assista-IDE/models"
)

func newListCommand() *cobra.Command {
	var asJSON bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded provisionings, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			database, err := env.openDatabase()
			if err != nil {
				return err
			}
			defer database.CloseDatabase()

			provisionings, err := database.ListProvisionings()
			if err != nil {
				return err
			}

			if asJSON {
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(provisionings)
			}

			table := newTable([]string{"Slug", "Version", "Variant", "Root", "Status", "Progress", "Paths", "Created"}, cmd.OutOrStdout())
			for _, provisioning := range provisionings {
				_ = table.Append(provisioningRow(provisioning))
			}
			return table.Render()
		},
	}
	listCmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return listCmd
}

func provisioningRow(provisioning *models.Provisioning) []string {
	status := string(provisioning.Status)
	if provisioning.ErrorKind != models.ErrorKindNone {
		status += " (" + string(provisioning.ErrorKind) + ")"
	}
	variant := provisioning.RuntimeVariant
	if variant == "" {
		variant = "-"
	}
	return []string{
		provisioning.Slug,
		provisioning.SourceVersion,
		variant,
		provisioning.DestinationRoot,
		status,
		fmt.Sprintf("%d%%", provisioning.Progress),
		formatFinalPaths(provisioning.FinalPaths),
		provisioning.CreatedAt.Local().Format("2006-01-02 15:04"),
	}
}

// formatFinalPaths lists committed stages in a stable order.
func formatFinalPaths(finalPaths map[models.StageName]string) string {
	if len(finalPaths) == 0 {
		return "-"
	}
	stages := make([]string, 0, len(finalPaths))
	for stage := range finalPaths {
		stages = append(stages, string(stage))
	}
	sort.Strings(stages)
	parts := make([]string, 0, len(stages))
	for _, stage := range stages {
		parts = append(parts, stage+"="+finalPaths[models.StageName(stage)])
	}
	return strings.Join(parts, " ")
}
