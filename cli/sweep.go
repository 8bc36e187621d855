package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/CybrosysAssista/Assista-IDE/provision"
)

func newSweepCommand() *cobra.Command {
	var maxAge time.Duration
	sweepCmd := &cobra.Command{
		Use:   "sweep [root...]",
		Short: "Remove staging leftovers of interrupted runs",
		Long: `sweep removes staging and aside directories older than --max-age directly under
each root. without arguments every destination root recorded in the database is swept.
do not sweep a root while a provisioning into it is running.`,
		RunE: func(cmd *cobra.Command, roots []string) error {
			env, err := loadEnvironment(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-age") {
				maxAge = env.config.SweepMaxAge
			}

			if len(roots) == 0 {
				database, err := env.openDatabase()
				if err != nil {
					return err
				}
				defer database.CloseDatabase()
				if roots, err = database.ListDestinationRoots(); err != nil {
					return err
				}
			}

			now := time.Now()
			var errs []error
			removedCount := 0
			for _, root := range roots {
				removed, err := provision.SweepRoot(root, maxAge, now)
				for _, removedPath := range removed {
					fmt.Fprintln(cmd.OutOrStdout(), "removed", removedPath)
				}
				removedCount += len(removed)
				if err != nil {
					errs = append(errs, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "swept %d root(s), removed %d leftover(s)\n", len(roots), removedCount)
			return errors.Join(errs...)
		},
	}
	sweepCmd.Flags().DurationVar(&maxAge, "max-age", time.Hour, "only remove leftovers older than this (default SWEEP_MAX_AGE)")
	return sweepCmd
}
