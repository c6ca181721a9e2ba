package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/idlesign/sitemessage/internal/delivery"
)

func newCleanupCmd() *cobra.Command {
	var (
		configPath     string
		agoDays        int
		dispatchesOnly bool
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove delivered dispatches from the store",
		Long: "Deletes sent dispatches, their error log entries and messages left without " +
			"any dispatches. Use --ago to keep recent deliveries.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, conn, err := openStore(configPath)
			if err != nil {
				return err
			}

			if err := delivery.CleanupSent(conn, agoDays, dispatchesOnly); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cleanup finished.")
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVar(&agoDays, "ago", 0, "only remove dispatches delivered at least this many days ago")
	cmd.Flags().BoolVar(&dispatchesOnly, "dispatches-only", false, "keep message rows")
	return cmd
}
