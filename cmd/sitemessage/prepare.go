package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/idlesign/sitemessage/internal/subscription"
)

func newPrepareCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "prepare",
		Short: "Create dispatches for messages awaiting recipients",
		Long:  "Expands messages scheduled without recipients using the current subscriber lists.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, conn, err := openStore(configPath)
			if err != nil {
				return err
			}

			created, err := subscription.PrepareDispatches(conn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s\n", plural(created, "dispatch", "dispatches"))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}
