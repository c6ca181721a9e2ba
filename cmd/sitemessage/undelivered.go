package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/idlesign/sitemessage/internal/delivery"
)

func newUndeliveredCmd() *cobra.Command {
	var (
		configPath string
		to         []string
	)

	cmd := &cobra.Command{
		Use:   "undelivered",
		Short: "Report permanently failed dispatches",
		Long: "Counts dispatches that failed permanently and e-mails a notice to the given " +
			"addresses (defaulting to the configured admins).",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, conn, err := openStore(configPath)
			if err != nil {
				return err
			}

			recipients := to
			if len(recipients) == 0 {
				recipients = cfg.Admins
			}

			count, err := delivery.CheckUndelivered(cmd.Context(), conn, recipients, cfg.Site.BaseURL)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if count == 0 {
				fmt.Fprintln(out, "No undelivered dispatches.")
				return nil
			}
			fmt.Fprintf(out, "%s undelivered\n", plural(count, "dispatch", "dispatches"))
			if len(recipients) == 0 {
				fmt.Fprintln(out, "No notice recipients configured; nothing sent.")
			}
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringArrayVar(&to, "to", nil, "notice recipient address (repeatable)")
	return cmd
}
