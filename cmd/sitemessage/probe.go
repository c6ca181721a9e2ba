package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/idlesign/sitemessage/internal/config"
	"github.com/idlesign/sitemessage/internal/delivery"
	"github.com/idlesign/sitemessage/internal/messenger"
)

func newProbeCmd() *cobra.Command {
	var (
		configPath string
		messengerA string
		to         string
		text       string
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Send a test message through a messenger",
		Long: "Delivers a throwaway message through the given backend to verify credentials " +
			"and connectivity. Nothing is persisted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := fillSecrets(cmd, cfg, messengerA); err != nil {
				return err
			}

			// No store needed: the test message is never persisted.
			delivery.RegisterBuiltinMessageTypes()
			if err := messenger.RegisterConfigured(cfg); err != nil {
				return err
			}

			if err := delivery.SendTestMessage(cmd.Context(), messengerA, to, text); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Delivered through %s to %s\n", messengerA, to)
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&messengerA, "messenger", "smtp", "messenger alias to probe")
	cmd.Flags().StringVar(&to, "to", "", "recipient address")
	cmd.Flags().StringVar(&text, "text", "sitemessage test message", "message text")
	cmd.MarkFlagRequired("to")
	return cmd
}

// fillSecrets prompts for credentials the config leaves blank.
func fillSecrets(cmd *cobra.Command, cfg *config.Config, messengerAlias string) error {
	smtp := cfg.Messengers.SMTP
	if messengerAlias != "smtp" || smtp == nil || smtp.User == "" || smtp.Password != "" {
		return nil
	}

	fmt.Fprintf(cmd.OutOrStdout(), "SMTP password for %s: ", smtp.User)
	secret, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return fmt.Errorf("probe: read password: %w", err)
	}
	smtp.Password = string(secret)
	return nil
}
