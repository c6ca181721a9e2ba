package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/idlesign/sitemessage/internal/delivery"
	"github.com/idlesign/sitemessage/internal/models"
)

func newScheduleCmd() *cobra.Command {
	var (
		configPath string
		typeAlias  string
		text       string
		subject    string
		messengerA string
		to         []string
		sender     string
		priority   int
		lenient    bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a message for delivery",
		Long: "Creates a message of the given type and expands it into per-recipient dispatches. " +
			"Without --to the expansion is deferred until 'prepare' resolves recipients from subscriptions.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if text == "" {
				return fmt.Errorf("schedule: --text is required")
			}

			_, conn, err := openStore(configPath)
			if err != nil {
				return err
			}

			context := models.Context{delivery.SimpleTextKey: text}
			if subject != "" {
				context[delivery.SubjectKey] = subject
			}

			opts := delivery.ScheduleOpts{Sender: sender, Lenient: lenient}
			if cmd.Flags().Changed("priority") {
				opts.Priority = &priority
			}
			if len(to) > 0 {
				recipients, err := delivery.Recipients(messengerA, to...)
				if err != nil {
					return err
				}
				opts.Recipients = recipients
			}

			out, err := delivery.Schedule(conn, typeAlias, context, opts)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Scheduled message %s (%s) with %s\n",
				out.Message.UUID, typeAlias, plural(len(out.Dispatches), "dispatch", "dispatches"))
			return nil
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().StringVar(&typeAlias, "type", "plain", "message type alias")
	cmd.Flags().StringVar(&text, "text", "", "message text")
	cmd.Flags().StringVar(&subject, "subject", "", "message subject (e-mail types)")
	cmd.Flags().StringVar(&messengerA, "messenger", "smtp", "messenger alias for --to recipients")
	cmd.Flags().StringArrayVar(&to, "to", nil, "recipient address (repeatable)")
	cmd.Flags().StringVar(&sender, "sender", "", "opaque sender reference")
	cmd.Flags().IntVar(&priority, "priority", 0, "override the type's default priority")
	cmd.Flags().BoolVar(&lenient, "lenient", false, "drop recipients for unknown or unsupported messengers")
	return cmd
}
