package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/idlesign/sitemessage/internal/delivery"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

func newSendCmd() *cobra.Command {
	var (
		configPath     string
		priority       int
		messengers     []string
		ignoreUnknownM bool
		ignoreUnknownT bool
		cronExpr       string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Deliver scheduled messages",
		Long: "Runs a send pass over pending dispatches. With --cron the command keeps running " +
			"and fires a pass on the given 5-field schedule until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, conn, err := openStore(configPath)
			if err != nil {
				return err
			}

			opts := delivery.SendOpts{
				Messengers:                messengers,
				IgnoreUnknownMessengers:   ignoreUnknownM,
				IgnoreUnknownMessageTypes: ignoreUnknownT,
			}
			if cmd.Flags().Changed("priority") {
				opts.Priority = &priority
			}

			if cronExpr == "" {
				return runSendPass(cmd, conn, opts)
			}
			return runSendLoop(cmd, conn, opts, cronExpr)
		},
	}

	addConfigFlag(cmd, &configPath)
	cmd.Flags().IntVar(&priority, "priority", 0, "only send messages with this exact priority")
	cmd.Flags().StringSliceVar(&messengers, "messengers", nil, "only send through these messenger aliases")
	cmd.Flags().BoolVar(&ignoreUnknownM, "ignore-unknown-messengers", false, "skip dispatches for unregistered messengers")
	cmd.Flags().BoolVar(&ignoreUnknownT, "ignore-unknown-message-types", false, "skip dispatches of unregistered message types")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "keep running, firing a pass on this 5-field cron schedule")
	return cmd
}

func runSendPass(cmd *cobra.Command, conn *gorm.DB, opts delivery.SendOpts) error {
	report, err := delivery.SendScheduled(cmd.Context(), conn, opts)
	printReport(cmd, report)
	return err
}

func runSendLoop(cmd *cobra.Command, conn *gorm.DB, opts delivery.SendOpts, cronExpr string) error {
	sched, err := cronParser.Parse(cronExpr)
	if err != nil {
		return fmt.Errorf("send: parse cron %q: %w", cronExpr, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Send loop started with schedule %q\n", cronExpr)

	for {
		next := sched.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-ctx.Done():
			timer.Stop()
			fmt.Fprintln(out, "Send loop stopped.")
			return nil
		case <-timer.C:
		}

		report, err := delivery.SendScheduled(ctx, conn, opts)
		if err != nil {
			fmt.Fprintf(out, "Pass failed: %v\n", err)
		}
		printReport(cmd, report)
	}
}

func printReport(cmd *cobra.Command, report delivery.Report) {
	fmt.Fprintf(cmd.OutOrStdout(), "Sent %d, failed %d, errored %d, requeued %d, skipped %d\n",
		report.Sent, report.Failed, report.Errored, report.Requeued, report.Skipped)
}
