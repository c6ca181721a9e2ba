package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/idlesign/sitemessage/internal/models"
)

func newStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show dispatch store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, conn, err := openStore(configPath)
			if err != nil {
				return err
			}
			return runStatus(cmd, conn)
		},
	}

	addConfigFlag(cmd, &configPath)
	return cmd
}

func runStatus(cmd *cobra.Command, conn *gorm.DB) error {
	out := cmd.OutOrStdout()

	var messages, unprepared int64
	if err := conn.Model(&models.Message{}).Count(&messages).Error; err != nil {
		return fmt.Errorf("status: count messages: %w", err)
	}
	if err := conn.Model(&models.Message{}).Where("dispatches_ready = ?", false).Count(&unprepared).Error; err != nil {
		return fmt.Errorf("status: count unprepared: %w", err)
	}
	fmt.Fprintf(out, "Messages: %d (%d awaiting preparation)\n\n", messages, unprepared)

	statuses := []int{
		models.DispatchStatusPending,
		models.DispatchStatusProcessing,
		models.DispatchStatusSent,
		models.DispatchStatusError,
		models.DispatchStatusFailed,
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tDISPATCHES")
	for _, status := range statuses {
		var count int64
		if err := conn.Model(&models.Dispatch{}).Where("dispatch_status = ?", status).Count(&count).Error; err != nil {
			return fmt.Errorf("status: count dispatches: %w", err)
		}
		fmt.Fprintf(w, "%s\t%d\n", (&models.Dispatch{DispatchStatus: status}).StatusLabel(), count)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	var failed []models.Dispatch
	err := conn.Preload("Message").
		Where("dispatch_status = ?", models.DispatchStatusFailed).
		Order("id DESC").Limit(10).Find(&failed).Error
	if err != nil {
		return fmt.Errorf("status: load failed dispatches: %w", err)
	}
	if len(failed) == 0 {
		return nil
	}

	fmt.Fprintln(out, "\nRecent failures:")
	w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MESSAGE\tMESSENGER\tADDRESS\tRETRIES\tLAST ERROR")
	for _, d := range failed {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			d.Message.UUID, d.Messenger, d.Address, d.RetryCount, d.LastError)
	}
	return w.Flush()
}
