package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fieldaxis/fieldsync/internal/model"
	"github.com/fieldaxis/fieldsync/internal/repo"
	"github.com/fieldaxis/fieldsync/internal/syncer"
)

var addLeadCmd = &cobra.Command{
	Use:   "add-lead <name>",
	Short: "Capture a new lead in the local cache",
	Long: `Capture a lead on the device. The record is stored locally with a
generated id and marked pending until the next push to the CRM. A sync
cycle is kicked off in the background when the device is online.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		phone, _ := cmd.Flags().GetString("phone")
		email, _ := cmd.Flags().GetString("email")
		source, _ := cmd.Flags().GetString("source")
		assignee, _ := cmd.Flags().GetString("assignee")

		lead := &model.Lead{
			Name:       args[0],
			Phone:      phone,
			Email:      email,
			Source:     source,
			Status:     "new",
			AssignedTo: assignee,
		}

		r := repo.NewLeadRepo(eng.db)
		if err := r.SaveLocal(ctx, lead); err != nil {
			return fmt.Errorf("failed to save lead: %w", err)
		}
		fmt.Printf("Lead %s saved (pending sync)\n", lead.ID)

		noSync, _ := cmd.Flags().GetBool("no-sync")
		if !noSync {
			result := eng.orch.Sync(ctx, syncer.TriggerPostMutation)
			if !result.Success && result.Err != syncer.OfflineError {
				eng.logger.Warn("post-save sync failed", zap.String("error", result.Err))
			}
		}
		return nil
	},
}

func init() {
	addLeadCmd.Flags().String("phone", "", "contact phone")
	addLeadCmd.Flags().String("email", "", "contact email")
	addLeadCmd.Flags().String("source", "", "lead source (referral, campaign, walk-in)")
	addLeadCmd.Flags().String("assignee", "", "sales rep the lead is assigned to")
	addLeadCmd.Flags().Bool("no-sync", false, "skip the post-save sync cycle")
	rootCmd.AddCommand(addLeadCmd)
}
