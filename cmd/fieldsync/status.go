package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldaxis/fieldsync/internal/ledger"
	"github.com/fieldaxis/fieldsync/internal/model"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local cache state and last sync per entity kind",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		staleAfter := eng.cfg.Sync.GetStaleAfter()

		fmt.Printf("%-12s %-12s %-8s %-20s %s\n", "KIND", "STATUS", "RECORDS", "LAST SYNC", "")
		for _, kind := range model.Kinds() {
			entry, err := eng.ledger.GetByKind(ctx, kind)
			if err != nil {
				return fmt.Errorf("failed to read sync state for %s: %w", kind, err)
			}
			if entry == nil {
				fmt.Printf("%-12s %-12s %-8s %-20s\n", kind, "never", "-", "-")
				continue
			}

			note := ""
			if stale, _ := eng.ledger.IsStale(ctx, kind, staleAfter); stale {
				note = "stale"
			}
			if entry.Status == ledger.StatusFailed && entry.ErrorMessage != "" {
				note = entry.ErrorMessage
			}
			fmt.Printf("%-12s %-12s %-8d %-20s %s\n",
				kind, entry.Status, entry.RecordCount,
				entry.LastSyncAt.Local().Format(time.DateTime), note)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
