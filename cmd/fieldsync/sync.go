package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldaxis/fieldsync/internal/model"
	"github.com/fieldaxis/fieldsync/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle against the CRM API",
	Long: `Run a single synchronization cycle: fetch leads, customers, and
quotations from the FieldAxis CRM API and merge them into the local
cache. Remote records win only when strictly newer than the local copy.

Exits non-zero when the cycle fails (offline, authentication, or a
persistence error).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		result := eng.orch.Sync(ctx, syncer.TriggerManual)
		if !result.Success {
			if result.Err == syncer.OfflineError {
				return fmt.Errorf("device is offline, sync skipped")
			}
			return fmt.Errorf("sync failed: %s", result.Err)
		}

		elapsed := result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond)
		fmt.Printf("Sync completed in %s\n", elapsed)
		for _, kind := range model.Kinds() {
			fmt.Printf("  %-12s %d records\n", kind, result.RecordCounts[kind])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
