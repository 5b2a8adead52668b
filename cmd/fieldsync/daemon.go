package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fieldaxis/fieldsync/internal/dashboard"
	"github.com/fieldaxis/fieldsync/internal/scheduler"
	"github.com/fieldaxis/fieldsync/internal/syncer"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the sync engine as a long-lived process",
	Long: `Run fieldsync as a daemon: sync cycles fire on the configured cron
schedule, and the local dashboard (when enabled) serves sync status over
HTTP plus live sync events over WebSocket.

Example config:

  scheduler:
    enabled: true
    cron: "@every 15m"
  dashboard:
    enabled: true
    port: 8844

Press Ctrl+C to stop. An in-flight sync cycle finishes the current
entity kind before the process exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		sched := scheduler.New(eng.cfg.Scheduler, eng.orch.Sync, eng.logger)
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()

		var dash *dashboard.Server
		if eng.cfg.Dashboard.Enabled {
			dash = dashboard.New(eng.cfg.Dashboard.Addr(), eng.orch, eng.ledger, eng.logger)
			if err := dash.Start(); err != nil {
				return err
			}
			fmt.Printf("Dashboard: http://%s  (ws://%s/ws)\n", dash.Addr(), dash.Addr())
		}

		syncNow, _ := cmd.Flags().GetBool("sync-on-start")
		if syncNow {
			go func() {
				result := eng.orch.Sync(context.Background(), syncer.TriggerManual)
				if !result.Success {
					eng.logger.Warn("initial sync failed", zap.String("error", result.Err))
				}
			}()
		}

		fmt.Println("fieldsync daemon running, press Ctrl+C to stop")

		sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer stop()
		<-sigCtx.Done()

		fmt.Println("\nShutting down...")
		eng.orch.CancelSync()
		if dash != nil {
			if err := dash.Stop(); err != nil {
				eng.logger.Warn("dashboard shutdown error", zap.Error(err))
			}
		}
		return nil
	},
}

func init() {
	daemonCmd.Flags().Bool("sync-on-start", true, "run a sync cycle immediately on startup")
	rootCmd.AddCommand(daemonCmd)
}
