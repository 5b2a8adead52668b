package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldaxis/fieldsync/internal/model"
	"github.com/fieldaxis/fieldsync/internal/repo"
)

var listCmd = &cobra.Command{
	Use:   "list <leads|customers|quotations>",
	Short: "List cached records from the local database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := model.ParseKind(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		eng, err := buildEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		pendingOnly, _ := cmd.Flags().GetBool("pending")

		switch kind {
		case model.KindLeads:
			r := repo.NewLeadRepo(eng.db)
			filter := repo.ListLeadsFilter{Status: status, Limit: limit}
			if pendingOnly {
				filter.SyncStatus = string(model.StatusPending)
			}
			leads, err := r.List(ctx, filter)
			if err != nil {
				return err
			}
			for _, l := range leads {
				fmt.Printf("%-38s %-10s %-8s %-20s %s\n",
					l.ID, l.Status, l.SyncStatus, l.UpdatedAt.Local().Format(time.DateTime), l.Name)
			}
			fmt.Printf("%d leads\n", len(leads))

		case model.KindCustomers:
			r := repo.NewCustomerRepo(eng.db)
			region, _ := cmd.Flags().GetString("region")
			customers, err := r.ListByRegion(ctx, region, limit, 0)
			if err != nil {
				return err
			}
			if pendingOnly {
				customers, err = r.Pending(ctx)
				if err != nil {
					return err
				}
			}
			for _, c := range customers {
				fmt.Printf("%-38s %-12s %-8s %s\n", c.ID, c.Region, c.SyncStatus, c.Name)
			}
			fmt.Printf("%d customers\n", len(customers))

		case model.KindQuotations:
			r := repo.NewQuotationRepo(eng.db)
			var quotations []*model.Quotation
			switch {
			case pendingOnly:
				quotations, err = r.Pending(ctx)
			case status != "":
				quotations, err = r.ListByStatus(ctx, status)
			default:
				quotations, err = r.List(ctx)
			}
			if err != nil {
				return err
			}
			for _, q := range quotations {
				fmt.Printf("%-38s %-10s %10d %-4s %s\n",
					q.ID, q.Status, q.Amount, q.Currency, q.CustomerID)
			}
			fmt.Printf("%d quotations\n", len(quotations))
		}
		return nil
	},
}

func init() {
	listCmd.Flags().String("status", "", "filter by record status")
	listCmd.Flags().String("region", "", "filter customers by region")
	listCmd.Flags().Int("limit", 0, "maximum records to show (0 = all)")
	listCmd.Flags().Bool("pending", false, "only records with unpushed local changes")
	rootCmd.AddCommand(listCmd)
}
