package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"constellation/internal/artifacts"
	"constellation/internal/cache"
)

func newSpendCommand(ctx *commandContext) *cobra.Command {
	var runs int

	cmd := &cobra.Command{
		Use:   "spend",
		Short: "Report estimated spend against the budgets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return ctx.withCache(func(store *artifacts.Store, manager *cache.Manager) error {
				daily, err := manager.SpentSince(cmd.Context(), time.Now().Add(-24*time.Hour))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				kind := statusOK
				if limit := cfg.Budget.MaxDailyUSD; limit > 0 && daily >= limit*0.8 {
					kind = statusWarn
				}
				fmt.Fprintln(out, renderStatusLine("Last 24h", kind, formatBudget(daily, cfg.Budget.MaxDailyUSD), colorize))
				fmt.Fprintln(out, renderStatusLine("Episode cap", statusInfo, formatLimit(cfg.Budget.MaxEpisodeUSD), colorize))

				if runs <= 0 {
					return nil
				}
				history, err := store.SpentByRun(cmd.Context(), runs)
				if err != nil {
					return err
				}
				if len(history) == 0 {
					fmt.Fprintln(out, "No recorded runs")
					return nil
				}
				spec := tableSpec{
					headers: []string{"Run", "Computes", "Spend", "Last activity"},
					aligns:  []columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
				}
				total := 0.0
				for _, r := range history {
					total += r.TotalUSD
					spec.add(r.RunID, strconv.Itoa(r.Computes), formatUSD(r.TotalUSD), humanize.Time(r.LastAt))
				}
				spec.footer = []string{"Total", "", formatUSD(total), ""}
				fmt.Fprintln(out, spec.render())
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&runs, "runs", 10, "Number of recent runs to list (0 to skip)")
	return cmd
}

func formatUSD(v float64) string {
	return "$" + humanize.FormatFloat("#,###.##", v)
}

func formatLimit(limit float64) string {
	if limit <= 0 {
		return "unlimited"
	}
	return formatUSD(limit)
}

func formatBudget(spent, limit float64) string {
	return fmt.Sprintf("%s of %s", formatUSD(spent), formatLimit(limit))
}
