package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"constellation/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var list bool
	var raw bool

	cmd := &cobra.Command{
		Use:   "logs [run-id|latest]",
		Short: "Show a run's log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if list {
				runs, err := logs.List(cfg.Paths.LogDir)
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No run logs")
					return nil
				}
				spec := tableSpec{
					headers: []string{"Run", "Started", "Size"},
					aligns:  []columnAlignment{alignLeft, alignLeft, alignRight},
				}
				for _, run := range runs {
					spec.add(run.RunID, run.StartedAt.Local().Format(time.DateTime), humanize.IBytes(uint64(run.SizeBytes)))
				}
				fmt.Fprintln(out, spec.render())
				return nil
			}

			ref := ""
			if len(args) == 1 {
				ref = args[0]
			}
			run, err := logs.Find(cfg.Paths.LogDir, ref)
			if err != nil {
				return err
			}
			return logs.Tail(cmd.Context(), run.Path, logs.TailOptions{Lines: lines, Follow: follow}, func(line string) error {
				if !raw {
					line = logs.FormatLine(line)
				}
				_, err := fmt.Fprintln(out, line)
				return err
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show (0 for all)")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing lines as the run writes them")
	cmd.Flags().BoolVar(&list, "list", false, "List run logs instead of printing one")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print JSON records unformatted")
	return cmd
}
