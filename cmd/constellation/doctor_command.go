package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"constellation/internal/artifacts"
	"constellation/internal/cache"
	"constellation/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check directories, the artifact database and API credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg, preflight.Options{RequireServices: !offline})
			err = ctx.withCache(func(store *artifacts.Store, _ *cache.Manager) error {
				results = append(results, preflight.CheckDatabase(cmd.Context(), "Artifact database", store))
				return nil
			})
			if err != nil {
				results = append(results, preflight.Result{Name: "Artifact database", Detail: err.Error()})
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, line := range renderSectionHeader("Constellation doctor", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, r := range results {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d of %d checks failed", len(failed), len(results))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the network checks against the LLM and speech APIs")
	return cmd
}
