package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"constellation/internal/config"
	"constellation/internal/pipeline"
)

func newManifestCommand() *cobra.Command {
	manifestCmd := &cobra.Command{
		Use:   "manifest",
		Short: "Inspect run manifests",
	}
	manifestCmd.AddCommand(newManifestShowCommand())
	return manifestCmd
}

func newManifestShowCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:         "show <path>",
		Short:       "Print a manifest as JSON or YAML",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			manifest, err := pipeline.ReadManifest(path)
			if err != nil {
				return err
			}
			switch strings.ToLower(strings.TrimSpace(format)) {
			case "", "json":
				return writeJSON(cmd, manifest)
			case "yaml", "yml":
				return writeYAML(cmd, manifest)
			default:
				return fmt.Errorf("unsupported format %q (use json or yaml)", format)
			}
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "json", "Output format: json or yaml")
	return cmd
}
