// Package cli implements the mosaic command-line interface.
//
// Commands:
//   - build: run the full pipeline (ingest → index → layout → export)
//   - layout: compute and export only the physical placement list
//   - thumbs: download representative thumbnails for an input
//   - serve: serve an export directory for the web viewer
//   - cache: manage the thumbnail download cache
//
// All commands support --verbose (-v) for debug-level logging. Loggers
// are passed through context.Context so library code stays free of
// global logging state.
package cli

import (
	"context"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/mosaicviz/mosaic/pkg/buildinfo"
)

// Execute runs the mosaic CLI and returns an error if any command fails.
func Execute(ctx context.Context) error {
	var verbose bool

	root := &cobra.Command{
		Use:          "mosaic",
		Short:        "Mosaic aggregates projected items into multi-resolution grid maps",
		Long:         `Mosaic turns a flat table of 2D-projected items into a multi-resolution grid hierarchy with one representative per cell, density-scaled collision-free placements, and JSON documents for the web viewer and the board uploader.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			logger := newLogger(os.Stderr, level)
			registerHooks(logger)
			cmd.SetContext(withLogger(cmd.Context(), logger))
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	root.AddCommand(newBuildCmd())
	root.AddCommand(newLayoutCmd())
	root.AddCommand(newThumbsCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newCacheCmd())

	return root.ExecuteContext(ctx)
}
