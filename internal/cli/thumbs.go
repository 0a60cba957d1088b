package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mosaicviz/mosaic/pkg/grid"
	"github.com/mosaicviz/mosaic/pkg/ingest"
	"github.com/mosaicviz/mosaic/pkg/thumbs"
)

// newThumbsCmd creates the thumbs command: download the representative
// thumbnails for an input without re-running the export.
func newThumbsCmd() *cobra.Command {
	var configPath, outDir, policy string

	cmd := &cobra.Command{
		Use:   "thumbs [input]",
		Short: "Download representative thumbnails for a point table",
		Long: `Thumbs bins the point table at the finest configured resolution,
selects each cell's representative, and downloads its image into
<out>/images/<resolution>/. Downloads are cached, so re-runs only
fetch representatives that changed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			popts := cfg.pipelineOptions(args[0])
			if policy != "" {
				popts.Policy = grid.Policy(policy)
			}
			if outDir != "" {
				popts.Export.Dir = outDir
			}
			if popts.Export.Dir == "" {
				popts.Export.Dir = "out"
			}
			if err := popts.ValidateAndSetDefaults(); err != nil {
				return err
			}

			c, err := cfg.Cache.open(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			p := newProgress(logger)
			in, err := ingest.ReadFile(ctx, args[0])
			if err != nil {
				return err
			}
			idx, err := grid.Build(in.Items, popts.Grid)
			if err != nil {
				return err
			}

			_, stats, err := thumbs.NewFetcher(c, logger).FetchAll(ctx, idx, popts.Policy, popts.Export.Dir)
			if err != nil {
				return err
			}
			p.done(fmt.Sprintf("Downloaded %d thumbnails (%d cached, %d skipped)",
				stats.Written, stats.Cached, stats.Skipped))
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default mosaic.toml if present)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "export directory (default \"out\")")
	cmd.Flags().StringVar(&policy, "policy", "", "representative policy: center or densest")

	return cmd
}
