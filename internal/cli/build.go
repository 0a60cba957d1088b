package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mosaicviz/mosaic/pkg/grid"
	"github.com/mosaicviz/mosaic/pkg/pipeline"
)

// buildOpts holds the command-line flags for the build command. Flags
// that were not set keep the config file's values.
type buildOpts struct {
	configPath  string
	outDir      string
	resolutions []int
	margin      float64
	policy      string
	norm        string
	layoutRes   int
	compress    bool
	thumbs      bool
}

// newBuildCmd creates the build command: the full pipeline from point
// table to export directory.
func newBuildCmd() *cobra.Command {
	var opts buildOpts

	cmd := &cobra.Command{
		Use:   "build [input]",
		Short: "Build grid documents and placements from a point table",
		Long: `Build runs the full pipeline: reads the projected point table, bins it
into the configured grid resolutions, selects one representative per
cell, scores density, computes the physical layout, and writes the
per-resolution JSON documents plus the placement list.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, args[0], &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "config file (default mosaic.toml if present)")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "export directory (default \"out\")")
	cmd.Flags().IntSliceVar(&opts.resolutions, "resolutions", nil, "grid resolutions, coarsest first")
	cmd.Flags().Float64Var(&opts.margin, "margin", 0, "bounding box margin fraction")
	cmd.Flags().StringVar(&opts.policy, "policy", "", "representative policy: center or densest")
	cmd.Flags().StringVar(&opts.norm, "norm", "", "density normalization: linear, log, or percentile")
	cmd.Flags().IntVar(&opts.layoutRes, "layout-resolution", 0, "resolution placed on the board (default finest)")
	cmd.Flags().BoolVar(&opts.compress, "compress", false, "write zstd-compressed grid documents")
	cmd.Flags().BoolVar(&opts.thumbs, "thumbs", false, "also download representative thumbnails")

	return cmd
}

func runBuild(cmd *cobra.Command, input string, opts *buildOpts) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	popts := cfg.pipelineOptions(input)
	if cmd.Flags().Changed("resolutions") {
		popts.Grid.Resolutions = opts.resolutions
	}
	if cmd.Flags().Changed("margin") {
		popts.Grid.Margin = opts.margin
	}
	if opts.policy != "" {
		popts.Policy = grid.Policy(opts.policy)
	}
	if opts.norm != "" {
		popts.Norm = grid.NormMethod(opts.norm)
	}
	if opts.layoutRes != 0 {
		popts.LayoutResolution = opts.layoutRes
	}
	if opts.outDir != "" {
		popts.Export.Dir = opts.outDir
	}
	if popts.Export.Dir == "" {
		popts.Export.Dir = "out"
	}
	if cmd.Flags().Changed("compress") {
		popts.Export.Compress = opts.compress
	}
	popts.Thumbs = opts.thumbs

	var runner *pipeline.Runner
	if opts.thumbs {
		c, err := cfg.Cache.open(ctx)
		if err != nil {
			return err
		}
		defer c.Close()
		runner = pipeline.NewRunner(c, logger)
	} else {
		runner = pipeline.NewRunner(nil, logger)
	}

	p := newProgress(logger)
	result, err := runner.Execute(ctx, popts)
	if err != nil {
		return err
	}
	p.done(fmt.Sprintf("Exported %d documents to %s (run %s)",
		len(result.Manifest.Documents), popts.Export.Dir, result.Manifest.RunID))
	return nil
}
