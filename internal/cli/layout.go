package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mosaicviz/mosaic/pkg/export"
	"github.com/mosaicviz/mosaic/pkg/grid"
	"github.com/mosaicviz/mosaic/pkg/ingest"
	"github.com/mosaicviz/mosaic/pkg/layout"
)

// layoutOpts holds the command-line flags for the layout command.
type layoutOpts struct {
	configPath string
	outDir     string
	resolution int
	baseSize   float64
	floorSize  float64
	spacing    float64
	pitch      float64
	verify     bool
}

// newLayoutCmd creates the layout command: compute and export only the
// placement list, for re-running the physical layout with different
// sizing parameters without rebuilding the grid documents.
func newLayoutCmd() *cobra.Command {
	var opts layoutOpts

	cmd := &cobra.Command{
		Use:   "layout [input]",
		Short: "Compute the collision-free placement list for a point table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLayout(cmd, args[0], &opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "config file (default mosaic.toml if present)")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", "", "export directory (default \"out\")")
	cmd.Flags().IntVar(&opts.resolution, "resolution", 0, "grid resolution to place (default finest)")
	cmd.Flags().Float64Var(&opts.baseSize, "base-size", 0, "size of the densest item in board units")
	cmd.Flags().Float64Var(&opts.floorSize, "floor-size", 0, "minimum item size in board units")
	cmd.Flags().Float64Var(&opts.spacing, "spacing", 0, "minimum gap between items in board units")
	cmd.Flags().Float64Var(&opts.pitch, "pitch", 0, "cell pitch in board units (default base-size + spacing)")
	cmd.Flags().BoolVar(&opts.verify, "verify", false, "check the non-overlap invariant on the result")

	return cmd
}

func runLayout(cmd *cobra.Command, input string, opts *layoutOpts) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	popts := cfg.pipelineOptions(input)
	if opts.resolution != 0 {
		popts.LayoutResolution = opts.resolution
	}
	if opts.outDir != "" {
		popts.Export.Dir = opts.outDir
	}
	if popts.Export.Dir == "" {
		popts.Export.Dir = "out"
	}
	if cmd.Flags().Changed("base-size") {
		popts.Layout.BaseSize = opts.baseSize
	}
	if cmd.Flags().Changed("floor-size") {
		popts.Layout.FloorSize = opts.floorSize
	}
	if cmd.Flags().Changed("spacing") {
		popts.Layout.Spacing = opts.spacing
	}
	if cmd.Flags().Changed("pitch") {
		popts.Layout.Pitch = opts.pitch
	}
	if err := popts.ValidateAndSetDefaults(); err != nil {
		return err
	}

	p := newProgress(logger)

	in, err := ingest.ReadFile(ctx, input)
	if err != nil {
		return err
	}
	idx, err := grid.Build(in.Items, popts.Grid)
	if err != nil {
		return err
	}

	res := popts.LayoutResolution
	reps, err := idx.Representatives(res, popts.Policy)
	if err != nil {
		return err
	}
	scores, err := idx.CellDensities(res, popts.Norm)
	if err != nil {
		return err
	}

	items := idx.Items()
	candidates := make([]layout.Candidate, 0, len(reps))
	for key, rep := range reps {
		item := items[rep.ItemIdx]
		candidates = append(candidates, layout.Candidate{
			ID:      rep.ID,
			Cell:    key,
			Score:   scores[key],
			Caption: item.Caption(),
			URL:     item.URL(),
		})
	}

	placements, err := layout.Build(candidates, res, popts.Layout)
	if err != nil {
		return err
	}
	if opts.verify {
		if err := layout.VerifyNonOverlap(placements, popts.Layout.Spacing); err != nil {
			return err
		}
		logger.Info("non-overlap invariant verified", "placements", len(placements))
	}

	exp, err := export.New(popts.Export)
	if err != nil {
		return err
	}
	name, err := exp.WritePlacements(ctx, placements, popts.Layout)
	if err != nil {
		return err
	}

	p.done(fmt.Sprintf("Placed %d items at resolution %d into %s", len(placements), res, name))
	return nil
}
