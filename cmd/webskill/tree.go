package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jingkaihe/webskill/pkg/detect"
	"github.com/jingkaihe/webskill/pkg/presenter"
	"github.com/jingkaihe/webskill/pkg/rundir"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Post-process the controls tree of a run",
	Long:  `Filter the controls tree, segment the page into blocks and draw overlays.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var treeFilterCmd = &cobra.Command{
	Use:   "filter <run_dir>",
	Short: "Drop undersized and oversized nodes from the controls tree",
	Long: `Apply the size gate to controls_tree.json and write controls_tree.filtered.json.

Defaults can be set in the tree.filter section of the configuration file;
flags take precedence.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts, err := getFilterOptions(cmd.Flags())
		if err != nil {
			presenter.Error(err, "Invalid filter options")
			os.Exit(1)
		}
		out, err := detect.FilterRun(rundir.Dir(args[0]), opts)
		if err != nil {
			presenter.Error(err, "Failed to filter controls tree")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("Filtered tree written to %s", out))
	},
}

var treeBlocksCmd = &cobra.Command{
	Use:   "blocks <run_dir>",
	Short: "Segment the page into content blocks",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts := detect.DefaultBlockOptions()
		if cmd.Flags().Changed("max-blocks") {
			opts.MaxBlocks, _ = cmd.Flags().GetInt("max-blocks")
		}
		blocks, err := detect.SegmentRun(rundir.Dir(args[0]), opts)
		if err != nil {
			presenter.Error(err, "Failed to segment blocks")
			os.Exit(1)
		}
		presenter.Section(fmt.Sprintf("%d blocks", len(blocks.Blocks)))
		for _, b := range blocks.Blocks {
			name := b.Name
			if name == "" {
				name = b.ID
			}
			presenter.Info(fmt.Sprintf("%-8s %s  %s", b.ID, name, b.Selector))
		}
	},
}

var treeOverlayCmd = &cobra.Command{
	Use:   "overlay <run_dir>",
	Short: "Draw the controls tree over the screenshot",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts := detect.DefaultOverlayOptions()
		if cmd.Flags().Changed("min-thickness") {
			opts.MinThickness, _ = cmd.Flags().GetInt("min-thickness")
		}
		if cmd.Flags().Changed("max-thickness") {
			opts.MaxThickness, _ = cmd.Flags().GetInt("max-thickness")
		}
		opts.FillAlpha, _ = cmd.Flags().GetUint8("fill-alpha")
		opts.UsePageBBox, _ = cmd.Flags().GetBool("page-bbox")

		out, err := detect.OverlayRun(rundir.Dir(args[0]), opts)
		if err != nil {
			presenter.Error(err, "Failed to draw overlay")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("Overlay written to %s", out))
	},
}

// filterFlags maps filter flags to their mapstructure keys.
var filterFlags = map[string]string{
	"min-w":                "min_w",
	"min-h":                "min_h",
	"min-area":             "min_area",
	"max-area-ratio":       "max_area_ratio",
	"cap-small-per-parent": "cap_small_per_parent",
	"keep-important":       "keep_important",
	"in-place":             "in_place",
}

// getFilterOptions overlays the tree.filter config section and then the
// changed flags on the default filter options.
func getFilterOptions(flags *pflag.FlagSet) (detect.FilterOptions, error) {
	raw := map[string]any{}
	for k, v := range viper.GetStringMap("tree.filter") {
		raw[k] = v
	}
	for flag, key := range filterFlags {
		if f := flags.Lookup(flag); f != nil && f.Changed {
			raw[key] = f.Value.String()
		}
	}
	return detect.DecodeFilterOptions(raw)
}

func init() {
	defaults := detect.DefaultFilterOptions()
	treeFilterCmd.Flags().Int("min-w", defaults.MinW, "Minimum node width in px")
	treeFilterCmd.Flags().Int("min-h", defaults.MinH, "Minimum node height in px")
	treeFilterCmd.Flags().Int("min-area", defaults.MinArea, "Minimum node area in px²")
	treeFilterCmd.Flags().Float64("max-area-ratio", defaults.MaxAreaRatio, "Maximum node area as a fraction of the viewport")
	treeFilterCmd.Flags().Int("cap-small-per-parent", defaults.CapSmallPerParent, "Maximum small children kept per parent")
	treeFilterCmd.Flags().Bool("keep-important", defaults.KeepImportant, "Exempt submit buttons and fillable controls from the size gate")
	treeFilterCmd.Flags().Bool("in-place", false, "Rewrite controls_tree.json, keeping a .bak backup")

	treeBlocksCmd.Flags().Int("max-blocks", detect.DefaultBlockOptions().MaxBlocks, "Maximum number of blocks")

	overlay := detect.DefaultOverlayOptions()
	treeOverlayCmd.Flags().Int("min-thickness", overlay.MinThickness, "Outline thickness of the deepest nodes")
	treeOverlayCmd.Flags().Int("max-thickness", overlay.MaxThickness, "Outline thickness of root nodes")
	treeOverlayCmd.Flags().Uint8("fill-alpha", 0, "Tint box interiors with this alpha")
	treeOverlayCmd.Flags().Bool("page-bbox", false, "Use page coordinates, for full-page screenshots")

	treeCmd.AddCommand(treeFilterCmd)
	treeCmd.AddCommand(treeBlocksCmd)
	treeCmd.AddCommand(treeOverlayCmd)
}
