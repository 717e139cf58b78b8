package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/webskill/pkg/index"
	"github.com/jingkaihe/webskill/pkg/presenter"
	"github.com/jingkaihe/webskill/pkg/rundir"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Build and query the skill index",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var indexBuildCmd = &cobra.Command{
	Use:   "build <root>",
	Short: "Index every skill below a directory",
	Long:  `Build skill cards and BM25 statistics for all skills below root and write them to <root>/skills_index.json.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		out, idx, err := index.BuildAndWrite(cmd.Context(), args[0])
		if err != nil {
			presenter.Error(err, "Failed to build skill index")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("Indexed %d skills into %s", len(idx.Skills), out))
	},
}

var indexWatchCmd = &cobra.Command{
	Use:   "watch <root>",
	Short: "Rebuild the skill index whenever skill files change",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		debounce, _ := cmd.Flags().GetDuration("debounce")
		ignore, _ := cmd.Flags().GetStringSlice("ignore")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		presenter.Info(fmt.Sprintf("Watching %s for skill changes (Ctrl+C to stop)", args[0]))
		err := index.Watch(ctx, args[0], index.WatchOptions{
			Debounce:   debounce,
			IgnoreDirs: ignore,
			OnBuild: func(path string, idx *index.Index, err error) {
				if err == nil {
					presenter.Success(fmt.Sprintf("Indexed %d skills into %s", len(idx.Skills), path))
				}
			},
		})
		if err != nil {
			presenter.Error(err, "Skill index watcher stopped")
			os.Exit(1)
		}
	},
}

var indexSelectCmd = &cobra.Command{
	Use:   "select",
	Short: "Rank indexed skills for a task",
	Long: `Rank the skills of an index for a natural language task. With --run-dir the
page's domain, title and main block refine the ranking.

Examples:
  webskill index select --index workspace/data/skills_index.json --task "搜索上海的酒店"
  webskill index select --root workspace/data --run-dir <run_dir> --task "search hotels"`,
	Run: func(cmd *cobra.Command, _ []string) {
		task, _ := cmd.Flags().GetString("task")
		indexPath, _ := cmd.Flags().GetString("index")
		root, _ := cmd.Flags().GetString("root")
		runDir, _ := cmd.Flags().GetString("run-dir")
		topK, _ := cmd.Flags().GetInt("top-k")
		asJSON, _ := cmd.Flags().GetBool("json")

		if indexPath == "" {
			indexPath = filepath.Join(root, index.FileName)
		}
		idx, err := index.Load(indexPath)
		if err != nil {
			presenter.Error(err, "Failed to load skill index")
			os.Exit(1)
		}

		var page index.PageContext
		if runDir != "" {
			if page, err = index.PageContextFromRun(rundir.Dir(runDir)); err != nil {
				presenter.Error(err, "Failed to read page context")
				os.Exit(1)
			}
		}

		cands := index.SelectCandidates(idx, task, page, topK)
		if asJSON {
			out, _ := json.MarshalIndent(cands, "", "  ")
			fmt.Println(string(out))
			return
		}
		if len(cands) == 0 {
			presenter.Info("No matching skills")
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSCORE\tNAME\tREASON")
		for _, c := range cands {
			fmt.Fprintf(w, "%s\t%.3f\t%s\t%s\n", c.ID, c.Score, c.Name, c.Reason)
		}
		w.Flush()
	},
}

func init() {
	indexWatchCmd.Flags().Duration("debounce", index.DefaultDebounce, "Wait for changes to settle before rebuilding")
	indexWatchCmd.Flags().StringSlice("ignore", []string{".git", "node_modules", "afc"}, "Directory names to skip")

	indexSelectCmd.Flags().String("task", "", "Task description")
	indexSelectCmd.Flags().String("index", "", "Path of skills_index.json")
	indexSelectCmd.Flags().String("root", ".", "Skill root holding skills_index.json (when --index is not set)")
	indexSelectCmd.Flags().String("run-dir", "", "Run of the current page")
	indexSelectCmd.Flags().Int("top-k", 5, "Number of candidates to return")
	indexSelectCmd.Flags().Bool("json", false, "Output as JSON")
	indexSelectCmd.MarkFlagRequired("task")

	indexCmd.AddCommand(indexBuildCmd)
	indexCmd.AddCommand(indexWatchCmd)
	indexCmd.AddCommand(indexSelectCmd)
}
