package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/webskill/pkg/afcdb"
	"github.com/jingkaihe/webskill/pkg/presenter"
	"github.com/jingkaihe/webskill/pkg/program"
	"github.com/jingkaihe/webskill/pkg/program/env"
	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/skills"
)

type AFCRepairConfig struct {
	Session   *SessionConfig
	OldRunDir string
	NewRunDir string
	SkillID   string
	SkillPath string
	Task      string
	TopK      int
	MinScore  float64
	NoEvolve  bool
	Args      []string
}

func NewAFCRepairConfig() *AFCRepairConfig {
	return &AFCRepairConfig{
		TopK:     afcdb.DefaultTopK,
		MinScore: afcdb.DefaultMinScore,
	}
}

var afcCmd = &cobra.Command{
	Use:   "afc",
	Short: "Abstract functional controls: snapshots, global database and case-based repair",
	Long: `Describe the controls of a run as abstract functional controls, integrate them
into the global database, match them on new pages and repair skills from past
cases. The database lives at db_path (default ~/.webskill/storage.db).`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var afcSnapshotCmd = &cobra.Command{
	Use:   "snapshot <run_dir>",
	Short: "Write the AFC page and skill snapshots of a run",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		force, _ := cmd.Flags().GetBool("force")
		dir := rundir.Dir(args[0])

		pagePath, page, err := afcdb.BuildPageSnapshot(ctx, dir, afcdb.PageOptions{Force: force})
		if err != nil {
			presenter.Error(err, "Failed to build page snapshot")
			os.Exit(1)
		}
		skillPath, snap, err := afcdb.BuildSkillSnapshot(ctx, dir)
		if err != nil {
			presenter.Error(err, "Failed to build skill snapshot")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("%d controls written to %s", len(page.Controls), pagePath))
		presenter.Success(fmt.Sprintf("%d abstract skills written to %s", len(snap.AbstractSkills), skillPath))
	},
}

var afcIntegrateCmd = &cobra.Command{
	Use:   "integrate <run_dir>...",
	Short: "Add the abstract skills of runs to the global database",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		store := openStore(ctx)
		defer store.Close()

		for _, dir := range args {
			start := time.Now()
			res, err := afcdb.IntegrateRun(ctx, store, rundir.Dir(dir))
			if err != nil {
				presenter.Error(err, fmt.Sprintf("Failed to integrate %s", dir))
				os.Exit(1)
			}
			presenter.Stats(&presenter.RunStats{
				Step:   "integrate",
				RunDir: dir,
				Counts: map[string]int{
					"entries":  res.Entries,
					"controls": res.Controls,
					"skills":   res.Skills,
					"cases":    res.Cases,
				},
				Duration: time.Since(start),
			})
		}
	},
}

var afcMatchCmd = &cobra.Command{
	Use:   "match",
	Short: "Find the controls of a new page that match an abstract skill",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		abstractID, _ := cmd.Flags().GetString("abstract-id")
		newDir, _ := cmd.Flags().GetString("run-dir-new")
		oldDir, _ := cmd.Flags().GetString("run-dir-old")
		topK, _ := cmd.Flags().GetInt("top-k")
		minScore, _ := cmd.Flags().GetFloat64("min-score")

		store := openStore(ctx)
		defer store.Close()

		entry, err := store.GetEntry(ctx, abstractID)
		if err != nil {
			presenter.Error(err, "Failed to load abstract skill")
			os.Exit(1)
		}
		if oldDir != "" {
			oldDir = afcdb.AbsRunDir(rundir.Dir(oldDir))
		}
		ref := afcdb.SelectReferenceCase(entry.SkillCases, oldDir)
		if ref == nil {
			presenter.Warning(fmt.Sprintf("%s has no cases to match with", abstractID))
			os.Exit(1)
		}

		page, err := afcdb.LoadPageSnapshot(rundir.Dir(newDir))
		if err != nil {
			if _, page, err = afcdb.BuildPageSnapshot(ctx, rundir.Dir(newDir), afcdb.PageOptions{}); err != nil {
				presenter.Error(err, "Failed to build page snapshot")
				os.Exit(1)
			}
		}

		out, _ := json.MarshalIndent(map[string]any{
			"abstract_skill_id": abstractID,
			"reference":         ref,
			"candidates":        afcdb.FindCandidateControls(*ref, page, topK, minScore),
		}, "", "  ")
		fmt.Println(string(out))
	},
}

var afcEvolveCmd = &cobra.Command{
	Use:   "evolve",
	Short: "Feed an exec log back into the global database",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		path, _ := cmd.Flags().GetString("exec-log")

		execLog, err := afcdb.LoadExecLog(path)
		if err != nil {
			presenter.Error(err, "Failed to load exec log")
			os.Exit(1)
		}
		store := openStore(ctx)
		defer store.Close()

		res, err := afcdb.IntegrateWithEvolution(ctx, store, execLog)
		if err != nil {
			presenter.Error(err, "Failed to evolve database")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("Updated %d cases, created %d, compressed %d entries", res.Updated, res.Created, res.Compressed))
	},
}

var afcRepairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Repair a skill on a new page from the cases of its abstract skill",
	Long: `Look up the skill's abstract skill, rank the controls of the new run against a
reference case and try them one by one in a browser with locator-only changes.
The first success is written to <run-dir-new>/skill; every trial is recorded in
an exec log under <run-dir-new>/afc/exec_logs and fed back into the database.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		config := getAFCRepairConfigFromFlags(cmd)

		args, err := skills.ParseArgs(nil, config.Args)
		if err != nil {
			presenter.Error(err, "Invalid arguments")
			os.Exit(1)
		}

		startURL := config.Session.StartURL
		if startURL == "" {
			meta, err := rundir.Dir(config.NewRunDir).Meta()
			if err != nil {
				presenter.Error(err, "Failed to read the new run")
				os.Exit(1)
			}
			startURL = meta.URL
		}

		store := openStore(ctx)
		defer store.Close()

		session, err := startSession(ctx, startURL, config.Session)
		if err != nil {
			presenter.Error(err, "Failed to start browser")
			os.Exit(1)
		}

		opts := env.DefaultOptions()
		opts.Highlight = config.Session.Highlight
		res, err := afcdb.RepairWithCases(ctx, store, afcdb.RepairOptions{
			OldRunDir: config.OldRunDir,
			NewRunDir: config.NewRunDir,
			SkillID:   config.SkillID,
			SkillPath: config.SkillPath,
			Task:      config.Task,
			TopK:      config.TopK,
			MinScore:  config.MinScore,
			Evolve:    !config.NoEvolve,
			Args:      args,
			Env:       session,
			Options:   opts,
		})
		session.Stop()
		if err != nil {
			presenter.Error(err, "Case based repair failed")
			os.Exit(1)
		}

		presenter.Section(fmt.Sprintf("Abstract skill %s", res.AbstractSkillID))
		for i, t := range res.Trials {
			status := "FAIL " + t.Case.ErrorType
			if t.Case.ExecSuccess {
				status = "OK"
			}
			presenter.Info(fmt.Sprintf("%d. %s score=%.3f %s %s", i+1, t.Candidate.ControlID, t.Candidate.Score, status, t.Message))
		}
		presenter.Separator()
		presenter.Info(fmt.Sprintf("Exec log: %s", res.ExecLogPath))
		if res.ExitCode != program.ExitOK {
			presenter.Warning("No candidate control worked")
			return withExitCode(res.ExitCode)
		}
		presenter.Success(fmt.Sprintf("Repaired skill written to %s", res.OutPath))
		return nil
	},
}

var afcListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the abstract skills in the global database",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		asJSON, _ := cmd.Flags().GetBool("json")
		store := openStore(ctx)
		defer store.Close()

		entries, err := store.ListEntries(ctx)
		if err != nil {
			presenter.Error(err, "Failed to list abstract skills")
			os.Exit(1)
		}
		if asJSON {
			out, _ := json.MarshalIndent(entries, "", "  ")
			fmt.Println(string(out))
			return
		}
		if len(entries) == 0 {
			presenter.Info("The database is empty")
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ABSTRACT SKILL\tCONTROLS\tSKILLS\tCASES")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", e.AbstractSkillID, len(e.AfcControls), len(e.ConcreteSkills), len(e.SkillCases))
		}
		w.Flush()
	},
}

// openStore opens the AFC database at db_path or exits.
func openStore(ctx context.Context) *afcdb.Store {
	store, err := afcdb.Open(ctx, viper.GetString("db_path"))
	if err != nil {
		presenter.Error(err, "Failed to open AFC database")
		os.Exit(1)
	}
	return store
}

func init() {
	afcSnapshotCmd.Flags().Bool("force", false, "Rebuild the page snapshot even when a complete one exists")

	afcMatchCmd.Flags().String("abstract-id", "", "Abstract skill id, e.g. Search.Submit:Clickable_Submit")
	afcMatchCmd.Flags().String("run-dir-new", "", "Run of the new page")
	afcMatchCmd.Flags().String("run-dir-old", "", "Prefer the case recorded for this run")
	afcMatchCmd.Flags().Int("top-k", afcdb.DefaultTopK, "Maximum number of candidates")
	afcMatchCmd.Flags().Float64("min-score", afcdb.DefaultMinScore, "Minimum similarity")
	afcMatchCmd.MarkFlagRequired("abstract-id")
	afcMatchCmd.MarkFlagRequired("run-dir-new")

	afcEvolveCmd.Flags().String("exec-log", "", "Exec log JSON written by afc repair")
	afcEvolveCmd.MarkFlagRequired("exec-log")

	defaults := NewAFCRepairConfig()
	addSessionFlags(afcRepairCmd)
	afcRepairCmd.Flags().String("run-dir-old", "", "Run the skill was built from")
	afcRepairCmd.Flags().String("run-dir-new", "", "Run of the changed page")
	afcRepairCmd.Flags().String("skill-id", "", "Id of the skill to repair")
	afcRepairCmd.Flags().String("skill", "", "Skill JSON (defaults to the skill's file in run-dir-old)")
	afcRepairCmd.Flags().String("task", "", "Task description stored in the exec log")
	afcRepairCmd.Flags().Int("top-k", defaults.TopK, "Maximum number of candidate controls to try")
	afcRepairCmd.Flags().Float64("min-score", defaults.MinScore, "Minimum similarity of a candidate")
	afcRepairCmd.Flags().Bool("no-evolve", false, "Do not feed the exec log back into the database")
	afcRepairCmd.Flags().StringArray("arg", nil, "Program argument as key=value (repeatable)")
	afcRepairCmd.MarkFlagRequired("run-dir-old")
	afcRepairCmd.MarkFlagRequired("run-dir-new")
	afcRepairCmd.MarkFlagRequired("skill-id")

	afcListCmd.Flags().Bool("json", false, "Output as JSON")

	afcCmd.AddCommand(afcSnapshotCmd)
	afcCmd.AddCommand(afcIntegrateCmd)
	afcCmd.AddCommand(afcMatchCmd)
	afcCmd.AddCommand(afcEvolveCmd)
	afcCmd.AddCommand(afcRepairCmd)
	afcCmd.AddCommand(afcListCmd)
}

func getAFCRepairConfigFromFlags(cmd *cobra.Command) *AFCRepairConfig {
	config := NewAFCRepairConfig()
	config.Session = getSessionConfigFromFlags(cmd)
	config.OldRunDir, _ = cmd.Flags().GetString("run-dir-old")
	config.NewRunDir, _ = cmd.Flags().GetString("run-dir-new")
	config.SkillID, _ = cmd.Flags().GetString("skill-id")
	config.SkillPath, _ = cmd.Flags().GetString("skill")
	config.Task, _ = cmd.Flags().GetString("task")
	config.TopK, _ = cmd.Flags().GetInt("top-k")
	config.MinScore, _ = cmd.Flags().GetFloat64("min-score")
	config.NoEvolve, _ = cmd.Flags().GetBool("no-evolve")
	config.Args, _ = cmd.Flags().GetStringArray("arg")
	return config
}
