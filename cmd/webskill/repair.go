package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/webskill/pkg/presenter"
	"github.com/jingkaihe/webskill/pkg/repair"
	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/skills"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

type RepairConfig struct {
	SkillPath string
	OldRunDir string
	NewRunDir string
	OutPath   string
	LogDir    string
	Language  string
}

func NewRepairConfig() *RepairConfig {
	return &RepairConfig{
		Language: skill.LanguageGo,
	}
}

var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Diagnose and repair skills against a newer run of their page",
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var repairDiagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Explain why a skill no longer fits a page",
	Long: `Compare the run a skill was built from with a new run of the same page and
print the diagnostic: the root cause ("mismatch" or "damage") and the signals.`,
	Run: func(cmd *cobra.Command, _ []string) {
		config := getRepairConfigFromFlags(cmd)

		s, err := skills.Load(config.SkillPath)
		if err != nil {
			presenter.Error(err, "Failed to load skill")
			os.Exit(1)
		}
		oldDir := config.OldRunDir
		if oldDir == "" {
			oldDir = s.Meta.SourceDir
		}
		old, err := repair.LoadSnapshot(rundir.Dir(oldDir))
		if err != nil {
			presenter.Error(err, "Failed to load old run")
			os.Exit(1)
		}
		cur, err := repair.LoadSnapshot(rundir.Dir(config.NewRunDir))
		if err != nil {
			presenter.Error(err, "Failed to load new run")
			os.Exit(1)
		}

		out, err := json.MarshalIndent(repair.Diagnose(s, old, cur), "", "  ")
		if err != nil {
			presenter.Error(err, "Failed to format diagnostic")
			os.Exit(1)
		}
		fmt.Println(string(out))
	},
}

var repairApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Repair a skill and write the repaired copy and a repair log",
	Long: `Diagnose the skill, patch its locators and preconditions for the new run and
validate the result. The input skill file is never modified; the repaired skill
is written to <new_run>/skill and the log to <new_run>/skill/_repair_logs.`,
	Run: func(cmd *cobra.Command, _ []string) {
		ctx := cmd.Context()
		config := getRepairConfigFromFlags(cmd)

		res, err := repair.Repair(ctx, repair.Options{
			SkillPath: config.SkillPath,
			NewRunDir: config.NewRunDir,
			OldRunDir: config.OldRunDir,
			OutPath:   config.OutPath,
			LogDir:    config.LogDir,
			Language:  config.Language,
		})
		if err != nil {
			presenter.Error(err, "Failed to repair skill")
			os.Exit(1)
		}

		presenter.Info(fmt.Sprintf("Root cause: %s", res.Plan.Diagnostic.RootCause))
		presenter.Info(fmt.Sprintf("Patches applied: %d", len(res.Plan.Patches)))
		presenter.Success(fmt.Sprintf("Repaired skill written to %s", res.OutPath))
		presenter.Info(fmt.Sprintf("Repair log: %s", res.LogPath))
	},
}

func init() {
	for _, c := range []*cobra.Command{repairDiagnoseCmd, repairApplyCmd} {
		c.Flags().String("skill", "", "Path of the skill JSON")
		c.Flags().String("run-dir-old", "", "Run the skill was built from (defaults to meta.source_dir)")
		c.Flags().String("run-dir-new", "", "Run of the changed page")
		c.MarkFlagRequired("skill")
		c.MarkFlagRequired("run-dir-new")
	}
	repairApplyCmd.Flags().String("out", "", "Output path of the repaired skill")
	repairApplyCmd.Flags().String("log-dir", "", "Directory for the repair log")
	repairApplyCmd.Flags().String("language", skill.LanguageGo, "Program language to validate against")

	repairCmd.AddCommand(repairDiagnoseCmd)
	repairCmd.AddCommand(repairApplyCmd)
}

func getRepairConfigFromFlags(cmd *cobra.Command) *RepairConfig {
	config := NewRepairConfig()
	config.SkillPath, _ = cmd.Flags().GetString("skill")
	config.OldRunDir, _ = cmd.Flags().GetString("run-dir-old")
	config.NewRunDir, _ = cmd.Flags().GetString("run-dir-new")
	if cmd.Flags().Lookup("out") != nil {
		config.OutPath, _ = cmd.Flags().GetString("out")
		config.LogDir, _ = cmd.Flags().GetString("log-dir")
		config.Language, _ = cmd.Flags().GetString("language")
	}
	return config
}
