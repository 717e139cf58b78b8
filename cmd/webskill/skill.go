package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jingkaihe/webskill/pkg/presenter"
	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/skills"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

type SkillBuildConfig struct {
	Domain        string
	Selector      string
	NoSnippets    bool
	PreferSnippet bool
	Language      string
}

func NewSkillBuildConfig() *SkillBuildConfig {
	defaults := skills.DefaultBuildOptions()
	return &SkillBuildConfig{
		Language:      defaults.Language,
		PreferSnippet: defaults.PreferSnippet,
	}
}

func (c *SkillBuildConfig) options() skills.BuildOptions {
	opts := skills.DefaultBuildOptions()
	opts.Domain = c.Domain
	opts.UseSnippets = !c.NoSnippets
	opts.PreferSnippet = c.PreferSnippet
	opts.Language = c.Language
	return opts
}

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Build and manage skills",
	Long:  `Build skills from a run directory, refine, validate, export and describe them.`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

var skillBuildCmd = &cobra.Command{
	Use:   "build <run_dir>",
	Short: "Build a skill for every control of a run",
	Long: `Build one skill per control node of the run's controls tree and write them to
<run_dir>/skill. With --selector only the node with that selector is built.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getSkillBuildConfigFromFlags(cmd)
		dir := rundir.Dir(args[0])

		var built []*skill.Skill
		if config.Selector != "" {
			s, err := skills.BuildForSelector(dir, config.Selector, config.options())
			if err != nil {
				presenter.Error(err, "Failed to build skill")
				os.Exit(1)
			}
			built = []*skill.Skill{s}
		} else {
			var err error
			built, err = skills.Build(ctx, dir, config.options())
			if err != nil {
				presenter.Error(err, "Failed to build skills")
				os.Exit(1)
			}
		}

		paths, err := skills.SaveBuilt(dir, built)
		if err != nil {
			presenter.Error(err, "Failed to save skills")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("Built %d skills in %s", len(paths), dir.Path(rundir.SkillDir)))
	},
}

var skillRefineCmd = &cobra.Command{
	Use:   "refine <skill.json>",
	Short: "Refine the locators of a skill from its HTML snippet",
	Long: `Parse the control's outerHTML and merge the locators it yields into the skill.
The snippet is read from --snippet, or from the skill's evidence in its source
run. The refined skill is written to <out>/<domain>/<id>.json.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		snippetPath, _ := cmd.Flags().GetString("snippet")
		prefer, _ := cmd.Flags().GetBool("prefer-snippet")
		outDir, _ := cmd.Flags().GetString("out")

		s, err := skills.Load(args[0])
		if err != nil {
			presenter.Error(err, "Failed to load skill")
			os.Exit(1)
		}
		html := skills.SnippetHTML(s)
		if snippetPath != "" {
			data, err := os.ReadFile(snippetPath)
			if err != nil {
				presenter.Error(err, "Failed to read snippet")
				os.Exit(1)
			}
			html = string(data)
		}
		if html == "" {
			presenter.Error(errors.New("no snippet available"), "Nothing to refine from")
			os.Exit(1)
		}
		if err := skills.RefineFromSnippet(s, html, prefer); err != nil {
			presenter.Error(err, "Failed to refine skill")
			os.Exit(1)
		}

		out := skills.RefinedPath(outDir, s)
		if err := skills.Save(out, s); err != nil {
			presenter.Error(err, "Failed to save refined skill")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("Refined skill written to %s", out))
	},
}

var skillValidateCmd = &cobra.Command{
	Use:   "validate <skill.json>...",
	Short: "Validate skill files",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		language, _ := cmd.Flags().GetString("language")

		failed := 0
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				presenter.Error(err, "Failed to read skill")
				failed++
				continue
			}
			if err := skills.ValidateJSON(data, language); err != nil {
				failed++
				var merr *multierror.Error
				if errors.As(err, &merr) {
					presenter.Warning(fmt.Sprintf("%s: %d problems", path, len(merr.Errors)))
					for _, e := range merr.Errors {
						fmt.Printf("  - %s\n", e)
					}
					continue
				}
				presenter.Warning(fmt.Sprintf("%s: %s", path, err))
				continue
			}
			presenter.Success(fmt.Sprintf("%s is valid", path))
		}
		if failed > 0 {
			os.Exit(1)
		}
	},
}

var skillExportCmd = &cobra.Command{
	Use:   "export <skill.json>",
	Short: "Write the program of a skill to a source file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir, _ := cmd.Flags().GetString("dir")
		s, err := skills.Load(args[0])
		if err != nil {
			presenter.Error(err, "Failed to load skill")
			os.Exit(1)
		}
		if dir == "" {
			dir = filepath.Dir(args[0])
		}
		path, err := skills.ExportProgram(s, dir)
		if err != nil {
			presenter.Error(err, "Failed to export program")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("Program written to %s", path))
	},
}

var skillCardCmd = &cobra.Command{
	Use:   "card <skill.json>",
	Short: "Render a skill as a SKILL.md card",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dir, _ := cmd.Flags().GetString("dir")
		s, err := skills.Load(args[0])
		if err != nil {
			presenter.Error(err, "Failed to load skill")
			os.Exit(1)
		}
		path, err := skills.WriteCard(dir, s)
		if err != nil {
			presenter.Error(err, "Failed to write card")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("Card written to %s", path))
	},
}

var skillListCmd = &cobra.Command{
	Use:   "list <dir>",
	Short: "List the skills below a directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		paths, err := skills.Discover(args[0])
		if err != nil {
			presenter.Error(err, "Failed to discover skills")
			os.Exit(1)
		}

		type row struct {
			ID       string `json:"id"`
			Action   string `json:"action"`
			Selector string `json:"selector"`
			Summary  string `json:"summary,omitempty"`
			Path     string `json:"path"`
		}
		rows := make([]row, 0, len(paths))
		for _, p := range paths {
			s, err := skills.Load(p)
			if err != nil {
				presenter.Warning(fmt.Sprintf("Skipping %s: %s", p, err))
				continue
			}
			rows = append(rows, row{ID: s.ID, Action: s.Action, Selector: s.Locators.Selector, Summary: skills.Describe(s.Program.Code), Path: p})
		}

		if asJSON {
			out, _ := json.MarshalIndent(rows, "", "  ")
			fmt.Println(string(out))
			return
		}
		if len(rows) == 0 {
			presenter.Info("No skills found")
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tACTION\tSELECTOR\tPATH")
		for _, r := range rows {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Action, r.Selector, r.Path)
		}
		w.Flush()
	},
}

func init() {
	defaults := NewSkillBuildConfig()
	skillBuildCmd.Flags().String("domain", "", "Override the domain recorded in meta.json")
	skillBuildCmd.Flags().String("selector", "", "Build only the node with this selector")
	skillBuildCmd.Flags().Bool("no-snippets", false, "Do not refine locators from HTML snippets")
	skillBuildCmd.Flags().Bool("prefer-snippet", defaults.PreferSnippet, "Let snippet locators replace the primary selector")
	skillBuildCmd.Flags().String("language", defaults.Language, "Program language (go, steps)")

	skillRefineCmd.Flags().String("snippet", "", "HTML file with the control's outerHTML")
	skillRefineCmd.Flags().Bool("prefer-snippet", true, "Let snippet locators replace the primary selector")
	skillRefineCmd.Flags().String("out", "skills_refined", "Root directory for refined skills")

	skillValidateCmd.Flags().String("language", skill.LanguageGo, "Runtime language to validate against")

	skillExportCmd.Flags().String("dir", "", "Output directory (defaults to the skill's directory)")
	skillCardCmd.Flags().String("dir", "skill_cards", "Root directory for cards")
	skillListCmd.Flags().Bool("json", false, "Output as JSON")

	skillCmd.AddCommand(skillBuildCmd)
	skillCmd.AddCommand(skillRefineCmd)
	skillCmd.AddCommand(skillValidateCmd)
	skillCmd.AddCommand(skillExportCmd)
	skillCmd.AddCommand(skillCardCmd)
	skillCmd.AddCommand(skillListCmd)
}

func getSkillBuildConfigFromFlags(cmd *cobra.Command) *SkillBuildConfig {
	config := NewSkillBuildConfig()
	config.Domain, _ = cmd.Flags().GetString("domain")
	config.Selector, _ = cmd.Flags().GetString("selector")
	config.NoSnippets, _ = cmd.Flags().GetBool("no-snippets")
	config.PreferSnippet, _ = cmd.Flags().GetBool("prefer-snippet")
	config.Language, _ = cmd.Flags().GetString("language")
	return config
}
