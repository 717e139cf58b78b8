package main

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jingkaihe/webskill/pkg/browser"
	"github.com/jingkaihe/webskill/pkg/presenter"
	"github.com/jingkaihe/webskill/pkg/program"
	"github.com/jingkaihe/webskill/pkg/program/env"
	"github.com/jingkaihe/webskill/pkg/skills"
	"github.com/jingkaihe/webskill/pkg/types/skill"
)

type InvokeConfig struct {
	Session *SessionConfig
	Args    []string
	Timeout time.Duration
	Retries uint
}

var invokeCmd = &cobra.Command{
	Use:   "invoke <skill.json>",
	Short: "Run the program of a skill in a browser",
	Long: `Open the skill's page in a browser and run its program without checking
preconditions. Prints METRIC, RESULT and ENV lines and exits 0 on success,
1 on failure and 2 when the skill has no program.

Examples:
  webskill invoke skill/Skill_#search_d12.json
  webskill invoke skill.json --arg text=上海 --url https://www.trip.com/`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withExitCode(runSkill(cmd, args[0], program.Invoke))
	},
}

var runCmd = &cobra.Command{
	Use:   "run <skill.json>",
	Short: "Check the preconditions of a skill, then run its program",
	Long: `Like invoke, but the skill's preconditions are evaluated first and the program
only runs when all of them hold.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withExitCode(runSkill(cmd, args[0], program.Execute))
	},
}

type invokeFunc func(ctx context.Context, w io.Writer, r *program.Runner, e browser.Env, s *skill.Skill, args map[string]any, opts env.Options) int

func runSkill(cmd *cobra.Command, path string, invoke invokeFunc) int {
	ctx := cmd.Context()
	config := getInvokeConfigFromFlags(cmd)

	s, err := skills.Load(path)
	if err != nil {
		presenter.Error(err, "Failed to load skill")
		return program.ExitFailed
	}
	args, err := skills.ParseArgs(s.ArgsSchema, config.Args)
	if err != nil {
		presenter.Error(err, "Invalid arguments")
		return program.ExitFailed
	}

	startURL := config.Session.StartURL
	if startURL == "" {
		startURL = browser.StartURL(s)
	}
	session, err := startSession(ctx, startURL, config.Session)
	if err != nil {
		presenter.Error(err, "Failed to start browser")
		return program.ExitFailed
	}
	defer session.Stop()

	opts := env.DefaultOptions()
	if config.Timeout > 0 {
		opts.Timeout = config.Timeout
	}
	opts.Retries = config.Retries
	opts.Highlight = config.Session.Highlight

	return invoke(ctx, os.Stdout, program.NewRunner(), session, s, args, opts)
}

func init() {
	defaults := env.DefaultOptions()
	for _, c := range []*cobra.Command{invokeCmd, runCmd} {
		addSessionFlags(c)
		c.Flags().StringArray("arg", nil, "Program argument as key=value (repeatable)")
		c.Flags().Duration("timeout", defaults.Timeout, "Timeout of the program run")
		c.Flags().Uint("retries", defaults.Retries, "Extra passes over the locator chain")
	}
}

func getInvokeConfigFromFlags(cmd *cobra.Command) *InvokeConfig {
	config := &InvokeConfig{Session: getSessionConfigFromFlags(cmd)}
	config.Args, _ = cmd.Flags().GetStringArray("arg")
	config.Timeout, _ = cmd.Flags().GetDuration("timeout")
	config.Retries, _ = cmd.Flags().GetUint("retries")
	return config
}
