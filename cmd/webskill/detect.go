package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/webskill/pkg/detect"
	"github.com/jingkaihe/webskill/pkg/presenter"
)

type DetectConfig struct {
	OutRoot   string
	Viewport  string
	UserAgent string
	NoScroll  bool
}

func NewDetectConfig() *DetectConfig {
	return &DetectConfig{
		OutRoot:  "",
		Viewport: "",
	}
}

var detectCmd = &cobra.Command{
	Use:   "detect <url>",
	Short: "Collect a page into a run directory",
	Long: `Open a URL in a fresh browser, autoscroll it and write a run directory with
meta.json, the DOM summaries, the controls tree, snippets and a screenshot.

The run is written to <data-dir>/<domain>/<timestamp>. When
detect.allowed_domains_file is configured, only listed domains are collected.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getDetectConfigFromFlags(cmd)

		start := time.Now()
		res, err := detect.Collect(ctx, args[0], collectOptions(config))
		if err != nil {
			var ce *detect.CollectError
			if errors.As(err, &ce) && ce.OutDir != "" {
				presenter.Warning(fmt.Sprintf("Failed run written to %s", ce.OutDir))
			}
			presenter.Error(err, "Failed to collect page")
			os.Exit(1)
		}

		presenter.Success(fmt.Sprintf("Collected %s", res.Meta.URL))
		presenter.Stats(&presenter.RunStats{
			Step:     "detect",
			RunDir:   res.OutDir,
			Counts:   res.Meta.Counts,
			Warnings: len(res.Meta.Warnings),
			Duration: time.Since(start),
		})
		for _, w := range res.Meta.Warnings {
			presenter.Warning(fmt.Sprintf("%s at %s: %s", w.Code, w.Stage, w.Error))
		}
		fmt.Println(res.OutDir)
	},
}

// collectOptions merges configuration and flags into detect options.
func collectOptions(config *DetectConfig) detect.CollectOptions {
	opts := detect.DefaultCollectOptions()
	opts.OutRoot = viper.GetString("data_dir")
	if config.OutRoot != "" {
		opts.OutRoot = config.OutRoot
	}
	viewport := viper.GetString("detect.viewport")
	if config.Viewport != "" {
		viewport = config.Viewport
	}
	opts.Viewport = detect.ParseViewport(viewport)
	opts.Headless = viper.GetBool("browser.headless")
	if ms := viper.GetInt("browser.timeout_ms"); ms > 0 {
		opts.Timeout = time.Duration(ms) * time.Millisecond
	}
	opts.NavRetries = viper.GetInt("detect.nav_retries")
	opts.AutoscrollSteps = viper.GetInt("detect.autoscroll_steps")
	opts.AutoscrollDelay = time.Duration(viper.GetInt("detect.autoscroll_delay_ms")) * time.Millisecond
	if config.NoScroll {
		opts.AutoscrollSteps = 0
	}
	opts.UserAgent = config.UserAgent
	if path := viper.GetString("detect.allowed_domains_file"); path != "" {
		opts.Filter = detect.NewDomainFilter(path)
	}
	return opts
}

func init() {
	defaults := NewDetectConfig()
	detectCmd.Flags().StringP("out", "o", defaults.OutRoot, "Root directory for the run (overrides data-dir)")
	detectCmd.Flags().String("viewport", defaults.Viewport, "Viewport as WIDTHxHEIGHT (overrides detect.viewport)")
	detectCmd.Flags().String("user-agent", "", "Override the browser user agent")
	detectCmd.Flags().Bool("no-scroll", false, "Skip autoscrolling")
	detectCmd.Flags().String("allowed-domains-file", "", "File listing the domains that may be collected")

	viper.BindPFlag("detect.allowed_domains_file", detectCmd.Flags().Lookup("allowed-domains-file"))
}

func getDetectConfigFromFlags(cmd *cobra.Command) *DetectConfig {
	config := NewDetectConfig()
	config.OutRoot, _ = cmd.Flags().GetString("out")
	config.Viewport, _ = cmd.Flags().GetString("viewport")
	config.UserAgent, _ = cmd.Flags().GetString("user-agent")
	config.NoScroll, _ = cmd.Flags().GetBool("no-scroll")
	return config
}
