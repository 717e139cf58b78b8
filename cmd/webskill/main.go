package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jingkaihe/webskill/pkg/logger"
	"github.com/jingkaihe/webskill/pkg/presenter"
)

func init() {
	// Environment variables
	viper.SetEnvPrefix("WEBSKILL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("data_dir", "workspace/data")
	viper.SetDefault("browser.headless", true)
	viper.SetDefault("browser.timeout_ms", 45000)
	viper.SetDefault("browser.slow_mo_ms", 0)
	viper.SetDefault("detect.viewport", "1280x800")
	viper.SetDefault("detect.autoscroll_steps", 50)
	viper.SetDefault("detect.autoscroll_delay_ms", 200)
	viper.SetDefault("detect.nav_retries", 1)

	// Config file support
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.webskill")
	viper.AddConfigPath(".")

	// Load config file if it exists (ignore errors if it doesn't)
	_ = viper.ReadInConfig()
}

var rootCmd = &cobra.Command{
	Use:   "webskill",
	Short: "Turn web pages into reusable, self-repairing browser skills",
	Long: `webskill captures web pages into run directories, builds executable skills
from their interactive controls, runs them in a real browser and repairs them
when the page changes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		presenter.SetQuiet(viper.GetBool("quiet"))
		return logger.Setup(viper.GetString("log_level"), viper.GetString("log_format"))
	},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

func main() {
	// Add global flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json, fmt)")
	rootCmd.PersistentFlags().String("data-dir", "workspace/data", "Root directory for collected runs")
	rootCmd.PersistentFlags().String("db-path", "", "Path of the AFC database (default ~/.webskill/storage.db)")
	rootCmd.PersistentFlags().Bool("headless", true, "Run the browser headless")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Only print errors and command results")

	// Bind flags to viper
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("db_path", rootCmd.PersistentFlags().Lookup("db-path"))
	viper.BindPFlag("browser.headless", rootCmd.PersistentFlags().Lookup("headless"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))

	// Add subcommands, every leaf runs inside a cli.command span
	rootCmd.AddCommand(
		withTracingAll(versionCmd),
		withTracingAll(detectCmd),
		withTracingAll(treeCmd),
		withTracingAll(skillCmd),
		withTracingAll(repairCmd),
		withTracingAll(invokeCmd),
		withTracingAll(runCmd),
		withTracingAll(indexCmd),
		withTracingAll(afcCmd),
		withTracingAll(dbCmd),
	)

	// Execute
	os.Exit(execute(rootCmd))
}

// exitError carries a process exit code out of a command without being
// printed as an error.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// withExitCode returns nil for code 0 and an exitError otherwise.
func withExitCode(code int) error {
	if code == 0 {
		return nil
	}
	return &exitError{code: code}
}

// exitStatus extracts the exit code carried by err.
func exitStatus(err error) (int, bool) {
	var e *exitError
	if errors.As(err, &e) {
		return e.code, true
	}
	return 0, false
}

// execute runs cmd and maps its result to a process exit code. Deferred
// span and tracer shutdowns have completed by the time it returns.
func execute(cmd *cobra.Command) int {
	err := cmd.Execute()
	if err == nil {
		return 0
	}
	if code, ok := exitStatus(err); ok {
		return code
	}
	fmt.Println(err)
	return 1
}
