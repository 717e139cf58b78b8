package main

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jingkaihe/webskill/pkg/db"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// setConfig overrides a viper key for the duration of the test.
func setConfig(t *testing.T, key string, value any) {
	t.Helper()
	old := viper.Get(key)
	viper.Set(key, value)
	t.Cleanup(func() { viper.Set(key, old) })
}

func TestGetFilterOptions(t *testing.T) {
	setConfig(t, "tree.filter", map[string]any{"min_w": 1, "min_h": "5"})

	fs := pflag.NewFlagSet("filter", pflag.ContinueOnError)
	fs.Int("min-w", 96, "")
	fs.Int("min-h", 80, "")
	fs.Bool("in-place", false, "")
	require.NoError(t, fs.Parse([]string{"--min-w=10", "--in-place"}))

	opts, err := getFilterOptions(fs)
	require.NoError(t, err)
	assert.Equal(t, 10, opts.MinW, "flags win over config")
	assert.Equal(t, 5, opts.MinH)
	assert.True(t, opts.InPlace)
	assert.Equal(t, 20000, opts.MinArea)
}

func TestCollectOptions(t *testing.T) {
	setConfig(t, "data_dir", "/data")
	setConfig(t, "detect.viewport", "1024x768")
	setConfig(t, "detect.autoscroll_steps", 7)
	setConfig(t, "detect.autoscroll_delay_ms", 50)
	setConfig(t, "browser.timeout_ms", 1000)
	setConfig(t, "detect.allowed_domains_file", "")

	tests := []struct {
		name     string
		config   *DetectConfig
		outRoot  string
		viewport snapshot.Viewport
		steps    int
	}{
		{"config only", NewDetectConfig(), "/data", snapshot.Viewport{Width: 1024, Height: 768}, 7},
		{"flags override", &DetectConfig{OutRoot: "/out", Viewport: "800x600"}, "/out", snapshot.Viewport{Width: 800, Height: 600}, 7},
		{"no scroll", &DetectConfig{NoScroll: true}, "/data", snapshot.Viewport{Width: 1024, Height: 768}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := collectOptions(tt.config)
			assert.Equal(t, tt.outRoot, opts.OutRoot)
			assert.Equal(t, tt.viewport, opts.Viewport)
			assert.Equal(t, tt.steps, opts.AutoscrollSteps)
			assert.Equal(t, 50*time.Millisecond, opts.AutoscrollDelay)
			assert.Equal(t, time.Second, opts.Timeout)
			assert.Nil(t, opts.Filter)
		})
	}

	t.Run("domain filter", func(t *testing.T) {
		setConfig(t, "detect.allowed_domains_file", filepath.Join(t.TempDir(), "domains.txt"))
		assert.NotNil(t, collectOptions(NewDetectConfig()).Filter)
	})
}

func TestCommandAttributes(t *testing.T) {
	cmd := &cobra.Command{Use: "probe"}
	cmd.Flags().String("task", "", "")
	cmd.Flags().String("cookies", "", "")
	cmd.Flags().Int("top-k", 3, "")
	require.NoError(t, cmd.ParseFlags([]string{"--task", "search", "--cookies", "secret.json"}))

	attrs := map[attribute.Key]string{}
	for _, kv := range commandAttributes(cmd, []string{"a", "b"}) {
		attrs[kv.Key] = kv.Value.Emit()
	}
	assert.Equal(t, "probe", attrs["command.name"])
	assert.Equal(t, "2", attrs["args.count"])
	assert.Equal(t, "search", attrs["flag.task"])
	assert.NotContains(t, attrs, attribute.Key("flag.cookies"))
	assert.NotContains(t, attrs, attribute.Key("flag.top-k"), "unset flags are not recorded")
}

func TestGetDatabasePath(t *testing.T) {
	setConfig(t, "db_path", "/var/lib/webskill/afc.db")
	assert.Equal(t, "/var/lib/webskill/afc.db", getDatabasePath())

	base := t.TempDir()
	t.Setenv(db.BasePathEnv, base)
	setConfig(t, "db_path", "")
	assert.Equal(t, filepath.Join(base, "storage.db"), getDatabasePath())
}

func TestSkillBuildConfigOptions(t *testing.T) {
	config := NewSkillBuildConfig()
	config.Domain = "trip.com"
	config.NoSnippets = true

	opts := config.options()
	assert.Equal(t, "trip.com", opts.Domain)
	assert.False(t, opts.UseSnippets)
	assert.Equal(t, config.Language, opts.Language)
}

func TestExecuteExitCodes(t *testing.T) {
	newRoot := func() *cobra.Command {
		root := &cobra.Command{Use: "webskill", SilenceUsage: true, SilenceErrors: true}
		group := &cobra.Command{Use: "group"}
		group.AddCommand(
			&cobra.Command{Use: "ok", Run: func(*cobra.Command, []string) {}},
			&cobra.Command{Use: "failed", RunE: func(*cobra.Command, []string) error { return withExitCode(2) }},
			&cobra.Command{Use: "broken", RunE: func(*cobra.Command, []string) error { return errors.New("boom") }},
		)
		root.AddCommand(withTracingAll(group))
		return root
	}

	tests := []struct {
		args []string
		want int
	}{
		{[]string{"group", "ok"}, 0},
		{[]string{"group", "failed"}, 2},
		{[]string{"group", "broken"}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.args[1], func(t *testing.T) {
			root := newRoot()
			root.SetArgs(tt.args)
			assert.Equal(t, tt.want, execute(root))
		})
	}
}

func TestWithTracingAll(t *testing.T) {
	group := &cobra.Command{Use: "group"}
	leaf := &cobra.Command{Use: "leaf", Run: func(*cobra.Command, []string) {}}
	group.AddCommand(leaf)

	withTracingAll(group)

	assert.Nil(t, leaf.Run)
	assert.NotNil(t, leaf.RunE)
	assert.Nil(t, group.RunE, "groups are not wrapped")

	assert.Nil(t, withExitCode(0))
	code, ok := exitStatus(errors.Wrap(withExitCode(3), "invoke"))
	assert.True(t, ok)
	assert.Equal(t, 3, code)
}
