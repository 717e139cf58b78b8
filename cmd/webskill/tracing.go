package main

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jingkaihe/webskill/pkg/logger"
	"github.com/jingkaihe/webskill/pkg/telemetry"
	"github.com/jingkaihe/webskill/pkg/version"
)

// initTracing initializes the OpenTelemetry tracing system
func initTracing(ctx context.Context) (func(context.Context) error, error) {
	config := telemetry.Config{
		Enabled:        viper.GetBool("tracing.enabled"),
		ServiceName:    "webskill",
		ServiceVersion: version.Get().Version,
		SamplerType:    viper.GetString("tracing.sampler"),
		SamplerRatio:   viper.GetFloat64("tracing.ratio"),
	}

	shutdown, err := telemetry.InitTracer(ctx, config)
	if err != nil {
		return nil, err
	}

	return shutdown, nil
}

var (
	tracer = telemetry.Tracer("webskill.cli")
)

// sensitiveFlags are never recorded as span attributes.
var sensitiveFlags = map[string]bool{
	"password": true,
	"token":    true,
	"key":      true,
	"cookies":  true,
}

// commandAttributes describes a command invocation for its span.
func commandAttributes(cmd *cobra.Command, args []string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("command.name", cmd.Name()),
		attribute.String("command.path", cmd.CommandPath()),
		attribute.Int("args.count", len(args)),
	}
	cmd.Flags().Visit(func(flag *pflag.Flag) {
		if !sensitiveFlags[flag.Name] {
			attrs = append(attrs, attribute.String("flag."+flag.Name, flag.Value.String()))
		}
	})
	return attrs
}

// withTracing wraps a Cobra command with tracing. Run and RunE are both
// supported; the wrapped command always uses RunE so errors reach the span.
func withTracing(cmd *cobra.Command) *cobra.Command {
	originalRun := cmd.RunE
	if originalRun == nil && cmd.Run != nil {
		run := cmd.Run
		originalRun = func(cmd *cobra.Command, args []string) error {
			run(cmd, args)
			return nil
		}
	}
	if originalRun == nil {
		return cmd
	}

	cmd.Run = nil
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		shutdown, err := initTracing(ctx)
		if err != nil {
			logger.G(ctx).WithError(err).Warn("failed to initialize tracing")
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logrus.WithError(err).Debug("failed to shut down tracing")
				}
			}()
		}

		ctx, span := tracer.Start(
			ctx,
			"cli.command",
			trace.WithAttributes(commandAttributes(cmd, args)...),
		)
		defer span.End()

		cmd.SetContext(ctx)
		if err := originalRun(cmd, args); err != nil {
			if code, ok := exitStatus(err); ok {
				span.SetAttributes(attribute.Int("exit.code", code))
			} else {
				span.RecordError(err)
			}
			span.SetStatus(codes.Error, err.Error())
			return err
		}

		span.SetStatus(codes.Ok, "")
		return nil
	}

	return cmd
}

// withTracingAll wraps every runnable command of the tree rooted at cmd.
func withTracingAll(cmd *cobra.Command) *cobra.Command {
	for _, c := range cmd.Commands() {
		withTracingAll(c)
	}
	if cmd.HasSubCommands() {
		return cmd
	}
	return withTracing(cmd)
}

// Initialize global flags for tracing
func init() {
	rootCmd.PersistentFlags().Bool("tracing-enabled", false, "Enable OpenTelemetry tracing")
	rootCmd.PersistentFlags().String("tracing-sampler", "ratio", "Tracing sampler type (always, never, ratio)")
	rootCmd.PersistentFlags().Float64("tracing-ratio", 1, "Sampling ratio when using ratio sampler")

	viper.BindPFlag("tracing.enabled", rootCmd.PersistentFlags().Lookup("tracing-enabled"))
	viper.BindPFlag("tracing.sampler", rootCmd.PersistentFlags().Lookup("tracing-sampler"))
	viper.BindPFlag("tracing.ratio", rootCmd.PersistentFlags().Lookup("tracing-ratio"))
}
