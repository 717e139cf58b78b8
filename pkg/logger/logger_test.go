package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	l := newLogger()

	formatter, ok := l.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.Equal(t, time.RFC3339Nano, formatter.TimestampFormat)
	assert.True(t, formatter.FullTimestamp)
}

func TestGetLogger_FallsBackToGlobal(t *testing.T) {
	entry := G(context.Background())
	assert.Equal(t, L.Logger, entry.Logger)
}

func TestWithLogger(t *testing.T) {
	custom := logrus.NewEntry(logrus.New()).WithField("component", "detect")
	ctx := WithLogger(context.Background(), custom)

	got := G(ctx)
	assert.Equal(t, "detect", got.Data["component"])
}

func TestWithRun(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	setLoggerFormat(l, "json")

	ctx := WithLogger(context.Background(), logrus.NewEntry(l))
	ctx = WithRun(ctx, "example_com", "/tmp/run")
	G(ctx).Info("collected")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "example_com", line["domain"])
	assert.Equal(t, "/tmp/run", line["run_dir"])
	assert.Equal(t, "collected", line["message"])
	assert.Equal(t, "info", line["logLevel"])
}

func TestSetup(t *testing.T) {
	orig := L.Logger.GetLevel()
	defer L.Logger.SetLevel(orig)
	defer SetLogFormat("fmt")

	require.NoError(t, Setup("debug", "json"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, L.Logger.Formatter)

	assert.Error(t, Setup("nope", "text"))
}
