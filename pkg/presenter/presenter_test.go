package presenter

import (
	"bytes"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func newTestPresenter() (*TerminalPresenter, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	return NewWithOptions(&out, &errOut, ColorNever), &out, &errOut
}

func TestTerminalPresenter_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		context  string
		expected string
	}{
		{name: "with context", err: errors.New("boom"), context: "failed to build skills", expected: "[ERROR] failed to build skills: boom\n"},
		{name: "without context", err: errors.New("boom"), expected: "[ERROR] boom\n"},
		{name: "nil error", err: nil, context: "ignored", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, errOut := newTestPresenter()
			p.Error(tt.err, tt.context)
			assert.Equal(t, tt.expected, errOut.String())
		})
	}
}

func TestTerminalPresenter_Messages(t *testing.T) {
	p, out, _ := newTestPresenter()

	p.Success("skills written")
	p.Warning("no controls found")
	p.Info("plain")

	assert.Equal(t, "✓ skills written\n⚠ no controls found\nplain\n", out.String())
}

func TestTerminalPresenter_Quiet(t *testing.T) {
	p, out, errOut := newTestPresenter()
	p.SetQuiet(true)
	assert.True(t, p.IsQuiet())

	p.Success("x")
	p.Info("x")
	p.Section("x")
	p.Stats(&RunStats{Step: "detect"})
	p.Error(errors.New("still shown"), "")

	assert.Empty(t, out.String())
	assert.Contains(t, errOut.String(), "still shown")
}

func TestTerminalPresenter_Stats(t *testing.T) {
	p, out, _ := newTestPresenter()

	p.Stats(&RunStats{
		Step:     "detect",
		RunDir:   "/data/example_com/20250101000000",
		Counts:   map[string]int{"elements": 120, "controls": 14},
		Warnings: 2,
		Duration: 1500 * time.Millisecond,
	})

	assert.Equal(t,
		"[detect] controls: 14 | elements: 120 | warnings: 2 | took: 1.5s\n[detect] run dir: /data/example_com/20250101000000\n",
		out.String())
}

func TestTerminalPresenter_Section(t *testing.T) {
	p, out, _ := newTestPresenter()
	p.Section("Repair")
	assert.Equal(t, "Repair\n------\n", out.String())
}
