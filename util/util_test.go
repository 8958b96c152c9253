package util

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestInitLoggerFiltersByLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev); Logger = prev })

	var buf bytes.Buffer
	InitLogger("warn", &buf)
	Logger.Info("hidden")
	Logger.Warn("shown", "key", "value")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "key=value")
}

func TestPlotLoggerWritesHistory(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "history.csv")
	require.NoError(t, InitPlotLogger(fname))
	PlotEpoch(1, 0.5, 0.75, 100)
	PlotEpoch(2, 0.25, 0.875, 100)
	require.NoError(t, ClosePlotLogger())

	// a second run appends without repeating the header
	require.NoError(t, InitPlotLogger(fname))
	PlotEpoch(1, 0.4, 0.8, 50)
	require.NoError(t, ClosePlotLogger())

	data, err := os.ReadFile(fname)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "epoch,loss,accuracy,samples", lines[0])
	assert.Equal(t, "1,0.500000,0.750000,100", lines[1])
	assert.Equal(t, "1,0.400000,0.800000,50", lines[3])
}

func TestPlotEpochDisabledIsNoop(t *testing.T) {
	require.NoError(t, ClosePlotLogger())
	PlotEpoch(1, 1, 1, 1)
}
