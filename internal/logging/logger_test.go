package logging

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	require.Equal(t, LevelDebug, ParseLevel("debug"))
	require.Equal(t, LevelWarn, ParseLevel("WARNING"))
	require.Equal(t, LevelError, ParseLevel(" error "))
	require.Equal(t, LevelInfo, ParseLevel(""))
	require.Equal(t, LevelInfo, ParseLevel("bogus"))
}

func TestOrNop(t *testing.T) {
	require.NotNil(t, OrNop(nil))

	var typed *fileLogger
	require.Equal(t, Nop(), OrNop(typed))

	logger := Nop()
	require.Equal(t, logger, OrNop(logger))
}

type captureWriter struct {
	mu    sync.Mutex
	lines []string
}

func (w *captureWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lines = append(w.lines, string(p))
	return len(p), nil
}

func TestFileLoggerLevelFiltering(t *testing.T) {
	out := &captureWriter{}
	logger := &fileLogger{out: out, level: LevelWarn, component: "test"}

	logger.Debug("dropped")
	logger.Info("dropped too")
	logger.Warn("kept %d", 1)
	logger.Error("kept %d", 2)

	require.Len(t, out.lines, 2)
	require.Contains(t, out.lines[0], "[WARN]")
	require.Contains(t, out.lines[0], "[test]")
	require.Contains(t, out.lines[0], "kept 1")
	require.True(t, strings.Contains(out.lines[1], "kept 2"))
}
