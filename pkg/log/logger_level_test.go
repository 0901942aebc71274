package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":     LevelDebug,
		"INFO":      LevelInfo,
		"WaRn":      LevelWarn,
		"warning":   LevelWarn,
		"error":     LevelError,
		"fatal":     LevelFatal,
		"  debug  ": LevelDebug,
		"verbose":   LevelInfo,
		"":          LevelInfo,
	}
	for input, want := range tests {
		assert.Equal(t, want, ParseLevel(input), "ParseLevel(%q)", input)
	}
}

func TestLevelString_RoundTrips(t *testing.T) {
	for _, level := range []LogLevel{LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal} {
		assert.Equal(t, level, ParseLevel(level.String()))
	}
	assert.Equal(t, "INFO", LogLevel(42).String())
}

func TestWith_SharesParentLevel(t *testing.T) {
	var buf bytes.Buffer
	parent := NewWithWriter(&buf, LevelWarn)
	child := parent.With("job 01234567").With("translate")

	child.Info("hidden")
	parent.SetLevel(LevelInfo)
	child.Info("batch %d done", 3)
	child.Log(LevelDebug, "still hidden")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[job 01234567] [translate] batch 3 done")
	assert.Contains(t, out, "logger_level_test.go")
	assert.Equal(t, LevelInfo, child.Level())
}
