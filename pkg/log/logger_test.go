package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, LevelWarn)

	l.Info("hidden %d", 1)
	l.Warn("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN]")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "logger_test.go")
}

func TestGlobalLogger_ReportsCallerFile(t *testing.T) {
	var buf bytes.Buffer
	prev := GetLogger()
	SetLogger(NewWithWriter(&buf, LevelDebug))
	t.Cleanup(func() { SetLogger(prev) })

	Debug("from global")

	line := strings.TrimSpace(buf.String())
	assert.Contains(t, line, "[DEBUG]")
	assert.Contains(t, line, "logger_test.go")
	assert.NotContains(t, line, "[logger.go")
}
