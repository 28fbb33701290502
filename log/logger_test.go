package log

import (
	"testing"

	"github.com/kataras/golog"
	"github.com/stretchr/testify/assert"
)

func TestLogLevelString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "INFO", LogLevelInfo.String())
	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "ERROR", LogLevelError.String())
	assert.Equal(t, "NONE", LogLevelNone.String())
	assert.Equal(t, "UNKNOWN(42)", LogLevel(42).String())
}

func TestGologLoggerImplementsLogger(t *testing.T) {
	t.Parallel()

	var _ Logger = NewGologLogger(golog.New())
	var _ Logger = (*NoOpLogger)(nil)
}

func TestDefaultLogger(t *testing.T) {
	original := GetDefaultLogger()
	defer SetDefaultLogger(original)

	noop := &NoOpLogger{}
	SetDefaultLogger(noop)
	assert.Same(t, Logger(noop), GetDefaultLogger())
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()

	l := NewGologLogger(golog.New())
	l.SetLevel(LogLevelNone)

	// Must not panic with no output sinks configured.
	l.Debug("debug %d", 1)
	l.Info("info %d", 2)
	l.Warn("warn %d", 3)
	l.Error("error %d", 4)
}
