package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type testLogger struct {
	entries []string
}

func (l *testLogger) Info(_ map[string]any, msg string)  { l.entries = append(l.entries, "INFO:"+msg) }
func (l *testLogger) Error(_ map[string]any, msg string) { l.entries = append(l.entries, "ERROR:"+msg) }
func (l *testLogger) Debug(_ map[string]any, msg string) { l.entries = append(l.entries, "DEBUG:"+msg) }
func (l *testLogger) Warn(_ map[string]any, msg string)  { l.entries = append(l.entries, "WARN:"+msg) }
func (l *testLogger) Panic(_ map[string]any, msg string) {}
func (l *testLogger) Fatal(_ map[string]any, msg string) {}

func TestActualZapLogger(t *testing.T) {
	logger := newZapLogger(true, -1)
	logger.Debug(map[string]any{
		"host":  "example.com",
		"score": 0.3,
		"error": assert.AnError,
	}, "test debug")
	logger.Info(nil, "test info")
	logger.Warn(nil, "test warn")
	logger.Error(nil, "test error")

	assert.Panics(t, func() { logger.Panic(nil, "test panic") })
}

func TestSetLoggerAndGlobalLogging(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	tlog := &testLogger{}
	SetLogger(tlog)

	Info(nil, "info msg")
	Error(nil, "error msg")
	Debug(nil, "debug msg")
	Warn(nil, "warn msg")

	assert.Equal(t, []string{
		"INFO:info msg",
		"ERROR:error msg",
		"DEBUG:debug msg",
		"WARN:warn msg",
	}, tlog.entries)
}

func TestConfigure(t *testing.T) {
	orig := GetLogger()
	defer SetLogger(orig)

	assert.NoError(t, Configure("dev", "debug"))
	assert.NoError(t, Configure("prod", "WARN"))
	assert.Error(t, Configure("prod", "loud"))
}

func TestEmit_RoutesByLevel(t *testing.T) {
	tlog := &testLogger{}
	Emit(tlog, LevelDebug, nil, "d")
	Emit(tlog, LevelInfo, nil, "i")
	Emit(tlog, LevelWarn, nil, "w")
	Emit(tlog, LevelError, nil, "e")

	assert.Equal(t, []string{"DEBUG:d", "INFO:i", "WARN:w", "ERROR:e"}, tlog.entries)
}

func TestLevel_StringAndSeverity(t *testing.T) {
	assert.Equal(t, "debug", LevelDebug.String())
	assert.Equal(t, "info", LevelInfo.String())
	assert.Equal(t, "warn", LevelWarn.String())
	assert.Equal(t, "error", LevelError.String())
	assert.Equal(t, "Level(9)", Level(9).String())

	assert.False(t, LevelInfo.AtLeastWarn())
	assert.True(t, LevelWarn.AtLeastWarn())
	assert.True(t, LevelError.AtLeastWarn())
}

func TestNoopLogger(t *testing.T) {
	l := NewNoopLogger()
	assert.NotPanics(t, func() {
		l.Info(nil, "x")
		l.Error(nil, "x")
		l.Debug(nil, "x")
		l.Warn(nil, "x")
		l.Panic(nil, "x")
		l.Fatal(nil, "x")
	})
}
