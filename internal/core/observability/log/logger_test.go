package log

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"":        LevelInfo,
		"warning": LevelWarn,
		" error ": LevelError,
		"fatal":   LevelFatal,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestLogger_FieldsAndLevel(t *testing.T) {
	core, logs := observer.New(toZapLevel(LevelDebug))
	logger := NewWithCore(core, LevelInfo)

	child := logger.With(String("component", "recorder"))
	child.Debug("hidden")
	child.Info("drained",
		Uint64("sequence", 3),
		Int("entities", 2),
		Duration("took", time.Millisecond),
		Error(errors.New("boom")))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "drained", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "recorder", ctx["component"])
	assert.Equal(t, uint64(3), ctx["sequence"])
	assert.Equal(t, "boom", ctx["error"])

	// children share the level
	child.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, logger.GetLevel())
	logger.Debug("visible")
	assert.Equal(t, 2, logs.Len())
}

func TestLogger_LogRespectsLevel(t *testing.T) {
	core, logs := observer.New(toZapLevel(LevelDebug))
	logger := NewWithCore(core, LevelWarn)

	logger.Log(LevelInfo, "dropped")
	logger.Log(LevelError, "kept")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	logger.Info("nothing", Bool("ok", true))
	assert.Equal(t, LevelInfo, logger.GetLevel())
}

func TestLogger_TypedFields(t *testing.T) {
	core, logs := observer.New(toZapLevel(LevelDebug))
	logger := NewWithCore(core, LevelDebug)
	savedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	logger.Info("typed",
		Bool("save_on_stop", true),
		Int64("seed", -7),
		Time("saved_at", savedAt))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, true, fields["save_on_stop"])
	assert.Equal(t, int64(-7), fields["seed"])
	assert.True(t, savedAt.Equal(fields["saved_at"].(time.Time)))
}
