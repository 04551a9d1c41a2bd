package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Warnf("warn")
	l.Errorf("error")
}

func TestZerologLogger_JSONFieldsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter("trainer", &buf, zerolog.InfoLevel).With(map[string]any{"run_id": "r1"})
	l.Debugw("train batch", map[string]any{"loss": 0.5})
	l.Infof("epoch %d", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1, "debug must be filtered at info level")
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "trainer", entry["component"])
	assert.Equal(t, "r1", entry["run_id"])
	assert.Equal(t, "epoch 3", entry["message"])
	assert.Equal(t, "info", entry["level"])
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	assert.Equal(t, zerolog.DebugLevel, levelFromEnv())
	t.Setenv("LOG_LEVEL", "bogus")
	assert.Equal(t, zerolog.InfoLevel, levelFromEnv())
	t.Setenv("LOG_LEVEL", "")
	assert.Equal(t, zerolog.InfoLevel, levelFromEnv())
}

func TestOrNopAndForRun(t *testing.T) {
	assert.IsType(t, NopLogger{}, OrNop(nil))
	l := ForRun("trainer", "r2")
	assert.Same(t, l, OrNop(l))
}
