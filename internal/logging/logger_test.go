package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name        string
		level       Level
		expected    []string
		notExpected []string
	}{
		{
			name:     "debug level shows all messages",
			level:    LevelDebug,
			expected: []string{"DEBUG", "debug message", "INFO", "info message", "WARN", "warn message", "ERROR", "error message"},
		},
		{
			name:        "info level hides debug messages",
			level:       LevelInfo,
			expected:    []string{"info message", "warn message", "error message"},
			notExpected: []string{"debug message"},
		},
		{
			name:        "warn level shows only warnings and errors",
			level:       LevelWarn,
			expected:    []string{"warn message", "error message"},
			notExpected: []string{"debug message", "info message"},
		},
		{
			name:        "error level shows only errors",
			level:       LevelError,
			expected:    []string{"error message"},
			notExpected: []string{"debug message", "info message", "warn message"},
		},
		{
			name:        "off level shows nothing",
			level:       LevelOff,
			notExpected: []string{"debug message", "info message", "warn message", "error message"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			l := NewLogger(&buf, tt.level)
			l.Debug("debug message")
			l.Info("info message")
			l.Warn("warn message")
			l.Error("error message")

			out := buf.String()
			for _, want := range tt.expected {
				assert.Contains(t, out, want)
			}
			for _, unwanted := range tt.notExpected {
				assert.NotContains(t, out, unwanted)
			}
		})
	}
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf, LevelInfo)

	l.WithField("call_id", "abc").WithFields(Fields{"count": 3}).Info("generated %d prompts", 3)

	out := buf.String()
	assert.Contains(t, out, "generated 3 prompts")
	assert.Contains(t, out, `"call_id": "abc"`)
	assert.Contains(t, out, `"count": 3`)
}

func TestDerivedLoggerSharesLevel(t *testing.T) {
	var buf bytes.Buffer
	parent := NewLogger(&buf, LevelInfo)
	child := parent.WithField("k", "v")

	assert.False(t, child.IsDebugMode())
	parent.SetLevel(LevelDebug)
	assert.True(t, child.IsDebugMode())

	child.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"off", LevelOff, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid log level")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGlobalLogger(t *testing.T) {
	original := GetLogger()
	defer SetLogger(original)

	var buf bytes.Buffer
	SetLogger(NewLogger(&buf, LevelWarn))

	Info("hidden")
	Warn("shown")
	require.NoError(t, SetLevel("debug"))
	Debug("debug shown")
	Error("failed with code %d", 3)
	require.Error(t, SetLevel("bogus"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "debug shown")
	assert.Contains(t, out, "failed with code 3")

	SetLogger(nil)
	assert.NotNil(t, GetLogger())
}
