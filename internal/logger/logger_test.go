package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for line := range strings.SplitSeq(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), "line: %s", line)
		out = append(out, m)
	}
	return out
}

func TestSlogLoggerLevels(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelInfo, time.UTC)

	log.Debug("hidden")
	log.Info("shown", String("source_id", "a1"), Int("attempt", 2))
	log.Warn("also shown")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "shown", lines[0]["msg"])
	assert.Equal(t, "a1", lines[0]["source_id"])
	assert.InDelta(t, 2, lines[0]["attempt"], 0)
	assert.Equal(t, "WARN", lines[1]["level"])
}

func TestModuleScoping(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelDebug, time.UTC).Module("migrate").Module("assets")

	log.Info("uploaded")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "migrate.assets", lines[0]["module"])
}

func TestWithFieldsAreImmutable(t *testing.T) {
	buf := &bytes.Buffer{}
	base := NewSlogLogger(buf, LogLevelInfo, time.UTC).Module("state")
	child := base.With(String("stage", "records"))

	base.Info("base")
	child.Info("child")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "stage")
	assert.Equal(t, "records", lines[1]["stage"])
}

func TestWithContextAddsTraceID(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelInfo, time.UTC)

	ctx := WithTraceID(t.Context(), "run-123")
	log.WithContext(ctx).Info("started")
	log.WithContext(t.Context()).Info("no trace")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "run-123", lines[0]["trace_id"])
	assert.NotContains(t, lines[1], "trace_id")
}

func TestErrorAndDurationFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelInfo, time.UTC)

	log.Error("failed", Error(errors.New("boom")), Duration("elapsed", 1500*time.Millisecond))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "boom", lines[0]["error"])
	assert.Equal(t, "1.5s", lines[0]["elapsed"])
}

func TestTraceLevelName(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelTrace, time.UTC)

	log.Trace("sql")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "TRACE", lines[0]["level"])
}

func TestRedactSensitiveData(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains string
		hidden   string
	}{
		{
			name:     "signed url",
			input:    "https://images.secure.ctfassets.net/x/y.png?token=abcdef&policy=ghijkl",
			contains: "token=[REDACTED]",
			hidden:   "ghijkl",
		},
		{
			name:     "bearer header",
			input:    "Authorization: Bearer CFPAT-1234567890",
			contains: "Bearer [REDACTED]",
			hidden:   "CFPAT-1234567890",
		},
		{
			name:     "secret",
			input:    "secret=supersecretvalue",
			contains: "[REDACTED]",
			hidden:   "supersecretvalue",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := RedactSensitiveData(tt.input)
			assert.Contains(t, out, tt.contains)
			assert.NotContains(t, out, tt.hidden)
		})
	}

	assert.Equal(t, "plain message", RedactSensitiveData("plain message"))
}

func TestLoggedURLsAreRedacted(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewSlogLogger(buf, LogLevelInfo, time.UTC)

	log.Info("download", String("url", "https://a.secure.ctfassets.net/f.png?token=secret-token&policy=pol"))

	assert.NotContains(t, buf.String(), "secret-token")
}

func TestCentralLoggerWritesRotatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "cfmigrate.log")

	cl, err := NewCentralLogger(&LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &ConsoleOutput{Enabled: false},
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "debug", MaxSize: 1},
		ModuleLevels: map[string]string{"quiet": "error"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = cl.Close() })

	cl.Module("state").Debug("checkpoint saved", Int("items", 10))
	cl.Module("quiet").Info("suppressed")

	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "checkpoint saved")
	assert.NotContains(t, string(data), "suppressed")
}

func TestCentralLoggerRejectsBadTimezone(t *testing.T) {
	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)

	_, err = NewCentralLogger(nil)
	require.Error(t, err)
}
