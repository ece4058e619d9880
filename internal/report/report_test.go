package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/state"
)

func sampleStats() state.Stats {
	return state.Stats{
		Schemas: state.StageStats{Total: 2, Migrated: 2},
		Assets:  state.StageStats{Total: 10, Migrated: 7, Skipped: 1, Failed: 2},
		Records: state.StageStats{Total: 4, Migrated: 4},
	}
}

func TestLinesFollowStageOrder(t *testing.T) {
	t.Parallel()

	lines := Lines(sampleStats())
	require.Len(t, lines, 3)
	assert.Equal(t, state.StageSchemas.Label(), lines[0].Name)
	assert.Equal(t, state.StageRecords.Label(), lines[2].Name)
	assert.Equal(t, 2, lines[1].Failed)
	assert.Equal(t, 1, lines[1].Skipped)
}

func TestStatsTableContainsCounts(t *testing.T) {
	t.Parallel()

	out := StatsTable(sampleStats())
	assert.Contains(t, out, "Migrated")
	assert.Contains(t, out, state.StageAssets.Label())
	assert.Contains(t, out, "10")
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		run  Run
		want string
	}{
		{"clean", Run{}, "completed"},
		{"failures", Run{Failed: map[state.Stage][]string{state.StageAssets: {"a1"}}}, "completed with failures"},
		{"error", Run{Err: errors.NewStd("boom")}, "failed"},
		{"interrupted", Run{Interrupted: true, Err: errors.NewStd("cancelled")}, "interrupted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.run.Outcome())
		})
	}
}

func TestWriteRun(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := WriteRun(&buf, Run{
		RunID:    "run-1",
		Stats:    sampleStats(),
		Failed:   map[state.Stage][]string{state.StageAssets: {"a1", "a2"}},
		Elapsed:  90 * time.Second,
		Location: "state.json",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "2 item(s) failed")
	assert.Contains(t, out, "state.json")
}

func TestNotification(t *testing.T) {
	t.Parallel()

	msg := Notification(Run{RunID: "run-2", Stats: sampleStats(), Elapsed: time.Minute})
	assert.Contains(t, msg.Title, "completed")
	assert.Contains(t, msg.Body, "run-2")
	assert.Contains(t, msg.Body, "7/10 migrated")
}
