// Package report renders migration progress for terminals and notifications.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"github.com/o2cms/cfmigrate/internal/notify"
	"github.com/o2cms/cfmigrate/internal/state"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	failStyle   = cellStyle.Foreground(lipgloss.Color("9"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	mutedStyle  = lipgloss.NewStyle().Faint(true)
)

// failedColumn is the index of the failed count in StatsTable.
const failedColumn = 4

// Lines converts stats into one line per stage, in execution order.
func Lines(stats state.Stats) []notify.StageLine {
	lines := make([]notify.StageLine, 0, len(state.Stages))
	for _, stage := range state.Stages {
		s := stats.For(stage)
		lines = append(lines, notify.StageLine{
			Name:     stage.Label(),
			Total:    s.Total,
			Migrated: s.Migrated,
			Skipped:  s.Skipped,
			Failed:   s.Failed,
		})
	}
	return lines
}

// StatsTable renders per-stage counts as a bordered table.
func StatsTable(stats state.Stats) string {
	lines := Lines(stats)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("Stage", "Total", "Migrated", "Skipped", "Failed").
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == failedColumn && row >= 0 && row < len(lines) && lines[row].Failed > 0:
				return failStyle
			default:
				return cellStyle
			}
		})

	for _, l := range lines {
		t.Row(l.Name, strconv.Itoa(l.Total), strconv.Itoa(l.Migrated), strconv.Itoa(l.Skipped), strconv.Itoa(l.Failed))
	}
	return t.String()
}

// Run describes a finished run for WriteRun.
type Run struct {
	RunID       string
	Stats       state.Stats
	Failed      map[state.Stage][]string
	Elapsed     time.Duration
	Interrupted bool
	Err         error
	Location    string
}

// Outcome is a one-word description of how the run ended.
func (r Run) Outcome() string {
	switch {
	case r.Interrupted:
		return "interrupted"
	case r.Err != nil:
		return "failed"
	case r.failedCount() > 0:
		return "completed with failures"
	default:
		return "completed"
	}
}

func (r Run) failedCount() int {
	n := 0
	for _, ids := range r.Failed {
		n += len(ids)
	}
	return n
}

// WriteRun prints the end-of-run summary.
func WriteRun(w io.Writer, r Run) error {
	var b strings.Builder

	outcome := r.Outcome()
	style := okStyle
	switch outcome {
	case "interrupted", "completed with failures":
		style = warnStyle
	case "failed":
		style = failStyle.UnsetPadding()
	}

	fmt.Fprintf(&b, "%s %s\n", titleStyle.Render("Migration"), style.Render(outcome))
	fmt.Fprintf(&b, "%s\n", mutedStyle.Render(fmt.Sprintf("run %s, %s elapsed", r.RunID, r.Elapsed.Round(time.Second))))
	b.WriteString(StatsTable(r.Stats))
	b.WriteByte('\n')

	if n := r.failedCount(); n > 0 {
		fmt.Fprintf(&b, "%s item(s) failed; rerun to retry them. Failed ids are kept in %s\n",
			humanize.Comma(int64(n)), r.Location)
	}
	if r.Interrupted {
		fmt.Fprintf(&b, "Progress saved to %s; run again to resume.\n", r.Location)
	}
	if r.Err != nil && !r.Interrupted {
		fmt.Fprintf(&b, "Stopped: %v\n", r.Err)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// Notification builds the completion message for r.
func Notification(r Run) notify.Message {
	return notify.FormatSummary(r.RunID, Lines(r.Stats), r.Elapsed, r.Outcome())
}
