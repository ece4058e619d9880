// Package status provides the status command.
package status

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/o2cms/cfmigrate/internal/conf"
	"github.com/o2cms/cfmigrate/internal/report"
	"github.com/o2cms/cfmigrate/internal/state"
)

// Output formats.
const (
	FormatText = "text"
	FormatYAML = "yaml"
)

// Report is the status document.
type Report struct {
	Location    string              `yaml:"location"`
	Destination *state.Destination  `yaml:"destination,omitempty"`
	Selection   *SelectionReport    `yaml:"selection,omitempty"`
	Migrated    map[string]int      `yaml:"migrated"`
	Stats       state.Stats         `yaml:"last_run"`
	Failed      map[string][]string `yaml:"failed,omitempty"`
	LastRunID   string              `yaml:"last_run_id,omitempty"`
	UpdatedAt   time.Time           `yaml:"updated_at,omitempty"`
}

// SelectionReport is the fixed scope of a state.
type SelectionReport struct {
	Schemas      []string `yaml:"content_types"`
	Strategy     string   `yaml:"asset_strategy"`
	LinkedAssets int      `yaml:"linked_assets"`
}

// Command creates the status command.
func Command(settings *conf.Settings) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show saved migration progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := state.Open(nil, settings.State.Backend, settings.State.Path)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Load(cmd.Context()); err != nil {
				return err
			}
			return Write(cmd.OutOrStdout(), Build(store), format)
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", FormatText, "Output format: text or yaml")
	return cmd
}

// Build collects the status of store.
func Build(store *state.Store) Report {
	snap := store.Snapshot()
	r := Report{
		Location: store.Location(),
		Migrated: map[string]int{
			state.StageSchemas.Label(): len(snap.MigratedSchemas),
			state.StageAssets.Label():  len(snap.MigratedAssets),
			state.StageRecords.Label(): len(snap.MigratedRecords),
		},
		Stats:     snap.Stats,
		LastRunID: snap.LastRunID,
		UpdatedAt: snap.UpdatedAt,
	}
	if d, ok := store.Destination(); ok {
		r.Destination = &d
	}
	if sel, ok := store.Selection(); ok {
		r.Selection = &SelectionReport{
			Schemas:      sel.Schemas,
			Strategy:     string(sel.Strategy),
			LinkedAssets: len(sel.LinkedAssetIDs),
		}
	}
	for _, stage := range state.Stages {
		if ids := store.FailedIDs(stage); len(ids) > 0 {
			if r.Failed == nil {
				r.Failed = make(map[string][]string)
			}
			r.Failed[stage.Label()] = ids
		}
	}
	return r
}

// Write renders r in format.
func Write(w io.Writer, r Report, format string) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		_, err := io.WriteString(w, text(r))
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func text(r Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "State:       %s\n", r.Location)
	if r.Selection == nil {
		b.WriteString("No migration started.\n")
		return b.String()
	}
	if d := r.Destination; d != nil {
		fmt.Fprintf(&b, "Destination: space %s, environment %s\n", d.SpaceID, d.EnvironmentID)
	}
	fmt.Fprintf(&b, "Selection:   %s (assets: %s, %d linked)\n",
		strings.Join(r.Selection.Schemas, ", "), r.Selection.Strategy, r.Selection.LinkedAssets)
	if !r.UpdatedAt.IsZero() {
		fmt.Fprintf(&b, "Updated:     %s (run %s)\n", humanize.Time(r.UpdatedAt), r.LastRunID)
	}
	fmt.Fprintf(&b, "Migrated:    %d content types, %d assets, %d entries\n",
		r.Migrated[state.StageSchemas.Label()], r.Migrated[state.StageAssets.Label()], r.Migrated[state.StageRecords.Label()])

	b.WriteString("Last run:\n")
	b.WriteString(report.StatsTable(r.Stats))
	b.WriteByte('\n')

	for _, stage := range state.Stages {
		ids := r.Failed[stage.Label()]
		if len(ids) == 0 {
			continue
		}
		fmt.Fprintf(&b, "Failed %s (%d): %s\n", stage.Label(), len(ids), strings.Join(ids, ", "))
	}
	return b.String()
}
