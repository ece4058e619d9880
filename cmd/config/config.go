// Package config provides the config subcommands.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/o2cms/cfmigrate/internal/conf"
	"github.com/o2cms/cfmigrate/internal/privacy"
)

const masked = "********"

// Command creates the config command with its init and show subcommands.
// Commands annotated with skipAnnotation run before settings are loaded.
func Command(settings *conf.Settings, configFile *string, skipAnnotation string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create or inspect the configuration",
	}

	initCmd := &cobra.Command{
		Use:         "init [path]",
		Short:       "Write an annotated default config file",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{skipAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *configFile
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				paths, err := conf.GetDefaultConfigPaths()
				if err != nil {
					return err
				}
				path = filepath.Join(paths[len(paths)-1], "config.yaml")
			}
			if err := conf.WriteDefaultConfig(path); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return err
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(Redacted(settings)); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

// Redacted returns a copy of settings safe to print.
func Redacted(settings *conf.Settings) conf.Settings {
	out := *settings
	out.Source.DeliveryToken = mask(out.Source.DeliveryToken)
	out.Source.ManagementToken = mask(out.Source.ManagementToken)
	out.Destination.Token = mask(out.Destination.Token)
	if out.Telemetry.SentryDSN != "" {
		out.Telemetry.SentryDSN = privacy.RedactURL(out.Telemetry.SentryDSN)
	}

	urls := make([]string, len(out.Notify.URLs))
	for i, u := range out.Notify.URLs {
		urls[i] = privacy.RedactURL(u)
	}
	out.Notify.URLs = urls
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return masked
}
