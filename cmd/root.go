package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/o2cms/cfmigrate/cmd/config"
	"github.com/o2cms/cfmigrate/cmd/migrate"
	"github.com/o2cms/cfmigrate/cmd/notify"
	"github.com/o2cms/cfmigrate/cmd/status"
	"github.com/o2cms/cfmigrate/cmd/version"
	"github.com/o2cms/cfmigrate/internal/buildinfo"
	"github.com/o2cms/cfmigrate/internal/conf"
	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/logger"
)

// skipSetupAnnotation marks commands that run without loading settings.
const skipSetupAnnotation = "cfmigrate/skip-setup"

// RootCommand creates and returns the root command. settings is populated
// from the config file, environment and flags before a subcommand runs.
func RootCommand(settings *conf.Settings) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "cfmigrate",
		Short:         "Migrate a Contentful space to O2 CMS",
		Long:          "Copies content types, assets and entries from a Contentful space to an O2 CMS space, resuming from saved state after an interruption.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if err := setupFlags(rootCmd, &configFile); err != nil {
		panic(err)
	}

	versionCmd := version.Command()
	versionCmd.Annotations = map[string]string{skipSetupAnnotation: "true"}

	rootCmd.AddCommand(
		migrate.Command(settings),
		status.Command(settings),
		notify.Command(settings),
		config.Command(settings, &configFile, skipSetupAnnotation),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipSetupAnnotation] == "true" {
			return nil
		}

		loaded, err := conf.Load(nil, configFile)
		if err != nil {
			return err
		}
		*settings = *loaded
		return initialize(settings)
	}

	return rootCmd
}

// initialize sets up logging and error telemetry once settings are known.
func initialize(settings *conf.Settings) error {
	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)

	bi := buildinfo.Current()
	reporter, err := errors.InitSentry(settings.Telemetry.SentryDSN, bi.Release(), settings.Telemetry.Environment)
	if err != nil {
		// telemetry is optional; keep going without it
		central.Module("main").Warn("error telemetry disabled", logger.Error(err))
		return nil
	}
	if reporter.IsEnabled() {
		errors.SetTelemetryReporter(reporter)
	}
	return nil
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) error {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(configFile, "config", "c", "", "Config file (default ./config.yaml or ~/.config/cfmigrate/config.yaml)")
	flags.BoolP("debug", "d", false, "Enable debug output")
	flags.String("state", "", "Path of the state file or database")
	flags.String("state-backend", "", "State backend: "+strings.Join([]string{conf.StateBackendFile, conf.StateBackendSQLite}, " or "))

	return conf.BindFlags(flags, map[string]string{
		"debug":         "debug",
		"state":         "state.path",
		"state-backend": "state.backend",
	})
}
