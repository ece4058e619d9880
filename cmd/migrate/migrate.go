// Package migrate provides the migrate command.
package migrate

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/o2cms/cfmigrate/internal/buildinfo"
	"github.com/o2cms/cfmigrate/internal/conf"
	"github.com/o2cms/cfmigrate/internal/destination"
	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/httpclient"
	"github.com/o2cms/cfmigrate/internal/logger"
	"github.com/o2cms/cfmigrate/internal/migrate"
	"github.com/o2cms/cfmigrate/internal/notify"
	"github.com/o2cms/cfmigrate/internal/observability"
	"github.com/o2cms/cfmigrate/internal/report"
	"github.com/o2cms/cfmigrate/internal/signer"
	"github.com/o2cms/cfmigrate/internal/source"
	"github.com/o2cms/cfmigrate/internal/state"
)

// Command creates the migrate command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run or resume a migration",
		Long: `Migrate content types, assets and entries from Contentful to O2 CMS.

Progress is saved as items complete. Running the command again resumes an
interrupted migration and retries items that failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), settings, Interactive(settings), cmd.OutOrStdout())
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}
	return cmd
}

// setupFlags configures flags specific to the migrate command.
func setupFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	flags.String("space", "", "Destination space id (default: choose or create)")
	flags.String("environment", "", "Destination environment name or id")
	flags.StringSlice("schemas", nil, "Content types to migrate (default: all in CI mode, prompt otherwise)")
	flags.String("asset-strategy", "", "Assets to migrate: all or linked")
	flags.Int("workers", 0, "Concurrent asset transfers")
	flags.Int("checkpoint-interval", 0, "Items between state saves")
	flags.Duration("item-delay", 0, "Pause after each content type and entry")
	flags.Bool("skip-schemas", false, "Skip the content type stage")
	flags.Bool("skip-assets", false, "Skip the asset stage")
	flags.Bool("skip-records", false, "Skip the entry stage")
	flags.Bool("ci", false, "Run without prompts: all content types, linked assets")
	flags.Bool("reset", false, "Delete saved progress before starting")

	return conf.BindFlags(flags, map[string]string{
		"space":               "destination.space_id",
		"environment":         "destination.environment",
		"schemas":             "migration.schemas",
		"asset-strategy":      "migration.asset_strategy",
		"workers":             "migration.workers",
		"checkpoint-interval": "migration.checkpoint_interval",
		"item-delay":          "migration.item_delay",
		"skip-schemas":        "migration.skip_schemas",
		"skip-assets":         "migration.skip_assets",
		"skip-records":        "migration.skip_records",
		"ci":                  "migration.ci",
		"reset":               "migration.reset",
	})
}

// Run performs one migration run with settings. Prompts go through p, the
// summary to out.
func Run(ctx context.Context, settings *conf.Settings, p Prompter, out io.Writer) error {
	if err := settings.RequireCredentials(); err != nil {
		return errors.New(err).
			Component("cli").
			Category(errors.CategoryConfiguration).
			Build()
	}
	log := GetLogger()
	bi := buildinfo.Current()

	metrics, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	store, err := openStore(ctx, settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("closing state failed", logger.Error(err))
		}
	}()

	src, err := source.New(source.Config{
		SpaceID:         settings.Source.SpaceID,
		Environment:     settings.Source.Environment,
		DeliveryToken:   settings.Source.DeliveryToken,
		ManagementToken: settings.Source.ManagementToken,
		DeliveryURL:     settings.Source.DeliveryURL,
		ManagementURL:   settings.Source.ManagementURL,
		PageSize:        settings.Source.PageSize,
		RateDelay:       settings.Source.RateDelay,
		Timeout:         settings.HTTP.Timeout,
		MaxAttempts:     settings.HTTP.MaxAttempts,
		RetryDelay:      settings.HTTP.RetryDelay,
		UserAgent:       bi.UserAgent(),
		Observe:         metrics.Observer(observability.APISource),
	})
	if err != nil {
		return err
	}
	defer src.Close()

	dst := destination.New(destination.Config{
		BaseURL:         settings.Destination.BaseURL,
		Token:           settings.Destination.Token,
		Timeout:         settings.HTTP.Timeout,
		TransferTimeout: settings.HTTP.TransferTimeout,
		MaxAttempts:     settings.HTTP.MaxAttempts,
		RetryDelay:      settings.HTTP.RetryDelay,
		UserAgent:       bi.UserAgent(),
		Observe:         metrics.Observer(observability.APIDestination),
	})
	defer dst.Close()

	bound, err := bindDestination(ctx, settings, dst, store, p)
	if err != nil {
		return err
	}

	transfer := httpclient.New(&httpclient.Config{
		DefaultTimeout: settings.HTTP.TransferTimeout,
		UserAgent:      bi.UserAgent(),
	})
	if observe := metrics.Observer(observability.APIDownload); observe != nil {
		transfer.SetAfterResponseHook(observe)
	}
	defer transfer.Close()

	var issuer signer.Issuer
	if settings.Source.ManagementToken != "" {
		issuer = src
	}

	migrator, err := migrate.New(&migrate.Config{
		Source:      src,
		Destination: bound,
		Store:       store,
		Downloader: migrate.NewDownloader(migrate.DownloaderConfig{
			Client:   transfer,
			Dir:      settings.HTTP.TempDir,
			Attempts: settings.HTTP.DownloadAttempts,
			Backoff:  settings.HTTP.DownloadBackoff,
		}),
		Signer:   signer.New(issuer, signer.WithProtectedDomain(settings.Source.ProtectedDomain)),
		Recorder: metrics.Recorder(),
		Options: migrate.Options{
			Workers:            settings.Migration.Workers,
			CheckpointInterval: settings.Migration.CheckpointInterval,
			ItemDelay:          settings.Migration.ItemDelay,
			SkipSchemas:        settings.Migration.SkipSchemas,
			SkipAssets:         settings.Migration.SkipAssets,
			SkipRecords:        settings.Migration.SkipRecords,
		},
	})
	if err != nil {
		return err
	}

	logLocales(ctx, src)

	if err := ensureSelection(ctx, settings, src, migrator, store, p); err != nil {
		return err
	}

	summary, runErr := migrator.Run(ctx)
	result := report.Run{
		RunID:       summary.RunID,
		Stats:       summary.Stats,
		Failed:      summary.Failed,
		Elapsed:     summary.Elapsed,
		Interrupted: summary.Interrupted,
		Err:         runErr,
		Location:    store.Location(),
	}
	if err := report.WriteRun(out, result); err != nil {
		log.Warn("printing summary failed", logger.Error(err))
	}

	// the run context may already be cancelled
	finishCtx := context.WithoutCancel(ctx)
	sendNotification(finishCtx, settings, result)
	if path := settings.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			log.Warn("writing metrics textfile failed", logger.Error(err))
		}
	}

	return runErr
}

// openStore opens and loads the configured state, deleting it first when a
// reset was requested.
func openStore(ctx context.Context, settings *conf.Settings) (*state.Store, error) {
	store, err := state.Open(nil, settings.State.Backend, settings.State.Path)
	if err != nil {
		return nil, err
	}
	if settings.Migration.Reset {
		if err := store.Reset(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	if err := store.Load(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// logLocales reports the source locales. Localized fields are copied for
// every locale, so this is informational only.
func logLocales(ctx context.Context, src *source.Client) {
	log := GetLogger()
	locales, err := src.ListLocales(ctx)
	if err != nil {
		log.Warn("listing source locales failed", logger.Error(err))
		return
	}
	codes := make([]string, 0, len(locales))
	def := ""
	for _, l := range locales {
		codes = append(codes, l.Code)
		if l.Default {
			def = l.Code
		}
	}
	log.Info("source locales",
		logger.Int("count", len(locales)),
		logger.String("default", def),
		logger.String("codes", strings.Join(codes, ",")))
}

func sendNotification(ctx context.Context, settings *conf.Settings, result report.Run) {
	if len(settings.Notify.URLs) == 0 {
		return
	}
	log := GetLogger()
	n, err := notify.New(settings.Notify.URLs, settings.Notify.Timeout)
	if err != nil {
		log.Warn("notifications disabled", logger.Error(err))
		return
	}
	if err := n.Send(ctx, report.Notification(result)); err != nil {
		log.Warn("sending completion notification failed", logger.Error(err))
	}
}

// Interactive returns the prompter for this terminal, or nil when the run
// must not ask questions.
func Interactive(settings *conf.Settings) Prompter {
	if settings.Migration.CI {
		return nil
	}
	if fi, err := os.Stdin.Stat(); err != nil || fi.Mode()&os.ModeCharDevice == 0 {
		GetLogger().Info("stdin is not a terminal, running without prompts")
		return nil
	}
	return huhPrompter{}
}
