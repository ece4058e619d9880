package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"

	"github.com/o2cms/cfmigrate/internal/errors"
	"github.com/o2cms/cfmigrate/internal/logger"
	"github.com/o2cms/cfmigrate/internal/secrets"
)

//go:embed config.yaml
var configFiles embed.FS

const appName = "cfmigrate"

// SourceSettings points at the space content is read from.
type SourceSettings struct {
	SpaceID     string `mapstructure:"space_id" yaml:"space_id"`
	Environment string `mapstructure:"environment" yaml:"environment"`

	DeliveryToken       string `mapstructure:"cda_token" yaml:"cda_token"`
	DeliveryTokenFile   string `mapstructure:"cda_token_file" yaml:"cda_token_file"`
	ManagementToken     string `mapstructure:"cma_token" yaml:"cma_token"` // needed for protected assets
	ManagementTokenFile string `mapstructure:"cma_token_file" yaml:"cma_token_file"`

	DeliveryURL     string        `mapstructure:"delivery_url" yaml:"delivery_url"`
	ManagementURL   string        `mapstructure:"management_url" yaml:"management_url"`
	PageSize        int           `mapstructure:"page_size" yaml:"page_size"`
	RateDelay       time.Duration `mapstructure:"rate_delay" yaml:"rate_delay"` // spacing between source requests
	ProtectedDomain string        `mapstructure:"protected_domain" yaml:"protected_domain"`
}

// DestinationSettings points at the space content is written to.
type DestinationSettings struct {
	BaseURL     string `mapstructure:"base_url" yaml:"base_url"`
	Token       string `mapstructure:"token" yaml:"token"`
	TokenFile   string `mapstructure:"token_file" yaml:"token_file"`
	SpaceID     string `mapstructure:"space_id" yaml:"space_id"`     // empty: choose or create
	SpaceName   string `mapstructure:"space_name" yaml:"space_name"` // name for a newly created space
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// MigrationSettings tunes the stages.
type MigrationSettings struct {
	Schemas            []string      `mapstructure:"schemas" yaml:"schemas"`               // empty: all (ci) or prompt
	AssetStrategy      string        `mapstructure:"asset_strategy" yaml:"asset_strategy"` // all or linked
	Workers            int           `mapstructure:"workers" yaml:"workers"`
	CheckpointInterval int           `mapstructure:"checkpoint_interval" yaml:"checkpoint_interval"`
	ItemDelay          time.Duration `mapstructure:"item_delay" yaml:"item_delay"`
	SkipSchemas        bool          `mapstructure:"skip_schemas" yaml:"skip_schemas"`
	SkipAssets         bool          `mapstructure:"skip_assets" yaml:"skip_assets"`
	SkipRecords        bool          `mapstructure:"skip_records" yaml:"skip_records"`
	CI                 bool          `mapstructure:"ci" yaml:"ci"`
	Reset              bool          `mapstructure:"reset" yaml:"reset"`
}

// HTTPSettings bounds network calls.
type HTTPSettings struct {
	Timeout          time.Duration `mapstructure:"timeout" yaml:"timeout"`
	TransferTimeout  time.Duration `mapstructure:"transfer_timeout" yaml:"transfer_timeout"`
	MaxAttempts      int           `mapstructure:"max_attempts" yaml:"max_attempts"`
	RetryDelay       time.Duration `mapstructure:"retry_delay" yaml:"retry_delay"`
	DownloadAttempts int           `mapstructure:"download_attempts" yaml:"download_attempts"`
	DownloadBackoff  time.Duration `mapstructure:"download_backoff" yaml:"download_backoff"`
	TempDir          string        `mapstructure:"temp_dir" yaml:"temp_dir"`
}

// StateSettings selects where progress is persisted.
type StateSettings struct {
	Backend string `mapstructure:"backend" yaml:"backend"` // file or sqlite
	Path    string `mapstructure:"path" yaml:"path"`
}

// MetricsSettings configures the Prometheus textfile export.
type MetricsSettings struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"` // empty disables
}

// NotifySettings configures completion notifications.
type NotifySettings struct {
	URLs    []string      `mapstructure:"urls" yaml:"urls"` // shoutrrr service URLs
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// TelemetrySettings configures error reporting.
type TelemetrySettings struct {
	SentryDSN   string `mapstructure:"sentry_dsn" yaml:"sentry_dsn"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// Settings is the complete cfmigrate configuration.
type Settings struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`

	Source      SourceSettings       `mapstructure:"source" yaml:"source"`
	Destination DestinationSettings  `mapstructure:"destination" yaml:"destination"`
	Migration   MigrationSettings    `mapstructure:"migration" yaml:"migration"`
	HTTP        HTTPSettings         `mapstructure:"http" yaml:"http"`
	State       StateSettings        `mapstructure:"state" yaml:"state"`
	Logging     logger.LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics     MetricsSettings      `mapstructure:"metrics" yaml:"metrics"`
	Notify      NotifySettings       `mapstructure:"notify" yaml:"notify"`
	Telemetry   TelemetrySettings    `mapstructure:"telemetry" yaml:"telemetry"`
}

// Load reads defaults, the config file and environment variables into
// Settings and validates the result. A nil v uses the global viper, which is
// where cobra flags are bound. configFile overrides the search path.
func Load(v *viper.Viper, configFile string) (*Settings, error) {
	if v == nil {
		v = viper.GetViper()
	}

	if err := initViper(v, configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error unmarshaling config into struct: %w", err)).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if err := resolveSecrets(settings, secrets.Resolver{}); err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return settings, nil
}

// resolveSecrets replaces token settings with their resolved values: a
// *_file setting wins, otherwise ${VAR} references are expanded.
func resolveSecrets(settings *Settings, r secrets.Resolver) error {
	targets := []struct {
		value *string
		file  string
	}{
		{&settings.Source.DeliveryToken, settings.Source.DeliveryTokenFile},
		{&settings.Source.ManagementToken, settings.Source.ManagementTokenFile},
		{&settings.Destination.Token, settings.Destination.TokenFile},
		{&settings.Telemetry.SentryDSN, ""},
	}
	for _, t := range targets {
		resolved, err := r.Resolve(*t.value, t.file)
		if err != nil {
			return err
		}
		*t.value = resolved
	}
	return nil
}

// initViper sets defaults and env bindings, then reads the config file if
// one exists. A missing file is not an error: everything can come from the
// environment.
func initViper(v *viper.Viper, configFile string) error {
	setDefaultConfig(v)
	if err := bindEnvVars(v); err != nil {
		return errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Build()
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		paths, err := GetDefaultConfigPaths()
		if err != nil {
			return err
		}
		for _, path := range paths {
			v.AddConfigPath(path)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			GetLogger().Debug("no config file found, using defaults and environment")
			return nil
		}
		return errors.New(fmt.Errorf("error reading config file: %w", err)).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Build()
	}
	GetLogger().Debug("config file loaded", logger.String("path", v.ConfigFileUsed()))
	return nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml,
// highest priority first.
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Context("operation", "get-home-directory").
			Build()
	}

	paths := []string{"."}
	switch runtime.GOOS {
	case "windows":
		paths = append(paths, filepath.Join(homeDir, "AppData", "Roaming", appName))
	default:
		paths = append(paths, filepath.Join(homeDir, ".config", appName))
	}
	return paths, nil
}

// DefaultConfig returns the annotated default config file.
func DefaultConfig() ([]byte, error) {
	return fs.ReadFile(configFiles, "config.yaml")
}

// WriteDefaultConfig writes the default config file to path. An existing
// file is left alone.
func WriteDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return errors.Newf("config file %s already exists", path).
			Component("configuration").
			Category(errors.CategoryConfiguration).
			Build()
	}
	data, err := DefaultConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	// the file will hold API tokens
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("error writing default config file: %w", err)
	}
	return nil
}
