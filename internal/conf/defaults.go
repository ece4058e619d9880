package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/o2cms/cfmigrate/internal/logger"
)

// Asset strategies.
const (
	AssetStrategyAll    = "all"
	AssetStrategyLinked = "linked"
)

// State backends.
const (
	StateBackendFile   = "file"
	StateBackendSQLite = "sqlite"
)

// DefaultStatePath is where progress is kept when nothing else is configured.
const DefaultStatePath = "migration-state.json"

// setDefaultConfig sets default values for every setting so that viper can
// unmarshal env-only configurations.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)

	v.SetDefault("source.environment", "master")
	v.SetDefault("source.delivery_url", "https://cdn.contentful.com")
	v.SetDefault("source.management_url", "https://api.contentful.com")
	v.SetDefault("source.page_size", 100)
	v.SetDefault("source.rate_delay", 100*time.Millisecond)
	v.SetDefault("source.protected_domain", "secure.ctfassets.net")

	v.SetDefault("destination.base_url", "https://api.o2cms.com")
	v.SetDefault("destination.environment", "master")
	v.SetDefault("destination.space_name", "Migrated from Contentful")

	v.SetDefault("migration.schemas", []string{})
	v.SetDefault("migration.asset_strategy", AssetStrategyLinked)
	v.SetDefault("migration.workers", 5)
	v.SetDefault("migration.checkpoint_interval", 10)
	v.SetDefault("migration.item_delay", 100*time.Millisecond)
	v.SetDefault("migration.skip_schemas", false)
	v.SetDefault("migration.skip_assets", false)
	v.SetDefault("migration.skip_records", false)
	v.SetDefault("migration.ci", false)
	v.SetDefault("migration.reset", false)

	v.SetDefault("http.timeout", 60*time.Second)
	v.SetDefault("http.transfer_timeout", 120*time.Second)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.retry_delay", 2*time.Second)
	v.SetDefault("http.download_attempts", 3)
	v.SetDefault("http.download_backoff", time.Second)
	v.SetDefault("http.temp_dir", "")

	v.SetDefault("state.backend", StateBackendFile)
	v.SetDefault("state.path", DefaultStatePath)

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)
	v.SetDefault("logging.file_output.max_size", logger.DefaultMaxSize)
	v.SetDefault("logging.file_output.max_age", logger.DefaultMaxAge)
	v.SetDefault("logging.file_output.max_rotated_files", logger.DefaultMaxRotatedFiles)
	v.SetDefault("logging.file_output.compress", logger.DefaultCompressLogs)

	v.SetDefault("metrics.textfile", "")

	v.SetDefault("notify.urls", []string{})
	v.SetDefault("notify.timeout", 10*time.Second)

	v.SetDefault("telemetry.sentry_dsn", "")
	v.SetDefault("telemetry.environment", "production")
}
