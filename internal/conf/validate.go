package conf

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/o2cms/cfmigrate/internal/logger"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings checks value ranges and enumerations. Credentials are
// checked separately by RequireCredentials since read-only commands work
// without them.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateSourceSettings(&settings.Source)...)
	ve.Errors = append(ve.Errors, validateDestinationSettings(&settings.Destination)...)
	ve.Errors = append(ve.Errors, validateMigrationSettings(&settings.Migration)...)
	ve.Errors = append(ve.Errors, validateHTTPSettings(&settings.HTTP)...)
	ve.Errors = append(ve.Errors, validateStateSettings(&settings.State)...)

	if level := settings.Logging.DefaultLevel; level != "" && !validLogLevel(level) {
		ve.Errors = append(ve.Errors, fmt.Sprintf("unknown log level %q", level))
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// RequireCredentials reports missing settings a migration run cannot do
// without.
func (s *Settings) RequireCredentials() error {
	ve := ValidationError{}
	if s.Source.SpaceID == "" {
		ve.Errors = append(ve.Errors, "source space id is required (CONTENTFUL_SPACE_ID)")
	}
	if s.Source.DeliveryToken == "" {
		ve.Errors = append(ve.Errors, "source delivery token is required (CONTENTFUL_CDA_TOKEN)")
	}
	if s.Destination.Token == "" {
		ve.Errors = append(ve.Errors, "destination token is required (O2_CMA_TOKEN)")
	}
	if s.Source.ManagementToken == "" {
		GetLogger().Warn("no source management token, protected assets cannot be downloaded")
	}
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateSourceSettings(s *SourceSettings) []string {
	var errs []string
	if err := validateEnvURL(s.DeliveryURL); err != nil {
		errs = append(errs, "source.delivery_url "+err.Error())
	}
	if err := validateEnvURL(s.ManagementURL); err != nil {
		errs = append(errs, "source.management_url "+err.Error())
	}
	if s.PageSize < 1 || s.PageSize > 1000 {
		errs = append(errs, fmt.Sprintf("source.page_size must be between 1 and 1000, got %d", s.PageSize))
	}
	if s.RateDelay < 0 {
		errs = append(errs, "source.rate_delay must not be negative")
	}
	return errs
}

func validateDestinationSettings(s *DestinationSettings) []string {
	u, err := url.Parse(s.BaseURL)
	if err != nil || u.Host == "" {
		return []string{"destination.base_url must be an absolute URL"}
	}
	if u.Scheme != "https" {
		GetLogger().Warn("destination base URL is not https",
			logger.String("scheme", u.Scheme))
	}
	return nil
}

func validateMigrationSettings(s *MigrationSettings) []string {
	var errs []string
	s.AssetStrategy = strings.ToLower(s.AssetStrategy)
	if err := validateEnvAssetStrategy(s.AssetStrategy); err != nil {
		errs = append(errs, "migration.asset_strategy "+err.Error())
	}
	if s.Workers < 1 {
		errs = append(errs, fmt.Sprintf("migration.workers must be at least 1, got %d", s.Workers))
	}
	if s.CheckpointInterval < 1 {
		errs = append(errs, fmt.Sprintf("migration.checkpoint_interval must be at least 1, got %d", s.CheckpointInterval))
	}
	if s.ItemDelay < 0 {
		errs = append(errs, "migration.item_delay must not be negative")
	}
	if s.SkipSchemas && s.SkipAssets && s.SkipRecords {
		errs = append(errs, "all stages are skipped, nothing to do")
	}
	return errs
}

func validateHTTPSettings(s *HTTPSettings) []string {
	var errs []string
	if s.Timeout <= 0 || s.TransferTimeout <= 0 {
		errs = append(errs, "http timeouts must be positive")
	}
	if s.MaxAttempts < 1 || s.DownloadAttempts < 1 {
		errs = append(errs, "http attempt counts must be at least 1")
	}
	if s.RetryDelay < 0 || s.DownloadBackoff < 0 {
		errs = append(errs, "http retry delays must not be negative")
	}
	return errs
}

func validateStateSettings(s *StateSettings) []string {
	var errs []string
	s.Backend = strings.ToLower(s.Backend)
	if err := validateEnvStateBackend(s.Backend); err != nil {
		errs = append(errs, "state.backend "+err.Error())
	}
	if s.Path == "" {
		errs = append(errs, "state.path must not be empty")
	}
	return errs
}

func validLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "trace", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}
