package conf

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		// Source space
		{"source.space_id", "CONTENTFUL_SPACE_ID", nil},
		{"source.environment", "CONTENTFUL_ENVIRONMENT", nil},
		{"source.cda_token", "CONTENTFUL_CDA_TOKEN", nil},
		{"source.cma_token", "CONTENTFUL_CMA_TOKEN", nil},
		{"source.cda_token_file", "CONTENTFUL_CDA_TOKEN_FILE", nil},
		{"source.cma_token_file", "CONTENTFUL_CMA_TOKEN_FILE", nil},
		{"source.delivery_url", "CONTENTFUL_DELIVERY_URL", validateEnvURL},
		{"source.management_url", "CONTENTFUL_MANAGEMENT_URL", validateEnvURL},

		// Destination space
		{"destination.base_url", "O2_BASE_URL", validateEnvURL},
		{"destination.token", "O2_CMA_TOKEN", nil},
		{"destination.token_file", "O2_CMA_TOKEN_FILE", nil},
		{"destination.space_id", "O2_SPACE_ID", nil},
		{"destination.environment", "O2_ENVIRONMENT", nil},

		// Run behaviour
		{"migration.schemas", "CFMIGRATE_SCHEMAS", nil},
		{"migration.asset_strategy", "CFMIGRATE_ASSET_STRATEGY", validateEnvAssetStrategy},
		{"migration.workers", "CFMIGRATE_WORKERS", validateEnvPositiveInt},
		{"migration.item_delay", "CFMIGRATE_ITEM_DELAY", validateEnvDuration},
		{"migration.ci", "CI", validateEnvBool},

		{"state.backend", "CFMIGRATE_STATE_BACKEND", validateEnvStateBackend},
		{"state.path", "CFMIGRATE_STATE_PATH", nil},

		{"debug", "CFMIGRATE_DEBUG", validateEnvBool},
		{"metrics.textfile", "CFMIGRATE_METRICS_TEXTFILE", nil},
		{"notify.urls", "CFMIGRATE_NOTIFY_URLS", nil},
		{"telemetry.sentry_dsn", "CFMIGRATE_SENTRY_DSN", nil},
	}
}

// bindEnvVars binds every environment variable and validates the ones that
// are set. Problems are collected and reported together.
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value: %v", binding.EnvVar, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f, TRUE/FALSE, T/F", value)
	}
	return nil
}

func validateEnvPositiveInt(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer: %w", err)
	}
	if n < 1 {
		return fmt.Errorf("must be at least 1, got %d", n)
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d < 0 {
		return fmt.Errorf("must not be negative, got %s", d)
	}
	return nil
}

// validateEnvURL only checks the shape; the URL may carry a token so it is
// not echoed back.
func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("must be an absolute http(s) URL")
	}
	return nil
}

func validateEnvAssetStrategy(value string) error {
	switch strings.ToLower(value) {
	case AssetStrategyAll, AssetStrategyLinked:
		return nil
	}
	return fmt.Errorf("must be %q or %q, got %q", AssetStrategyAll, AssetStrategyLinked, value)
}

func validateEnvStateBackend(value string) error {
	switch strings.ToLower(value) {
	case StateBackendFile, StateBackendSQLite:
		return nil
	}
	return fmt.Errorf("must be %q or %q, got %q", StateBackendFile, StateBackendSQLite, value)
}
