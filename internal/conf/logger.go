// Package conf loads cfmigrate settings from the config file, environment
// variables and command line flags.
package conf

import "github.com/o2cms/cfmigrate/internal/logger"

// GetLogger returns the config package logger scoped to the config module.
// The logger is fetched from the global logger each time to ensure it uses
// the current centralized logger (which may be set after package init).
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
