package secrets

import "github.com/o2cms/cfmigrate/internal/logger"

// GetLogger returns the secrets package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("secrets")
}
