package notify

import "github.com/o2cms/cfmigrate/internal/logger"

// GetLogger returns the notify package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("notify")
}
