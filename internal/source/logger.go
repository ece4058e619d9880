package source

import "github.com/o2cms/cfmigrate/internal/logger"

// GetLogger returns the source package logger scoped to the source module.
func GetLogger() logger.Logger {
	return logger.Global().Module("source")
}
