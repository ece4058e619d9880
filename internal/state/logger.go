package state

import "github.com/o2cms/cfmigrate/internal/logger"

// GetLogger returns the state package logger scoped to the state module.
func GetLogger() logger.Logger {
	return logger.Global().Module("state")
}
