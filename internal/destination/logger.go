package destination

import "github.com/o2cms/cfmigrate/internal/logger"

// GetLogger returns the destination package logger scoped to the destination module.
func GetLogger() logger.Logger {
	return logger.Global().Module("destination")
}
