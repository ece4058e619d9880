package migrate

import "github.com/o2cms/cfmigrate/internal/logger"

// GetLogger returns the migration engine logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("migrate")
}
