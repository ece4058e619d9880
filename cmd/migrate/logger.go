package migrate

import "github.com/o2cms/cfmigrate/internal/logger"

// GetLogger returns the logger of the migrate command.
func GetLogger() logger.Logger {
	return logger.Global().Module("cli")
}
