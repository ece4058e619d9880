package signer

import "github.com/o2cms/cfmigrate/internal/logger"

// GetLogger returns the signer package logger scoped to the signer module.
func GetLogger() logger.Logger {
	return logger.Global().Module("signer")
}
