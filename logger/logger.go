package logger

import (
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	projectLogger     *logrus.Logger
	projectLoggerOnce sync.Once
)

// GetProjectLogger returns the logger shared by every loopstation package.
func GetProjectLogger() *logrus.Logger {
	projectLoggerOnce.Do(func() {
		projectLogger = logrus.New()
		projectLogger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		projectLogger.SetLevel(logrus.InfoLevel)
	})
	return projectLogger
}

// SetLevel parses level (e.g. "debug", "warn") and applies it to the project logger.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	GetProjectLogger().SetLevel(lvl)
	return nil
}
