package logging

import (
	"github.com/sirupsen/logrus"

	"showrunner/pkg/config"
)

// Logger is the shared structured logger type
type Logger = *logrus.Logger

// Fields is a map of structured log fields
type Fields = logrus.Fields

// Entry is a logger entry with bound fields
type Entry = *logrus.Entry

// NewLogger creates a JSON logger with the level taken from LOG_LEVEL
func NewLogger() Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	logger.SetLevel(config.GetLogLevel())
	return logger
}

// NewLoggerWithService creates a logger with a bound service field
func NewLoggerWithService(serviceName string) Logger {
	logger := NewLogger()
	logger.AddHook(&serviceHook{serviceName: serviceName})
	return logger
}

type serviceHook struct {
	serviceName string
}

func (h *serviceHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *serviceHook) Fire(entry *logrus.Entry) error {
	entry.Data["service"] = h.serviceName
	return nil
}
