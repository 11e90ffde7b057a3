package observability

import (
	"github.com/sirupsen/logrus"
)

// NewLogger builds the shared logrus logger, in the teacher's
// level+formatter setup style (cmd/helixagent/main.go's DefaultAppConfig).
func NewLogger(level, format string) *logrus.Logger {
	logger := logrus.New()

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}
