package observability

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewLoggerParsesLevel(t *testing.T) {
	logger := NewLogger("debug", "text")
	assert.Equal(t, logrus.DebugLevel, logger.Level)
}

func TestNewLoggerDefaultsToInfoOnInvalidLevel(t *testing.T) {
	logger := NewLogger("not-a-level", "text")
	assert.Equal(t, logrus.InfoLevel, logger.Level)
}

func TestNewLoggerUsesJSONFormatterWhenRequested(t *testing.T) {
	logger := NewLogger("info", "json")
	_, ok := logger.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
}

func TestNewLoggerUsesTextFormatterByDefault(t *testing.T) {
	logger := NewLogger("info", "")
	_, ok := logger.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
}
