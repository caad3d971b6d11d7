// internal/config/config.go
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// GetEnv retrieves an environment variable's value or returns a default.
func GetEnv(key, defVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defVal
}

// GetEnvInt parses an environment variable as an integer, else returns defVal.
func GetEnvInt(key string, defVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defVal
	}
	return i
}

// GetEnvDuration reads a Go duration string ("500ms", "10m"). A bare integer is taken as
// milliseconds.
func GetEnvDuration(key string, defVal time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defVal
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defVal
	}
	return d
}

// GetEnvBool reads "1", "true", "yes" (any case) as true.
func GetEnvBool(key string, defVal bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "":
		return defVal
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// NewLogger returns a logrus logger at LOG_LEVEL (default info). LOG_FORMAT=json switches
// to the JSON formatter.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(GetEnv("LOG_LEVEL", "info"))
	if err != nil {
		logger.Warnf("unknown LOG_LEVEL, using info: %v", err)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if strings.EqualFold(GetEnv("LOG_FORMAT", "text"), "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
