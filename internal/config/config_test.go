package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestEnvHelpers(t *testing.T) {
	t.Setenv("ZEROU_TEST_STR", "abc")
	t.Setenv("ZEROU_TEST_INT", "42")
	t.Setenv("ZEROU_TEST_BADINT", "forty")
	t.Setenv("ZEROU_TEST_DUR", "2s")
	t.Setenv("ZEROU_TEST_MS", "250")
	t.Setenv("ZEROU_TEST_BOOL", "Yes")

	assert.Equal(t, "abc", GetEnv("ZEROU_TEST_STR", "x"))
	assert.Equal(t, "x", GetEnv("ZEROU_TEST_MISSING", "x"))
	assert.Equal(t, 42, GetEnvInt("ZEROU_TEST_INT", 1))
	assert.Equal(t, 1, GetEnvInt("ZEROU_TEST_BADINT", 1))
	assert.Equal(t, 2*time.Second, GetEnvDuration("ZEROU_TEST_DUR", time.Minute))
	assert.Equal(t, 250*time.Millisecond, GetEnvDuration("ZEROU_TEST_MS", time.Minute))
	assert.Equal(t, time.Minute, GetEnvDuration("ZEROU_TEST_MISSING", time.Minute))
	assert.True(t, GetEnvBool("ZEROU_TEST_BOOL", false))
	assert.False(t, GetEnvBool("ZEROU_TEST_STR", true))
	assert.True(t, GetEnvBool("ZEROU_TEST_MISSING", true))
}

func TestNewLoggerLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	assert.Equal(t, logrus.DebugLevel, NewLogger().GetLevel())

	t.Setenv("LOG_LEVEL", "loud")
	assert.Equal(t, logrus.InfoLevel, NewLogger().GetLevel())
}
