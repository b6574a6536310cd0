package env

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvPrecedence(t *testing.T) {
	Env = map[string]string{"BILLING_TEST_KEY": "from-file", "BILLING_FILE_ONLY": "file"}
	t.Cleanup(func() { Env = nil })
	t.Setenv("BILLING_TEST_KEY", "from-process")

	assert.Equal(t, "from-process", GetEnv("BILLING_TEST_KEY", "def"))
	assert.Equal(t, "file", GetEnv("BILLING_FILE_ONLY", "def"))
	assert.Equal(t, "def", GetEnv("BILLING_MISSING", "def"))
}

func TestTypedGetters(t *testing.T) {
	t.Setenv("BILLING_INT", "42")
	t.Setenv("BILLING_BAD_INT", "x")
	t.Setenv("BILLING_BOOL", "true")
	t.Setenv("BILLING_DUR", "45s")
	t.Setenv("BILLING_DUR_SECS", "300")

	assert.Equal(t, 42, GetEnvInt("BILLING_INT", 1))
	assert.Equal(t, 1, GetEnvInt("BILLING_BAD_INT", 1))
	assert.True(t, GetEnvBool("BILLING_BOOL", false))
	assert.False(t, GetEnvBool("BILLING_MISSING", false))
	assert.Equal(t, 45*time.Second, GetEnvDuration("BILLING_DUR", time.Second))
	assert.Equal(t, 5*time.Minute, GetEnvDuration("BILLING_DUR_SECS", time.Second))
	assert.Equal(t, time.Second, GetEnvDuration("BILLING_MISSING", time.Second))
}
