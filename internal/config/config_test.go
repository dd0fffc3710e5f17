package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "0.0.0.0:8080", cfg.GetServerAddress())
	assert.Equal(t, 7*24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "lms_session", cfg.Session.CookieName)
	assert.Equal(t, 5*time.Minute, cfg.OTP.ExpiryWindow)
	assert.Equal(t, 5*time.Minute, cfg.OTP.SweepInterval)
	assert.Equal(t, 5, cfg.OTP.MaxAttempts)
	assert.Equal(t, 64, cfg.Bucketing.SubjectBuckets)
	assert.Equal(t, 64*1024, cfg.Hashing.Argon2MemoryCost)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SESSION_TTL_SECONDS", "3600")
	t.Setenv("OTP_EXPIRY_SECONDS", "120")
	t.Setenv("OTP_MAX_ATTEMPTS", "3")
	t.Setenv("SCYLLA_NODES", "node1:9042, node2:9042")
	t.Setenv("KAFKA_ENABLED", "true")

	cfg := LoadConfig()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Session.TTL)
	assert.Equal(t, 2*time.Minute, cfg.OTP.ExpiryWindow)
	assert.Equal(t, 3, cfg.OTP.MaxAttempts)
	assert.Equal(t, []string{"node1:9042", "node2:9042"}, cfg.Scylla.Nodes)
	assert.True(t, cfg.Kafka.Enabled)
}

func TestLoadConfig_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("SERVER_PORT", "not-a-number")
	t.Setenv("SESSION_TTL_SECONDS", "soon")
	t.Setenv("KAFKA_ENABLED", "maybe")

	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 7*24*time.Hour, cfg.Session.TTL)
	assert.False(t, cfg.Kafka.Enabled)
}
