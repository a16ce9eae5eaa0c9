package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, int64(DefaultMemoryThreshold), cfg.UploadConfig.MemoryThreshold)
	assert.Equal(t, DefaultMaxRetries, cfg.UploadConfig.MaxRetries)
	assert.Equal(t, DefaultSessionTTL, cfg.UploadConfig.SessionTTL)
	assert.Equal(t, DefaultStreamWorkers, cfg.UploadConfig.StreamWorkers)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("UPLOAD_MAX_RETRIES", "7")
	t.Setenv("UPLOAD_SESSION_TTL", "2h")
	t.Setenv("UPLOAD_MEMORY_THRESHOLD", "1048576")
	t.Setenv("TRACING_ENABLED", "true")

	cfg := LoadConfig()

	assert.Equal(t, 7, cfg.UploadConfig.MaxRetries)
	assert.Equal(t, 2*time.Hour, cfg.UploadConfig.SessionTTL)
	assert.Equal(t, int64(1<<20), cfg.UploadConfig.MemoryThreshold)
	assert.True(t, cfg.Tracing)
}

func TestAWSConfig_Validate(t *testing.T) {
	require.Error(t, (&AWSConfig{}).Validate())
	require.NoError(t, (&AWSConfig{Region: "us-east-1"}).Validate())
}
