package config

import (
	"errors"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Env         string
	Tracing     bool
	TracingAddr string

	AWSConfig     *AWSConfig
	RedisConfig   *RedisConfig
	ServiceConfig *ServiceConfig
	UploadConfig  *UploadConfig
}

type AWSConfig struct {
	Region    string
	AccountID string
}

func (c *AWSConfig) Validate() error {
	if c.Region == "" {
		return errors.New("AWS_REGION is required")
	}
	return nil
}

type RedisConfig struct {
	Host string
}

type ServiceConfig struct {
	HTTPAddr string

	BucketName     string
	FilesTableName string

	UploadsNotificationsQueueName string
}

// UploadConfig carries the reconstruction engine tunables. Zero values are
// replaced with defaults by LoadConfig.
type UploadConfig struct {
	SessionTTL time.Duration

	MemoryThreshold int64
	MaxFileSize     int64

	MaxRetries     int
	RetryBaseDelay time.Duration

	StreamWorkers  int
	StreamDeadline time.Duration
	FetchTimeout   time.Duration

	PresignTTL time.Duration
}

const (
	DefaultSessionTTL      = 24 * time.Hour
	DefaultMemoryThreshold = 100 << 20  // 100 MiB
	DefaultMaxFileSize     = 10 << 30   // 10 GiB
	DefaultMaxRetries      = 3
	DefaultRetryBaseDelay  = 500 * time.Millisecond
	DefaultStreamWorkers   = 4
	DefaultStreamDeadline  = 300 * time.Second
	DefaultFetchTimeout    = 30 * time.Second
	DefaultPresignTTL      = time.Hour
)

func LoadConfig() Config {
	return Config{
		Env:         getEnv("APP_ENV", "development"),
		Tracing:     getBool("TRACING_ENABLED", false),
		TracingAddr: getEnv("TRACING_ADDR", "localhost:4317"),

		AWSConfig: &AWSConfig{
			Region:    getEnv("AWS_REGION", ""),
			AccountID: getEnv("AWS_ACCOUNT_ID", ""),
		},
		RedisConfig: &RedisConfig{
			Host: getEnv("REDIS_HOST", "localhost:6379"),
		},
		ServiceConfig: &ServiceConfig{
			HTTPAddr:                      getEnv("UPLOADS_HTTP_ADDR", ":8085"),
			BucketName:                    getEnv("UPLOADS_BUCKET", "bytevault-user-files"),
			FilesTableName:                getEnv("FILES_TABLE", "files"),
			UploadsNotificationsQueueName: getEnv("UPLOADS_QUEUE", "uploads-completed"),
		},
		UploadConfig: &UploadConfig{
			SessionTTL:      getDuration("UPLOAD_SESSION_TTL", DefaultSessionTTL),
			MemoryThreshold: getInt64("UPLOAD_MEMORY_THRESHOLD", DefaultMemoryThreshold),
			MaxFileSize:     getInt64("UPLOAD_MAX_FILE_SIZE", DefaultMaxFileSize),
			MaxRetries:      getInt("UPLOAD_MAX_RETRIES", DefaultMaxRetries),
			RetryBaseDelay:  getDuration("UPLOAD_RETRY_BASE_DELAY", DefaultRetryBaseDelay),
			StreamWorkers:   getInt("UPLOAD_STREAM_WORKERS", DefaultStreamWorkers),
			StreamDeadline:  getDuration("UPLOAD_STREAM_DEADLINE", DefaultStreamDeadline),
			FetchTimeout:    getDuration("UPLOAD_FETCH_TIMEOUT", DefaultFetchTimeout),
			PresignTTL:      getDuration("UPLOAD_PRESIGN_TTL", DefaultPresignTTL),
		},
	}
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getInt64(key string, fallback int64) int64 {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
