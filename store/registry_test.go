package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// The received-chunk set must live exactly as long as the session record,
// whatever TTL is configured. The registry captures the configured TTL and
// AddReceivedChunk applies it to the set key.
func TestRedisRegistry_ChunkSetSharesSessionTTL(t *testing.T) {
	registry := NewRedisSessionRegistry(nil, 48*time.Hour)
	assert.Equal(t, 48*time.Hour, registry.sessionTTL)
}
