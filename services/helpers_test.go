package services

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bytevault/uploads/config"
	"github.com/bytevault/uploads/logging"
	"github.com/bytevault/uploads/models"
	"github.com/bytevault/uploads/store"
	"github.com/stretchr/testify/require"
)

const testOwner = "user-1"

func testUploadConfig() *config.UploadConfig {
	return &config.UploadConfig{
		SessionTTL:      time.Hour,
		MemoryThreshold: config.DefaultMemoryThreshold,
		MaxFileSize:     config.DefaultMaxFileSize,
		MaxRetries:      3,
		RetryBaseDelay:  time.Millisecond,
		StreamWorkers:   4,
		StreamDeadline:  10 * time.Second,
		FetchTimeout:    time.Second,
		PresignTTL:      time.Hour,
	}
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []models.UploadCompletedEvent
}

func (p *capturingPublisher) Publish(_ context.Context, evt models.UploadCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *capturingPublisher) Events() []models.UploadCompletedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.UploadCompletedEvent(nil), p.events...)
}

type testStack struct {
	registry  *store.MemorySessionRegistry
	chunks    *store.MemoryChunkStore
	files     *store.MemoryFileStore
	publisher *capturingPublisher
	cleanup   *CleanupCoordinator

	sessions   *SessionServiceImpl
	completion *CompletionServiceImpl

	cfg *config.UploadConfig
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	cfg := testUploadConfig()
	logger := logging.NewNopLogger()

	registry := store.NewMemorySessionRegistry()
	chunks := store.NewMemoryChunkStore()
	files := store.NewMemoryFileStore()
	publisher := &capturingPublisher{}

	reconstructor := NewReconstructor(chunks, cfg, logger)
	cleanup := NewCleanupCoordinator(registry, chunks, logger)

	return &testStack{
		registry:  registry,
		chunks:    chunks,
		files:     files,
		publisher: publisher,
		cleanup:   cleanup,

		sessions: NewSessionServiceImpl(registry, chunks, cfg, logger),
		completion: NewCompletionServiceImpl(
			registry, chunks, files, reconstructor, cleanup, publisher, cfg, logger),

		cfg: cfg,
	}
}

func (s *testStack) initiate(t *testing.T, size int64) *models.UploadSession {
	t.Helper()

	session, err := s.sessions.Initiate(context.Background(), InitiateRequest{
		Filename:    "a.bin",
		Size:        size,
		ContentType: "application/octet-stream",
		OwnerID:     testOwner,
	})
	require.NoError(t, err)
	return session
}

func (s *testStack) uploadChunk(t *testing.T, sessionID string, index int, data []byte) {
	t.Helper()

	err := s.sessions.ReceiveChunk(
		context.Background(), sessionID, index, testOwner, bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
}

// chunkPattern builds a deterministic payload for one chunk index.
func chunkPattern(index, size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(index + i*7)
	}
	return data
}
