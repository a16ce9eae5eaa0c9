package services

import (
	"bytes"
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/bytevault/uploads/apperror"
	"github.com/bytevault/uploads/logging"
	"github.com/bytevault/uploads/models"
	"github.com/bytevault/uploads/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkersFor(t *testing.T) {
	assert.Equal(t, 2, workersFor(10, 10<<20))
	assert.Equal(t, 4, workersFor(40, 120<<20))

	wide := workersFor(100, 500<<20)
	expected := 2 * runtime.NumCPU()
	if expected > 8 {
		expected = 8
	}
	assert.Equal(t, expected, wide)

	// Never wider than the chunk count.
	assert.Equal(t, 1, workersFor(1, 500<<20))
	assert.Equal(t, 2, workersFor(2, 10<<20))
}

func TestReconstruct_StreamingPathForLargeFiles(t *testing.T) {
	cfg := testUploadConfig()
	// Force the streaming strategy without allocating 100 MiB.
	cfg.MemoryThreshold = 1024

	chunkStore := store.NewMemoryChunkStore()
	rec := NewReconstructor(chunkStore, cfg, logging.NewNopLogger())

	session := &models.UploadSession{
		SessionID: "sess-stream",
		OwnerID:   testOwner,
		FileSize:  8 * 1024,
	}

	const totalChunks = 8
	var want []byte
	ctx := context.Background()
	for i := 0; i < totalChunks; i++ {
		data := chunkPattern(i, 1024)
		want = append(want, data...)
		require.NoError(t, chunkStore.PutChunk(
			ctx, session.OwnerID, session.SessionID, i,
			bytes.NewReader(data), int64(len(data))))
	}

	require.NoError(t, rec.Reconstruct(ctx, session, totalChunks, "final/key"))
	assert.Equal(t, want, chunkStore.Object("final/key"))
}

func TestReconstruct_InMemoryPathForSmallFiles(t *testing.T) {
	chunkStore := store.NewMemoryChunkStore()
	rec := NewReconstructor(chunkStore, testUploadConfig(), logging.NewNopLogger())

	session := &models.UploadSession{
		SessionID: "sess-mem",
		OwnerID:   testOwner,
		FileSize:  4 * 1024,
	}

	var want []byte
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		data := chunkPattern(i, 1024)
		want = append(want, data...)
		require.NoError(t, chunkStore.PutChunk(
			ctx, session.OwnerID, session.SessionID, i,
			bytes.NewReader(data), int64(len(data))))
	}

	require.NoError(t, rec.Reconstruct(ctx, session, 4, "final/mem"))
	assert.Equal(t, want, chunkStore.Object("final/mem"))
}

func TestFetchChunk_RetriesTransientFailures(t *testing.T) {
	chunkStore := store.NewMemoryChunkStore()
	rec := NewReconstructor(chunkStore, testUploadConfig(), logging.NewNopLogger())

	session := &models.UploadSession{SessionID: "sess-retry", OwnerID: testOwner, FileSize: 64}

	ctx := context.Background()
	data := chunkPattern(0, 64)
	require.NoError(t, chunkStore.PutChunk(
		ctx, session.OwnerID, session.SessionID, 0, bytes.NewReader(data), 64))

	// Two failures, three attempts: the fetch must recover.
	chunkStore.FailChunk(session.OwnerID, session.SessionID, 0, 2)
	got, err := rec.fetchChunk(ctx, session, 0)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFetchChunk_ExhaustedRetries(t *testing.T) {
	chunkStore := store.NewMemoryChunkStore()
	rec := NewReconstructor(chunkStore, testUploadConfig(), logging.NewNopLogger())

	session := &models.UploadSession{SessionID: "sess-fail", OwnerID: testOwner, FileSize: 64}

	ctx := context.Background()
	data := chunkPattern(0, 64)
	require.NoError(t, chunkStore.PutChunk(
		ctx, session.OwnerID, session.SessionID, 0, bytes.NewReader(data), 64))

	chunkStore.FailChunk(session.OwnerID, session.SessionID, 0, 3)
	_, err := rec.fetchChunk(ctx, session, 0)

	var unavailable *apperror.ChunkUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 0, unavailable.Index)
}

// stalledChunkStore never delivers a chunk; GetChunk parks until the fetch
// context expires.
type stalledChunkStore struct {
	*store.MemoryChunkStore
}

func (s *stalledChunkStore) GetChunk(ctx context.Context, _, _ string, _ int) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestReconstruct_InMemoryFetchTimeout(t *testing.T) {
	cfg := testUploadConfig()
	cfg.FetchTimeout = 20 * time.Millisecond

	chunkStore := &stalledChunkStore{MemoryChunkStore: store.NewMemoryChunkStore()}
	rec := NewReconstructor(chunkStore, cfg, logging.NewNopLogger())

	session := &models.UploadSession{SessionID: "sess-stall", OwnerID: testOwner, FileSize: 1024}

	err := rec.Reconstruct(context.Background(), session, 1, "final/stall")
	require.ErrorIs(t, err, apperror.ErrReconstructionTimeout)
	assert.Zero(t, chunkStore.ObjectPuts())
}

func TestReconstruct_StreamingDeadline(t *testing.T) {
	cfg := testUploadConfig()
	cfg.MemoryThreshold = 1
	cfg.StreamDeadline = time.Millisecond
	cfg.MaxRetries = 50
	cfg.RetryBaseDelay = 5 * time.Millisecond

	chunkStore := store.NewMemoryChunkStore()
	rec := NewReconstructor(chunkStore, cfg, logging.NewNopLogger())

	session := &models.UploadSession{SessionID: "sess-slow", OwnerID: testOwner, FileSize: 1024}

	// The only chunk always fails, so retries outlive the deadline.
	chunkStore.FailChunk(session.OwnerID, session.SessionID, 0, 1000)

	err := rec.Reconstruct(context.Background(), session, 1, "final/slow")
	require.ErrorIs(t, err, apperror.ErrReconstructionTimeout)
	assert.Zero(t, chunkStore.ObjectPuts())
}
