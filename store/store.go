package store

import (
	"context"
	"io"
	"time"

	"github.com/bytevault/uploads/models"
)

// SessionRegistry tracks upload sessions and their received-chunk sets in a
// TTL-bearing key-value store. AddReceivedChunk must be atomic at the store
// level: concurrent calls for different indices never lose an update.
type SessionRegistry interface {
	CreateSession(ctx context.Context, session models.UploadSession, ttl time.Duration) error
	GetSession(ctx context.Context, sessionID string) (*models.UploadSession, error)
	SetStatus(ctx context.Context, sessionID string, status models.SessionStatus) error
	DeleteSession(ctx context.Context, sessionID string) error

	AddReceivedChunk(ctx context.Context, sessionID string, index int) error
	ReceivedChunks(ctx context.Context, sessionID string) ([]int, error)
	DeleteReceivedChunks(ctx context.Context, sessionID string) error

	// BeginCompletion is the completion guard: it returns true for exactly
	// one concurrent caller per session. EndCompletion releases the guard so
	// a failed completion can be retried.
	BeginCompletion(ctx context.Context, sessionID string, ttl time.Duration) (bool, error)
	EndCompletion(ctx context.Context, sessionID string) error
}

// ChunkStore is the object-store adapter for chunk blobs and final objects.
type ChunkStore interface {
	PutChunk(ctx context.Context, ownerID, sessionID string, index int, body io.Reader, size int64) error
	GetChunk(ctx context.Context, ownerID, sessionID string, index int) ([]byte, error)
	DeleteChunk(ctx context.Context, ownerID, sessionID string, index int) error
	DeleteSessionChunks(ctx context.Context, ownerID, sessionID string) error

	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	ObjectExists(ctx context.Context, key string) (bool, error)
	PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// FileStore persists finalized-file records for the metadata catalog.
type FileStore interface {
	Create(ctx context.Context, file models.FinalizedFile) error
	Get(ctx context.Context, fileID string) (*models.FinalizedFile, error)
}
