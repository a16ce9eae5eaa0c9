package services

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bytevault/uploads/apperror"
	"github.com/bytevault/uploads/config"
	"github.com/bytevault/uploads/logging"
	"github.com/bytevault/uploads/models"
	"github.com/bytevault/uploads/store"
	"github.com/google/uuid"
)

// chunkSize is the slice size clients are expected to upload. It only feeds
// the progress estimate; the engine itself accepts chunks of any size.
const chunkSize = 6 << 20

// InitiateRequest carries the immutable metadata of a new upload session.
type InitiateRequest struct {
	Filename    string
	Size        int64
	ContentType string
	OwnerID     string
	ParentID    string
	IsPublic    bool
}

type SessionService interface {
	Initiate(ctx context.Context, req InitiateRequest) (*models.UploadSession, error)
	ReceiveChunk(ctx context.Context, sessionID string, index int, ownerID string, body io.Reader, size int64) error
	ListReceived(ctx context.Context, sessionID, ownerID string) ([]int, error)
	Status(ctx context.Context, sessionID, ownerID string) (*models.UploadStatusResponse, error)
}

type SessionServiceImpl struct {
	registry store.SessionRegistry
	chunks   store.ChunkStore
	cfg      *config.UploadConfig

	logger logging.Logger
}

func NewSessionServiceImpl(
	registry store.SessionRegistry,
	chunks store.ChunkStore,
	cfg *config.UploadConfig,
	l logging.Logger,
) *SessionServiceImpl {
	return &SessionServiceImpl{
		registry: registry,
		chunks:   chunks,
		cfg:      cfg,
		logger:   l,
	}
}

// Initiate creates a new upload session and writes it to the registry under
// the session TTL. The session id is never reused.
func (svc *SessionServiceImpl) Initiate(ctx context.Context, req InitiateRequest) (*models.UploadSession, error) {
	if req.Filename == "" {
		return nil, fmt.Errorf("%w: filename is required", apperror.ErrInvalidArgument)
	}
	if req.Size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive", apperror.ErrInvalidArgument)
	}
	if req.Size > svc.cfg.MaxFileSize {
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", apperror.ErrInvalidArgument, req.Size, svc.cfg.MaxFileSize)
	}
	if req.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner is required", apperror.ErrInvalidArgument)
	}

	visibility := models.VisibilityPrivate
	if req.IsPublic {
		visibility = models.VisibilityPublic
	}

	session := models.UploadSession{
		SessionID:   uuid.NewString(),
		OwnerID:     req.OwnerID,
		Filename:    req.Filename,
		FileSize:    req.Size,
		ContentType: req.ContentType,
		ParentID:    req.ParentID,
		Visibility:  visibility,
		Status:      models.StatusUploading,
		CreatedAt:   time.Now().UTC(),
	}

	if err := svc.registry.CreateSession(ctx, session, svc.cfg.SessionTTL); err != nil {
		return nil, err
	}

	svc.logger.Info("upload session created",
		"session_id", session.SessionID, "owner_id", session.OwnerID,
		"filename", session.Filename, "size", session.FileSize)
	return &session, nil
}

// ReceiveChunk persists one chunk blob and records its index in the
// received set. Re-uploading an index the session already holds is a no-op,
// which is what lets clients blindly retransmit after a crash.
func (svc *SessionServiceImpl) ReceiveChunk(ctx context.Context, sessionID string, index int, ownerID string, body io.Reader, size int64) error {
	if index < 0 {
		return fmt.Errorf("%w: chunk index must not be negative", apperror.ErrInvalidArgument)
	}

	session, err := svc.ownedSession(ctx, sessionID, ownerID)
	if err != nil {
		return err
	}
	if session.Status == models.StatusCompleted {
		return apperror.ErrAlreadyCompleted
	}

	if err := svc.chunks.PutChunk(ctx, ownerID, sessionID, index, body, size); err != nil {
		return err
	}

	// Blob first, set second: an index in the set always has a blob behind
	// it. The reverse order could let completion see a chunk it cannot
	// fetch.
	if err := svc.registry.AddReceivedChunk(ctx, sessionID, index); err != nil {
		return err
	}

	svc.logger.Debug("chunk received", "session_id", sessionID, "chunk_index", index, "size", size)
	return nil
}

// ListReceived returns the indices the session already holds, so a resuming
// client can skip them.
func (svc *SessionServiceImpl) ListReceived(ctx context.Context, sessionID, ownerID string) ([]int, error) {
	if _, err := svc.ownedSession(ctx, sessionID, ownerID); err != nil {
		return nil, err
	}
	return svc.registry.ReceivedChunks(ctx, sessionID)
}

// Status reports lifecycle state plus a progress percentage estimated from
// the expected chunk count.
func (svc *SessionServiceImpl) Status(ctx context.Context, sessionID, ownerID string) (*models.UploadStatusResponse, error) {
	session, err := svc.ownedSession(ctx, sessionID, ownerID)
	if err != nil {
		return nil, err
	}

	received, err := svc.registry.ReceivedChunks(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	expected := (session.FileSize + chunkSize - 1) / chunkSize
	if expected < 1 {
		expected = 1
	}

	progress := float64(len(received)) / float64(expected) * 100
	if progress > 100 {
		progress = 100
	}
	if session.Status == models.StatusCompleted {
		progress = 100
	}

	return &models.UploadStatusResponse{
		Status:   session.Status,
		Progress: uint8(progress),
		Received: received,
	}, nil
}

func (svc *SessionServiceImpl) ownedSession(ctx context.Context, sessionID, ownerID string) (*models.UploadSession, error) {
	return loadOwnedSession(ctx, svc.registry, sessionID, ownerID)
}

// loadOwnedSession loads a session and enforces the ownership invariant
// every operation shares.
func loadOwnedSession(ctx context.Context, registry store.SessionRegistry, sessionID, ownerID string) (*models.UploadSession, error) {
	session, err := registry.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != ownerID {
		return nil, apperror.ErrForbidden
	}
	return session, nil
}
