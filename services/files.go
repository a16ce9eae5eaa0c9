package services

import (
	"context"
	"io"
	"time"

	"github.com/bytevault/uploads/apperror"
	"github.com/bytevault/uploads/logging"
	"github.com/bytevault/uploads/models"
	"github.com/bytevault/uploads/store"
)

type FileService interface {
	// Upload is the single-shot convenience path: one session, one chunk,
	// immediate completion.
	Upload(ctx context.Context, req InitiateRequest, body io.Reader) (*models.FinalizedFile, error)
	DownloadURL(ctx context.Context, fileID, ownerID string) (string, error)
}

type FileServiceImpl struct {
	sessions   SessionService
	completion CompletionService
	files      store.FileStore
	chunks     store.ChunkStore
	presignTTL time.Duration

	logger logging.Logger
}

func NewFileServiceImpl(
	sessions SessionService,
	completion CompletionService,
	files store.FileStore,
	chunks store.ChunkStore,
	presignTTL time.Duration,
	l logging.Logger,
) *FileServiceImpl {
	return &FileServiceImpl{
		sessions:   sessions,
		completion: completion,
		files:      files,
		chunks:     chunks,
		presignTTL: presignTTL,
		logger:     l,
	}
}

func (svc *FileServiceImpl) Upload(ctx context.Context, req InitiateRequest, body io.Reader) (*models.FinalizedFile, error) {
	session, err := svc.sessions.Initiate(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := svc.sessions.ReceiveChunk(ctx, session.SessionID, 0, req.OwnerID, body, req.Size); err != nil {
		return nil, err
	}

	return svc.completion.Complete(ctx, session.SessionID, 1, req.OwnerID)
}

// DownloadURL returns a presigned GET URL for a finalized file. Private
// files are only served to their owner.
func (svc *FileServiceImpl) DownloadURL(ctx context.Context, fileID, ownerID string) (string, error) {
	file, err := svc.files.Get(ctx, fileID)
	if err != nil {
		return "", err
	}

	if file.OwnerID != ownerID && file.Visibility != models.VisibilityPublic {
		return "", apperror.ErrForbidden
	}

	return svc.chunks.PresignDownload(ctx, file.ObjectKey, svc.presignTTL)
}
