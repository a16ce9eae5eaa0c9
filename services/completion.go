package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bytevault/uploads/apperror"
	"github.com/bytevault/uploads/config"
	"github.com/bytevault/uploads/logging"
	"github.com/bytevault/uploads/models"
	"github.com/bytevault/uploads/queues"
	"github.com/bytevault/uploads/store"
	"github.com/google/uuid"
)

type CompletionService interface {
	Complete(ctx context.Context, sessionID string, totalChunks int, ownerID string) (*models.FinalizedFile, error)
}

type CompletionServiceImpl struct {
	registry      store.SessionRegistry
	chunks        store.ChunkStore
	files         store.FileStore
	reconstructor *Reconstructor
	cleanup       *CleanupCoordinator
	publisher     queues.Publisher
	cfg           *config.UploadConfig

	logger logging.Logger
}

func NewCompletionServiceImpl(
	registry store.SessionRegistry,
	chunks store.ChunkStore,
	files store.FileStore,
	reconstructor *Reconstructor,
	cleanup *CleanupCoordinator,
	publisher queues.Publisher,
	cfg *config.UploadConfig,
	l logging.Logger,
) *CompletionServiceImpl {
	return &CompletionServiceImpl{
		registry:      registry,
		chunks:        chunks,
		files:         files,
		reconstructor: reconstructor,
		cleanup:       cleanup,
		publisher:     publisher,
		cfg:           cfg,
		logger:        l,
	}
}

// finalObjectKey is deterministic per session so a completion retried after
// a crash lands on the same object.
func finalObjectKey(session *models.UploadSession) string {
	return fmt.Sprintf("%s/%s/%s", session.OwnerID, session.SessionID, session.Filename)
}

// Complete validates that every declared chunk has been received,
// reconstructs the file, records it in the catalog and kicks off cleanup.
// At most one call per session can get past the completion guard at a time;
// on any failure the guard is released and the session stays completable.
func (svc *CompletionServiceImpl) Complete(ctx context.Context, sessionID string, totalChunks int, ownerID string) (*models.FinalizedFile, error) {
	if totalChunks <= 0 {
		return nil, fmt.Errorf("%w: totalChunks must be positive", apperror.ErrInvalidArgument)
	}

	session, err := loadOwnedSession(ctx, svc.registry, sessionID, ownerID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.StatusCompleted {
		return nil, apperror.ErrAlreadyCompleted
	}

	// Guard TTL outlives the longest reconstruction so a crashed completer
	// cannot wedge the session forever.
	guardTTL := svc.cfg.StreamDeadline + time.Minute
	acquired, err := svc.registry.BeginCompletion(ctx, sessionID, guardTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, apperror.ErrAlreadyCompleting
	}

	file, err := svc.completeLocked(ctx, session, totalChunks)
	if err != nil {
		// Roll the session back so the caller can re-upload a missing chunk
		// and retry. A session that turned out to be completed stays
		// completed.
		if !errors.Is(err, apperror.ErrAlreadyCompleted) {
			if rbErr := svc.registry.SetStatus(ctx, sessionID, models.StatusUploading); rbErr != nil {
				svc.logger.Error("failed to roll back session status", "session_id", sessionID, "error", rbErr)
			}
		}
		if relErr := svc.registry.EndCompletion(ctx, sessionID); relErr != nil {
			svc.logger.Error("failed to release completion guard", "session_id", sessionID, "error", relErr)
		}
		return nil, err
	}

	if relErr := svc.registry.EndCompletion(ctx, sessionID); relErr != nil {
		svc.logger.Error("failed to release completion guard", "session_id", sessionID, "error", relErr)
	}

	svc.cleanup.Run(session.OwnerID, sessionID)

	svc.logger.Info("upload completed",
		"session_id", sessionID, "file_id", file.FileID, "object_key", file.ObjectKey)
	return file, nil
}

func (svc *CompletionServiceImpl) completeLocked(ctx context.Context, session *models.UploadSession, totalChunks int) (*models.FinalizedFile, error) {
	sessionID := session.SessionID

	// Re-read under the guard: a racing call may have finished between our
	// first read and the lock.
	session, err := svc.registry.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status == models.StatusCompleted {
		return nil, apperror.ErrAlreadyCompleted
	}

	received, err := svc.registry.ReceivedChunks(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(received) != totalChunks {
		return nil, &apperror.ChunkCountMismatchError{Expected: totalChunks, Actual: len(received)}
	}

	// Matching count is not enough: a stray out-of-range index would hide a
	// gap. The set must be exactly 0..totalChunks-1, and the first gap names
	// the chunk the client has to re-upload.
	sort.Ints(received)
	for i, idx := range received {
		if idx != i {
			return nil, &apperror.ChunkUnavailableError{Index: i, Err: errors.New("chunk index never received")}
		}
	}

	if err := svc.registry.SetStatus(ctx, sessionID, models.StatusCompleting); err != nil {
		return nil, err
	}

	finalKey := finalObjectKey(session)

	// A previous completion may have committed the object and then crashed
	// before recording it. In that case skip straight to the record.
	exists, err := svc.chunks.ObjectExists(ctx, finalKey)
	if err != nil {
		return nil, err
	}
	if exists {
		svc.logger.Info("final object already committed, skipping merge",
			"session_id", sessionID, "final_key", finalKey)
	} else {
		if err := svc.reconstructor.Reconstruct(ctx, session, totalChunks, finalKey); err != nil {
			return nil, err
		}
	}

	file := models.FinalizedFile{
		FileID:      uuid.NewString(),
		SessionID:   sessionID,
		OwnerID:     session.OwnerID,
		Filename:    session.Filename,
		ParentID:    session.ParentID,
		ObjectKey:   finalKey,
		Size:        session.FileSize,
		ContentType: session.ContentType,
		Visibility:  session.Visibility,
		TotalChunks: totalChunks,
		CreatedAt:   time.Now().UTC(),
	}

	if err := svc.files.Create(ctx, file); err != nil {
		return nil, fmt.Errorf("create file record: %w", err)
	}

	if err := svc.registry.SetStatus(ctx, sessionID, models.StatusCompleted); err != nil {
		svc.logger.Error("failed to mark session completed", "session_id", sessionID, "error", err)
		// The file record exists; cleanup will remove the session anyway.
	}

	if svc.publisher != nil {
		evt := models.UploadCompletedEvent{SessionID: sessionID, File: file}
		if err := svc.publisher.Publish(ctx, evt); err != nil {
			svc.logger.Error("failed to publish completion event", "session_id", sessionID, "error", err)
			// Advisory only; the catalog record is already durable.
		}
	}

	return &file, nil
}
