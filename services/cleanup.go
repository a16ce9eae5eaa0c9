package services

import (
	"context"
	"sync"
	"time"

	"github.com/bytevault/uploads/logging"
	"github.com/bytevault/uploads/store"
)

// CleanupCoordinator reaps chunk blobs and registry keys after a completed
// upload. Everything is best-effort: a failed deletion is logged and never
// surfaced to the upload caller, since the final object is already
// committed. Abandoned sessions are not swept here; registry TTLs and the
// store's lifecycle policy reap those.
type CleanupCoordinator struct {
	registry store.SessionRegistry
	chunks   store.ChunkStore
	timeout  time.Duration
	logger   logging.Logger

	wg sync.WaitGroup
}

func NewCleanupCoordinator(registry store.SessionRegistry, chunks store.ChunkStore, l logging.Logger) *CleanupCoordinator {
	return &CleanupCoordinator{
		registry: registry,
		chunks:   chunks,
		timeout:  2 * time.Minute,
		logger:   l,
	}
}

// Run starts cleanup in the background and returns immediately.
func (c *CleanupCoordinator) Run(ownerID, sessionID string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		c.reap(ctx, ownerID, sessionID)
	}()
}

func (c *CleanupCoordinator) reap(ctx context.Context, ownerID, sessionID string) {
	if err := c.chunks.DeleteSessionChunks(ctx, ownerID, sessionID); err != nil {
		c.logger.Error("failed to delete session chunks", "session_id", sessionID, "error", err)
	}

	if err := c.registry.DeleteReceivedChunks(ctx, sessionID); err != nil {
		c.logger.Error("failed to delete received-chunk set", "session_id", sessionID, "error", err)
	}

	if err := c.registry.DeleteSession(ctx, sessionID); err != nil {
		c.logger.Error("failed to delete session metadata", "session_id", sessionID, "error", err)
	}

	c.logger.Info("session cleaned up", "session_id", sessionID)
}

// Wait blocks until all in-flight cleanups finish. Called on shutdown and
// by tests.
func (c *CleanupCoordinator) Wait() {
	c.wg.Wait()
}
