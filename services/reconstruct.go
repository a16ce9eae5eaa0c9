package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"

	"github.com/bytevault/uploads/apperror"
	"github.com/bytevault/uploads/config"
	"github.com/bytevault/uploads/logging"
	"github.com/bytevault/uploads/models"
	"github.com/bytevault/uploads/retries"
	"github.com/bytevault/uploads/store"
)

// Reconstructor fetches all chunks of a session and commits the final
// object. Strategy is chosen by declared size: files at or under the memory
// threshold are assembled in one buffer, larger files are streamed to the
// store through a pipe. In both cases the final write happens only after
// every chunk has been fetched successfully.
type Reconstructor struct {
	chunks store.ChunkStore
	cfg    *config.UploadConfig
	logger logging.Logger
}

func NewReconstructor(chunks store.ChunkStore, cfg *config.UploadConfig, l logging.Logger) *Reconstructor {
	return &Reconstructor{
		chunks: chunks,
		cfg:    cfg,
		logger: l,
	}
}

// Reconstruct assembles chunks 0..totalChunks-1 of the session, in index
// order, into the object at finalKey.
func (r *Reconstructor) Reconstruct(ctx context.Context, session *models.UploadSession, totalChunks int, finalKey string) error {
	if session.FileSize <= r.cfg.MemoryThreshold {
		return r.mergeInMemory(ctx, session, totalChunks, finalKey)
	}
	return r.mergeStreaming(ctx, session, totalChunks, finalKey)
}

// workersFor sizes the in-memory fetch pool. Small files get little
// parallelism, large ones scale with the machine, and the pool is never
// wider than the number of chunks.
func workersFor(totalChunks int, size int64) int {
	var workers int
	switch {
	case size < 50<<20:
		workers = 2
	case size < 200<<20:
		workers = 4
	default:
		workers = 2 * runtime.NumCPU()
		if workers > 8 {
			workers = 8
		}
	}
	if workers > totalChunks {
		workers = totalChunks
	}
	return workers
}

// fetchChunk retrieves one chunk, retrying transient failures with linear
// backoff. Exhausted retries surface as ChunkUnavailableError so the caller
// knows which index to re-upload.
func (r *Reconstructor) fetchChunk(ctx context.Context, session *models.UploadSession, index int) ([]byte, error) {
	var data []byte

	err := retries.Retry(
		ctx,
		r.cfg.MaxRetries,
		r.cfg.RetryBaseDelay,
		func() error {
			var err error
			data, err = r.chunks.GetChunk(ctx, session.OwnerID, session.SessionID, index)
			return err
		},
		retries.Always,
	)
	if err != nil {
		return nil, &apperror.ChunkUnavailableError{Index: index, Err: err}
	}
	return data, nil
}

func (r *Reconstructor) mergeInMemory(ctx context.Context, session *models.UploadSession, totalChunks int, finalKey string) error {
	r.logger.Info("starting in-memory merge",
		"session_id", session.SessionID, "chunks", totalChunks, "declared_size", session.FileSize)

	results := make([][]byte, totalChunks)
	errs := make([]error, totalChunks)

	pool := NewPool(workersFor(totalChunks, session.FileSize))
	for i := 0; i < totalChunks; i++ {
		index := i
		pool.Submit(func() {
			fctx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
			defer cancel()
			results[index], errs[index] = r.fetchChunk(fctx, session, index)
		})
	}
	pool.Wait()

	// Assembly is strictly by index; fetch completion order is irrelevant.
	// Any failed chunk aborts before a single byte is written. A fetch that
	// ran out its deadline is the merge hitting its time bound, not a
	// missing chunk.
	var total int64
	for i := 0; i < totalChunks; i++ {
		if errs[i] != nil {
			if errors.Is(errs[i], context.DeadlineExceeded) {
				return fmt.Errorf("%w: chunk %d fetch deadline exceeded", apperror.ErrReconstructionTimeout, i)
			}
			r.logger.Error("chunk fetch failed, aborting merge",
				"session_id", session.SessionID, "chunk_index", i, "error", errs[i])
			return errs[i]
		}
		total += int64(len(results[i]))
	}

	buf := bytes.NewBuffer(make([]byte, 0, total))
	for i := 0; i < totalChunks; i++ {
		buf.Write(results[i])
	}

	if err := r.chunks.PutObject(ctx, finalKey, bytes.NewReader(buf.Bytes()), total, session.ContentType); err != nil {
		return fmt.Errorf("%w: %v", apperror.ErrCommitFailed, err)
	}

	r.logger.Info("in-memory merge committed", "session_id", session.SessionID, "final_key", finalKey, "size", total)
	return nil
}

func (r *Reconstructor) mergeStreaming(ctx context.Context, session *models.UploadSession, totalChunks int, finalKey string) error {
	r.logger.Info("starting streaming merge",
		"session_id", session.SessionID, "chunks", totalChunks, "declared_size", session.FileSize)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.StreamDeadline)
	defer cancel()

	var (
		mu      sync.Mutex
		fetched = make(map[int][]byte, totalChunks)
		errs    = make([]error, totalChunks)
	)

	pool := NewPool(r.cfg.StreamWorkers)
	for i := 0; i < totalChunks; i++ {
		index := i
		pool.Submit(func() {
			data, err := r.fetchChunk(ctx, session, index)
			if err != nil {
				errs[index] = err
				return
			}
			mu.Lock()
			fetched[index] = data
			mu.Unlock()
		})
	}

	// Barrier: every fetch has reported success or failure past this point.
	pool.Wait()

	if ctx.Err() != nil {
		return fmt.Errorf("%w: %v", apperror.ErrReconstructionTimeout, ctx.Err())
	}
	for i := 0; i < totalChunks; i++ {
		if errs[i] != nil {
			r.logger.Error("chunk fetch failed, aborting merge",
				"session_id", session.SessionID, "chunk_index", i, "error", errs[i])
			return errs[i]
		}
	}

	var total int64
	for _, data := range fetched {
		total += int64(len(data))
	}

	// Single writer drains the map by index into the pipe; the store's
	// streaming put consumes the other end, so backpressure is the pipe's.
	pr, pw := io.Pipe()
	go func() {
		for i := 0; i < totalChunks; i++ {
			if _, err := pw.Write(fetched[i]); err != nil {
				pw.CloseWithError(err)
				return
			}
		}
		pw.Close()
	}()

	if err := r.chunks.PutObject(ctx, finalKey, pr, total, session.ContentType); err != nil {
		pr.CloseWithError(err)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", apperror.ErrReconstructionTimeout, err)
		}
		return fmt.Errorf("%w: %v", apperror.ErrCommitFailed, err)
	}

	r.logger.Info("streaming merge committed", "session_id", session.SessionID, "final_key", finalKey, "size", total)
	return nil
}
