package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrSessionNotFound = errors.New("upload session not found")
	ErrForbidden       = errors.New("session owner mismatch")

	ErrAlreadyCompleting = errors.New("completion already in progress")
	ErrAlreadyCompleted  = errors.New("upload already completed")

	ErrCommitFailed          = errors.New("final object commit failed")
	ErrReconstructionTimeout = errors.New("reconstruction deadline exceeded")
)

// ChunkCountMismatchError is returned by completion when the received-chunk
// set does not match the caller-declared total.
type ChunkCountMismatchError struct {
	Expected int
	Actual   int
}

func (e *ChunkCountMismatchError) Error() string {
	return fmt.Sprintf("chunk count mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ChunkUnavailableError is returned when a single chunk fetch has exhausted
// its retries. Index identifies the chunk so the client can re-upload it.
type ChunkUnavailableError struct {
	Index int
	Err   error
}

func (e *ChunkUnavailableError) Error() string {
	return fmt.Sprintf("chunk %d unavailable: %v", e.Index, e.Err)
}

func (e *ChunkUnavailableError) Unwrap() error { return e.Err }
