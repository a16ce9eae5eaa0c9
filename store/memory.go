package store

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bytevault/uploads/apperror"
	"github.com/bytevault/uploads/models"
)

// MemorySessionRegistry is an in-process SessionRegistry for unit tests. It
// honors the same atomicity contract as the Redis registry: set adds and the
// completion guard are serialized under one lock.
type MemorySessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]models.UploadSession
	chunks   map[string]map[int]struct{}
	guards   map[string]struct{}
}

func NewMemorySessionRegistry() *MemorySessionRegistry {
	return &MemorySessionRegistry{
		sessions: make(map[string]models.UploadSession),
		chunks:   make(map[string]map[int]struct{}),
		guards:   make(map[string]struct{}),
	}
}

func (r *MemorySessionRegistry) IsReady(context.Context) error { return nil }
func (r *MemorySessionRegistry) Name() string                  { return "SessionRegistry[memory]" }

func (r *MemorySessionRegistry) CreateSession(_ context.Context, session models.UploadSession, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[session.SessionID]; ok {
		return fmt.Errorf("session %s already exists", session.SessionID)
	}
	r.sessions[session.SessionID] = session
	return nil
}

func (r *MemorySessionRegistry) GetSession(_ context.Context, sessionID string) (*models.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, apperror.ErrSessionNotFound
	}
	return &session, nil
}

func (r *MemorySessionRegistry) SetStatus(_ context.Context, sessionID string, status models.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return apperror.ErrSessionNotFound
	}
	session.Status = status
	r.sessions[sessionID] = session
	return nil
}

func (r *MemorySessionRegistry) DeleteSession(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, sessionID)
	return nil
}

func (r *MemorySessionRegistry) AddReceivedChunk(_ context.Context, sessionID string, index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.chunks[sessionID]
	if !ok {
		set = make(map[int]struct{})
		r.chunks[sessionID] = set
	}
	set[index] = struct{}{}
	return nil
}

func (r *MemorySessionRegistry) ReceivedChunks(_ context.Context, sessionID string) ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	indices := make([]int, 0, len(r.chunks[sessionID]))
	for i := range r.chunks[sessionID] {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices, nil
}

func (r *MemorySessionRegistry) DeleteReceivedChunks(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.chunks, sessionID)
	return nil
}

func (r *MemorySessionRegistry) BeginCompletion(_ context.Context, sessionID string, _ time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, held := r.guards[sessionID]; held {
		return false, nil
	}
	r.guards[sessionID] = struct{}{}
	return true, nil
}

func (r *MemorySessionRegistry) EndCompletion(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.guards, sessionID)
	return nil
}

var _ SessionRegistry = (*MemorySessionRegistry)(nil)

// MemoryChunkStore is an in-process ChunkStore for unit tests. FailChunk
// injects transient fetch failures to exercise the retry path.
type MemoryChunkStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	types    map[string]string
	failures map[string]int
	puts     int
}

func NewMemoryChunkStore() *MemoryChunkStore {
	return &MemoryChunkStore{
		objects:  make(map[string][]byte),
		types:    make(map[string]string),
		failures: make(map[string]int),
	}
}

// FailChunk makes the next n GetChunk calls for the index fail.
func (s *MemoryChunkStore) FailChunk(ownerID, sessionID string, index, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[chunkKey(ownerID, sessionID, index)] = n
}

// Object returns a stored object's bytes, or nil when absent.
func (s *MemoryChunkStore) Object(key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[key]
}

// ObjectPuts counts PutObject calls, letting tests assert single-commit
// behavior.
func (s *MemoryChunkStore) ObjectPuts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

func (s *MemoryChunkStore) PutChunk(_ context.Context, ownerID, sessionID string, index int, body io.Reader, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[chunkKey(ownerID, sessionID, index)] = data
	return nil
}

func (s *MemoryChunkStore) GetChunk(_ context.Context, ownerID, sessionID string, index int) ([]byte, error) {
	key := chunkKey(ownerID, sessionID, index)

	s.mu.Lock()
	defer s.mu.Unlock()

	if n := s.failures[key]; n > 0 {
		s.failures[key] = n - 1
		return nil, fmt.Errorf("injected failure for %s", key)
	}

	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("chunk %s does not exist", key)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (s *MemoryChunkStore) DeleteChunk(_ context.Context, ownerID, sessionID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, chunkKey(ownerID, sessionID, index))
	return nil
}

func (s *MemoryChunkStore) DeleteSessionChunks(_ context.Context, ownerID, sessionID string) error {
	prefix := chunkPrefix(ownerID, sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			delete(s.objects, key)
		}
	}
	return nil
}

func (s *MemoryChunkStore) PutObject(_ context.Context, key string, body io.Reader, _ int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	s.types[key] = contentType
	s.puts++
	return nil
}

func (s *MemoryChunkStore) ObjectExists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *MemoryChunkStore) PresignDownload(_ context.Context, key string, _ time.Duration) (string, error) {
	return "memory://" + key, nil
}

var _ ChunkStore = (*MemoryChunkStore)(nil)

// MemoryFileStore collects finalized-file records for unit tests.
type MemoryFileStore struct {
	mu    sync.Mutex
	files map[string]models.FinalizedFile
}

func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{files: make(map[string]models.FinalizedFile)}
}

func (s *MemoryFileStore) Create(_ context.Context, file models.FinalizedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[file.FileID] = file
	return nil
}

func (s *MemoryFileStore) Get(_ context.Context, fileID string) (*models.FinalizedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	file, ok := s.files[fileID]
	if !ok {
		return nil, ErrFileNotFound
	}
	return &file, nil
}

// All returns every record, in no particular order.
func (s *MemoryFileStore) All() []models.FinalizedFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.FinalizedFile, 0, len(s.files))
	for _, f := range s.files {
		out = append(out, f)
	}
	return out
}

var _ FileStore = (*MemoryFileStore)(nil)
