package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bytevault/uploads/config"
	"github.com/bytevault/uploads/logging"
	"github.com/bytevault/uploads/services"
	"github.com/bytevault/uploads/store"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOwner = "user-1"

func newTestServer(t *testing.T) (*httptest.Server, *store.MemoryChunkStore, *services.CleanupCoordinator) {
	t.Helper()

	cfg := &config.UploadConfig{
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
	logger := logging.NewNopLogger()

	registry := store.NewMemorySessionRegistry()
	chunks := store.NewMemoryChunkStore()
	files := store.NewMemoryFileStore()

	reconstructor := services.NewReconstructor(chunks, cfg, logger)
	cleanup := services.NewCleanupCoordinator(registry, chunks, logger)

	sessions := services.NewSessionServiceImpl(registry, chunks, cfg, logger)
	completion := services.NewCompletionServiceImpl(
		registry, chunks, files, reconstructor, cleanup, nil, cfg, logger)
	fileSvc := services.NewFileServiceImpl(sessions, completion, files, chunks, cfg.PresignTTL, logger)

	handler := NewHTTPHandler(sessions, completion, fileSvc, nil, logger)
	router := mux.NewRouter()
	handler.Register(router)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, chunks, cleanup
}

func doJSON(t *testing.T, method, url string, owner string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	if owner != "" {
		req.Header.Set("X-User-Id", owner)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func uploadChunk(t *testing.T, url, owner, uploadID string, index int, data []byte) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("uploadId", uploadID))
	require.NoError(t, w.WriteField("chunkIndex", fmt.Sprintf("%d", index)))
	fw, err := w.CreateFormFile("chunk", "chunk.bin")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, url+"/files/chunk/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("X-User-Id", owner)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp
}

func TestChunkUploadFlow(t *testing.T) {
	srv, chunks, _ := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/files/chunk/init", testOwner, map[string]any{
		"filename": "a.bin",
		"fileSize": 3 * 1024,
		"fileType": "application/octet-stream",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	uploadID := body["uploadId"].(string)
	require.NotEmpty(t, uploadID)

	parts := [][]byte{
		bytes.Repeat([]byte{'a'}, 1024),
		bytes.Repeat([]byte{'b'}, 1024),
		bytes.Repeat([]byte{'c'}, 1024),
	}
	for _, i := range []int{1, 0, 2} {
		resp := uploadChunk(t, srv.URL, testOwner, uploadID, i, parts[i])
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/files/chunk/uploaded/"+uploadID, testOwner, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["uploadedChunks"], 3)

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/files/chunk/complete/"+uploadID, testOwner, map[string]any{
		"totalChunks": 3,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	fileInfo := body["fileInfo"].(map[string]any)
	objectKey := fileInfo["object_key"].(string)

	want := append(append(append([]byte{}, parts[0]...), parts[1]...), parts[2]...)
	assert.Equal(t, want, chunks.Object(objectKey))
}

func TestChunkComplete_Mismatch(t *testing.T) {
	srv, _, _ := newTestServer(t)

	_, body := doJSON(t, http.MethodPost, srv.URL+"/files/chunk/init", testOwner, map[string]any{
		"filename": "a.bin",
		"fileSize": 5 * 1024,
	})
	uploadID := body["uploadId"].(string)

	for i := 0; i < 4; i++ {
		uploadChunk(t, srv.URL, testOwner, uploadID, i, []byte("data"))
	}

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/files/chunk/complete/"+uploadID, testOwner, map[string]any{
		"totalChunks": 5,
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, float64(5), body["expected"])
	assert.Equal(t, float64(4), body["actual"])
}

func TestMissingOwnerHeader(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/files/chunk/init", "", map[string]any{
		"filename": "a.bin",
		"fileSize": 1024,
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInit_BadArguments(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/files/chunk/init", testOwner, map[string]any{
		"filename": "",
		"fileSize": 1024,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadedChunks_UnknownSession(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/files/chunk/uploaded/nope", testOwner, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSingleShotUpload(t *testing.T) {
	srv, chunks, _ := newTestServer(t)

	payload := bytes.Repeat([]byte{'z'}, 2048)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", "whole.bin")
	require.NoError(t, err)
	_, err = fw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/files/upload", &buf)
	require.NoError(t, err)
	req.Header.Set("X-User-Id", testOwner)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	fileInfo := body["fileInfo"].(map[string]any)
	assert.Equal(t, payload, chunks.Object(fileInfo["object_key"].(string)))
}
