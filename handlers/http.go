package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bytevault/uploads/apperror"
	"github.com/bytevault/uploads/health"
	"github.com/bytevault/uploads/logging"
	"github.com/bytevault/uploads/services"
	"github.com/bytevault/uploads/store"
	"github.com/gorilla/mux"
)

// ownerHeader carries the authenticated principal, set by the fronting auth
// layer. The engine itself makes no authn decisions.
const ownerHeader = "X-User-Id"

const maxChunkMemory = 32 << 20

type HTTPHandler struct {
	sessions   services.SessionService
	completion services.CompletionService
	files      services.FileService
	checks     []health.ReadinessCheck

	logger logging.Logger
}

func NewHTTPHandler(
	sessions services.SessionService,
	completion services.CompletionService,
	files services.FileService,
	checks []health.ReadinessCheck,
	l logging.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		sessions:   sessions,
		completion: completion,
		files:      files,
		checks:     checks,
		logger:     l,
	}
}

func (h *HTTPHandler) Register(r *mux.Router) {
	r.HandleFunc("/files/chunk/init", h.initUpload).Methods(http.MethodPost)
	r.HandleFunc("/files/chunk/upload", h.uploadChunk).Methods(http.MethodPost)
	r.HandleFunc("/files/chunk/uploaded/{uploadId}", h.uploadedChunks).Methods(http.MethodGet)
	r.HandleFunc("/files/chunk/status/{uploadId}", h.uploadStatus).Methods(http.MethodGet)
	r.HandleFunc("/files/chunk/complete/{uploadId}", h.completeUpload).Methods(http.MethodPost)
	r.HandleFunc("/files/upload", h.uploadFile).Methods(http.MethodPost)
	r.HandleFunc("/files/{fileId}/url", h.downloadURL).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
}

type initUploadRequest struct {
	Filename string `json:"filename"`
	FileSize int64  `json:"fileSize"`
	FileType string `json:"fileType"`
	ParentID string `json:"parentId"`
	IsPublic bool   `json:"isPublic"`
}

type initUploadResponse struct {
	Success  bool   `json:"success"`
	UploadID string `json:"uploadId"`
}

func (h *HTTPHandler) initUpload(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	var req initUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperror.ErrInvalidArgument)
		return
	}

	session, err := h.sessions.Initiate(r.Context(), services.InitiateRequest{
		Filename:    req.Filename,
		Size:        req.FileSize,
		ContentType: req.FileType,
		OwnerID:     owner,
		ParentID:    req.ParentID,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, initUploadResponse{Success: true, UploadID: session.SessionID})
}

func (h *HTTPHandler) uploadChunk(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxChunkMemory); err != nil {
		h.writeError(w, apperror.ErrInvalidArgument)
		return
	}

	uploadID := r.FormValue("uploadId")
	index, err := strconv.Atoi(r.FormValue("chunkIndex"))
	if err != nil {
		h.writeError(w, apperror.ErrInvalidArgument)
		return
	}

	chunk, header, err := r.FormFile("chunk")
	if err != nil {
		h.writeError(w, apperror.ErrInvalidArgument)
		return
	}
	defer chunk.Close()

	if err := h.sessions.ReceiveChunk(r.Context(), uploadID, index, owner, chunk, header.Size); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *HTTPHandler) uploadedChunks(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	received, err := h.sessions.ListReceived(r.Context(), mux.Vars(r)["uploadId"], owner)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"uploadedChunks": received,
	})
}

func (h *HTTPHandler) uploadStatus(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	status, err := h.sessions.Status(r.Context(), mux.Vars(r)["uploadId"], owner)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"status":   status.Status,
		"progress": status.Progress,
	})
}

type completeUploadRequest struct {
	TotalChunks int `json:"totalChunks"`
}

func (h *HTTPHandler) completeUpload(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	var req completeUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, apperror.ErrInvalidArgument)
		return
	}

	file, err := h.completion.Complete(r.Context(), mux.Vars(r)["uploadId"], req.TotalChunks, owner)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"fileInfo": file,
	})
}

func (h *HTTPHandler) uploadFile(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxChunkMemory); err != nil {
		h.writeError(w, apperror.ErrInvalidArgument)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, apperror.ErrInvalidArgument)
		return
	}
	defer f.Close()

	file, err := h.files.Upload(r.Context(), services.InitiateRequest{
		Filename:    header.Filename,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
		OwnerID:     owner,
		ParentID:    r.FormValue("parentId"),
		IsPublic:    r.FormValue("isPublic") == "true",
	}, f)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"fileInfo": file,
	})
}

func (h *HTTPHandler) downloadURL(w http.ResponseWriter, r *http.Request) {
	owner, ok := h.owner(w, r)
	if !ok {
		return
	}

	url, err := h.files.DownloadURL(r.Context(), mux.Vars(r)["fileId"], owner)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"success": true, "url": url})
}

func (h *HTTPHandler) healthz(w http.ResponseWriter, r *http.Request) {
	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		err := c.IsReady(ctx)
		cancel()

		if err != nil {
			h.writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"success": false,
				"failing": c.Name(),
			})
			return
		}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *HTTPHandler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	owner := r.Header.Get(ownerHeader)
	if owner == "" {
		h.writeJSON(w, http.StatusUnauthorized, errorResponse{
			Success: false,
			Error:   "missing " + ownerHeader + " header",
		})
		return "", false
	}
	return owner, true
}

type errorResponse struct {
	Success  bool   `json:"success"`
	Error    string `json:"error"`
	Expected int    `json:"expected,omitempty"`
	Actual   int    `json:"actual,omitempty"`
	Index    *int   `json:"chunkIndex,omitempty"`
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	resp := errorResponse{Success: false, Error: err.Error()}
	status := http.StatusInternalServerError

	var mismatch *apperror.ChunkCountMismatchError
	var unavailable *apperror.ChunkUnavailableError

	switch {
	case errors.Is(err, apperror.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, apperror.ErrSessionNotFound), errors.Is(err, store.ErrFileNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperror.ErrForbidden):
		status = http.StatusForbidden
	case errors.As(err, &mismatch):
		status = http.StatusConflict
		resp.Expected = mismatch.Expected
		resp.Actual = mismatch.Actual
	case errors.Is(err, apperror.ErrAlreadyCompleting), errors.Is(err, apperror.ErrAlreadyCompleted):
		status = http.StatusConflict
	case errors.As(err, &unavailable):
		status = http.StatusInternalServerError
		resp.Index = &unavailable.Index
	case errors.Is(err, apperror.ErrReconstructionTimeout):
		status = http.StatusGatewayTimeout
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}

	h.writeJSON(w, status, resp)
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
