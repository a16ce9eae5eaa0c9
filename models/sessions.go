package models

import (
	"fmt"
	"time"
)

// SessionStatus is the lifecycle state of an upload session.
type SessionStatus string

const (
	StatusUploading  SessionStatus = "uploading"
	StatusCompleting SessionStatus = "completing"
	StatusCompleted  SessionStatus = "completed"
)

func (s SessionStatus) String() string { return string(s) }

func ParseSessionStatus(s string) (SessionStatus, error) {
	switch SessionStatus(s) {
	case StatusUploading, StatusCompleting, StatusCompleted:
		return SessionStatus(s), nil
	}
	return "", fmt.Errorf("unknown session status %q", s)
}

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// UploadSession is the bookkeeping record for one in-flight chunked upload.
// It is stored in the session registry under a TTL; the received-chunk set
// lives under its own key so concurrent chunk uploads contend only on the
// set, never on this record.
type UploadSession struct {
	SessionID   string        `json:"session_id"`
	OwnerID     string        `json:"owner_id"`
	Filename    string        `json:"filename"`
	FileSize    int64         `json:"file_size"`
	ContentType string        `json:"content_type"`
	ParentID    string        `json:"parent_id,omitempty"`
	Visibility  Visibility    `json:"visibility"`
	Status      SessionStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}

// UploadStatusResponse reports session progress to resuming clients.
type UploadStatusResponse struct {
	Status   SessionStatus `json:"status"`
	Progress uint8         `json:"progress"`
	Received []int         `json:"received"`
}
