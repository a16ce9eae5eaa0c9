package models

import "time"

// FinalizedFile is the descriptor of a reconstructed object. It is the only
// artifact that outlives a session: the catalog persists it and the
// completion event carries it.
type FinalizedFile struct {
	FileID      string     `dynamodbav:"file_id" json:"file_id"`
	SessionID   string     `dynamodbav:"session_id" json:"session_id"`
	OwnerID     string     `dynamodbav:"owner_id" json:"owner_id"`
	Filename    string     `dynamodbav:"filename" json:"filename"`
	ParentID    string     `dynamodbav:"parent_id" json:"parent_id,omitempty"`
	ObjectKey   string     `dynamodbav:"object_key" json:"object_key"`
	Size        int64      `dynamodbav:"file_size" json:"size"`
	ContentType string     `dynamodbav:"content_type" json:"content_type"`
	Visibility  Visibility `dynamodbav:"visibility" json:"visibility"`
	TotalChunks int        `dynamodbav:"total_chunks" json:"total_chunks"`
	CreatedAt   time.Time  `dynamodbav:"created_at" json:"created_at"`
}

// UploadCompletedEvent is published for the metadata catalog after a
// successful completion.
type UploadCompletedEvent struct {
	SessionID string        `json:"session_id"`
	File      FinalizedFile `json:"file"`
}
