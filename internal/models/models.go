package models

import (
	"time"
)

// User represents an authenticated user of the system.
type User struct {
	ID           string    `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Document processing lifecycle: pending -> processing -> one of the
// terminal states below.
const (
	ProcessingPending    = "pending"
	ProcessingInProgress = "processing"
	ProcessingCompleted  = "completed"
	ProcessingPartial    = "partial"
	ProcessingTextOnly   = "text_only"
	ProcessingError      = "error"
)

// Document represents an uploaded file: the object-storage pointer, the
// extracted text (when small enough to keep inline) and the indexing outcome.
type Document struct {
	ID          string `db:"id" json:"id"`
	UserID      string `db:"user_id" json:"user_id"`
	FileName    string `db:"file_name" json:"file_name"`
	StorageURL  string `db:"storage_url" json:"storage_url"`
	SourceType  string `db:"source_type" json:"source_type"` // "upload" or "url"
	ContentType string `db:"content_type" json:"content_type"`

	// ProcessingStatus tracks the knowledge-indexing outcome; ProcessingError
	// carries the human-readable detail (e.g. "3/7 chunks indexed").
	ProcessingStatus string `db:"processing_status" json:"processing_status"`
	ProcessingError  string `db:"processing_error" json:"processing_error,omitempty"`

	// VectorIDs lists the vector database IDs written for this document, in
	// chunk order. Stored comma-joined.
	VectorIDs []string `db:"vector_ids" json:"vector_ids,omitempty"`

	// Content holds the extracted text when it fits the inline budget, so the
	// document remains readable even if indexing failed.
	Content string `db:"content" json:"-"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
