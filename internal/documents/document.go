// Package documents stores ingested files in the blob document store and
// serves them back by storage key.
package documents

import (
	"time"

	"github.com/google/uuid"
)

// UploadCommand carries one ingested file and the metadata recorded with its blob.
type UploadCommand struct {
	Data             []byte
	Filename         string
	ContentType      string
	WorkflowID       uuid.UUID
	QueueItemID      uuid.UUID
	Checksum         string
	DocumentType     string
	CriticalityLevel string
}

// Reference locates an uploaded document.
type Reference struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	UploadedAt  time.Time `json:"uploaded_at"`
}
