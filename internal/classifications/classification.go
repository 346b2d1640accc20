// Package classifications implements the classification record domain: the
// stored outcome of classifying and uploading one ingested document.
package classifications

import (
	"time"

	"github.com/google/uuid"
)

// Classification is the stored result of classifying one queue item.
// Queue items reference it weakly; deleting it does not cascade.
type Classification struct {
	ID               uuid.UUID `json:"id"`
	WorkflowID       uuid.UUID `json:"workflow_id"`
	QueueItemID      uuid.UUID `json:"queue_item_id"`
	Filename         string    `json:"filename"`
	DocumentType     string    `json:"document_type"`
	CriticalityLevel string    `json:"criticality_level"`
	Confidence       float64   `json:"confidence"`
	Rationale        string    `json:"rationale"`
	StorageKey       string    `json:"storage_key"`
	ContentType      string    `json:"content_type"`
	SizeBytes        int64     `json:"size_bytes"`
	ModelName        string    `json:"model_name"`
	ClassifiedAt     time.Time `json:"classified_at"`
}

// CreateCommand carries a classification outcome together with the location
// of the uploaded document.
type CreateCommand struct {
	WorkflowID       uuid.UUID
	QueueItemID      uuid.UUID
	Filename         string
	DocumentType     string
	CriticalityLevel string
	Confidence       float64
	Rationale        string
	StorageKey       string
	ContentType      string
	SizeBytes        int64
	ModelName        string
}

// Summary aggregates stored classifications for reporting.
type Summary struct {
	Total          int            `json:"total"`
	ByDocumentType map[string]int `json:"by_document_type"`
	ByCriticality  map[string]int `json:"by_criticality"`
}

func newSummary() *Summary {
	return &Summary{
		ByDocumentType: map[string]int{},
		ByCriticality:  map[string]int{},
	}
}

func (s *Summary) add(docType, level string, n int) {
	s.Total += n
	s.ByDocumentType[docType] += n
	s.ByCriticality[level] += n
}
