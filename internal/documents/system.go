package documents

import (
	"context"
	"io"
)

// System defines the document store contract consumed by the ingestion engine.
type System interface {
	Handler() *Handler

	// Upload stores the file under a new key scoped to its workflow.
	Upload(ctx context.Context, cmd UploadCommand) (*Reference, error)
	// Open streams a stored document. The caller must close the reader.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Remove deletes a stored document. Missing documents are not an error.
	Remove(ctx context.Context, key string) error
}
