package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rhinocodelab/idms-v3/pkg/storage"
)

type store struct {
	storage storage.System
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a document store over the blob storage system.
func New(storage storage.System, logger *slog.Logger) System {
	return &store{
		storage: storage,
		logger:  logger.With("system", "documents"),
		now:     time.Now,
	}
}

func (s *store) Handler() *Handler {
	return NewHandler(s, s.logger)
}

func (s *store) Upload(ctx context.Context, cmd UploadCommand) (*Reference, error) {
	if len(cmd.Data) == 0 {
		return nil, fmt.Errorf("%w: empty file %s", ErrInvalidFile, cmd.Filename)
	}

	contentType := detectContentType(cmd.ContentType, cmd.Data)
	key := buildStorageKey(s.storage.Prefix(), cmd.WorkflowID, uuid.New(), sanitizeFilename(cmd.Filename))

	metadata := map[string]string{
		"workflow-id":       cmd.WorkflowID.String(),
		"queue-item-id":     cmd.QueueItemID.String(),
		"checksum":          cmd.Checksum,
		"original-filename": url.QueryEscape(filepath.Base(cmd.Filename)),
		"document-type":     cmd.DocumentType,
		"criticality-level": cmd.CriticalityLevel,
	}

	if err := s.storage.Upload(ctx, key, bytes.NewReader(cmd.Data), contentType, metadata); err != nil {
		return nil, fmt.Errorf("upload document blob: %w", err)
	}

	s.logger.Info("document uploaded", "key", key, "size", len(cmd.Data))

	return &Reference{
		Key:         key,
		ContentType: contentType,
		SizeBytes:   int64(len(cmd.Data)),
		UploadedAt:  s.now(),
	}, nil
}

func (s *store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := s.storage.Download(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rc, nil
}

func (s *store) Remove(ctx context.Context, key string) error {
	err := s.storage.Delete(ctx, key)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("remove document blob: %w", err)
	}
	return nil
}

func buildStorageKey(prefix string, workflowID, id uuid.UUID, filename string) string {
	return path.Join(prefix, workflowID.String(), id.String(), filename)
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	if name == "." || name == "" || name == string(filepath.Separator) {
		name = "document"
	}
	return url.PathEscape(name)
}

func detectContentType(declared string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return http.DetectContentType(data)
}
