// Package storage archives ingested documents in Azure Blob Storage.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/rhinocodelab/idms-v3/pkg/lifecycle"
)

// System stores blobs under keys relative to one container.
type System interface {
	// Start ensures the container exists during lifecycle startup and
	// registers "storage" readiness.
	Start(lc *lifecycle.Coordinator) error
	// Upload streams r to key. Empty metadata values are dropped.
	Upload(ctx context.Context, key string, r io.Reader, contentType string, metadata map[string]string) error
	// Download opens key for reading. The caller closes the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes key. A missing blob yields ErrNotFound.
	Delete(ctx context.Context, key string) error
	// Prefix is the configured key prefix without surrounding slashes.
	Prefix() string
}

type azure struct {
	client    *azblob.Client
	container string
	prefix    string
	logger    *slog.Logger
	ready     atomic.Bool
}

// New builds the client without contacting the service. A connection
// string wins over AccountURL, which authenticates through the default
// Azure credential chain.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	opts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: int32(cfg.MaxRetries)},
		},
	}

	client, err := newClient(cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}

	return &azure{
		client:    client,
		container: cfg.ContainerName,
		prefix:    strings.Trim(cfg.KeyPrefix, "/"),
		logger:    logger.With("system", "storage", "container", cfg.ContainerName),
	}, nil
}

func newClient(cfg *Config, opts *azblob.ClientOptions) (*azblob.Client, error) {
	if cfg.ConnectionString != "" {
		return azblob.NewClientFromConnectionString(cfg.ConnectionString, opts)
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("credential: %w", err)
	}
	return azblob.NewClient(cfg.AccountURL, cred, opts)
}

func (a *azure) Start(lc *lifecycle.Coordinator) error {
	lc.RegisterReadiness("storage", lifecycle.ReadinessFunc(a.ready.Load))

	lc.OnStartup(func() {
		_, err := a.client.CreateContainer(lc.Context(), a.container, nil)
		if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
			a.logger.Error("container init failed", "error", err)
			return
		}
		a.ready.Store(true)
		a.logger.Info("storage ready")
	})
	return nil
}

func (a *azure) Prefix() string { return a.prefix }

func (a *azure) Upload(ctx context.Context, key string, r io.Reader, contentType string, metadata map[string]string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	_, err := a.client.UploadStream(ctx, a.container, key, r, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
		Metadata:    blobMetadata(metadata),
	})
	return translate("upload", key, err)
}

func (a *azure) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	resp, err := a.client.DownloadStream(ctx, a.container, key, nil)
	if err != nil {
		return nil, translate("download", key, err)
	}
	return resp.Body, nil
}

func (a *azure) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	_, err := a.client.DeleteBlob(ctx, a.container, key, nil)
	return translate("delete", key, err)
}

// translate maps SDK error codes onto the package sentinels.
func translate(op, key string, err error) error {
	switch {
	case err == nil:
		return nil
	case bloberror.HasCode(err, bloberror.BlobNotFound):
		return fmt.Errorf("%s %s: %w", op, key, ErrNotFound)
	case bloberror.HasCode(err, bloberror.ContainerNotFound):
		return fmt.Errorf("%s %s: %w", op, key, ErrContainerMissing)
	}
	return fmt.Errorf("%s %s: %w", op, key, err)
}

// blobMetadata drops empty values and rewrites dashes to underscores, since
// Azure metadata names must be valid C# identifiers.
func blobMetadata(metadata map[string]string) map[string]*string {
	if len(metadata) == 0 {
		return nil
	}

	out := make(map[string]*string, len(metadata))
	for k, v := range metadata {
		if v == "" {
			continue
		}
		out[strings.ReplaceAll(k, "-", "_")] = &v
	}
	return out
}

func validateKey(key string) error {
	switch {
	case key == "":
		return ErrEmptyKey
	case strings.Contains(key, ".."):
		return ErrInvalidKey
	}
	return nil
}
