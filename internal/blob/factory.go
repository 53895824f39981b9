package blob

import (
	"context"
	"fmt"

	"flowcore/internal/config"
	fsstore "flowcore/internal/infra/blob/fs"
	memorystore "flowcore/internal/infra/blob/memory"
	s3store "flowcore/internal/infra/blob/s3"
)

// Open selects a Store implementation from cfg.Driver (memory when empty).
func Open(ctx context.Context, cfg config.Blob) (Store, error) {
	switch cfg.Driver {
	case "", config.BlobMemory:
		return NewMemory(), nil
	case config.BlobFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case config.BlobS3:
		return s3store.New(ctx, s3store.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			PathStyle:       cfg.S3.PathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %s", cfg.Driver)
	}
}

// NewMemory returns an in-memory Store.
func NewMemory() Store { return memorystore.New() }

// NewFilesystem returns a filesystem Store rooted at root.
func NewFilesystem(root string) (Store, error) { return fsstore.New(root) }

// NewMockS3 returns an S3 Store served by an in-process fake transport,
// for tests in packages that may not import the infra backends.
func NewMockS3(ctx context.Context) (Store, error) { return s3store.NewMock(ctx) }
