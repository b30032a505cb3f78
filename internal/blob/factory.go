package blob

import (
	"context"
	"fmt"

	"geuebt/internal/config"
	"geuebt/internal/infra/blob/fs"
	memorystore "geuebt/internal/infra/blob/memory"
	infraS3 "geuebt/internal/infra/blob/s3"
)

// S3Config configures the S3 / MinIO driver.
type S3Config = infraS3.Config

// Open constructs the Store selected by cfg.Driver. An empty driver selects
// the filesystem store.
func Open(ctx context.Context, cfg config.Blob) (Store, error) {
	switch Driver(cfg.Driver) {
	case "", DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverMemory:
		return NewMemory(), nil
	case DriverS3:
		return NewS3(ctx, S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			PathStyle:       cfg.S3.PathStyle,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewFilesystem keeps sequences as files below root.
func NewFilesystem(root string) (Store, error) { return fs.New(root) }

// NewMemory keeps sequences in process memory.
func NewMemory() Store { return memorystore.New() }

// NewS3 stores sequences in an S3 bucket.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) { return infraS3.New(ctx, cfg) }

// NewMockS3ForTests is an S3 store backed by an in-process fake endpoint.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
