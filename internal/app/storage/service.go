/*
Package storage persists the serialized user directory.

The directory is always written as one whole document; a Store only has to load and
replace that document atomically from the caller's point of view. Three backends exist:
a local file (the default), a row in PostgreSQL and an object in an S3-compatible bucket.
*/
package storage

import (
	"context"
	"fmt"

	"chatdir/internal/app/db"
)

// ServiceConfig holds the configuration required to open a Store.
type ServiceConfig struct {
	// Driver is one of "file", "postgres" or "s3".
	Driver string

	// FilePath is the document location for the file driver.
	FilePath string

	// DocumentName names the row (postgres) or object stem (s3) holding the document.
	DocumentName string

	DatabaseDSN string

	S3BucketName      string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
}

// Store defines the persistence contract of the directory document.
type Store interface {
	// Load returns the stored document, or nil and no error when none exists yet.
	Load(ctx context.Context) ([]byte, error)

	// Save replaces the stored document with doc.
	Save(ctx context.Context, doc []byte) error

	// Describe names the backend and location for logging.
	Describe() string

	// Close releases the backend's resources.
	Close() error
}

// NewStore is the factory function for Store.
// It initializes and returns a concrete implementation based on the provided configuration.
func NewStore(ctx context.Context, cfg ServiceConfig) (Store, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileStore(cfg.FilePath), nil
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		return newPostgresStore(pool, cfg.DocumentName, pool.Close), nil
	case "s3":
		return newS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}
