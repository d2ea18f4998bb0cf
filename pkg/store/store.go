// Package store defines the artifact store that model component files are
// staged into before an experiment runs.
package store

import (
	"context"
	"time"
)

// Store is a shared, remote artifact store keyed by artifact name. Stores
// must tolerate concurrent writers, and uploading the same bytes twice under
// the same name must be safe.
type Store interface {
	// UploadDate returns the time that the named artifact was last uploaded,
	// in UTC at second precision. The boolean is false if the store doesn't
	// have the artifact.
	UploadDate(ctx context.Context, name string) (time.Time, bool, error)

	// ContentHash returns the hash of the stored artifact's bytes, in the
	// same encoding as artifact.HashFile.
	ContentHash(ctx context.Context, name string) (string, bool, error)

	// Upload stores the resource at `path` under its base name, replacing
	// any existing copy.
	Upload(ctx context.Context, path string) error

	// UploadImage stores the VM image at `path`.
	UploadImage(ctx context.Context, path string) error
}
