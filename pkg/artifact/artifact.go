// Package artifact describes the binary files that a model component ships
// with: VM images and VM resources.
package artifact

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"

	"github.com/sidkik/mcstage/pkg/errors"
)

// Kind is the type of a declared artifact. It decides which store entrypoint
// the artifact is uploaded with, and which error is raised when it's missing.
type Kind int

const (
	// Resource is a provisioning file (scripts, packages, configs) that is
	// copied into VMs.
	Resource Kind = iota

	// Image is a VM boot image.
	Image
)

func (k Kind) String() string {
	switch k {
	case Resource:
		return "resource"
	case Image:
		return "image"
	default:
		return "unknown"
	}
}

// Uploader is the subset of the store that mutates it.
type Uploader interface {
	Upload(ctx context.Context, path string) error
	UploadImage(ctx context.Context, path string) error
}

type kindInfo struct {
	missing func(component, path string) error
	upload  func(ctx context.Context, store Uploader, path string) error
}

var kinds = map[Kind]kindInfo{
	Resource: {
		missing: func(component, path string) error {
			return errors.MissingResourceError{Component: component, Path: path}
		},
		upload: func(ctx context.Context, store Uploader, path string) error {
			return store.Upload(ctx, path)
		},
	},
	Image: {
		missing: func(component, path string) error {
			return errors.MissingImageError{Component: component, Path: path}
		},
		upload: func(ctx context.Context, store Uploader, path string) error {
			return store.UploadImage(ctx, path)
		},
	},
}

// Artifact is a file declared by a model component.
type Artifact struct {
	// Path is the absolute path to the file on the local machine.
	Path string

	Kind Kind

	fs afero.Fs
}

// Info is a fresh view of an artifact's file metadata.
type Info struct {
	Size int64

	// ModTime is the file's modification time in UTC, truncated to the
	// second. Stores record upload dates at the same precision.
	ModTime time.Time
}

// New creates an Artifact for the file at `path`. The file must exist;
// otherwise the kind-specific missing-file error is returned.
func New(fs afero.Fs, component, path string, kind Kind) (Artifact, error) {
	info, ok := kinds[kind]
	if !ok {
		return Artifact{}, errors.New("unknown artifact kind")
	}

	exists, err := afero.Exists(fs, path)
	if err != nil {
		return Artifact{}, errors.WithContext(err, "stat")
	}
	if !exists {
		return Artifact{}, info.missing(component, path)
	}
	return Artifact{Path: path, Kind: kind, fs: fs}, nil
}

// Name is the key the artifact is stored under.
func (a Artifact) Name() string {
	return filepath.Base(a.Path)
}

// Stat reads the artifact's size and modification time from disk. The values
// aren't cached because the file may be rewritten between checks.
func (a Artifact) Stat() (Info, error) {
	fi, err := a.fs.Stat(a.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Info{}, errors.FileNotFound{Path: a.Path}
		}
		return Info{}, errors.WithContext(err, "stat")
	}
	return Info{
		Size:    fi.Size(),
		ModTime: Timestamp(fi.ModTime()),
	}, nil
}

// Hash returns the content hash of the artifact.
func (a Artifact) Hash() (string, error) {
	return HashFile(a.fs, a.Path)
}

// Upload sends the artifact to the store using the entrypoint for its kind.
func (a Artifact) Upload(ctx context.Context, store Uploader) error {
	return kinds[a.Kind].upload(ctx, store, a.Path)
}

// Timestamp normalizes a time to the precision that upload dates are
// compared at.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
