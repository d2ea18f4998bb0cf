// Package local implements a store backed by a directory on a filesystem
// shared by the experiment hosts.
package local

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/ulikunitz/xz"

	"github.com/sidkik/mcstage/pkg/artifact"
	"github.com/sidkik/mcstage/pkg/errors"
)

// Store keeps artifacts as files in a single directory. The stored copy of
// an artifact keeps the modification time of the local file it was uploaded
// from, and that time is reported as the upload date.
type Store struct {
	fs   afero.Fs
	root string
}

// decompressor unpacks images that end in ext. Archives are extracted into
// the store, and everything else is stored under the image name without ext.
type decompressor struct {
	ext     string
	open    func(io.Reader) (io.ReadCloser, error)
	archive bool
}

// Longer extensions come first so that `.tar.gz` isn't taken for `.gz`.
var decompressors = []decompressor{
	{ext: ".tar.gz", open: openGzip, archive: true},
	{ext: ".tgz", open: openGzip, archive: true},
	{ext: ".tar", open: openPlain, archive: true},
	{ext: ".xz", open: func(r io.Reader) (io.ReadCloser, error) {
		dec, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(dec), nil
	}},
	{ext: ".zst", open: func(r io.Reader) (io.ReadCloser, error) {
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	}},
	{ext: ".gz", open: openGzip},
	{ext: ".lz4", open: func(r io.Reader) (io.ReadCloser, error) {
		return io.NopCloser(lz4.NewReader(r)), nil
	}},
}

func openGzip(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

func openPlain(r io.Reader) (io.ReadCloser, error) {
	return io.NopCloser(r), nil
}

func findDecompressor(name string) (decompressor, bool) {
	for _, d := range decompressors {
		if strings.HasSuffix(name, d.ext) {
			return d, true
		}
	}
	return decompressor{}, false
}

// New creates a store rooted at `root`, creating the directory if needed.
func New(fs afero.Fs, root string) (*Store, error) {
	if err := fs.MkdirAll(root, 0755); err != nil {
		return nil, errors.WithContext(err, "create store directory")
	}
	return &Store{fs: fs, root: root}, nil
}

// UploadDate implements store.Store.
func (s *Store) UploadDate(ctx context.Context, name string) (time.Time, bool, error) {
	fi, err := s.fs.Stat(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, errors.WithContext(err, "stat")
	}
	return artifact.Timestamp(fi.ModTime()), true, nil
}

// ContentHash implements store.Store.
func (s *Store) ContentHash(ctx context.Context, name string) (string, bool, error) {
	hash, err := artifact.HashFile(s.fs, s.path(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, nil
		}
		return "", false, err
	}
	return hash, true, nil
}

// Upload copies the file at `path` into the store, replacing any existing
// copy with the same name.
func (s *Store) Upload(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := s.fs.Open(path)
	if err != nil {
		return errors.WithContext(err, "open")
	}
	defer src.Close()

	fi, err := src.Stat()
	if err != nil {
		return errors.WithContext(err, "stat")
	}

	return s.write(filepath.Base(path), src, fi.ModTime())
}

// UploadImage uploads the image at `path`. Compressed images are also
// decompressed into the store.
func (s *Store) UploadImage(ctx context.Context, path string) error {
	if err := s.Upload(ctx, path); err != nil {
		return err
	}

	image := filepath.Base(path)
	dec, ok := findDecompressor(image)
	if !ok {
		return nil
	}

	src, err := s.fs.Open(path)
	if err != nil {
		return errors.WithContext(err, "open")
	}
	defer src.Close()

	fi, err := src.Stat()
	if err != nil {
		return errors.WithContext(err, "stat")
	}

	r, err := dec.open(src)
	if err != nil {
		return errors.WithContext(err, "decompress")
	}
	defer r.Close()

	if dec.archive {
		log.WithField("image", image).Debug("Extracting image archive")
		if err := s.extract(image, r); err != nil {
			return errors.WithContext(err, "extract")
		}
		return nil
	}

	name := strings.TrimSuffix(image, dec.ext)
	log.WithField("image", image).
		WithField("name", name).
		Debug("Decompressing image")
	if err := s.write(name, r, fi.ModTime()); err != nil {
		return errors.WithContext(err, "decompress")
	}
	return nil
}

// extract writes the regular files in the tar stream into the store. Members
// that aren't regular files, or whose paths would leave the store, are
// skipped.
func (s *Store) extract(image string, r io.Reader) error {
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil && err != tar.ErrInsecurePath {
			return errors.WithContext(err, "read archive")
		}

		if hdr.Typeflag == tar.TypeDir {
			continue
		}

		name := filepath.FromSlash(hdr.Name)
		if hdr.Typeflag != tar.TypeReg || !filepath.IsLocal(name) {
			log.WithFields(log.Fields{
				"image":  image,
				"member": hdr.Name,
			}).Warn("Skipping unsafe archive member")
			continue
		}

		if err := s.write(name, tr, hdr.ModTime); err != nil {
			return errors.WithContext(err, hdr.Name)
		}
	}
}

// write atomically replaces the stored file `name` with the contents of `r`.
func (s *Store) write(name string, r io.Reader, modTime time.Time) error {
	dest := s.path(name)
	if err := s.fs.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return errors.WithContext(err, "create directory")
	}

	tmp, err := afero.TempFile(s.fs, filepath.Dir(dest), "."+filepath.Base(name))
	if err != nil {
		return errors.WithContext(err, "create temp file")
	}

	_, err = io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		s.fs.Remove(tmp.Name())
		return errors.WithContext(err, "copy")
	}

	if err := s.fs.Chmod(tmp.Name(), 0644); err != nil {
		s.fs.Remove(tmp.Name())
		return errors.WithContext(err, "chmod")
	}

	if err := s.fs.Chtimes(tmp.Name(), modTime, modTime); err != nil {
		s.fs.Remove(tmp.Name())
		return errors.WithContext(err, "set modification time")
	}

	if err := s.fs.Rename(tmp.Name(), dest); err != nil {
		s.fs.Remove(tmp.Name())
		return errors.WithContext(err, "rename")
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.root, name)
}
