// Package s3 implements a store backed by an S3-compatible object store.
package s3

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/mcstage/pkg/artifact"
	"github.com/sidkik/mcstage/pkg/errors"
	"github.com/sidkik/mcstage/pkg/version"
)

const (
	mtimeKey = "Mcstage-Mtime"
	hashKey  = "Mcstage-Hash"
	kindKey  = "Mcstage-Kind"
)

// Config holds the connection settings for the object store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// objectClient is the subset of *minio.Client used by the store.
type objectClient interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader,
		size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
}

// Store keeps each artifact as an object named after the artifact. The
// local file's modification time and content hash are recorded as object
// metadata at upload time, so they can be queried without downloading.
type Store struct {
	fs     afero.Fs
	client objectClient
	bucket string
	region string
}

// New creates a store for the bucket in `cfg`. Local files are read from `fs`.
func New(fs afero.Fs, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errors.WithContext(err, "create client")
	}
	client.SetAppInfo("mcstage", version.Version)

	return &Store{
		fs:     fs,
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return errors.WithContext(err, "check bucket")
	}
	if exists {
		return nil
	}

	log.WithField("bucket", s.bucket).Info("Creating bucket")
	return s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{
		Region: s.region,
	})
}

// UploadDate implements store.Store.
func (s *Store) UploadDate(ctx context.Context, name string) (time.Time, bool, error) {
	info, ok, err := s.stat(ctx, name)
	if err != nil || !ok {
		return time.Time{}, false, err
	}

	// Objects written by other tools don't have the metadata. Fall back to
	// the time the object was written.
	mtime, ok := metadata(info, mtimeKey)
	if !ok {
		return artifact.Timestamp(info.LastModified), true, nil
	}

	date, err := time.Parse(time.RFC3339, mtime)
	if err != nil {
		return time.Time{}, false, errors.WithContext(err, "parse upload date")
	}
	return artifact.Timestamp(date), true, nil
}

// ContentHash implements store.Store. Objects without a recorded hash are
// reported as having no hash.
func (s *Store) ContentHash(ctx context.Context, name string) (string, bool, error) {
	info, ok, err := s.stat(ctx, name)
	if err != nil || !ok {
		return "", false, err
	}

	hash, ok := metadata(info, hashKey)
	return hash, ok, nil
}

// Upload implements store.Store.
func (s *Store) Upload(ctx context.Context, path string) error {
	return s.put(ctx, path, artifact.Resource)
}

// UploadImage implements store.Store.
func (s *Store) UploadImage(ctx context.Context, path string) error {
	return s.put(ctx, path, artifact.Image)
}

func (s *Store) put(ctx context.Context, path string, kind artifact.Kind) error {
	hash, err := artifact.HashFile(s.fs, path)
	if err != nil {
		return errors.WithContext(err, "hash")
	}

	f, err := s.fs.Open(path)
	if err != nil {
		return errors.WithContext(err, "open")
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return errors.WithContext(err, "stat")
	}

	name := filepath.Base(path)
	opts := minio.PutObjectOptions{
		ContentType: "application/octet-stream",
		UserMetadata: map[string]string{
			mtimeKey: artifact.Timestamp(fi.ModTime()).Format(time.RFC3339),
			hashKey:  hash,
			kindKey:  kind.String(),
		},
	}
	if _, err := s.client.PutObject(ctx, s.bucket, name, f, fi.Size(), opts); err != nil {
		return errors.WithContext(err, "put object")
	}
	return nil
}

func (s *Store) stat(ctx context.Context, name string) (minio.ObjectInfo, bool, error) {
	info, err := s.client.StatObject(ctx, s.bucket, name, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return minio.ObjectInfo{}, false, nil
		}
		return minio.ObjectInfo{}, false, errors.WithContext(err, "stat object")
	}
	return info, true, nil
}

// metadata looks up a user metadata key. S3 servers differ in how they
// canonicalize the key, so the lookup ignores case.
func metadata(info minio.ObjectInfo, key string) (string, bool) {
	for k, v := range info.UserMetadata {
		k = strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-")
		if k == strings.ToLower(key) {
			return v, true
		}
	}
	return "", false
}
