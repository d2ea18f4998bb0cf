package sync

import (
	"context"

	"github.com/sidkik/mcstage/pkg/artifact"
	"github.com/sidkik/mcstage/pkg/errors"
	"github.com/sidkik/mcstage/pkg/store"
)

// State is the relationship between a local artifact and its stored copy at
// a point in time.
type State int

const (
	// Current means the stored copy matches the local file.
	Current State = iota

	// Outdated means the local file is newer than the stored copy, and their
	// contents differ.
	Outdated

	// Missing means the store doesn't have the artifact.
	Missing

	// Unknown means the copies differ, but the stored copy isn't older than
	// the local file.
	Unknown
)

func (s State) String() string {
	switch s {
	case Current:
		return "Current"
	case Outdated:
		return "Outdated"
	case Missing:
		return "Missing"
	case Unknown:
		return "Unknown"
	default:
		return "Invalid"
	}
}

// RequiresUpload returns whether an artifact in the state should be
// uploaded. Unknown artifacts are left alone unless the caller's policy says
// otherwise.
func (s State) RequiresUpload() bool {
	return s == Missing || s == Outdated
}

// Mocked for unit testing.
var (
	hashArtifact = func(a artifact.Artifact) (string, error) {
		return a.Hash()
	}
	statArtifact = func(a artifact.Artifact) (artifact.Info, error) {
		return a.Stat()
	}
)

// Classify compares the local artifact against the store. It issues at most
// one upload date query and one content hash query, and only hashes the
// local file if the timestamps differ.
func Classify(ctx context.Context, a artifact.Artifact, s store.Store) (State, error) {
	name := a.Name()
	uploadDate, ok, err := s.UploadDate(ctx, name)
	if err != nil {
		return Unknown, errors.WithContext(err, "get upload date")
	}
	if !ok {
		return Missing, nil
	}

	info, err := statArtifact(a)
	if err != nil {
		return Unknown, err
	}

	uploadDate = artifact.Timestamp(uploadDate)
	if uploadDate.Equal(info.ModTime) {
		return Current, nil
	}

	localHash, err := hashArtifact(a)
	if err != nil {
		return Unknown, errors.WithContext(err, "hash")
	}

	storedHash, ok, err := s.ContentHash(ctx, name)
	if err != nil {
		return Unknown, errors.WithContext(err, "get content hash")
	}
	if ok && storedHash == localHash {
		return Current, nil
	}

	if uploadDate.Before(info.ModTime) {
		return Outdated, nil
	}
	return Unknown, nil
}
