// Package component loads model components and stages their files.
package component

import (
	"context"
	"fmt"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/mcstage/pkg/artifact"
	"github.com/sidkik/mcstage/pkg/errors"
	"github.com/sidkik/mcstage/pkg/manifest"
	"github.com/sidkik/mcstage/pkg/resolve"
)

// Syncer uploads the artifacts that are stale in the store.
type Syncer interface {
	Sync(ctx context.Context, artifacts []artifact.Artifact) error
}

// Component is a model component on the local machine.
type Component struct {
	Name     string
	Path     string
	Manifest manifest.Manifest

	fs       afero.Fs
	resolver *resolve.Resolver
}

// Load reads the component in the directory `dir`.
func Load(fs afero.Fs, dir string) (*Component, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.WithContext(err, "get absolute path")
	}

	m, err := manifest.Parse(fs, dir)
	if err != nil {
		if fnf, ok := errors.RootCause(err).(errors.FileNotFound); ok {
			return nil, errors.NewFriendlyError(
				"Unable to locate a model component at %s.\n"+
					"%s does not exist.", dir, fnf.Path)
		}
		return nil, errors.WithContext(err, "parse manifest")
	}

	return &Component{
		Name:     m.Name,
		Path:     dir,
		Manifest: m,
		fs:       fs,
		resolver: resolve.New(fs),
	}, nil
}

// Artifacts returns the images and VM resources declared by the component.
// Every declared file must exist, and no two files may share a name.
func (c *Component) Artifacts() ([]artifact.Artifact, error) {
	// Validate the shape of the manifest before touching the filesystem.
	specs, err := c.Manifest.ResourceSpecs()
	if err != nil {
		return nil, err
	}

	imagePaths, err := c.Manifest.ImagePaths()
	if err != nil {
		return nil, err
	}

	resourcePaths, err := c.resolver.ResolveAll(c.Path, specs)
	if err != nil {
		return nil, errors.WithContext(err, "resolve vm_resources")
	}

	var artifacts []artifact.Artifact
	names := map[string]string{}
	add := func(relPath string, kind artifact.Kind) error {
		path := filepath.Join(c.Path, relPath)
		a, err := artifact.New(c.fs, c.Name, path, kind)
		if err != nil {
			return err
		}

		if other, ok := names[a.Name()]; ok {
			if other == path {
				return nil
			}
			return errors.DuplicateArtifactError{
				Component: c.Name,
				Name:      a.Name(),
				Paths:     []string{other, path},
			}
		}
		names[a.Name()] = path
		artifacts = append(artifacts, a)
		return nil
	}

	for _, path := range imagePaths {
		if err := add(path, artifact.Image); err != nil {
			return nil, err
		}
	}

	for _, path := range resourcePaths {
		if err := add(path, artifact.Resource); err != nil {
			return nil, err
		}
	}
	return artifacts, nil
}

// UploadFiles uploads the component's files that are missing or outdated
// in the store.
func (c *Component) UploadFiles(ctx context.Context, syncer Syncer) error {
	artifacts, err := c.Artifacts()
	if err != nil {
		return err
	}

	log.WithField("component", c.Name).
		WithField("artifacts", len(artifacts)).
		Debug("Syncing model component files")
	if err := syncer.Sync(ctx, artifacts); err != nil {
		return errors.WithContext(err, fmt.Sprintf("upload files for %s", c.Name))
	}
	return nil
}
