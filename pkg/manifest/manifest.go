// Package manifest parses the MANIFEST file that describes a model component.
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"

	"github.com/sidkik/mcstage/pkg/errors"
)

// FileName is the name of the manifest file within a component directory.
const FileName = "MANIFEST"

// Manifest is the subset of a model component's MANIFEST that describes the
// files it ships with. Other fields are ignored.
type Manifest struct {
	Name string `json:"name"`

	// VMResources and Images are kept raw so that their shape can be
	// validated when they're used, and the error can name the offending
	// field.
	VMResources json.RawMessage `json:"vm_resources,omitempty"`
	Images      json.RawMessage `json:"images,omitempty"`
}

// ImageGroup is one entry in the `images` list. Images are usually grouped
// by architecture.
type ImageGroup struct {
	Architecture string   `json:"architecture,omitempty"`
	Paths        []string `json:"paths"`
}

// Parse reads the manifest in the component directory `dir`.
func Parse(fs afero.Fs, dir string) (Manifest, error) {
	path := filepath.Join(dir, FileName)
	manifestBytes, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, errors.FileNotFound{Path: path}
		}
		return Manifest{}, errors.WithContext(err, "read file")
	}

	var m Manifest
	if err := yaml.Unmarshal(manifestBytes, &m); err != nil {
		return Manifest{}, errors.NewFriendlyError(
			"Malformed MANIFEST in model component at path %s:\n%s", dir, err)
	}

	if m.Name == "" {
		return Manifest{}, errors.WithContext(errors.MissingFieldError{Field: "name"}, path)
	}
	return m, nil
}

// ResourceSpecs returns the path specifications in `vm_resources`. A manifest
// without the field declares no resources.
func (m Manifest) ResourceSpecs() ([]string, error) {
	if isEmpty(m.VMResources) {
		return nil, nil
	}

	var specs []string
	if err := json.Unmarshal(m.VMResources, &specs); err != nil {
		return nil, errors.MalformedManifestError{
			Component: m.Name,
			Field:     "vm_resources",
			Value:     string(m.VMResources),
		}
	}
	return specs, nil
}

// ImagePaths returns the image paths from every group in `images`.
func (m Manifest) ImagePaths() ([]string, error) {
	if isEmpty(m.Images) {
		return nil, nil
	}

	var groups []ImageGroup
	if err := json.Unmarshal(m.Images, &groups); err != nil {
		return nil, errors.MalformedManifestError{
			Component: m.Name,
			Field:     "images",
			Value:     string(m.Images),
		}
	}

	var paths []string
	for _, group := range groups {
		paths = append(paths, group.Paths...)
	}
	return paths, nil
}

func isEmpty(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
