package errors

import (
	"fmt"
	"strings"
)

// ErrUnknownSyncState is returned when an artifact's stored copy can't be
// ordered relative to the local copy and the configured policy is to fail.
var ErrUnknownSyncState = New("stored artifact is out of sync with the local copy")

// MissingFieldError represents a missing required field.
type MissingFieldError struct {
	Field string
}

func (err MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field: %s", err.Field)
}

// FileNotFound represents when we were unable to access a file
// because the path didn't exist.
type FileNotFound struct {
	Path string
}

func (err FileNotFound) Error() string {
	return fmt.Sprintf("%q does not exist", err.Path)
}

// MissingImageError is returned when a VM image declared by a component's
// manifest doesn't exist on disk.
type MissingImageError struct {
	Component string
	Path      string
}

func (err MissingImageError) Error() string {
	return fmt.Sprintf("the image %s is not present in the model component %q",
		err.Path, err.Component)
}

// MissingResourceError is returned when a VM resource declared by a
// component's manifest doesn't exist on disk.
type MissingResourceError struct {
	Component string
	Path      string
}

func (err MissingResourceError) Error() string {
	return fmt.Sprintf("the VM resource %s is not present in the model component %q",
		err.Path, err.Component)
}

// MalformedManifestError is returned when a manifest field has the wrong
// shape, e.g. `vm_resources` is a string rather than a list.
type MalformedManifestError struct {
	Component string
	Field     string
	Value     string
}

func (err MalformedManifestError) Error() string {
	return fmt.Sprintf("malformed MANIFEST for model component %q: "+
		"the `%s` attribute must be a list, but it is currently `%s`",
		err.Component, err.Field, err.Value)
}

// DuplicateArtifactError is returned when two different files declared by the
// same component would be stored under the same name.
type DuplicateArtifactError struct {
	Component string
	Name      string
	Paths     []string
}

func (err DuplicateArtifactError) Error() string {
	return fmt.Sprintf("model component %q declares multiple files named %q: %s",
		err.Component, err.Name, strings.Join(err.Paths, ", "))
}
