// Package resolve expands the path specifications in a component's manifest
// into concrete file paths.
//
// A specification is interpreted relative to the component directory:
//   - `dir`, `dir/`, and `dir/*` all select the files directly inside dir.
//   - `dir/*.ext` selects the files directly inside dir with the extension.
//   - `dir/**`, `dir/**/`, and `dir/**/*` select every file below dir.
//   - `dir/**/*.ext` selects every file below dir with the extension.
//   - Anything without a `*` is a literal path, even if it contains other
//     glob syntax such as `?` or `[`. It isn't checked for existence here.
//   - Specifications may leave the component directory with `..`.
package resolve

import (
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/afero"

	"github.com/sidkik/mcstage/pkg/errors"
)

// Only `*` is a wildcard. The rest of doublestar's syntax is escaped.
var escapeMeta = strings.NewReplacer(
	`\`, `\\`,
	`?`, `\?`,
	`[`, `\[`,
	`]`, `\]`,
	`{`, `\{`,
	`}`, `\}`,
)

// Resolver resolves path specifications against a filesystem.
type Resolver struct {
	fs afero.Fs
}

// New returns a Resolver that reads from fs.
func New(fs afero.Fs) *Resolver {
	return &Resolver{fs: fs}
}

// ResolveAll resolves each specification and returns the union of the
// results. Paths are relative to root, and appear in the order they were
// first resolved.
func (r *Resolver) ResolveAll(root string, specs []string) ([]string, error) {
	seen := map[string]struct{}{}
	var paths []string
	for _, spec := range specs {
		resolved, err := r.Resolve(root, spec)
		if err != nil {
			return nil, errors.WithContext(err, fmt.Sprintf("resolve %q", spec))
		}

		for _, p := range resolved {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// Resolve expands a single specification into paths relative to root.
// Glob matches are limited to regular files, and are returned sorted.
func (r *Resolver) Resolve(root, spec string) ([]string, error) {
	spec = r.normalize(root, spec)
	if !strings.Contains(spec, "*") {
		return []string{filepath.FromSlash(spec)}, nil
	}

	// Glob from the deepest directory without a wildcard, so that patterns
	// under `..` are matched like any other.
	base, pattern := splitPattern(spec)
	fsys := afero.NewIOFS(afero.NewBasePathFs(r.fs, filepath.Join(root, filepath.FromSlash(base))))
	matches, err := doublestar.Glob(fsys, escapeMeta.Replace(pattern))
	if err != nil {
		return nil, errors.WithContext(err, "glob")
	}

	var files []string
	for _, match := range matches {
		// Stat rather than using the directory entry so that symlinks are
		// followed, and links to directories are excluded.
		fi, err := fs.Stat(fsys, match)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		files = append(files, filepath.FromSlash(path.Join(base, match)))
	}
	sort.Strings(files)
	return files, nil
}

// splitPattern splits a slash-separated pattern into the directory before
// the first wildcard and the rest of the pattern.
func splitPattern(spec string) (base, pattern string) {
	parts := strings.Split(spec, "/")
	for i, part := range parts {
		if strings.Contains(part, "*") {
			return path.Join(parts[:i]...), strings.Join(parts[i:], "/")
		}
	}
	return path.Dir(spec), path.Base(spec)
}

// normalize rewrites a specification into the doublestar pattern that
// implements it.
func (r *Resolver) normalize(root, spec string) string {
	spec = filepath.ToSlash(spec)
	if trimmed := strings.TrimRight(spec, "/"); trimmed != "" {
		spec = trimmed
	}

	if isDir, _ := afero.IsDir(r.fs, filepath.Join(root, filepath.FromSlash(spec))); isDir {
		spec += "/*"
	}

	// `dir/**`, `dir/**/`, and `dir/**/*` all normalize to `dir/**/*`.
	spec = strings.ReplaceAll(spec, "**/*", "**")
	spec = strings.ReplaceAll(spec, "**", "**/*")
	return path.Clean(spec)
}
