package artifact

import (
	"encoding/base64"
	"io"

	"github.com/spf13/afero"
	"github.com/zeebo/blake3"

	"github.com/sidkik/mcstage/pkg/errors"
)

// HashFile returns the blake3 hash of the file at the given path.
func HashFile(fs afero.Fs, path string) (string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", errors.WithContext(err, "open")
	}
	defer f.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", errors.WithContext(err, "read")
	}

	return base64.StdEncoding.EncodeToString(hasher.Sum(nil)), nil
}
