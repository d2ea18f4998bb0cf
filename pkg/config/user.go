package config

import (
	"path/filepath"

	"github.com/ghodss/yaml"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"

	"github.com/sidkik/mcstage/pkg/errors"
)

const (
	// UserConfigPath is the default path to the mcstage user config.
	UserConfigPath = "~/.mcstage.yaml"

	// InitialUserConfigVersion is the first version of the mcstage user
	// config. Config files that do not specify a version will default to
	// this version.
	InitialUserConfigVersion = "v1alpha1"

	// SupportedUserConfigVersion is the supported version of the mcstage
	// user config of the current mcstage binary.
	SupportedUserConfigVersion = "v1alpha1"

	// LocalStore keeps artifacts in a directory.
	LocalStore = "local"

	// S3Store keeps artifacts in an S3-compatible bucket.
	S3Store = "s3"
)

// User contains the configuration for where artifacts are staged.
type User struct {
	Version string `json:"version,omitempty"`
	Store   Store  `json:"store"`

	// LargeFileThreshold is the size in bytes above which uploads are
	// displayed with progress. Zero means the default.
	LargeFileThreshold int64 `json:"largeFileThreshold,omitempty"`

	// OnUnknown is what to do with artifacts whose stored copy has diverged
	// from the local file: skip, upload, or fail.
	OnUnknown string `json:"onUnknown,omitempty"`
}

// Store describes the artifact store.
type Store struct {
	Type string `json:"type"`

	// Path is the store directory for local stores.
	Path string `json:"path,omitempty"`

	// The remaining fields configure S3 stores.
	Endpoint  string `json:"endpoint,omitempty"`
	Bucket    string `json:"bucket,omitempty"`
	Region    string `json:"region,omitempty"`
	AccessKey string `json:"accessKey,omitempty"`
	SecretKey string `json:"secretKey,omitempty"`
	UseSSL    bool   `json:"useSSL,omitempty"`
}

func (u User) getVersion() string {
	return u.Version
}

// Validate checks that the fields required by the store type are set.
func (s Store) Validate() error {
	switch s.Type {
	case LocalStore:
		if s.Path == "" {
			return errors.MissingFieldError{Field: "store.path"}
		}
	case S3Store:
		if s.Endpoint == "" {
			return errors.MissingFieldError{Field: "store.endpoint"}
		}
		if s.Bucket == "" {
			return errors.MissingFieldError{Field: "store.bucket"}
		}
	case "":
		return errors.MissingFieldError{Field: "store.type"}
	default:
		return errors.NewFriendlyError("Unsupported store type %q. "+
			"Expected %q or %q.", s.Type, LocalStore, S3Store)
	}
	return nil
}

// homedirExpand will be overridden in mock tests
var homedirExpand = homedir.Expand

// ParseUser attempts to parse the User stored in the default path.
func ParseUser() (User, error) {
	path, err := GetUserConfigPath()
	if err != nil {
		return User{}, errors.WithContext(err, "expand config path")
	}

	config := User{Version: InitialUserConfigVersion}
	if err := parseConfig(path, &config, SupportedUserConfigVersion); err != nil {
		if _, ok := err.(errors.FileNotFound); ok {
			return User{}, errors.NewFriendlyError("The mcstage user config "+
				"file doesn't exist at %q. Please run `mcstage config` "+
				"to create the user config file.", path)
		}
		return User{}, errors.WithContext(err, "parse")
	}

	if err := config.Store.Validate(); err != nil {
		return User{}, errors.WithContext(err, path)
	}

	if config.Store.Path != "" {
		config.Store.Path, err = homedir.Expand(config.Store.Path)
		if err != nil {
			return User{}, errors.WithContext(err, "expand store path")
		}

		// Evaluate relative paths relative to the config path.
		if !filepath.IsAbs(config.Store.Path) {
			config.Store.Path = filepath.Join(filepath.Dir(path), config.Store.Path)
		}
	}
	return config, nil
}

// WriteUser writes the given user config to disk.
func WriteUser(cfg User) error {
	cfg.Version = SupportedUserConfigVersion
	path, err := GetUserConfigPath()
	if err != nil {
		return errors.WithContext(err, "expand config path")
	}

	yamlBytes, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	// The config may contain S3 credentials.
	if err := afero.WriteFile(fs, path, yamlBytes, 0600); err != nil {
		return errors.WithContext(err, "write")
	}
	return nil
}

// GetUserConfigPath returns the path to the user's mcstage configuration.
// This path is expanded, so it can be directly passed to file operations.
func GetUserConfigPath() (string, error) {
	return homedirExpand(UserConfigPath)
}
