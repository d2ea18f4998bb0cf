package util

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/mcstage/pkg/config"
	"github.com/sidkik/mcstage/pkg/errors"
	"github.com/sidkik/mcstage/pkg/progress"
	"github.com/sidkik/mcstage/pkg/store"
	"github.com/sidkik/mcstage/pkg/store/local"
	"github.com/sidkik/mcstage/pkg/store/s3"
	"github.com/sidkik/mcstage/pkg/sync"
)

// Mocked for unit testing.
var (
	stderr io.Writer = os.Stderr
	exit             = os.Exit
	fs               = afero.NewOsFs()
)

// HandleFatalError prints the error and exits. Friendly errors are printed
// without their context.
func HandleFatalError(err error) {
	log.WithError(err).Debug("Fatal error")
	fmt.Fprintln(stderr, errors.GetPrintableMessage(err))
	exit(1)
}

// HandlePanic prints a message and exits if the program is panicking.
func HandlePanic() {
	if r := recover(); r != nil {
		fmt.Fprintf(stderr, "mcstage crashed unexpectedly: %v\n", r)
		log.Debug(string(debug.Stack()))
		exit(1)
	}
}

// NewStore connects to the store described by the user config.
func NewStore(ctx context.Context, cfg config.Store) (store.Store, error) {
	switch cfg.Type {
	case config.LocalStore:
		s, err := local.New(fs, cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.S3Store:
		s, err := s3.New(fs, s3.Config{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			Bucket:    cfg.Bucket,
			Region:    cfg.Region,
			UseSSL:    cfg.UseSSL,
		})
		if err != nil {
			return nil, err
		}

		if err := s.EnsureBucket(ctx); err != nil {
			return nil, errors.WithContext(err, "ensure bucket")
		}
		return s, nil
	default:
		return nil, cfg.Validate()
	}
}

// NewSyncer creates a Syncer for the user config that reports progress with
// `reporter`.
func NewSyncer(cfg config.User, s store.Store, reporter progress.Reporter) (*sync.Syncer, error) {
	policy, err := sync.ParseUnknownPolicy(cfg.OnUnknown)
	if err != nil {
		return nil, err
	}

	return sync.New(s, sync.Config{
		LargeFileThreshold: cfg.LargeFileThreshold,
		OnUnknown:          policy,
		Reporter:           reporter,
		Logger:             log.StandardLogger(),
	}), nil
}
