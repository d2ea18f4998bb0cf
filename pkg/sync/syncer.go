package sync

import (
	"context"
	"fmt"

	units "github.com/docker/go-units"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/sidkik/mcstage/pkg/artifact"
	"github.com/sidkik/mcstage/pkg/errors"
	"github.com/sidkik/mcstage/pkg/progress"
	"github.com/sidkik/mcstage/pkg/store"
)

// DefaultLargeFileThreshold is the size in bytes above which uploads are
// displayed with progress.
const DefaultLargeFileThreshold = 250000000

// UnknownPolicy decides what to do with artifacts in the Unknown state.
type UnknownPolicy string

const (
	// SkipUnknown warns and leaves the stored copy alone.
	SkipUnknown UnknownPolicy = "skip"

	// UploadUnknown warns and replaces the stored copy, treating the
	// artifact as Outdated.
	UploadUnknown UnknownPolicy = "upload"

	// FailUnknown warns and aborts the pass before anything is uploaded.
	FailUnknown UnknownPolicy = "fail"
)

// ParseUnknownPolicy converts a configured policy name into an
// UnknownPolicy. The empty string is SkipUnknown.
func ParseUnknownPolicy(name string) (UnknownPolicy, error) {
	switch policy := UnknownPolicy(name); policy {
	case "":
		return SkipUnknown, nil
	case SkipUnknown, UploadUnknown, FailUnknown:
		return policy, nil
	default:
		return "", errors.NewFriendlyError(
			"Unknown sync policy %q. Expected one of skip, upload, or fail.", name)
	}
}

// Config configures a Syncer. Zero values are replaced with defaults.
type Config struct {
	LargeFileThreshold int64
	OnUnknown          UnknownPolicy
	Reporter           progress.Reporter
	Logger             *logrus.Logger
	Clock              clockwork.Clock
}

// Syncer uploads artifacts that are missing from, or outdated in, a store.
type Syncer struct {
	store     store.Store
	reporter  progress.Reporter
	log       *logrus.Logger
	clock     clockwork.Clock
	threshold int64
	onUnknown UnknownPolicy
}

// New creates a Syncer that uploads to `s`.
func New(s store.Store, cfg Config) *Syncer {
	syncer := &Syncer{
		store:     s,
		reporter:  cfg.Reporter,
		log:       cfg.Logger,
		clock:     cfg.Clock,
		threshold: cfg.LargeFileThreshold,
		onUnknown: cfg.OnUnknown,
	}

	if syncer.reporter == nil {
		syncer.reporter = progress.Silent{}
	}
	if syncer.log == nil {
		syncer.log = logrus.StandardLogger()
	}
	if syncer.clock == nil {
		syncer.clock = clockwork.NewRealClock()
	}
	if syncer.threshold <= 0 {
		syncer.threshold = DefaultLargeFileThreshold
	}
	if syncer.onUnknown == "" {
		syncer.onUnknown = SkipUnknown
	}
	return syncer
}

// Planned is the upload decision for a single artifact.
type Planned struct {
	Artifact artifact.Artifact
	State    State
	Size     int64
	Upload   bool
}

// Label describes the upload to the user.
func (p Planned) Label() string {
	verb := "Updating"
	if p.State == Missing {
		verb = "Adding"
	}
	return fmt.Sprintf("%s file: `%s`", verb, p.Artifact.Name())
}

// Classify classifies the artifact against the Syncer's store, and warns if
// the result is Unknown.
func (s *Syncer) Classify(ctx context.Context, a artifact.Artifact) (State, error) {
	state, err := Classify(ctx, a, s.store)
	if err != nil {
		return state, errors.WithContext(err, fmt.Sprintf("classify %s", a.Name()))
	}

	if state == Unknown {
		s.log.WithFields(logrus.Fields{
			"artifact": a.Name(),
			"path":     a.Path,
			"policy":   s.onUnknown,
		}).Warn("The stored copy of this artifact is out of sync with the " +
			"local file, but isn't older than it. This can happen if the " +
			"local file was reverted, or if the clocks of the hosts that " +
			"uploaded it are out of sync.")
	}
	return state, nil
}

// Plan classifies each artifact and decides whether it should be uploaded.
// Artifacts with the same path are only planned once.
func (s *Syncer) Plan(ctx context.Context, artifacts []artifact.Artifact) ([]Planned, error) {
	var plan []Planned
	seen := map[string]struct{}{}
	for _, a := range artifacts {
		if _, ok := seen[a.Path]; ok {
			continue
		}
		seen[a.Path] = struct{}{}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		state, err := s.Classify(ctx, a)
		if err != nil {
			return nil, err
		}

		info, err := statArtifact(a)
		if err != nil {
			return nil, err
		}

		plan = append(plan, Planned{
			Artifact: a,
			State:    state,
			Size:     info.Size,
			Upload: state.RequiresUpload() ||
				(state == Unknown && s.onUnknown == UploadUnknown),
		})
	}
	return plan, nil
}

// Sync uploads each artifact that's missing from the store or outdated.
// Small resources are uploaded first without progress, then large resources
// and images are uploaded with progress.
// Classification is redone on every call, so calling Sync again after a
// partial failure only uploads what's still stale.
func (s *Syncer) Sync(ctx context.Context, artifacts []artifact.Artifact) error {
	plan, err := s.Plan(ctx, artifacts)
	if err != nil {
		return err
	}

	var small, large, images []Planned
	for _, p := range plan {
		if p.State == Unknown && s.onUnknown == FailUnknown {
			return errors.WithContext(errors.ErrUnknownSyncState, p.Artifact.Name())
		}

		switch {
		case !p.Upload:
			s.log.WithField("artifact", p.Artifact.Name()).
				WithField("state", p.State).
				Debug("Skipping artifact")
		case p.Artifact.Kind == artifact.Image:
			images = append(images, p)
		case p.Size > s.threshold:
			large = append(large, p)
		default:
			small = append(small, p)
		}
	}

	for _, p := range small {
		if err := s.upload(ctx, p); err != nil {
			return err
		}
	}

	// Images are always tracked, whatever their size.
	large = append(large, images...)
	if len(large) == 0 {
		return nil
	}
	return s.uploadTracked(ctx, large)
}

// uploadTracked uploads the files one at a time while displaying progress.
// If an upload fails, the display is torn down before the error is returned.
func (s *Syncer) uploadTracked(ctx context.Context, plan []Planned) error {
	batch, err := s.reporter.Start("Uploading large files", len(plan))
	if err != nil {
		return errors.WithContext(err, "start progress")
	}

	for _, p := range plan {
		task, err := batch.Track(p.Label())
		if err != nil {
			batch.Stop()
			return errors.WithContext(err, "track progress")
		}

		if err := s.upload(ctx, p); err != nil {
			task.Fail()
			batch.Stop()
			return err
		}
		task.Done()
	}

	if err := batch.Stop(); err != nil {
		s.log.WithError(err).Debug("Failed to stop progress display")
	}
	return nil
}

func (s *Syncer) upload(ctx context.Context, p Planned) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := p.Artifact.Name()
	start := s.clock.Now()
	if err := p.Artifact.Upload(ctx, s.store); err != nil {
		return errors.WithContext(err, fmt.Sprintf("upload %s", name))
	}

	s.log.WithFields(logrus.Fields{
		"artifact": name,
		"kind":     p.Artifact.Kind,
		"size":     units.HumanSize(float64(p.Size)),
		"duration": s.clock.Since(start),
	}).Debug(p.Label())
	return nil
}
