package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	goSync "sync"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/sidkik/mcstage/cmd/util"
	"github.com/sidkik/mcstage/pkg/component"
	"github.com/sidkik/mcstage/pkg/config"
	"github.com/sidkik/mcstage/pkg/errors"
	"github.com/sidkik/mcstage/pkg/fswatch"
	"github.com/sidkik/mcstage/pkg/progress"
	"github.com/sidkik/mcstage/pkg/store"
	"github.com/sidkik/mcstage/pkg/sync"
)

// Mocked for unit testing.
var (
	stdout          io.Writer = os.Stdout
	fs                        = afero.NewOsFs()
	parseUserConfig           = config.ParseUser
	newStore                  = util.NewStore
	watchFiles                = fswatch.Watch
)

type uploadCmd struct {
	dryRun   bool
	watch    bool
	parallel int
}

// New creates a new `upload` command.
func New() *cobra.Command {
	var cmd uploadCmd
	cobraCmd := &cobra.Command{
		Use:   "upload [path_to_model_component] ...",
		Short: "Upload the images and VM resources of model components",
		Long: `Upload the images and VM resources declared by the MANIFEST of each
model component to the artifact store. Files that are already current in the
store are skipped.

If no component paths are provided, "upload" uses the component in the current directory.`,
		Run: func(_ *cobra.Command, args []string) {
			if len(args) == 0 {
				args = []string{"."}
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := cmd.run(ctx, args); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cobraCmd.Flags().BoolVar(&cmd.dryRun, "dry-run", false,
		"Print which files would be uploaded without uploading them.")
	cobraCmd.Flags().BoolVarP(&cmd.watch, "watch", "w", false,
		"Upload again whenever a file in the model components changes.")
	cobraCmd.Flags().IntVarP(&cmd.parallel, "parallel", "p", 1,
		"The number of model components to upload at the same time.")
	return cobraCmd
}

func (cmd uploadCmd) run(ctx context.Context, dirs []string) error {
	if cmd.parallel < 1 {
		return errors.NewFriendlyError("--parallel must be at least 1, got %d", cmd.parallel)
	}

	userConfig, err := parseUserConfig()
	if err != nil {
		return errors.WithContext(err, "parse user config")
	}

	s, err := newStore(ctx, userConfig.Store)
	if err != nil {
		return errors.WithContext(err, "connect to store")
	}

	// The progress display only supports one in-flight upload.
	var reporter progress.Reporter = progress.NewTerminal(stdout)
	if cmd.parallel > 1 {
		reporter = progress.Silent{}
	}

	syncer, err := util.NewSyncer(userConfig, s, reporter)
	if err != nil {
		return err
	}

	if !cmd.watch {
		return cmd.uploadOnce(ctx, s, syncer, dirs)
	}

	fileEvents, err := watchFiles(ctx, dirs)
	if err != nil {
		if fnf, ok := errors.RootCause(err).(errors.FileNotFound); ok {
			return errors.NewFriendlyError("Failed to watch files.\n"+
				"%q doesn't exist.", fnf.Path)
		}
		return errors.WithContext(err, "watch files")
	}

	for {
		if err := cmd.uploadOnce(ctx, s, syncer, dirs); err != nil {
			log.WithError(err).Error("Upload failed")
		} else {
			log.Info("Model components are up to date. Waiting for changes.")
		}

		select {
		case <-fileEvents:
		case <-ctx.Done():
			return nil
		}
	}
}

// uploadOnce loads the components in `dirs` and uploads their files. The
// components are reloaded every time so that changes to their manifests are
// picked up.
func (cmd uploadCmd) uploadOnce(ctx context.Context, s store.Store, syncer *sync.Syncer,
	dirs []string) error {
	var components []*component.Component
	for _, dir := range dirs {
		c, err := component.Load(fs, dir)
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("load %s", dir))
		}
		components = append(components, c)
	}

	if cmd.dryRun {
		return printPlans(ctx, syncer, components)
	}
	return uploadAll(ctx, syncer, components, cmd.parallel)
}

func printPlans(ctx context.Context, syncer *sync.Syncer, components []*component.Component) error {
	for _, c := range components {
		artifacts, err := c.Artifacts()
		if err != nil {
			return err
		}

		plan, err := syncer.Plan(ctx, artifacts)
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("plan %s", c.Name))
		}
		util.PrintPlan(stdout, c.Name, plan)
	}
	return nil
}

type uploadResult struct {
	component string
	err       error
}

// uploadAll uploads the files of up to `parallel` components at a time. A
// failure in one component doesn't stop the others.
func uploadAll(ctx context.Context, syncer component.Syncer, components []*component.Component,
	parallel int) error {
	numWorkers := parallel
	if len(components) < numWorkers {
		numWorkers = len(components)
	}

	var uploadWaitGroup goSync.WaitGroup
	toUploadChan := make(chan *component.Component, numWorkers*2)
	uploadResults := make(chan uploadResult, numWorkers)
	for i := 0; i < numWorkers; i++ {
		uploadWaitGroup.Add(1)
		go func() {
			defer uploadWaitGroup.Done()
			for c := range toUploadChan {
				uploadResults <- uploadResult{
					component: c.Name,
					err:       c.UploadFiles(ctx, syncer),
				}
			}
		}()
	}

	// Feed the upload workers.
	go func() {
		for _, c := range components {
			toUploadChan <- c
		}
		close(toUploadChan)

		uploadWaitGroup.Wait()
		close(uploadResults)
	}()

	var err error
	for res := range uploadResults {
		if res.err != nil {
			err = multierr.Append(err, res.err)
			continue
		}
		log.WithField("component", res.component).Info("Uploaded model component files")
	}
	return err
}
