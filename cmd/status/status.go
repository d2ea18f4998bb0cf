package status

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/sidkik/mcstage/cmd/util"
	"github.com/sidkik/mcstage/pkg/component"
	"github.com/sidkik/mcstage/pkg/config"
	"github.com/sidkik/mcstage/pkg/errors"
	"github.com/sidkik/mcstage/pkg/progress"
)

// Mocked for unit testing.
var (
	stdout          io.Writer = os.Stdout
	fs                        = afero.NewOsFs()
	parseUserConfig           = config.ParseUser
	newStore                  = util.NewStore
)

// New creates a new `status` command.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "status [path_to_model_component] ...",
		Short: "Show whether the files of model components are current in the store",
		Long: `Print the sync state of each image and VM resource declared by the
model components, without uploading anything.

If no component paths are provided, "status" uses the component in the current directory.`,
		Run: func(_ *cobra.Command, args []string) {
			if len(args) == 0 {
				args = []string{"."}
			}

			if err := run(context.Background(), args); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
}

func run(ctx context.Context, dirs []string) error {
	userConfig, err := parseUserConfig()
	if err != nil {
		return errors.WithContext(err, "parse user config")
	}

	s, err := newStore(ctx, userConfig.Store)
	if err != nil {
		return errors.WithContext(err, "connect to store")
	}

	syncer, err := util.NewSyncer(userConfig, s, progress.Silent{})
	if err != nil {
		return err
	}

	for _, dir := range dirs {
		c, err := component.Load(fs, dir)
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("load %s", dir))
		}

		artifacts, err := c.Artifacts()
		if err != nil {
			return err
		}

		plan, err := syncer.Plan(ctx, artifacts)
		if err != nil {
			return errors.WithContext(err, fmt.Sprintf("classify %s", c.Name))
		}
		util.PrintPlan(stdout, c.Name, plan)
	}
	return nil
}
