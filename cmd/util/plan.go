package util

import (
	"fmt"
	"io"

	"github.com/buger/goterm"
	units "github.com/docker/go-units"

	"github.com/sidkik/mcstage/pkg/sync"
)

// PrintPlan prints a table of the component's artifacts and their sync
// states.
func PrintPlan(out io.Writer, component string, plan []sync.Planned) {
	table := goterm.NewTable(0, 10, 2, ' ', 0)
	fmt.Fprintln(table, "ARTIFACT\tKIND\tSIZE\tSTATE\tACTION\tPATH")
	for _, p := range plan {
		action := "none"
		if p.Upload {
			action = "upload"
		}
		fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Artifact.Name(), p.Artifact.Kind, units.HumanSize(float64(p.Size)),
			stateString(p.State), action, p.Artifact.Path)
	}
	fmt.Fprintf(out, "%s:\n%s\n", component, table)
}

func stateString(state sync.State) string {
	color := goterm.BLACK
	switch state {
	case sync.Current:
		color = goterm.GREEN
	case sync.Missing, sync.Outdated:
		color = goterm.YELLOW
	case sync.Unknown:
		color = goterm.RED
	}
	return goterm.Color(state.String(), color)
}
