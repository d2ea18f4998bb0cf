package progress

import (
	"io"
	"os"

	"github.com/pterm/pterm"

	"github.com/sidkik/mcstage/pkg/errors"
)

// Terminal displays batches as a progress bar with a spinner and timer for
// the in-flight task.
type Terminal struct {
	out io.Writer
}

// NewTerminal creates a Terminal that writes to `out`. A nil writer means
// stdout.
func NewTerminal(out io.Writer) Terminal {
	if out == nil {
		out = os.Stdout
	}
	return Terminal{out: out}
}

// Start implements Reporter.
func (t Terminal) Start(title string, total int) (Batch, error) {
	multi := pterm.DefaultMultiPrinter.WithWriter(t.out)
	if _, err := multi.Start(); err != nil {
		return nil, errors.WithContext(err, "start display")
	}

	bar, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle(title).
		WithWriter(multi.NewWriter()).
		Start()
	if err != nil {
		multi.Stop()
		return nil, errors.WithContext(err, "start progress bar")
	}

	return &terminalBatch{multi: multi, bar: bar}, nil
}

type terminalBatch struct {
	multi *pterm.MultiPrinter
	bar   *pterm.ProgressbarPrinter
}

func (b *terminalBatch) Track(label string) (Task, error) {
	spinner, err := pterm.DefaultSpinner.
		WithShowTimer(true).
		WithRemoveWhenDone(true).
		WithWriter(b.multi.NewWriter()).
		Start(label)
	if err != nil {
		return nil, errors.WithContext(err, "start spinner")
	}
	return terminalTask{label: label, spinner: spinner, bar: b.bar}, nil
}

func (b *terminalBatch) Stop() error {
	if _, err := b.bar.Stop(); err != nil {
		return err
	}
	_, err := b.multi.Stop()
	return err
}

type terminalTask struct {
	label   string
	spinner *pterm.SpinnerPrinter
	bar     *pterm.ProgressbarPrinter
}

func (t terminalTask) Done() {
	t.spinner.Stop()
	t.bar.Increment()
}

func (t terminalTask) Fail() {
	t.spinner.Fail(t.label)
}
