// Package progress reports the progress of a batch of long running uploads.
//
// A batch has two levels: an overall counter that advances once per
// completed task, and an indicator for the one task that is in flight.
package progress

// Reporter starts batches.
type Reporter interface {
	Start(title string, total int) (Batch, error)
}

// Batch tracks a fixed number of tasks that run one at a time.
type Batch interface {
	// Track starts the indicator for a task. The previous task must be
	// retired first.
	Track(label string) (Task, error)

	// Stop tears down the display. It's safe to call after a failure.
	Stop() error
}

// Task is the indicator for a single in-flight task.
type Task interface {
	// Done retires the indicator and advances the batch counter.
	Done()

	// Fail retires the indicator without advancing the counter.
	Fail()
}

// Silent is a Reporter that doesn't display anything.
type Silent struct{}

// Start implements Reporter.
func (Silent) Start(string, int) (Batch, error) {
	return silentBatch{}, nil
}

type silentBatch struct{}

func (silentBatch) Track(string) (Task, error) { return silentTask{}, nil }
func (silentBatch) Stop() error                { return nil }

type silentTask struct{}

func (silentTask) Done() {}
func (silentTask) Fail() {}
