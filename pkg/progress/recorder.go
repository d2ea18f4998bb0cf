package progress

import (
	"fmt"
	"sync"
)

// Recorder is a Reporter that records the events it receives rather than
// displaying them. It's used to test callers.
type Recorder struct {
	mu     sync.Mutex
	events []string
}

// Events returns the recorded events in order, e.g. "start Uploading 2",
// "track Adding file: `a`", "done Adding file: `a`", "stop".
func (r *Recorder) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *Recorder) record(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

// Start implements Reporter.
func (r *Recorder) Start(title string, total int) (Batch, error) {
	r.record("start %s %d", title, total)
	return recorderBatch{r}, nil
}

type recorderBatch struct {
	r *Recorder
}

func (b recorderBatch) Track(label string) (Task, error) {
	b.r.record("track %s", label)
	return recorderTask{r: b.r, label: label}, nil
}

func (b recorderBatch) Stop() error {
	b.r.record("stop")
	return nil
}

type recorderTask struct {
	r     *Recorder
	label string
}

func (t recorderTask) Done() { t.r.record("done %s", t.label) }
func (t recorderTask) Fail() { t.r.record("fail %s", t.label) }
