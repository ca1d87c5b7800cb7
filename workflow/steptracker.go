package workflow

import (
	"sync"
	"time"
)

// StepRecord captures one named step's wall-clock duration.
type StepRecord struct {
	Name       string `json:"name"`
	DurationMs int64  `json:"durationMs"`
}

// StepTracker records (name, durationMs) for each named step a workflow
// executes, for inclusion in the workflow result.
type StepTracker struct {
	mu      sync.Mutex
	records []StepRecord
}

// NewStepTracker constructs an empty tracker.
func NewStepTracker() *StepTracker {
	return &StepTracker{}
}

// Track runs fn, recording its name and duration regardless of outcome, and
// returns fn's error.
func (t *StepTracker) Track(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	t.record(name, time.Since(start))
	return err
}

func (t *StepTracker) record(name string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, StepRecord{Name: name, DurationMs: d.Milliseconds()})
}

// Records returns a snapshot of the steps tracked so far, in order.
func (t *StepTracker) Records() []StepRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]StepRecord(nil), t.records...)
}
