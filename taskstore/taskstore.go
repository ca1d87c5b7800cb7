// Package taskstore is the in-process registry of tasks:
// status, progress, partial result, final result, error, timestamps, and
// TTL. It is the single source of truth for status/progress/result; the
// task store is the only shared mutable state workflows touch.
//
// The store is an RWMutex-guarded map with defensive copies on read and
// write, tracking the full task lifecycle: status transitions, progress,
// results, errors, a global concurrency cap, and a background TTL sweeper.
package taskstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/websets-labs/orchestrator/telemetry"
	"github.com/websets-labs/orchestrator/workflowerr"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusWorking   Status = "working"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is one of the terminal states.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// legalNext encodes the one-way transition graph: pending -> working ->
// {completed|failed|cancelled}, plus pending -> cancelled for a task
// cancelled before it is scheduled. Any other transition is rejected.
var legalNext = map[Status]map[Status]bool{
	StatusPending: {StatusWorking: true, StatusCancelled: true},
	StatusWorking: {StatusCompleted: true, StatusFailed: true, StatusCancelled: true},
}

// Progress is a hint, not a synchronization point.
type Progress struct {
	Step          string `json:"step,omitempty"`
	CompletedStep int    `json:"completedSteps"`
	TotalSteps    int    `json:"totalSteps"`
	Message       string `json:"message,omitempty"`
}

// Task represents one in-flight or completed workflow execution.
type Task struct {
	ID            string
	Type          string
	Status        Status
	Progress      Progress
	Args          map[string]any
	Result        any
	PartialResult any
	Error         *workflowerr.Error
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ExpiresAt     time.Time
}

// Summary is the list-form of a task.
type Summary struct {
	ID        string
	Type      string
	Status    Status
	Progress  Progress
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (t Task) summary() Summary {
	return Summary{ID: t.ID, Type: t.Type, Status: t.Status, Progress: t.Progress, CreatedAt: t.CreatedAt, UpdatedAt: t.UpdatedAt}
}

// ErrConcurrencyLimit is returned by Create when the global soft cap on
// concurrent non-terminal tasks is reached.
var ErrConcurrencyLimit = fmt.Errorf("task concurrency limit reached")

// ErrNotFound is returned by operations addressing a task id that does not
// exist in the store.
var ErrNotFound = fmt.Errorf("task not found")

// ErrTerminal is returned when an operation tries to mutate a task already
// in a terminal state.
var ErrTerminal = fmt.Errorf("task is in a terminal state")

const (
	// DefaultTTL is how long a task record survives after reaching a
	// terminal state.
	DefaultTTL = time.Hour
	// DefaultSweepInterval is the cadence of the background cleanup
	// sweep.
	DefaultSweepInterval = 5 * time.Minute
	// DefaultConcurrencyLimit caps concurrent non-terminal tasks.
	DefaultConcurrencyLimit = 20
)

type entry struct {
	task      Task
	cancelCh  chan struct{}
	cancelled bool
}

// Store is an in-memory, thread-safe task registry.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*entry

	ttl              time.Duration
	concurrencyLimit int
	telemetry        telemetry.Provider

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepDone     chan struct{}
}

// Option configures a Store.
type Option func(*Store)

// WithTTL overrides DefaultTTL.
func WithTTL(d time.Duration) Option { return func(s *Store) { s.ttl = d } }

// WithSweepInterval overrides DefaultSweepInterval.
func WithSweepInterval(d time.Duration) Option { return func(s *Store) { s.sweepInterval = d } }

// WithConcurrencyLimit overrides DefaultConcurrencyLimit.
func WithConcurrencyLimit(n int) Option { return func(s *Store) { s.concurrencyLimit = n } }

// WithTelemetry installs a telemetry.Provider; defaults to telemetry.Noop().
func WithTelemetry(p telemetry.Provider) Option { return func(s *Store) { s.telemetry = p } }

// New constructs a Store and starts its background sweeper goroutine. Call
// Close to stop the sweeper and release resources cleanly.
func New(opts ...Option) *Store {
	s := &Store{
		tasks:            make(map[string]*entry),
		ttl:              DefaultTTL,
		sweepInterval:    DefaultSweepInterval,
		concurrencyLimit: DefaultConcurrencyLimit,
		telemetry:        telemetry.Noop(),
		stopSweep:        make(chan struct{}),
		sweepDone:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.sweepLoop()
	return s
}

func (s *Store) sweepLoop() {
	defer close(s.sweepDone)
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			n, _ := s.Cleanup(context.Background())
			if n > 0 {
				s.telemetry.Logger.Debug(context.Background(), "task store swept expired tasks", "count", n)
			}
		}
	}
}

// Close stops the background sweeper and waits for it to exit.
func (s *Store) Close() error {
	close(s.stopSweep)
	<-s.sweepDone
	return nil
}

func (s *Store) nonTerminalCountLocked() int {
	n := 0
	for _, e := range s.tasks {
		if !e.task.Status.Terminal() {
			n++
		}
	}
	return n
}

// Create registers a new task in state pending. It fails with
// ErrConcurrencyLimit if the global soft cap on concurrent non-terminal
// tasks is already reached; this is the only path by which a task is born,
// so the cap cannot be bypassed via any other call.
func (s *Store) Create(workflowType string, args map[string]any) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nonTerminalCountLocked() >= s.concurrencyLimit {
		return Task{}, ErrConcurrencyLimit
	}

	now := time.Now()
	t := Task{
		ID:        "task_" + uuid.NewString(),
		Type:      workflowType,
		Status:    StatusPending,
		Args:      args,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.tasks[t.ID] = &entry{task: t, cancelCh: make(chan struct{})}
	return t, nil
}

// Get returns a copy of the task record, or ErrNotFound.
func (s *Store) Get(id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return e.task, nil
}

// ListFilter narrows the result of List.
type ListFilter struct {
	Status Status
	Type   string
}

// List returns summaries of tasks matching filter. A zero-value filter
// returns all tasks.
func (s *Store) List(filter ListFilter) []Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Summary
	for _, e := range s.tasks {
		if filter.Status != "" && e.task.Status != filter.Status {
			continue
		}
		if filter.Type != "" && e.task.Type != filter.Type {
			continue
		}
		out = append(out, e.task.summary())
	}
	return out
}

func (s *Store) transitionLocked(e *entry, next Status) error {
	cur := e.task.Status
	if cur == next {
		return nil
	}
	allowed, ok := legalNext[cur]
	if !ok || !allowed[next] {
		return fmt.Errorf("illegal status transition %s -> %s", cur, next)
	}
	e.task.Status = next
	e.task.UpdatedAt = time.Now()
	if next.Terminal() {
		e.task.ExpiresAt = e.task.UpdatedAt.Add(s.ttl)
	}
	return nil
}

// UpdateStatus transitions a task's status, enforcing the one-way
// pending->working->{completed|failed|cancelled} graph (pending may also go
// straight to cancelled). Mutating a task already in a terminal state is
// rejected.
func (s *Store) UpdateStatus(id string, next Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	return s.transitionLocked(e, next)
}

// UpdateProgress records a progress hint; it is not a synchronization point
// and may be called at any frequency.
func (s *Store) UpdateProgress(id string, p Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	e.task.Progress = p
	e.task.UpdatedAt = time.Now()
	return nil
}

// SetPartialResult records a checkpoint result written before completion
// (e.g. on timeout). It may be called on non-terminal tasks only.
func (s *Store) SetPartialResult(id string, result any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if e.task.Status.Terminal() {
		return ErrTerminal
	}
	e.task.PartialResult = result
	e.task.UpdatedAt = time.Now()
	return nil
}

// SetResult atomically sets the final result and transitions the task to
// completed. Once terminal, the result is immutable.
func (s *Store) SetResult(id string, result any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if e.task.Status.Terminal() {
		return ErrTerminal
	}
	if err := s.transitionLocked(e, StatusCompleted); err != nil {
		return err
	}
	e.task.Result = result
	return nil
}

// SetError atomically records the failure and transitions the task to
// failed. Once terminal, the error is immutable.
func (s *Store) SetError(id string, workflowErr *workflowerr.Error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return ErrNotFound
	}
	if e.task.Status.Terminal() {
		return ErrTerminal
	}
	if err := s.transitionLocked(e, StatusFailed); err != nil {
		return err
	}
	e.task.Error = workflowErr
	return nil
}

// Cancel is advisory: it sets status to cancelled and closes
// the task's cancellation channel so any attached polling wakes up.
// Cancelling an already-terminal task is a no-op returning false.
func (s *Store) Cancel(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.tasks[id]
	if !ok {
		return false, ErrNotFound
	}
	if e.task.Status.Terminal() {
		return false, nil
	}
	if err := s.transitionLocked(e, StatusCancelled); err != nil {
		return false, err
	}
	if !e.cancelled {
		e.cancelled = true
		close(e.cancelCh)
	}
	return true, nil
}

// Cancelled reports whether the task has been cancelled. Workflows call
// this at each safe checkpoint.
func (s *Store) Cancelled(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tasks[id]
	if !ok {
		return false
	}
	return e.task.Status == StatusCancelled
}

// CancelChan returns a channel that is closed when the task is cancelled,
// suitable for use in a select alongside poll-to-idle's ticker. Returns nil
// if id is unknown.
func (s *Store) CancelChan(id string) <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.tasks[id]
	if !ok {
		return nil
	}
	return e.cancelCh
}

// Delete removes the record even if live.
func (s *Store) Delete(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return false, nil
	}
	delete(s.tasks, id)
	return true, nil
}

// Cleanup removes terminal tasks past their expiry and returns the count
// removed.
func (s *Store) Cleanup(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	n := 0
	for id, e := range s.tasks {
		if e.task.Status.Terminal() && !e.task.ExpiresAt.IsZero() && now.After(e.task.ExpiresAt) {
			delete(s.tasks, id)
			n++
		}
	}
	return n, nil
}
