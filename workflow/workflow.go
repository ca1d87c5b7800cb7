// Package workflow is the workflow runtime and registry: a
// name-to-function table of workflow implementations, and the shared
// helpers every workflow uses: step tracker, poll-to-idle, item collector,
// cancellation checks, and argument validators.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/websets-labs/orchestrator/taskstore"
	"github.com/websets-labs/orchestrator/telemetry"
	"github.com/websets-labs/orchestrator/upstream"
	"github.com/websets-labs/orchestrator/workflowerr"
)

// Name is the strong type for a workflow type name, e.g. "lifecycle.harvest".
type Name string

// String returns the string representation of the name.
func (n Name) String() string { return string(n) }

// Func is a registered workflow implementation. It takes the run context
// built for its task and returns an opaque result or an error. Returning
// (nil, nil) while the task has been cancelled is how a workflow signals
// cooperative cancellation; the runtime does not treat this as a
// completed result in that case.
type Func func(ctx context.Context, rc *RunContext) (any, error)

// Registry is a name-to-function table of workflow implementations.
// Registration happens at module-load time; the registry is immutable once
// Freeze is called.
type Registry struct {
	mu     sync.RWMutex
	fns    map[Name]Func
	frozen bool
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{fns: make(map[Name]Func)}
}

// Register adds a workflow implementation under name. Panics if the
// registry has been frozen.
func (r *Registry) Register(name Name, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		panic(fmt.Sprintf("workflow: registry is frozen, cannot register %q", name))
	}
	r.fns[name] = fn
}

// Freeze makes the registry immutable. Subsequent Register calls panic.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Lookup returns the function registered under name, if any.
func (r *Registry) Lookup(name Name) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[name]
	return fn, ok
}

// Names returns the currently registered workflow names.
func (r *Registry) Names() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Name, 0, len(r.fns))
	for n := range r.fns {
		out = append(out, n)
	}
	return out
}

// RunContext carries everything a workflow function needs: its task id and
// arguments, the upstream client, the task store, telemetry, a step
// tracker, and the per-step timeout budget. It also tracks websets the
// workflow created so they can be cancelled upstream on cancellation.
type RunContext struct {
	TaskID    string
	Type      Name
	Args      map[string]any
	Client    upstream.Client
	Store     *taskstore.Store
	Telemetry telemetry.Provider
	Steps     *StepTracker
	Timeout   time.Duration

	mu            sync.Mutex
	ownedWebsets  []string
	cancelledOnce map[string]bool
}

// Cancelled reports whether the task has been cancelled. Workflows must
// check this at every safe checkpoint.
func (rc *RunContext) Cancelled() bool {
	return rc.Store.Cancelled(rc.TaskID)
}

// CancelChan returns the channel closed when the task is cancelled.
func (rc *RunContext) CancelChan() <-chan struct{} {
	return rc.Store.CancelChan(rc.TaskID)
}

// OwnWebset records that the workflow created websetID itself, so it can be
// cancelled upstream on cancellation. Do not call for externally bound
// websets (e.g. semantic.cron's existingWebsets); the workflow does not
// own those.
func (rc *RunContext) OwnWebset(websetID string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.ownedWebsets = append(rc.ownedWebsets, websetID)
}

// CancelOwnedWebsets best-effort cancels every webset this workflow created,
// at most once per webset id. Errors are logged, not
// returned: this runs on the cancellation path where there is no one left
// to report to but telemetry.
func (rc *RunContext) CancelOwnedWebsets(ctx context.Context) {
	rc.mu.Lock()
	ids := append([]string(nil), rc.ownedWebsets...)
	rc.ownedWebsets = nil
	rc.mu.Unlock()

	for _, id := range ids {
		rc.CancelWebsetBestEffort(ctx, id)
	}
}

// CancelWebsetBestEffort requests upstream cancellation of websetID at most
// once per id for this run, no matter which checkpoint observed the
// cancellation first. Errors are logged, not returned.
func (rc *RunContext) CancelWebsetBestEffort(ctx context.Context, websetID string) {
	rc.mu.Lock()
	if rc.cancelledOnce == nil {
		rc.cancelledOnce = make(map[string]bool)
	}
	if rc.cancelledOnce[websetID] {
		rc.mu.Unlock()
		return
	}
	rc.cancelledOnce[websetID] = true
	rc.mu.Unlock()

	if err := rc.Client.CancelWebset(ctx, websetID); err != nil {
		rc.Telemetry.Logger.Warn(ctx, "best-effort webset cancel failed", "websetId", websetID, "error", err.Error())
	}
}

// Progress records a progress hint in the task store.
func (rc *RunContext) Progress(step string, completed, total int, message string) {
	_ = rc.Store.UpdateProgress(rc.TaskID, taskstore.Progress{
		Step: step, CompletedStep: completed, TotalSteps: total, Message: message,
	})
}

// classifyUpstreamErr maps an upstream error to a workflowerr.Kind by
// status code: 5xx and 429 are transient, other 4xx terminal.
func classifyUpstreamErr(err error) workflowerr.Kind {
	var se *upstream.StatusError
	if errors.As(err, &se) {
		if se.Transient() {
			return workflowerr.KindUpstreamTransient
		}
		return workflowerr.KindUpstreamTerminal
	}
	return workflowerr.KindInternal
}
