package workflow

import (
	"context"
	"time"

	"github.com/websets-labs/orchestrator/taskstore"
	"github.com/websets-labs/orchestrator/telemetry"
	"github.com/websets-labs/orchestrator/upstream"
	"github.com/websets-labs/orchestrator/workflowerr"
)

// Runtime schedules registered workflow functions against a task store and
// an upstream client. Task creation schedules the
// workflow function on a worker goroutine; the runtime never joins the
// worker on task creation, so the creating caller is never blocked.
type Runtime struct {
	registry  *Registry
	store     *taskstore.Store
	client    upstream.Client
	telemetry telemetry.Provider
}

// NewRuntime constructs a Runtime. telemetry may be the zero value of
// telemetry.Provider, in which case a no-op provider is used.
func NewRuntime(registry *Registry, store *taskstore.Store, client upstream.Client, tp telemetry.Provider) *Runtime {
	if tp.Logger == nil {
		tp = telemetry.Noop()
	}
	return &Runtime{registry: registry, store: store, client: client, telemetry: tp}
}

// Spawn looks up the workflow registered for task.Type and runs it in a new
// goroutine, returning once the goroutine has been launched (not once it
// completes). If no workflow is registered for the type, the task is
// immediately failed with a validation error.
func (rt *Runtime) Spawn(task taskstore.Task) {
	fn, ok := rt.registry.Lookup(Name(task.Type))
	if !ok {
		_ = rt.store.UpdateStatus(task.ID, taskstore.StatusWorking)
		_ = rt.store.SetError(task.ID, workflowerr.Errorf(workflowerr.KindValidation, "validate", "unknown workflow type %q", task.Type))
		return
	}
	go rt.run(task, fn)
}

func (rt *Runtime) run(task taskstore.Task, fn Func) {
	ctx := context.Background()

	if err := rt.store.UpdateStatus(task.ID, taskstore.StatusWorking); err != nil {
		// Task was cancelled between creation and scheduling.
		return
	}

	rc := &RunContext{
		TaskID:    task.ID,
		Type:      Name(task.Type),
		Args:      task.Args,
		Client:    rt.client,
		Store:     rt.store,
		Telemetry: rt.telemetry,
		Steps:     NewStepTracker(),
		Timeout:   OptionalTimeout(task.Args),
	}

	start := time.Now()
	rt.telemetry.Logger.Info(ctx, "workflow started", "taskId", task.ID, "type", task.Type)

	ctx, finish := rt.telemetry.Tracer.Trace(ctx, "workflow.run", "taskId", task.ID, "type", task.Type)
	result, err := fn(ctx, rc)
	finish(err)

	rt.telemetry.Metrics.RecordTimer("workflow.duration", time.Since(start), "type", task.Type)

	if rt.store.Cancelled(task.ID) {
		// Cancellation already transitioned the task to its terminal
		// state; whatever the workflow returned is moot.
		rt.telemetry.Logger.Info(ctx, "workflow observed cancellation", "taskId", task.ID, "type", task.Type)
		return
	}

	if err != nil {
		we := workflowerr.FromError(err)
		rt.telemetry.Logger.Error(ctx, "workflow failed", "taskId", task.ID, "type", task.Type, "step", we.Step, "kind", string(we.Kind), "error", we.Message)
		rt.telemetry.Metrics.IncCounter("workflow.failed", 1, "type", task.Type)
		_ = rt.store.SetError(task.ID, we)
		return
	}

	rt.telemetry.Metrics.IncCounter("workflow.completed", 1, "type", task.Type)
	_ = rt.store.SetResult(task.ID, result)
}
