package workflow

import (
	"context"
	"time"

	"github.com/websets-labs/orchestrator/upstream"
	"github.com/websets-labs/orchestrator/workflowerr"
)

// DefaultPollCadence is how often poll-to-idle refetches the webset.
const DefaultPollCadence = 2 * time.Second

// DefaultStepTimeout is the per-step deadline applied when a task does not
// override it via args.
const DefaultStepTimeout = 300 * time.Second

// PollResult is the outcome of PollToIdle.
type PollResult struct {
	// Webset is the last-observed state.
	Webset upstream.Webset
	// TimedOut is true if the deadline elapsed before the webset reached
	// idle. Never accompanies an error.
	TimedOut bool
	// Cancelled is true if the task was cancelled while polling. Upstream
	// cancellation of the webset has already been requested best-effort.
	Cancelled bool
}

// PollOption configures PollToIdle.
type PollOption func(*pollConfig)

type pollConfig struct {
	cadence time.Duration
}

// WithCadence overrides DefaultPollCadence.
func WithCadence(d time.Duration) PollOption {
	return func(c *pollConfig) { c.cadence = d }
}

// PollToIdle drives a webset's lifecycle until status = idle:
// refetches on a fixed cadence, mirrors the latest search's
// {found,analyzed} into task progress, fails on a transition to paused,
// returns TimedOut (without raising) if the deadline elapses, and returns
// early with upstream cancellation requested if the task is cancelled.
func PollToIdle(ctx context.Context, rc *RunContext, websetID string, opts ...PollOption) (PollResult, error) {
	cfg := pollConfig{cadence: DefaultPollCadence}
	for _, opt := range opts {
		opt(&cfg)
	}

	timeout := rc.Timeout
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	deadline := time.Now().Add(timeout)
	cancelCh := rc.CancelChan()

	w, err := rc.Client.GetWebset(ctx, websetID)
	if err != nil {
		return PollResult{}, workflowerr.Wrap(classifyUpstreamErr(err), "poll.idle", err)
	}
	mirrorProgress(rc, w)
	if res, done, wfErr := evalPollState(w); done {
		return res, wfErr
	}

	ticker := time.NewTicker(cfg.cadence)
	defer ticker.Stop()

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return PollResult{Webset: w, TimedOut: true}, nil
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return PollResult{}, workflowerr.Wrap(workflowerr.KindInternal, "poll.idle", ctx.Err())
		case <-cancelCh:
			timer.Stop()
			rc.CancelWebsetBestEffort(ctx, websetID)
			return PollResult{Webset: w, Cancelled: true}, nil
		case <-timer.C:
			return PollResult{Webset: w, TimedOut: true}, nil
		case <-ticker.C:
			timer.Stop()
			w, err = rc.Client.GetWebset(ctx, websetID)
			if err != nil {
				return PollResult{}, workflowerr.Wrap(classifyUpstreamErr(err), "poll.idle", err)
			}
			mirrorProgress(rc, w)
			if res, done, wfErr := evalPollState(w); done {
				return res, wfErr
			}
		}
	}
}

func evalPollState(w upstream.Webset) (PollResult, bool, error) {
	switch w.Status {
	case upstream.WebsetStatusIdle:
		return PollResult{Webset: w}, true, nil
	case upstream.WebsetStatusPaused:
		return PollResult{}, true, workflowerr.New(workflowerr.KindUpstreamTerminal, "poll.idle", "webset transitioned to paused")
	default:
		return PollResult{}, false, nil
	}
}

func mirrorProgress(rc *RunContext, w upstream.Webset) {
	search, ok := w.LatestSearch()
	if !ok {
		return
	}
	rc.Progress("poll.idle", search.Progress.Analyzed, search.Progress.Found, string(w.Status))
}
