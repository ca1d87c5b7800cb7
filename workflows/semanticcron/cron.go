// Package semanticcron implements the semantic.cron workflow:
// a declarative pipeline composing N independent upstream datasets
// ("lenses") into a single composite signal via shape evaluation, cross-
// lens entity/temporal join, and signal-rule evaluation, with delta
// computation between snapshots.
package semanticcron

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/gowebpki/jcs"
	cronparse "github.com/robfig/cron/v3"

	"github.com/websets-labs/orchestrator/concurrency"
	"github.com/websets-labs/orchestrator/upstream"
	"github.com/websets-labs/orchestrator/workflow"
	"github.com/websets-labs/orchestrator/workflowerr"
)

// DefaultLensCount is the per-lens item cap used when neither the lens
// source nor the task args override it.
const DefaultLensCount = 20

// Register adds semantic.cron to reg.
func Register(reg *workflow.Registry) {
	reg.Register(workflow.Name(Name), Run)
}

// Result is semantic.cron's return value.
type Result struct {
	Snapshot  Snapshot              `json:"snapshot"`
	WebsetIDs map[string]string     `json:"websetIds"`
	Delta     *Delta                `json:"delta,omitempty"`
	Steps     []workflow.StepRecord `json:"steps"`
	TimedOut  bool                  `json:"timedOut,omitempty"`
}

type lensBranch struct {
	lens      Lens
	websetID  string
	webset    upstream.Webset
	items     []upstream.Item
	bound     bool
	timedOut  bool
	cancelled bool
}

// Run implements semantic.cron.
func Run(ctx context.Context, rc *workflow.RunContext) (any, error) {
	rawConfig, err := workflow.RequireMap(rc.Args, "config")
	if err != nil {
		return nil, err
	}
	vars := stringMapArg(rc.Args["variables"])
	existingWebsets := stringMapArg(rc.Args["existingWebsets"])
	globalCount := workflow.OptionalCount(rc.Args, DefaultLensCount)

	var cfg Config
	var fingerprint string
	if err := rc.Steps.Track("validate", func() error {
		expanded, err := ExpandTemplate(rawConfig, vars)
		if err != nil {
			return err
		}
		if err := ValidateSchema(expanded); err != nil {
			return err
		}
		decoded, err := DecodeConfig(expanded)
		if err != nil {
			return err
		}
		if err := validateReferences(decoded); err != nil {
			return err
		}
		cfg = decoded
		fp, err := configFingerprint(expanded)
		if err != nil {
			return err
		}
		fingerprint = fp
		return nil
	}); err != nil {
		return nil, err
	}

	var previousSnapshot *Snapshot
	if raw, ok := rc.Args["previousSnapshot"]; ok && raw != nil {
		snap, err := decodePreviousSnapshot(raw)
		if err != nil {
			return nil, err
		}
		previousSnapshot = snap
	}

	reEvaluation := len(existingWebsets) > 0

	if rc.Cancelled() {
		return nil, nil
	}

	branches := make([]lensBranch, len(cfg.Lenses))
	sem := concurrency.New(len(cfg.Lenses))

	resolveFns := make([]func(ctx context.Context) error, len(cfg.Lenses))
	for i, lens := range cfg.Lenses {
		i, lens := i, lens
		resolveFns[i] = func(ctx context.Context) error {
			if reEvaluation {
				wid := existingWebsets[lens.ID]
				if wid == "" {
					wid = lens.WebsetID
				}
				if wid == "" {
					return workflowerr.Errorf(workflowerr.KindValidation, "validate", "lens %q has no existingWebsets binding", lens.ID)
				}
				branches[i] = lensBranch{lens: lens, websetID: wid, bound: true}
				return nil
			}
			if lens.WebsetID != "" {
				branches[i] = lensBranch{lens: lens, websetID: lens.WebsetID, bound: true}
				return nil
			}
			if lens.Source == nil {
				return workflowerr.Errorf(workflowerr.KindValidation, "validate", "lens %q needs either source or websetId", lens.ID)
			}
			w, err := rc.Client.CreateWebset(ctx, upstream.CreateWebsetParams{
				Query:       lens.Source.Query,
				Entity:      lens.Source.Entity,
				Criteria:    lens.Source.Criteria,
				Count:       lens.Source.Count,
				Enrichments: lens.Source.Enrichments,
			})
			if err != nil {
				return err
			}
			rc.OwnWebset(w.ID)
			branches[i] = lensBranch{lens: lens, websetID: w.ID, webset: w}
			return nil
		}
	}
	if err := rc.Steps.Track("resolve", func() error { return sem.Run(ctx, resolveFns...) }); err != nil {
		return nil, err
	}

	if rc.Cancelled() {
		rc.CancelOwnedWebsets(ctx)
		return nil, nil
	}

	var pollFns []func(ctx context.Context) error
	for i := range branches {
		if branches[i].bound {
			continue
		}
		i := i
		pollFns = append(pollFns, func(ctx context.Context) error {
			res, err := workflow.PollToIdle(ctx, rc, branches[i].websetID)
			if err != nil {
				return err
			}
			branches[i].webset = res.Webset
			branches[i].timedOut = res.TimedOut
			branches[i].cancelled = res.Cancelled
			return nil
		})
	}
	if len(pollFns) > 0 {
		if err := rc.Steps.Track("poll", func() error { return sem.Run(ctx, pollFns...) }); err != nil {
			return nil, err
		}
	}

	anyCancelled := rc.Cancelled()
	anyTimedOut := false
	for _, b := range branches {
		if b.cancelled {
			anyCancelled = true
		}
		if b.timedOut {
			anyTimedOut = true
		}
	}
	if anyCancelled {
		rc.CancelOwnedWebsets(ctx)
		return nil, nil
	}

	var fetchFns []func(ctx context.Context) error
	for i := range branches {
		if branches[i].webset.ID != "" {
			continue
		}
		i := i
		fetchFns = append(fetchFns, func(ctx context.Context) error {
			w, err := rc.Client.GetWebset(ctx, branches[i].websetID)
			if err != nil {
				return err
			}
			branches[i].webset = w
			return nil
		})
	}
	if len(fetchFns) > 0 {
		if err := rc.Steps.Track("resolveEnrichments", func() error { return sem.Run(ctx, fetchFns...) }); err != nil {
			return nil, err
		}
	}

	if rc.Cancelled() {
		rc.CancelOwnedWebsets(ctx)
		return nil, nil
	}

	collectFns := make([]func(ctx context.Context) error, len(branches))
	for i := range branches {
		i := i
		count := globalCount
		if branches[i].lens.Source != nil && branches[i].lens.Source.Count > 0 {
			count = branches[i].lens.Source.Count
		}
		collectFns[i] = func(ctx context.Context) error {
			items, err := workflow.CollectItems(ctx, rc, branches[i].websetID, count)
			if err != nil {
				return err
			}
			branches[i].items = items
			return nil
		}
	}
	if err := rc.Steps.Track("collect", func() error { return sem.Run(ctx, collectFns...) }); err != nil {
		return nil, err
	}

	if rc.Cancelled() {
		rc.CancelOwnedWebsets(ctx)
		return nil, nil
	}

	lensResults := make([]LensResult, len(branches))
	websetIDs := make(map[string]string, len(branches))
	if err := rc.Steps.Track("shape", func() error {
		for i, b := range branches {
			descByID := enrichmentDescriptions(b.webset)
			lr, err := buildLensResult(cfg, b.lens.ID, b.websetID, b.items, descByID)
			if err != nil {
				return err
			}
			lensResults[i] = lr
			websetIDs[b.lens.ID] = b.websetID
		}
		return nil
	}); err != nil {
		return nil, err
	}

	declaredLensIDs := make([]string, len(cfg.Lenses))
	for i, l := range cfg.Lenses {
		declaredLensIDs[i] = l.ID
	}

	var join JoinResult
	var signal SignalResult
	rc.Steps.Track("join", func() error {
		join = runJoin(lensResults, cfg.Join)
		return nil
	})
	rc.Steps.Track("signal", func() error {
		signal = evaluateSignal(cfg.Signal, declaredLensIDs, join)
		return nil
	})

	snapshot := buildSnapshot(lensResults, join, signal, time.Now())
	snapshot.ConfigFingerprint = fingerprint

	var delta *Delta
	if previousSnapshot != nil {
		d := computeDelta(*previousSnapshot, snapshot)
		delta = &d
	}

	if !reEvaluation && cfg.Monitor != nil {
		rc.Steps.Track("monitor", func() error {
			registerMonitors(ctx, rc, cfg.Monitor, websetIDs)
			return nil
		})
	}

	return Result{
		Snapshot:  snapshot,
		WebsetIDs: websetIDs,
		Delta:     delta,
		Steps:     rc.Steps.Records(),
		TimedOut:  anyTimedOut,
	}, nil
}

// registerMonitors attempts to attach cfg's monitor cadence to every lens's
// webset, initial-run only. The cron expression is validated with a
// 5-field parser before any upstream call is attempted. All failures,
// whether an invalid expression or an upstream error, are logged and
// otherwise dropped; they
// never abort the evaluation.
func registerMonitors(ctx context.Context, rc *workflow.RunContext, monitor *MonitorSpec, websetIDs map[string]string) {
	parser := cronparse.NewParser(cronparse.Minute | cronparse.Hour | cronparse.Dom | cronparse.Month | cronparse.Dow)
	if _, err := parser.Parse(monitor.Cron); err != nil {
		rc.Telemetry.Logger.Warn(ctx, "semantic.cron monitor cadence invalid, skipping registration", "cron", monitor.Cron, "error", err.Error())
		return
	}
	for lensID, websetID := range websetIDs {
		_, err := rc.Client.CreateMonitor(ctx, upstream.CreateMonitorParams{
			WebsetID: websetID,
			Cron:     monitor.Cron,
			Timezone: monitor.Timezone,
		})
		if err != nil {
			rc.Telemetry.Logger.Warn(ctx, "semantic.cron monitor registration failed", "lensId", lensID, "websetId", websetID, "error", err.Error())
		}
	}
}

func stringMapArg(v any) map[string]string {
	raw, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, val := range raw {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}

func decodePreviousSnapshot(v any) (*Snapshot, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, workflowerr.Errorf(workflowerr.KindValidation, "validate", "previousSnapshot must be an object")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, workflowerr.Wrap(workflowerr.KindValidation, "validate", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, workflowerr.Wrap(workflowerr.KindValidation, "validate", err)
	}
	return &snap, nil
}

// configFingerprint canonicalizes expanded (RFC 8785 JSON Canonicalization
// Scheme) and hashes it, giving a stable label for a configuration that
// survives key-ordering differences, used to detect configuration drift
// between an initial run and a later re-evaluation against the same
// existingWebsets bindings.
func configFingerprint(expanded map[string]any) (string, error) {
	raw, err := json.Marshal(expanded)
	if err != nil {
		return "", workflowerr.Wrap(workflowerr.KindInternal, "validate", err)
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", workflowerr.Wrap(workflowerr.KindInternal, "validate", err)
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}
