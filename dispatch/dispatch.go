// Package dispatch wires every workflow implementation into one frozen
// registry: the single place that knows the
// full set of workflow type names a task can be created with.
package dispatch

import (
	"github.com/websets-labs/orchestrator/workflow"
	"github.com/websets-labs/orchestrator/workflows/adversarial"
	"github.com/websets-labs/orchestrator/workflows/convergent"
	"github.com/websets-labs/orchestrator/workflows/lifecycle"
	"github.com/websets-labs/orchestrator/workflows/qd"
	"github.com/websets-labs/orchestrator/workflows/research"
	"github.com/websets-labs/orchestrator/workflows/semanticcron"
)

// NewRegistry builds and freezes a registry carrying every known workflow.
// Callers must not register additional workflows after this returns.
func NewRegistry() *workflow.Registry {
	reg := workflow.NewRegistry()
	lifecycle.Register(reg)
	convergent.Register(reg)
	qd.Register(reg)
	adversarial.Register(reg)
	research.RegisterDeep(reg)
	research.RegisterVerifiedCollection(reg)
	semanticcron.Register(reg)
	reg.Freeze()
	return reg
}
