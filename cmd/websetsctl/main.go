package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/urfave/cli/v3"

	"github.com/websets-labs/orchestrator/dispatch"
	"github.com/websets-labs/orchestrator/taskstore"
	"github.com/websets-labs/orchestrator/telemetry"
	"github.com/websets-labs/orchestrator/upstream/upstreamtest"
	"github.com/websets-labs/orchestrator/workflow"
)

// app bundles the pieces a websetsctl subcommand needs: the store it reads
// and writes tasks through, and the runtime it schedules new tasks on.
// It always runs against an in-process stub upstream, never a live one.
type app struct {
	store   *taskstore.Store
	runtime *workflow.Runtime
}

func newApp() *app {
	store := taskstore.New()
	registry := dispatch.NewRegistry()
	client := upstreamtest.New()
	rt := workflow.NewRuntime(registry, store, client, telemetry.Noop())
	return &app{store: store, runtime: rt}
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	a := newApp()
	defer a.store.Close()

	cmd := newRootCommand(a)
	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "websetsctl:", err)
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "websetsctl",
		Usage: "Operate the workflow orchestrator against an in-process stub upstream",
		Commands: []*cli.Command{
			newTasksCommand(a),
		},
	}
}
