package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/websets-labs/orchestrator/taskstore"
)

// newTasksCommand returns the tasks subcommand: the CLI-shaped equivalent
// of the tasks.create/get/result/cancel/list dispatcher operations.
func newTasksCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "tasks",
		Usage: "Create and inspect orchestrator tasks",
		Commands: []*cli.Command{
			newTasksCreateCommand(a),
			newTasksGetCommand(a),
			newTasksResultCommand(a),
			newTasksCancelCommand(a),
			newTasksListCommand(a),
		},
	}
}

func newTasksCreateCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "create",
		Usage:     "Create and schedule a task",
		ArgsUsage: "<workflow-type>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "args",
				Usage: "JSON object of workflow arguments",
				Value: "{}",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			workflowType := cmd.Args().First()
			if workflowType == "" {
				return fmt.Errorf("usage: websetsctl tasks create <workflow-type> --args '{...}'")
			}

			var args map[string]any
			if err := json.Unmarshal([]byte(cmd.String("args")), &args); err != nil {
				return fmt.Errorf("parse --args: %w", err)
			}

			task, err := a.store.Create(workflowType, args)
			if err != nil {
				return fmt.Errorf("create task: %w", err)
			}
			a.runtime.Spawn(task)

			fmt.Println(task.ID)
			return nil
		},
	}
}

func newTasksGetCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show a task's current status",
		ArgsUsage: "<task_id>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			task, err := a.requireTask(cmd)
			if err != nil {
				return err
			}
			fmt.Printf("ID:       %s\n", task.ID)
			fmt.Printf("Type:     %s\n", task.Type)
			fmt.Printf("Status:   %s\n", task.Status)
			if task.Progress.TotalSteps > 0 {
				fmt.Printf("Progress: %d/%d %s\n", task.Progress.CompletedStep, task.Progress.TotalSteps, task.Progress.Message)
			}
			if task.Error != nil {
				fmt.Printf("Error:    [%s/%s] %s\n", task.Error.Step, task.Error.Kind, task.Error.Message)
			}
			return nil
		},
	}
}

func newTasksResultCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "result",
		Usage:     "Print a task's result as JSON",
		ArgsUsage: "<task_id>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			task, err := a.requireTask(cmd)
			if err != nil {
				return err
			}
			if task.Error != nil {
				return fmt.Errorf("task failed: [%s/%s] %s", task.Error.Step, task.Error.Kind, task.Error.Message)
			}
			result := task.Result
			if !task.Status.Terminal() {
				result = task.PartialResult
			}
			b, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal result: %w", err)
			}
			fmt.Println(string(b))
			return nil
		},
	}
}

func newTasksCancelCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:      "cancel",
		Usage:     "Request cancellation of a running task",
		ArgsUsage: "<task_id>",
		Action: func(_ context.Context, cmd *cli.Command) error {
			taskID := cmd.Args().First()
			if taskID == "" {
				return fmt.Errorf("usage: websetsctl tasks cancel <task_id>")
			}
			accepted, err := a.store.Cancel(taskID)
			if err != nil {
				return fmt.Errorf("cancel task: %w", err)
			}
			if accepted {
				fmt.Printf("Task %s cancellation requested.\n", taskID)
			} else {
				fmt.Printf("Task %s already in a terminal state.\n", taskID)
			}
			return nil
		},
	}
}

func newTasksListCommand(a *app) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List tasks",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "status", Usage: "Filter by status"},
			&cli.StringFlag{Name: "type", Usage: "Filter by workflow type"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			filter := taskstore.ListFilter{
				Status: taskstore.Status(cmd.String("status")),
				Type:   cmd.String("type"),
			}
			list := a.store.List(filter)
			if len(list) == 0 {
				fmt.Println("No tasks found.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tPROGRESS")
			for _, s := range list {
				progress := "-"
				if s.Progress.TotalSteps > 0 {
					progress = fmt.Sprintf("%d/%d", s.Progress.CompletedStep, s.Progress.TotalSteps)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.ID, s.Type, s.Status, progress)
			}
			return w.Flush()
		},
	}
}

func (a *app) requireTask(cmd *cli.Command) (taskstore.Task, error) {
	taskID := cmd.Args().First()
	if taskID == "" {
		return taskstore.Task{}, fmt.Errorf("usage: websetsctl tasks %s <task_id>", cmd.Name)
	}
	task, err := a.store.Get(taskID)
	if err != nil {
		return taskstore.Task{}, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}
